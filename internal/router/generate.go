package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/skills"
	"github.com/voltbot/volt/internal/smallmodel"
)

const classifierSystem = `You design routing categories for an automation agent.
Given skills and tools, reply with a JSON array of categories:
[{"id":"...","description":"...","patterns":["regex"],"triggers":[["keyword","keyword"]],
"tier":"on_device|fast_cloud|strong_cloud","skills":["name"],"tools":["name"]}]
Patterns are matched against lowercased requests. Reply with JSON only.`

type generatedCategory struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Patterns    []string   `json:"patterns"`
	Triggers    [][]string `json:"triggers"`
	Tier        string     `json:"tier"`
	Skills      []string   `json:"skills"`
	Tools       []string   `json:"tools"`
}

// Generate builds a fresh manifest: seeded categories first, then
// classifier output, then synthesised categories for anything the
// classifier left uncovered. The classifier failing is not fatal; the
// synthesised categories alone satisfy the coverage invariant.
func (c *Cache) Generate(ctx context.Context, classifier smallmodel.Client, led *ledger.Ledger, skillSums []skills.Summary, toolNames []string) error {
	cats := seededCategories()
	now := time.Now()

	if classifier != nil && classifier.Available() {
		generated, err := c.classify(ctx, classifier, led, skillSums, toolNames)
		if err != nil {
			c.logger.Warn("classifier generation failed, using synthesised categories", "error", err)
		} else {
			for _, g := range generated {
				cats = append(cats, categoryFromGenerated(g, now))
			}
		}
	}

	cats = appendUncovered(cats, skillSums, toolNames, now)

	m := &Manifest{
		Version:        ManifestVersion,
		GeneratedAt:    now,
		Categories:     cats,
		RecordedSkills: skillNames(skillSums),
		RecordedTools:  append([]string(nil), toolNames...),
	}
	if err := c.save(m); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}

	c.mu.Lock()
	c.manifest = m
	c.mu.Unlock()
	return nil
}

// Sync appends categories for skills and tools with no hint anywhere
// in the manifest. Existing categories are never rewritten.
func (c *Cache) Sync(skillSums []skills.Summary, toolNames []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manifest == nil {
		return fmt.Errorf("no manifest loaded")
	}

	cats := appendUncovered(c.manifest.Categories, skillSums, toolNames, time.Now())

	next := &Manifest{
		Version:        c.manifest.Version,
		GeneratedAt:    c.manifest.GeneratedAt,
		Categories:     cats,
		RecordedSkills: skillNames(skillSums),
		RecordedTools:  append([]string(nil), toolNames...),
	}
	if err := c.save(next); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	c.manifest = next
	return nil
}

func (c *Cache) classify(ctx context.Context, classifier smallmodel.Client, led *ledger.Ledger, skillSums []skills.Summary, toolNames []string) ([]generatedCategory, error) {
	var b strings.Builder
	b.WriteString("Skills:\n")
	for _, s := range skillSums {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	b.WriteString("\nTools:\n")
	for _, t := range toolNames {
		fmt.Fprintf(&b, "- %s\n", t)
	}

	res, err := classifier.Generate(ctx, smallmodel.Request{
		System:    classifierSystem,
		Prompt:    b.String(),
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("classifier returned nothing")
	}

	var generated []generatedCategory
	if err := json.Unmarshal([]byte(extractJSONArray(res.Text)), &generated); err != nil {
		return nil, fmt.Errorf("parse classifier output: %w", err)
	}

	if led != nil {
		led.Record(classifier.Provider(), ledger.PurposeRouterGen,
			int64(res.Usage.InputTokens), int64(res.Usage.OutputTokens),
			ledger.RecordOptions{Model: classifier.Model()})
	}
	return generated, nil
}

func categoryFromGenerated(g generatedCategory, now time.Time) Category {
	tier := Tier(g.Tier)
	switch tier {
	case TierOnDevice, TierFastCloud, TierStrongCloud:
	default:
		tier = TierFastCloud
	}
	skill := ""
	if len(g.Skills) > 0 {
		skill = g.Skills[0]
	}
	return Category{
		ID:          g.ID,
		Description: g.Description,
		Patterns:    g.Patterns,
		Triggers:    g.Triggers,
		Plan:        Plan{Tier: tier, Tools: g.Tools, Skill: skill},
		SkillsHint:  g.Skills,
		ToolsHint:   g.Tools,
		GeneratedAt: now,
	}
}

// appendUncovered synthesises a category for every skill and tool not
// hinted anywhere in cats.
func appendUncovered(cats []Category, skillSums []skills.Summary, toolNames []string, now time.Time) []Category {
	coveredSkills := make(map[string]bool)
	coveredTools := make(map[string]bool)
	for _, cat := range cats {
		for _, s := range cat.SkillsHint {
			coveredSkills[s] = true
		}
		if cat.Plan.Skill != "" {
			coveredSkills[cat.Plan.Skill] = true
		}
		for _, t := range cat.ToolsHint {
			coveredTools[t] = true
		}
		for _, t := range cat.Plan.Tools {
			coveredTools[t] = true
		}
	}

	for _, s := range skillSums {
		if coveredSkills[s.Name] {
			continue
		}
		cats = append(cats, Category{
			ID:          "skill-" + s.Name,
			Description: s.Description,
			Triggers:    [][]string{{strings.ReplaceAll(s.Name, "-", " ")}},
			Plan:        Plan{Tier: TierFastCloud, Skill: s.Name},
			SkillsHint:  []string{s.Name},
			GeneratedAt: now,
		})
	}
	for _, t := range toolNames {
		if coveredTools[t] {
			continue
		}
		cats = append(cats, Category{
			ID:          "tool-" + t,
			Triggers:    [][]string{{strings.ReplaceAll(t, "_", " ")}},
			Plan:        Plan{Tier: TierFastCloud, Tools: []string{t}},
			ToolsHint:   []string{t},
			GeneratedAt: now,
		})
	}
	return cats
}

// extractJSONArray strips prose and code fences around a JSON array.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func skillNames(sums []skills.Summary) []string {
	out := make([]string, len(sums))
	for i, s := range sums {
		out[i] = s.Name
	}
	return out
}
