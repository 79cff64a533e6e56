package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/skills"
	"github.com/voltbot/volt/internal/smallmodel"
)

// Complexity grades a request for budget derivation.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Iteration budgets per complexity grade.
const (
	simpleIterations   = 5
	moderateIterations = 10
	complexIterations  = 15

	// skillBackedFactor shrinks the budget when a skill guides the run.
	skillBackedFactor = 0.6
	minIterations     = 3

	defaultMaxTokens = 4096
	fileOpMaxTokens  = 8192
)

// Analysis is the pre-execution assessment of a request.
type Analysis struct {
	Complexity       Complexity `json:"complexity"`
	EstimatedSteps   int        `json:"estimated_steps"`
	RequiresBash     bool       `json:"requires_bash"`
	RequiresFileOps  bool       `json:"requires_file_ops"`
	DefinitionOfDone string     `json:"definition_of_done,omitempty"`
	PotentialTools   []string   `json:"potential_tools,omitempty"`
	SkillMatched     bool       `json:"skill_matched,omitempty"`
	SkillName        string     `json:"skill_name,omitempty"`
}

// MaxIterations derives the iteration budget.
func (a *Analysis) MaxIterations() int {
	var budget int
	switch a.Complexity {
	case ComplexitySimple:
		budget = simpleIterations
	case ComplexityComplex:
		budget = complexIterations
	default:
		budget = moderateIterations
	}
	if a.SkillMatched {
		budget = int(float64(budget) * skillBackedFactor)
		if budget < minIterations {
			budget = minIterations
		}
	}
	return budget
}

// MaxTokens derives the per-call token budget.
func (a *Analysis) MaxTokens() int {
	if a.RequiresFileOps {
		return fileOpMaxTokens
	}
	return defaultMaxTokens
}

// asMap renders the analysis for the BotResult payload.
func (a *Analysis) asMap() map[string]any {
	m := map[string]any{
		"complexity":      string(a.Complexity),
		"estimated_steps": a.EstimatedSteps,
	}
	if a.RequiresBash {
		m["requires_bash"] = true
	}
	if a.RequiresFileOps {
		m["requires_file_ops"] = true
	}
	if a.DefinitionOfDone != "" {
		m["definition_of_done"] = a.DefinitionOfDone
	}
	if len(a.PotentialTools) > 0 {
		m["potential_tools"] = a.PotentialTools
	}
	if a.SkillMatched {
		m["skill_matched"] = true
		m["skill_name"] = a.SkillName
	}
	return m
}

// fastPathAnalysis builds an analysis from a high-confidence skill
// match without any model call.
func fastPathAnalysis(c skills.Candidate) *Analysis {
	return &Analysis{
		Complexity:     ComplexityModerate,
		EstimatedSteps: 3,
		PotentialTools: c.Skill.Tools,
		SkillMatched:   true,
		SkillName:      c.Skill.Name,
	}
}

// defaultAnalysis is the fallback when the analyzer cannot run or its
// output does not parse.
func defaultAnalysis() *Analysis {
	return &Analysis{Complexity: ComplexityModerate, EstimatedSteps: 3}
}

const analyzerSystem = `Assess the user request for an automation agent. Reply with a single JSON object:
{"complexity":"simple|moderate|complex","estimated_steps":N,"requires_bash":bool,"requires_file_ops":bool,"definition_of_done":"...","potential_tools":["..."]}
simple = one obvious action, moderate = a few steps, complex = open-ended or multi-stage. No other output.`

// analyzeRequest grades the request on the cheapest available small
// model. Any failure falls back to a moderate default.
func analyzeRequest(ctx context.Context, client smallmodel.Client, led *ledger.Ledger, logger *slog.Logger, request string) *Analysis {
	if client == nil || !client.Available() {
		return defaultAnalysis()
	}

	res, err := client.Generate(ctx, smallmodel.Request{
		System:    analyzerSystem,
		Prompt:    request,
		MaxTokens: 512,
	})
	if err != nil || res == nil {
		if err != nil {
			logger.Warn("request analysis failed, using defaults", "error", err)
		}
		return defaultAnalysis()
	}
	if led != nil {
		led.Record(client.Provider(), ledger.PurposeAnalysis,
			int64(res.Usage.InputTokens), int64(res.Usage.OutputTokens),
			ledger.RecordOptions{Model: client.Model()})
	}

	a, ok := parseAnalysis(res.Text)
	if !ok {
		logger.Warn("analysis output unparseable, using defaults")
		return defaultAnalysis()
	}
	return a
}

func parseAnalysis(text string) (*Analysis, bool) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, false
	}
	var a Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false
	}
	switch a.Complexity {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
	default:
		a.Complexity = ComplexityModerate
	}
	if a.EstimatedSteps <= 0 {
		a.EstimatedSteps = 1
	}
	return &a, true
}

// extractJSONObject pulls the first {...} span out of text, tolerating
// markdown fences around it.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
