// Package router implements the cached request router: a persistent
// ordered manifest of categories matched ahead of any model call, so
// recurring requests skip straight to a plan.
package router

import (
	"time"
)

// Tier names the execution level a routed request runs at.
type Tier string

const (
	// TierDirectAnswer answers from the category itself. No model
	// call, zero tokens.
	TierDirectAnswer Tier = "direct_answer"

	// TierOnDevice escalates to the on-device small-model agent.
	TierOnDevice Tier = "on_device"

	// TierFastCloud runs the agent driver on the cloud fast model.
	TierFastCloud Tier = "fast_cloud"

	// TierStrongCloud runs the agent driver on the cloud strong model.
	TierStrongCloud Tier = "strong_cloud"
)

// Plan tells the orchestrator how to execute a matched request.
type Plan struct {
	Tier Tier `json:"tier"`

	// Answer is the canned reply for direct_answer categories.
	Answer string `json:"answer,omitempty"`

	// Prompt is a prompt template for agent tiers. The {{request}}
	// placeholder receives the user request.
	Prompt string `json:"prompt,omitempty"`

	// Tools restricts the agent to these registered tools.
	Tools []string `json:"tools,omitempty"`

	// Skill names a skill whose instructions are inlined.
	Skill string `json:"skill,omitempty"`
}

// Category is one routing rule. A category matches when any pattern
// matches the request, or when every keyword of at least one trigger
// group appears in it.
type Category struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Patterns    []string   `json:"patterns,omitempty"`
	Triggers    [][]string `json:"triggers,omitempty"`
	Plan        Plan       `json:"plan"`

	// SkillsHint and ToolsHint record which skills and tools this
	// category covers, for staleness tracking.
	SkillsHint []string `json:"skills_hint,omitempty"`
	ToolsHint  []string `json:"tools_hint,omitempty"`

	GeneratedAt time.Time `json:"generated_at,omitzero"`
}

// Manifest is the persisted category list plus the skill and tool
// names recorded when it was generated.
type Manifest struct {
	Version        int        `json:"version"`
	GeneratedAt    time.Time  `json:"generated_at"`
	Categories     []Category `json:"categories"`
	RecordedSkills []string   `json:"recorded_skills"`
	RecordedTools  []string   `json:"recorded_tools"`
}

// ManifestVersion is the current on-disk format version.
const ManifestVersion = 1

// RouteResult is a successful lookup.
type RouteResult struct {
	Category *Category
	Plan     Plan
}

// seededCategories are always present, ahead of generated ones.
func seededCategories() []Category {
	return []Category{
		{
			ID:          "direct-ping",
			Description: "liveness checks answered without a model",
			Patterns:    []string{`^ping[!.?]*$`, `^health(check)?$`, `^are you (there|up|alive)\??$`},
			Triggers:    [][]string{{"ping"}},
			Plan:        Plan{Tier: TierDirectAnswer, Answer: "pong"},
		},
	}
}
