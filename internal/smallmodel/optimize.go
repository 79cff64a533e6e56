package smallmodel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/skills"
)

// PromptOptimizer trims a skill's instructions down to the minimum
// steps a specific request needs.
type PromptOptimizer struct {
	client Client
	led    *ledger.Ledger
	logger *slog.Logger
}

// NewPromptOptimizer creates an optimizer bound to a run ledger.
func NewPromptOptimizer(client Client, led *ledger.Ledger) *PromptOptimizer {
	return &PromptOptimizer{
		client: client,
		led:    led,
		logger: slog.Default().With("component", "prompt-optimizer"),
	}
}

const optimizeSystem = `You trim skill instructions. Given a request and a skill
procedure, return only the steps needed for this request, verbatim where
possible. No commentary.`

// Optimize returns trimmed instructions for the skill, or the full
// content when the model is unavailable or declines.
func (o *PromptOptimizer) Optimize(ctx context.Context, request string, skill *skills.Skill) string {
	if o.client == nil || !o.client.Available() {
		return skill.Content
	}

	prompt := fmt.Sprintf("Request: %s\n\nSkill %s:\n%s", request, skill.Name, skill.Content)
	res, err := o.client.Generate(ctx, Request{
		System:    optimizeSystem,
		Prompt:    prompt,
		MaxTokens: 1024,
	})
	if err != nil || res == nil {
		if err != nil {
			o.logger.Warn("prompt optimization failed, using full skill", "skill", skill.Name, "error", err)
		}
		return skill.Content
	}

	trimmed := strings.TrimSpace(res.Text)
	if trimmed == "" {
		return skill.Content
	}
	record(o.led, o.client, ledger.PurposeOptimizer, res)
	return trimmed
}
