package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/voltbot/volt/internal/skills"
	"github.com/voltbot/volt/internal/smallmodel"
)

const defaultSystemPrompt = `You are volt, an automation agent. Work toward the user's request using the available tools, one step at a time. Verify results before declaring success. When the request is satisfied, reply with the final answer and no tool calls.`

const continuationPrompt = `Continue the previous task from where it stopped. Do not repeat tool calls whose results you already have; use the conversation so far and finish the remaining work.`

// renderPrompt substitutes the request into a category prompt template.
// An empty template yields the request itself.
func renderPrompt(template, request string) string {
	if template == "" {
		return request
	}
	return strings.ReplaceAll(template, "{{request}}", request)
}

// composeSystemPrompt appends skill instructions to the base prompt.
// Instructions are condensed through the optimizer unless the run is
// complex, where full procedures pay off.
func composeSystemPrompt(ctx context.Context, optimizer *smallmodel.PromptOptimizer, request string, selected []*skills.Skill, complexity Complexity) string {
	var b strings.Builder
	b.WriteString(defaultSystemPrompt)

	for _, skill := range selected {
		content := skill.Content
		if complexity != ComplexityComplex && optimizer != nil {
			content = optimizer.Optimize(ctx, request, skill)
		}
		fmt.Fprintf(&b, "\n\nRelevant procedure %q:\n%s", skill.Name, content)
	}

	if len(selected) > 0 {
		b.WriteString("\n\nFollow the procedures above where they apply.")
	}
	return b.String()
}

// definitionOfDoneSuffix appends the analyzer's completion criterion.
func definitionOfDoneSuffix(a *Analysis) string {
	if a == nil || a.DefinitionOfDone == "" {
		return ""
	}
	return "\n\nThe task is done when: " + a.DefinitionOfDone
}
