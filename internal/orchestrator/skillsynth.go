package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/voltbot/volt/internal/agent"
	"github.com/voltbot/volt/internal/fsutil"
	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/skills"
	"github.com/voltbot/volt/internal/smallmodel"
)

const synthSystem = `A task was just completed successfully. Write a reusable SKILL.md capturing the procedure so similar requests run faster next time. Output the complete file and nothing else:
---
name: <lowercase-hyphenated-slug>
description: <one sentence, when to use this skill>
keywords: [<trigger terms>]
tools: [<tool names used>]
---
# <Title>

<numbered steps of the procedure, generalised from the run>`

// shouldCreateSkill is the auto-creation predicate: the run succeeded
// without a backing skill and was non-trivial.
func shouldCreateSkill(a *Analysis, res *agent.RunResult) bool {
	if a == nil || res == nil || res.Answer == "" {
		return false
	}
	if a.SkillMatched {
		return false
	}
	return a.Complexity != ComplexitySimple || a.EstimatedSteps >= 2
}

// synthesizeSkill asks the small model to distil the completed run
// into a SKILL.md, persists it, and republishes the manifest. Every
// failure is logged and swallowed; skill creation never fails a run.
func synthesizeSkill(ctx context.Context, client smallmodel.Client, led *ledger.Ledger, logger *slog.Logger, manifest *skills.Manifest, request string, res *agent.RunResult) {
	if client == nil || !client.Available() || manifest == nil {
		return
	}

	var transcript strings.Builder
	fmt.Fprintf(&transcript, "Request: %s\n", request)
	for _, call := range res.ToolCalls {
		status := "ok"
		if call.IsError {
			status = "error"
		}
		fmt.Fprintf(&transcript, "Tool %s (%s): %s\n", call.Tool, status, call.Input)
	}
	fmt.Fprintf(&transcript, "Answer: %s\n", res.Answer)

	out, err := client.Generate(ctx, smallmodel.Request{
		System:    synthSystem,
		Prompt:    transcript.String(),
		MaxTokens: smallmodel.DefaultMaxTokens,
	})
	if err != nil || out == nil {
		if err != nil {
			logger.Warn("skill synthesis failed", "error", err)
		}
		return
	}
	if led != nil {
		led.Record(client.Provider(), ledger.PurposeAnalysis,
			int64(out.Usage.InputTokens), int64(out.Usage.OutputTokens),
			ledger.RecordOptions{Model: client.Model()})
	}

	content := strings.TrimSpace(stripFences(out.Text))
	skill, err := skills.ParseSkill([]byte(content), "")
	if err != nil {
		logger.Warn("synthesised skill unparseable, discarding", "error", err)
		return
	}
	if _, exists := manifest.Get(skill.Name); exists {
		logger.Debug("synthesised skill already exists", "skill", skill.Name)
		return
	}

	path := filepath.Join(manifest.Dir(), skill.Name, "SKILL.md")
	if err := fsutil.WriteFileAtomic(path, []byte(content+"\n"), 0o644); err != nil {
		logger.Warn("persisting synthesised skill failed", "skill", skill.Name, "error", err)
		return
	}
	if err := manifest.Discover(ctx); err != nil {
		logger.Warn("rediscovery after skill synthesis failed", "error", err)
		return
	}
	logger.Info("skill created from completed run", "skill", skill.Name)
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```markdown")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
