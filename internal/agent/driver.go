package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/smallmodel"
	"github.com/voltbot/volt/internal/tools"
	"github.com/voltbot/volt/pkg/models"
)

// iterationSummaryEvery is how often a progress summary is emitted.
const iterationSummaryEvery = 3

// DriverConfig wires a Driver.
type DriverConfig struct {
	Client    ModelClient
	Registry  *tools.Registry
	Compactor Compactor

	// Summarizer condenses oversized tool results. Optional.
	Summarizer *smallmodel.ResultSummarizer

	// IterationClient produces periodic progress summaries. Optional.
	IterationClient smallmodel.Client

	Ledger *ledger.Ledger
	Sink   models.ProgressSink
	Logger *slog.Logger

	// Stale-loop thresholds; zero values take the defaults.
	ErrorThreshold  int
	EmptyThreshold  int
	RepeatThreshold int
}

// Driver runs the cloud React loop: model call, tool dispatch, repeat
// until the model answers without tool calls or a budget trips.
type Driver struct {
	cfg    DriverConfig
	logger *slog.Logger
	sink   models.ProgressSink
}

// NewDriver creates a driver from cfg.
func NewDriver(cfg DriverConfig) *Driver {
	d := &Driver{cfg: cfg, logger: cfg.Logger, sink: cfg.Sink}
	if d.logger == nil {
		d.logger = slog.Default().With("component", "agent-driver")
	}
	if d.sink == nil {
		d.sink = models.NullSink{}
	}
	return d
}

// RunSpec is one agent run.
type RunSpec struct {
	System string
	Prompt string

	// Tools restricts the run to these registered tools. Empty offers
	// the whole registry.
	Tools []string

	MaxIterations int
	MaxTokens     int
}

// RunResult is the outcome of one run, partial on stall or error.
type RunResult struct {
	Answer       string
	Iterations   int
	Truncated    bool
	StallReason  string
	ToolCalls    []models.ToolCallRecord
	Usage        models.TokenUsage
	CreatedFiles []string
}

// Run executes the loop. Cancellation is honoured at iteration
// boundaries; pending tool calls in a cancelled iteration are skipped.
// A tripped stale guard returns ErrStalled alongside partial results.
func (d *Driver) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	maxIter := spec.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	history := []Message{{Role: RoleUser, Content: spec.Prompt}}
	guard := NewStaleGuard(d.cfg.ErrorThreshold, d.cfg.EmptyThreshold, d.cfg.RepeatThreshold)
	specs, err := d.toolSpecs(spec.Tools)
	if err != nil {
		return nil, err
	}

	res := &RunResult{}
	d.sink.Emit(models.ProgressEvent{Stage: models.StageAgentStart, Message: d.cfg.Client.Model()})

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations = iter
		d.sink.Emit(models.ProgressEvent{Stage: models.StageIteration, Message: fmt.Sprintf("iteration %d/%d", iter, maxIter)})

		history = d.maybeCompact(ctx, history)

		resp, err := d.cfg.Client.Generate(ctx, &ModelRequest{
			System:    spec.System,
			Messages:  history,
			Tools:     specs,
			MaxTokens: spec.MaxTokens,
		})
		if err != nil {
			return res, fmt.Errorf("model call failed at iteration %d: %w", iter, err)
		}

		res.Usage.Add(resp.Usage)
		if d.cfg.Ledger != nil {
			d.cfg.Ledger.Record(d.cfg.Client.Provider(), ledger.PurposeAgent,
				resp.Usage.InputTokens, resp.Usage.OutputTokens,
				ledger.RecordOptions{Model: d.cfg.Client.Model()})
		}

		history = append(history, Message{Role: RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})

		if len(resp.ToolCalls) == 0 {
			res.Answer = resp.Text
			d.sink.Emit(models.ProgressEvent{Stage: models.StageAgentComplete})
			return res, nil
		}

		results := d.dispatch(ctx, resp.ToolCalls, guard, res)
		history = append(history, Message{Role: RoleTool, ToolResults: results})

		if stalled, reason := guard.Stalled(); stalled {
			res.StallReason = reason
			d.logger.Warn("run stalled", "reason", reason, "iteration", iter)
			return res, fmt.Errorf("%w: %s", ErrStalled, reason)
		}

		if iter%iterationSummaryEvery == 0 {
			d.emitIterationSummary(ctx, history)
		}
	}

	res.Truncated = true
	res.Answer = lastAssistantText(history)
	d.sink.Emit(models.ProgressEvent{Stage: models.StageAgentComplete, Message: "iteration budget exhausted"})
	return res, nil
}

// dispatch executes the iteration's tool calls in issue order. The
// guard is consulted after every result; once it trips, the rest of
// the batch is never issued.
func (d *Driver) dispatch(ctx context.Context, calls []models.ToolCall, guard *StaleGuard, res *RunResult) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}

		stage := models.StageTool
		if call.Name == "bash" {
			stage = models.StageBashCall
		}
		d.sink.Emit(models.ProgressEvent{Stage: stage, Message: call.Name})

		start := time.Now()
		content, isErr := d.execute(ctx, call)
		elapsed := time.Since(start)

		if d.cfg.Summarizer != nil && !isErr {
			content = d.cfg.Summarizer.Summarize(ctx, call.Name, string(call.Input), content)
		}

		guard.Record(call.Name, call.Input, isErr)
		res.ToolCalls = append(res.ToolCalls, models.ToolCallRecord{
			Tool:     call.Name,
			Input:    call.Input,
			IsError:  isErr,
			Duration: elapsed,
		})
		if call.Name == "write_file" && !isErr {
			if path := writtenPath(call.Input); path != "" {
				res.CreatedFiles = append(res.CreatedFiles, path)
			}
		}

		results = append(results, models.ToolResult{
			ToolCallID: call.ID,
			Content:    content,
			IsError:    isErr,
		})

		if stalled, _ := guard.Stalled(); stalled {
			break
		}
	}
	return results
}

// execute runs one call. Failures become error results for the model
// to recover from; the loop never aborts on a tool error.
func (d *Driver) execute(ctx context.Context, call models.ToolCall) (string, bool) {
	result, err := d.cfg.Registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		if te, ok := tools.AsToolError(err); ok {
			return te.Error(), true
		}
		return err.Error(), true
	}
	return result.Content, result.IsError
}

func (d *Driver) maybeCompact(ctx context.Context, history []Message) []Message {
	if d.cfg.Compactor == nil {
		return history
	}
	tokens := EstimateTokens(history)
	if !d.cfg.Compactor.ShouldCompact(history, tokens) {
		return history
	}

	d.sink.Emit(models.ProgressEvent{Stage: models.StageSummaryBefore, Message: fmt.Sprintf("%d tokens", tokens)})
	compacted, saved := d.cfg.Compactor.Compact(ctx, history)
	d.sink.Emit(models.ProgressEvent{Stage: models.StageSummaryAfter, Message: fmt.Sprintf("%d bytes saved", saved)})
	return compacted
}

func (d *Driver) emitIterationSummary(ctx context.Context, history []Message) {
	client := d.cfg.IterationClient
	if client == nil || !client.Available() {
		return
	}

	var b strings.Builder
	for _, msg := range tail(history, 6) {
		if msg.Content != "" {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&b, "called %s\n", tc.Name)
		}
	}

	res, err := client.Generate(ctx, smallmodel.Request{
		System:    "In one sentence, state what the agent just did and what it is doing next.",
		Prompt:    b.String(),
		MaxTokens: 100,
	})
	if err != nil || res == nil {
		return
	}
	if d.cfg.Ledger != nil {
		d.cfg.Ledger.Record(client.Provider(), ledger.PurposeSummary,
			int64(res.Usage.InputTokens), int64(res.Usage.OutputTokens),
			ledger.RecordOptions{Model: client.Model()})
	}
	d.sink.Emit(models.ProgressEvent{Stage: models.StageIterationSummary, Message: strings.TrimSpace(res.Text)})
}

// toolSpecs resolves the offered tool set against the registry.
func (d *Driver) toolSpecs(names []string) ([]ToolSpec, error) {
	var selected []tools.Tool
	if len(names) == 0 {
		selected = d.cfg.Registry.All()
	} else {
		for _, name := range names {
			t, ok := d.cfg.Registry.Get(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", tools.ErrNotFound, name)
			}
			selected = append(selected, t)
		}
	}

	specs := make([]ToolSpec, 0, len(selected))
	for _, t := range selected {
		specs = append(specs, ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return specs, nil
}

func writtenPath(input json.RawMessage) string {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return ""
	}
	return in.Path
}

func lastAssistantText(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}

func tail(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
