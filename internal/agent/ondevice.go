package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/smallmodel"
	"github.com/voltbot/volt/internal/tools"
	"github.com/voltbot/volt/pkg/models"
)

// onDeviceMaxIterations bounds the on-device loop. Small models get a
// short leash; anything longer escalates to a cloud tier.
const onDeviceMaxIterations = 5

const onDeviceSystem = `You are a local automation agent. You can use these tools:
%s
To call a tool, reply with exactly one line:
TOOL <name> <json-arguments>
When you have the answer, reply:
ANSWER: <text>
No other output.`

// OnDeviceAgent runs the restricted small-model loop. Its tool set is
// fixed to bash, write_file, and read_file. Any model null or tool
// error yields a nil result so the caller escalates to the cloud.
type OnDeviceAgent struct {
	client   smallmodel.Client
	registry *tools.Registry
	led      *ledger.Ledger
	sink     models.ProgressSink
	logger   *slog.Logger
}

// NewOnDeviceAgent creates the on-device loop.
func NewOnDeviceAgent(client smallmodel.Client, registry *tools.Registry, led *ledger.Ledger, sink models.ProgressSink) *OnDeviceAgent {
	if sink == nil {
		sink = models.NullSink{}
	}
	return &OnDeviceAgent{
		client:   client,
		registry: registry,
		led:      led,
		sink:     sink,
		logger:   slog.Default().With("component", "on-device-agent"),
	}
}

// Available reports whether the underlying model can serve.
func (a *OnDeviceAgent) Available() bool {
	return a.client != nil && a.client.Available()
}

// Run executes the loop. instructions carries optimised skill steps
// and may be empty. A nil return means escalate.
func (a *OnDeviceAgent) Run(ctx context.Context, request, instructions string) *RunResult {
	if !a.Available() {
		return nil
	}

	var toolLines []string
	for _, name := range tools.OnDeviceToolSet {
		if t, ok := a.registry.Get(name); ok {
			toolLines = append(toolLines, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
		}
	}
	system := fmt.Sprintf(onDeviceSystem, strings.Join(toolLines, "\n"))

	var transcript strings.Builder
	if instructions != "" {
		transcript.WriteString("Relevant procedure:\n")
		transcript.WriteString(instructions)
		transcript.WriteString("\n\n")
	}
	transcript.WriteString("Task: ")
	transcript.WriteString(request)
	transcript.WriteString("\n")

	res := &RunResult{}
	a.sink.Emit(models.ProgressEvent{Stage: models.StageAgentStart, Message: "on-device"})

	for iter := 1; iter <= onDeviceMaxIterations; iter++ {
		if ctx.Err() != nil {
			return nil
		}
		res.Iterations = iter

		out, err := a.client.Generate(ctx, smallmodel.Request{
			System:    system,
			Prompt:    transcript.String(),
			MaxTokens: 512,
		})
		if err != nil || out == nil {
			if err != nil {
				a.logger.Debug("on-device generation failed, escalating", "error", err)
			}
			return nil
		}
		res.Usage.Add(models.TokenUsage{
			InputTokens:  int64(out.Usage.InputTokens),
			OutputTokens: int64(out.Usage.OutputTokens),
		})
		if a.led != nil {
			a.led.Record(a.client.Provider(), ledger.PurposeAgent,
				int64(out.Usage.InputTokens), int64(out.Usage.OutputTokens),
				ledger.RecordOptions{Model: a.client.Model()})
		}

		reply := strings.TrimSpace(out.Text)
		if answer, ok := strings.CutPrefix(reply, "ANSWER:"); ok {
			res.Answer = strings.TrimSpace(answer)
			a.sink.Emit(models.ProgressEvent{Stage: models.StageAgentComplete, Message: "on-device"})
			return res
		}

		name, input, ok := parseToolDirective(reply)
		if !ok || !allowedOnDevice(name) {
			// A reply that is neither a directive nor an answer is
			// treated as the answer when it has substance.
			if reply != "" && !strings.HasPrefix(reply, "TOOL") {
				res.Answer = reply
				return res
			}
			return nil
		}

		a.sink.Emit(models.ProgressEvent{Stage: models.StageTool, Message: name})
		result, err := a.registry.Execute(ctx, name, input)
		if err != nil || result.IsError {
			a.logger.Debug("on-device tool failed, escalating", "tool", name, "error", err)
			return nil
		}
		res.ToolCalls = append(res.ToolCalls, models.ToolCallRecord{Tool: name, Input: input})

		fmt.Fprintf(&transcript, "TOOL %s %s\nOBSERVATION:\n%s\n", name, input, result.Content)
	}

	return nil
}

func parseToolDirective(reply string) (string, json.RawMessage, bool) {
	line, _, _ := strings.Cut(reply, "\n")
	rest, ok := strings.CutPrefix(line, "TOOL ")
	if !ok {
		return "", nil, false
	}
	name, args, ok := strings.Cut(strings.TrimSpace(rest), " ")
	if !ok {
		return name, json.RawMessage(`{}`), name != ""
	}
	args = strings.TrimSpace(args)
	if !json.Valid([]byte(args)) {
		return "", nil, false
	}
	return name, json.RawMessage(args), true
}

func allowedOnDevice(name string) bool {
	for _, allowed := range tools.OnDeviceToolSet {
		if name == allowed {
			return true
		}
	}
	return false
}
