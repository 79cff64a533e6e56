// Package orchestrator wires the tiered execution pipeline: route,
// resolve skills, analyze, attempt the on-device agent, and fall back
// to the cloud agent driver. Every run returns a BotResult; no error
// escapes the package.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voltbot/volt/internal/agent"
	"github.com/voltbot/volt/internal/ledger"
	"github.com/voltbot/volt/internal/observability"
	"github.com/voltbot/volt/internal/router"
	"github.com/voltbot/volt/internal/skills"
	"github.com/voltbot/volt/internal/smallmodel"
	"github.com/voltbot/volt/internal/tools"
	"github.com/voltbot/volt/pkg/models"
)

// maxInlinedSkills bounds how many skill procedures go into the system
// prompt.
const maxInlinedSkills = 2

// Config wires an Orchestrator. Strong, Skills, and Registry are
// required; everything else degrades gracefully when absent.
type Config struct {
	Router   *router.Cache
	Skills   *skills.Manifest
	Registry *tools.Registry

	// Strong is the cloud strong-tier client the agent driver runs on.
	Strong agent.ModelClient

	// Fast serves fast_cloud routed runs when present.
	Fast agent.ModelClient

	// Small is the cheapest available small-model client, used for
	// analysis, filtering, summarisation, and compaction.
	Small smallmodel.Client

	// OnDeviceModel powers the on-device simple-agent attempt.
	OnDeviceModel smallmodel.Client

	// Prices feeds each per-run ledger. Nil uses the defaults.
	Prices ledger.PriceTable

	Logger *slog.Logger

	// ContextWindow is the virtual token limit for compaction.
	ContextWindow int

	// Stale-loop thresholds; zero values take the defaults.
	ErrorThreshold  int
	EmptyThreshold  int
	RepeatThreshold int

	// AllowContinuation permits one driver re-invocation after a
	// truncated run.
	AllowContinuation bool

	// SkillAutoCreation enables distilling successful runs into skills.
	SkillAutoCreation bool

	// Metrics receives run, token, and tool counters. Nil disables
	// recording.
	Metrics *observability.Metrics
}

// Orchestrator is the single entry point for executing a request.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "orchestrator")
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Run executes one request through the tiered pipeline. The ledger,
// conversation, and stale guard are created per run; concurrent runs
// do not share state.
func (o *Orchestrator) Run(ctx context.Context, request string, sink models.ProgressSink) *models.BotResult {
	start := time.Now()
	res, tier, led := o.run(ctx, request, sink)
	o.observe(tier, res, led, time.Since(start))
	return res
}

// observe books the run into metrics. The ledger carries model-call
// detail; the result carries tool calls.
func (o *Orchestrator) observe(tier string, res *models.BotResult, led *ledger.Ledger, elapsed time.Duration) {
	m := o.cfg.Metrics
	if m == nil {
		return
	}
	status := "success"
	if !res.Success {
		status = "error"
	}
	m.RecordRun(tier, status, elapsed.Seconds())
	m.RecordLedger(led)
	for _, call := range res.ToolCalls {
		m.RecordToolCall(call.Tool)
	}
}

func (o *Orchestrator) run(ctx context.Context, request string, sink models.ProgressSink) (*models.BotResult, string, *ledger.Ledger) {
	if sink == nil {
		sink = models.NullSink{}
	}
	led := ledger.New(o.cfg.Prices)
	sink.Emit(models.ProgressEvent{Stage: models.StageStart})

	// Route first: a direct_answer category costs nothing.
	var route *router.RouteResult
	if o.cfg.Router != nil {
		route = o.cfg.Router.Route(request)
	}
	if route != nil {
		sink.Emit(models.ProgressEvent{Stage: models.StageRouted, Message: route.Category.ID})
		if route.Plan.Tier == router.TierDirectAnswer {
			sink.Emit(models.ProgressEvent{Stage: models.StageComplete})
			return &models.BotResult{
				Success:      true,
				Answer:       route.Plan.Answer,
				LedgerReport: led.FormatReport(),
			}, string(router.TierDirectAnswer), led
		}
	}

	if err := ctx.Err(); err != nil {
		return o.failure(sink, led, nil, nil, "cancelled"), string(router.TierStrongCloud), led
	}

	// Skill resolution and relevance filtering.
	sink.Emit(models.ProgressEvent{Stage: models.StageSkills})
	candidates := o.resolveSkills(ctx, request, led)

	// Analysis: category plan, skill fast path, or the LLM analyzer.
	sink.Emit(models.ProgressEvent{Stage: models.StageAnalyzing})
	analysis := o.analyze(ctx, request, route, candidates, led)
	sink.Emit(models.ProgressEvent{Stage: models.StageAnalyzed, Message: string(analysis.Complexity)})

	// On-device attempt: cheap, and a non-nil result is final.
	if res := o.tryOnDevice(ctx, request, analysis, led, sink); res != nil {
		sink.Emit(models.ProgressEvent{Stage: models.StageComplete})
		return &models.BotResult{
			Success:      true,
			Answer:       res.Answer,
			ToolCalls:    res.ToolCalls,
			TokenUsage:   res.Usage,
			Analysis:     analysis.asMap(),
			LedgerReport: led.FormatReport(),
		}, string(router.TierOnDevice), led
	}

	// Merge router skill hints the resolver missed.
	candidates = o.mergeRouteSkill(ctx, request, route, candidates, led)
	selected := selectSkills(candidates)
	sink.Emit(models.ProgressEvent{Stage: models.StageSelected, Message: fmt.Sprintf("%d skills", len(selected))})

	// Compose the run and execute the cloud loop.
	tier := string(router.TierStrongCloud)
	if route != nil && route.Plan.Tier == router.TierFastCloud && o.cfg.Fast != nil {
		tier = string(router.TierFastCloud)
	}
	sink.Emit(models.ProgressEvent{Stage: models.StageExecuting})
	runRes, err := o.executeCloud(ctx, request, route, analysis, selected, led, sink)
	if err != nil {
		return o.cloudFailure(sink, led, analysis, runRes, err), tier, led
	}

	// Post-run work never fails the run.
	if o.cfg.SkillAutoCreation && shouldCreateSkill(analysis, runRes) {
		synthesizeSkill(ctx, o.cfg.Small, led, o.logger, o.cfg.Skills, request, runRes)
	}
	o.syncRouter()

	sink.Emit(models.ProgressEvent{Stage: models.StageComplete})
	return &models.BotResult{
		Success:      true,
		Answer:       runRes.Answer,
		Iterations:   runRes.Iterations,
		Truncated:    runRes.Truncated,
		ToolCalls:    runRes.ToolCalls,
		TokenUsage:   runRes.Usage,
		Analysis:     analysis.asMap(),
		LedgerReport: led.FormatReport(),
		CreatedFiles: runRes.CreatedFiles,
	}, tier, led
}

// resolveSkills runs the deterministic resolver and, when a small model
// is available, the relevance filter over its candidates.
func (o *Orchestrator) resolveSkills(ctx context.Context, request string, led *ledger.Ledger) []skills.Candidate {
	if o.cfg.Skills == nil {
		return nil
	}
	candidates := o.cfg.Skills.Resolve(request)
	if len(candidates) == 0 || o.cfg.Small == nil {
		return candidates
	}
	return smallmodel.NewRelevanceFilter(o.cfg.Small, led).Filter(ctx, request, candidates)
}

func (o *Orchestrator) analyze(ctx context.Context, request string, route *router.RouteResult, candidates []skills.Candidate, led *ledger.Ledger) *Analysis {
	if route != nil {
		return analysisFromPlan(route.Plan)
	}
	if len(candidates) > 0 && candidates[0].HighConfidence() {
		return fastPathAnalysis(candidates[0])
	}
	return analyzeRequest(ctx, o.cfg.Small, led, o.logger, request)
}

// analysisFromPlan derives the analysis from a routed category instead
// of a model call.
func analysisFromPlan(plan router.Plan) *Analysis {
	a := &Analysis{EstimatedSteps: 2, PotentialTools: plan.Tools}
	switch plan.Tier {
	case router.TierOnDevice:
		a.Complexity = ComplexitySimple
	case router.TierStrongCloud:
		a.Complexity = ComplexityComplex
	default:
		a.Complexity = ComplexityModerate
	}
	if plan.Skill != "" {
		a.SkillMatched = true
		a.SkillName = plan.Skill
	}
	return a
}

// tryOnDevice runs the on-device loop when the analysis permits it.
// Nil means escalate to the cloud.
func (o *Orchestrator) tryOnDevice(ctx context.Context, request string, analysis *Analysis, led *ledger.Ledger, sink models.ProgressSink) *agent.RunResult {
	if o.cfg.OnDeviceModel == nil || o.cfg.Registry == nil {
		return nil
	}
	if analysis.Complexity != ComplexitySimple || !subsetOf(analysis.PotentialTools, tools.OnDeviceToolSet) {
		return nil
	}

	instructions := ""
	if analysis.SkillMatched && o.cfg.Skills != nil {
		if skill, ok := o.cfg.Skills.Get(analysis.SkillName); ok {
			if o.cfg.Small != nil {
				instructions = smallmodel.NewPromptOptimizer(o.cfg.Small, led).Optimize(ctx, request, skill)
			} else {
				instructions = skill.Content
			}
		}
	}

	onDevice := agent.NewOnDeviceAgent(o.cfg.OnDeviceModel, o.cfg.Registry, led, sink)
	return onDevice.Run(ctx, request, instructions)
}

// mergeRouteSkill appends the routed category's skill hint when the
// resolver did not already surface it.
func (o *Orchestrator) mergeRouteSkill(ctx context.Context, request string, route *router.RouteResult, candidates []skills.Candidate, led *ledger.Ledger) []skills.Candidate {
	if route == nil || route.Plan.Skill == "" || o.cfg.Skills == nil {
		return candidates
	}
	for _, c := range candidates {
		if c.Skill.Name == route.Plan.Skill {
			return candidates
		}
	}
	skill, ok := o.cfg.Skills.Get(route.Plan.Skill)
	if !ok {
		return candidates
	}

	hinted := []skills.Candidate{{Skill: skill, Score: 1.0}}
	if o.cfg.Small != nil {
		hinted = smallmodel.NewRelevanceFilter(o.cfg.Small, led).Filter(ctx, request, hinted)
	}
	return append(candidates, hinted...)
}

// selectSkills picks the skills whose procedures go into the prompt.
func selectSkills(candidates []skills.Candidate) []*skills.Skill {
	selected := make([]*skills.Skill, 0, maxInlinedSkills)
	for _, c := range candidates {
		selected = append(selected, c.Skill)
		if len(selected) == maxInlinedSkills {
			break
		}
	}
	return selected
}

// executeCloud runs the agent driver, with one continuation
// re-invocation after truncation when the caller allows it.
func (o *Orchestrator) executeCloud(ctx context.Context, request string, route *router.RouteResult, analysis *Analysis, selected []*skills.Skill, led *ledger.Ledger, sink models.ProgressSink) (*agent.RunResult, error) {
	var optimizer *smallmodel.PromptOptimizer
	if o.cfg.Small != nil {
		optimizer = smallmodel.NewPromptOptimizer(o.cfg.Small, led)
	}
	system := composeSystemPrompt(ctx, optimizer, request, selected, analysis.Complexity) +
		definitionOfDoneSuffix(analysis)

	prompt := request
	var toolNames []string
	if route != nil {
		prompt = renderPrompt(route.Plan.Prompt, request)
		if len(route.Plan.Tools) > 0 {
			toolNames = unionTools(route.Plan.Tools, tools.OnDeviceToolSet)
		}
	}

	driver := o.newDriver(route, led, sink)
	spec := agent.RunSpec{
		System:        system,
		Prompt:        prompt,
		Tools:         toolNames,
		MaxIterations: analysis.MaxIterations(),
		MaxTokens:     analysis.MaxTokens(),
	}

	res, err := driver.Run(ctx, spec)
	if err != nil {
		return res, err
	}

	if res.Truncated && o.cfg.AllowContinuation {
		spec.Prompt = continuationPromptFor(request, res)
		more, err := driver.Run(ctx, spec)
		if err != nil {
			return mergeRuns(res, more), err
		}
		res = mergeRuns(res, more)
	}
	return res, nil
}

func (o *Orchestrator) newDriver(route *router.RouteResult, led *ledger.Ledger, sink models.ProgressSink) *agent.Driver {
	client := o.cfg.Strong
	if route != nil && route.Plan.Tier == router.TierFastCloud && o.cfg.Fast != nil {
		client = o.cfg.Fast
	}

	cfg := agent.DriverConfig{
		Client:          client,
		Registry:        o.cfg.Registry,
		Compactor:       agent.NewContextCompactor(o.cfg.Small, led, o.cfg.ContextWindow),
		Ledger:          led,
		Sink:            sink,
		Logger:          o.logger,
		ErrorThreshold:  o.cfg.ErrorThreshold,
		EmptyThreshold:  o.cfg.EmptyThreshold,
		RepeatThreshold: o.cfg.RepeatThreshold,
	}
	if o.cfg.Small != nil {
		cfg.Summarizer = smallmodel.NewResultSummarizer(o.cfg.Small, led)
		cfg.IterationClient = o.cfg.Small
	}
	return agent.NewDriver(cfg)
}

// continuationPromptFor lists the work already done so the second pass
// does not repeat it.
func continuationPromptFor(request string, res *agent.RunResult) string {
	var b strings.Builder
	b.WriteString(continuationPrompt)
	fmt.Fprintf(&b, "\n\nOriginal request: %s", request)
	if len(res.ToolCalls) > 0 {
		b.WriteString("\nTool calls already made:")
		for _, call := range res.ToolCalls {
			fmt.Fprintf(&b, "\n- %s %s", call.Tool, call.Input)
		}
	}
	if res.Answer != "" {
		fmt.Fprintf(&b, "\nLast progress note: %s", res.Answer)
	}
	return b.String()
}

func mergeRuns(first, second *agent.RunResult) *agent.RunResult {
	if second == nil {
		return first
	}
	merged := &agent.RunResult{
		Answer:       second.Answer,
		Iterations:   first.Iterations + second.Iterations,
		Truncated:    second.Truncated,
		StallReason:  second.StallReason,
		ToolCalls:    append(append([]models.ToolCallRecord{}, first.ToolCalls...), second.ToolCalls...),
		Usage:        first.Usage,
		CreatedFiles: append(append([]string{}, first.CreatedFiles...), second.CreatedFiles...),
	}
	merged.Usage.Add(second.Usage)
	if merged.Answer == "" {
		merged.Answer = first.Answer
	}
	return merged
}

// cloudFailure maps driver errors onto the BotResult error taxonomy.
func (o *Orchestrator) cloudFailure(sink models.ProgressSink, led *ledger.Ledger, analysis *Analysis, res *agent.RunResult, err error) *models.BotResult {
	msg := err.Error()
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		msg = "cancelled"
	case agent.IsAuthError(err):
		// Provider label is already in the message.
	case errors.Is(err, agent.ErrStalled):
		// Partial history rides along in the result.
		o.cfg.Metrics.RecordStall()
	}
	return o.failure(sink, led, analysis, res, msg)
}

func (o *Orchestrator) failure(sink models.ProgressSink, led *ledger.Ledger, analysis *Analysis, res *agent.RunResult, msg string) *models.BotResult {
	sink.Emit(models.ProgressEvent{Stage: models.StageError, Message: msg})
	out := &models.BotResult{
		Success:      false,
		Error:        msg,
		LedgerReport: led.FormatReport(),
	}
	if analysis != nil {
		out.Analysis = analysis.asMap()
	}
	if res != nil {
		out.Iterations = res.Iterations
		out.ToolCalls = res.ToolCalls
		out.TokenUsage = res.Usage
		out.CreatedFiles = res.CreatedFiles
	}
	return out
}

// syncRouter refreshes the manifest's coverage after a run. Failures
// are logged and suppressed.
func (o *Orchestrator) syncRouter() {
	if o.cfg.Router == nil || !o.cfg.Router.Loaded() || o.cfg.Skills == nil || o.cfg.Registry == nil {
		return
	}
	sums := o.cfg.Skills.Summaries()
	toolNames := o.cfg.Registry.Names()
	if !o.cfg.Router.IsStale(skillNamesOf(sums), toolNames) {
		return
	}
	if err := o.cfg.Router.Sync(sums, toolNames); err != nil {
		o.logger.Warn("router sync failed", "error", err)
	}
}

func skillNamesOf(sums []skills.Summary) []string {
	names := make([]string, len(sums))
	for i, s := range sums {
		names[i] = s.Name
	}
	return names
}

func subsetOf(subset, super []string) bool {
	set := make(map[string]bool, len(super))
	for _, s := range super {
		set[s] = true
	}
	for _, s := range subset {
		if !set[s] {
			return false
		}
	}
	return true
}

func unionTools(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, name := range group {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
