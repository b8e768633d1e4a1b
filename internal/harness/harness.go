// Package harness implements the Scenario Runner: the component that
// takes a seeded BenchmarkScenario, provisions an isolated workspace for
// it, drives a real agent Loop against a scripted provider, and reports
// whether the run matched the scenario's expectations.
//
// A run moves through a fixed sequence of states — setting up the
// workspace, running the loop, validating its outcome, reporting, and
// cleaning up — and always reaches CleaningUp regardless of where it
// fails, so a scenario never leaks a temp directory.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/agentcore/internal/conversation"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/executor"
	"github.com/haasonsaas/agentcore/internal/loop"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/planner"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/internal/state"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/internal/workspace"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// phase is the Scenario Runner's state machine per its documented
// progression: SettingUpWorkspace -> Running -> Validating -> Reporting
// -> CleaningUp -> Done, with any failure short-circuiting straight to
// CleaningUp.
type phase string

const (
	phaseSettingUpWorkspace phase = "setting_up_workspace"
	phaseRunning            phase = "running"
	phaseValidating         phase = "validating"
	phaseReporting          phase = "reporting"
	phaseCleaningUp         phase = "cleaning_up"
	phaseDone               phase = "done"
)

// toolOutcome tracks, per tool call, the data needed to validate a
// scenario's ExpectedToolInvocations.
type toolOutcome struct {
	attempts      map[string]int
	everSucceeded map[string]bool
	invocations   []contracts.ToolCall
}

// Runner executes BenchmarkScenarios against the real agent Loop.
type Runner struct {
	workspaceRoot string
	toolTimeout   time.Duration
	extraTools    []executor.Invoker
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
}

// Config configures a Runner.
type Config struct {
	// WorkspaceRoot is the parent directory each scenario's isolated
	// workspace is created under. Defaults to os.TempDir() when empty.
	WorkspaceRoot string
	ToolTimeout   time.Duration
	// ExtraTools are registered alongside the standard filesystem tools,
	// for scenarios that exercise a scripted or mock tool not among them.
	ExtraTools []executor.Invoker
	// Logger, Metrics and Tracer are optional; a nil value disables the
	// corresponding observability surface for this Runner.
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// New builds a Runner from cfg.
func New(cfg Config) *Runner {
	timeout := cfg.ToolTimeout
	if timeout <= 0 {
		timeout = loop.DefaultToolTimeout
	}
	return &Runner{
		workspaceRoot: cfg.WorkspaceRoot,
		toolTimeout:   timeout,
		extraTools:    cfg.ExtraTools,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
	}
}

// Run executes scenario to completion, always cleaning up its workspace
// before returning, and reports whether the run satisfied the
// scenario's expectations.
func (r *Runner) Run(ctx context.Context, scenario contracts.BenchmarkScenario) contracts.BenchmarkResult {
	started := time.Now()

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.TraceScenario(ctx, scenario.ID)
		defer span.End()
	}
	if r.logger != nil {
		r.logger.Info(ctx, "scenario starting", "scenario_id", scenario.ID)
	}
	if r.metrics != nil {
		r.metrics.RunStarted()
		defer r.metrics.RunFinished()
	}

	// phaseSettingUpWorkspace
	dir, setupErr := r.setupWorkspace(scenario)
	defer func() {
		// phaseCleaningUp -> phaseDone
		if dir != "" {
			_ = os.RemoveAll(dir)
		}
	}()

	if setupErr != nil {
		result := contracts.BenchmarkResult{
			ScenarioID:     scenario.ID,
			Passed:         false,
			FailureReasons: []string{fmt.Sprintf("workspace setup failed: %v", setupErr)},
			Duration:       time.Since(started),
		}
		r.reportOutcome(ctx, result)
		return result
	}

	// phaseRunning
	result, outcome, conv, runErr := r.runLoop(ctx, dir, scenario)
	if runErr != nil {
		out := contracts.BenchmarkResult{
			ScenarioID:     scenario.ID,
			Passed:         false,
			FailureReasons: []string{fmt.Sprintf("run failed: %v", runErr)},
			Duration:       time.Since(started),
		}
		r.reportOutcome(ctx, out)
		return out
	}

	// phaseValidating
	failures := r.validate(scenario, result, outcome, dir)

	// phaseReporting
	out := contracts.BenchmarkResult{
		ScenarioID:        scenario.ID,
		Passed:            len(failures) == 0,
		FailureReasons:    failures,
		FinalState:        result.FinalState,
		ToolInvocations:   outcome.invocations,
		Duration:          time.Since(started),
		FinalConversation: conv,
	}
	r.reportOutcome(ctx, out)
	return out
}

// reportOutcome records a finished scenario's result through the logger
// and metrics surfaces, when configured.
func (r *Runner) reportOutcome(ctx context.Context, result contracts.BenchmarkResult) {
	if r.logger != nil {
		if result.Passed {
			r.logger.Info(ctx, "scenario passed", "scenario_id", result.ScenarioID, "duration", result.Duration.String())
		} else {
			r.logger.Warn(ctx, "scenario failed", "scenario_id", result.ScenarioID, "reasons", result.FailureReasons)
		}
	}
	if r.metrics != nil {
		outcome := "fail"
		if result.Passed {
			outcome = "pass"
		}
		r.metrics.RecordScenarioOutcome(result.ScenarioID, outcome)
	}
}

// setupWorkspace creates an isolated directory for scenario and seeds it
// with the files the scenario declares.
func (r *Runner) setupWorkspace(scenario contracts.BenchmarkScenario) (string, error) {
	parent := r.workspaceRoot
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create workspace parent: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "scenario-"+scenario.ID+"-")
	if err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}

	files := workspace.FilesFromScenario(scenario.WorkspaceFiles)
	if _, err := workspace.EnsureWorkspaceFiles(dir, files, true); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("seed workspace: %w", err)
	}
	return dir, nil
}

// runLoop wires a real agent Loop against a scripted provider replaying
// scenario.ScriptedDecisions in order, and drives it to completion.
func (r *Runner) runLoop(ctx context.Context, workspaceDir string, scenario contracts.BenchmarkScenario) (contracts.AgentResult, toolOutcome, contracts.Conversation, error) {
	scripted, err := scriptedResponses(scenario.ScriptedDecisions)
	if err != nil {
		return contracts.AgentResult{}, toolOutcome{}, contracts.Conversation{}, err
	}

	reg := executor.NewRegistry()
	reg.Register(tools.ReadFile{})
	reg.Register(tools.WriteFile{})
	reg.Register(tools.DeleteFile{})
	reg.Register(tools.CopyFile{})
	reg.Register(tools.MoveFile{})
	reg.Register(tools.ListDirectory{})
	for _, extra := range r.extraTools {
		reg.Register(extra)
	}

	mock := provider.NewMockProvider(scenario.ID, scripted...)

	var mu sync.Mutex
	outcome := toolOutcome{attempts: map[string]int{}, everSucceeded: map[string]bool{}}
	bookkeeping := events.NewCallbackSink(func(evtCtx context.Context, e contracts.AgentEvent) {
		if e.Type != contracts.EventToolFinished || e.Tool == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		outcome.attempts[e.Tool.Name]++
		if e.Tool.Success {
			outcome.everSucceeded[e.Tool.Name] = true
		}
		outcome.invocations = append(outcome.invocations, contracts.ToolCall{
			ID:       e.Tool.CallID,
			ToolName: e.Tool.Name,
			Attempt:  outcome.attempts[e.Tool.Name],
			IssuedAt: e.Time,
		})
		if r.logger != nil {
			r.logger.Debug(evtCtx, "tool finished", "tool_name", e.Tool.Name, "success", e.Tool.Success, "attempt", outcome.attempts[e.Tool.Name])
		}
	})
	sink := events.NewMultiSink(bookkeeping, events.NewMetricsSink(r.metrics))

	convManager := conversation.NewManager(0)
	l := loop.New(loop.Config{
		Planner:      planner.New(planner.Config{Provider: mock, Registry: reg}),
		Executor:     executor.New(reg),
		StateManager: state.NewManager(0),
		ConvManager:  convManager,
		ToolTimeout:  r.toolTimeout,
	})

	runCtx := tools.WithWorkspaceRoot(ctx, workspaceDir)
	result := l.Run(runCtx, scenario.Goal, scenario.Budget, scenario.Policy, sink)
	conv := convManager.Snapshot(result.FinalState.TraceID)

	mu.Lock()
	defer mu.Unlock()
	return result, outcome, conv, nil
}

// scriptedResponses marshals each scripted Decision into the single-line
// JSON text the Planner parses, in order, for the MockProvider to replay.
func scriptedResponses(decisions []contracts.Decision) ([]string, error) {
	responses := make([]string, 0, len(decisions))
	for i, d := range decisions {
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("marshal scripted decision %d: %w", i, err)
		}
		responses = append(responses, string(raw))
	}
	return responses, nil
}

// validate checks the run's outcome against the scenario's expectations,
// returning every mismatch found rather than stopping at the first.
func (r *Runner) validate(scenario contracts.BenchmarkScenario, result contracts.AgentResult, outcome toolOutcome, workspaceDir string) []string {
	var failures []string

	if scenario.ExpectedStopReason != "" && result.StopReason != scenario.ExpectedStopReason {
		failures = append(failures, fmt.Sprintf("stop reason = %q, want %q", result.StopReason, scenario.ExpectedStopReason))
	}

	for _, exp := range scenario.ExpectedToolInvocations {
		got := outcome.attempts[exp.ToolName]
		if exp.MinAttempts > 0 && got < exp.MinAttempts {
			failures = append(failures, fmt.Sprintf("tool %q: %d attempts, want >= %d", exp.ToolName, got, exp.MinAttempts))
		}
		if exp.MustSucceed && !outcome.everSucceeded[exp.ToolName] {
			failures = append(failures, fmt.Sprintf("tool %q: expected at least one successful invocation", exp.ToolName))
		}
	}

	for name, wantContent := range scenario.ExpectedWorkspaceFiles {
		path := filepath.Join(workspaceDir, name)
		got, err := os.ReadFile(path)
		switch {
		case wantContent == "" && os.IsNotExist(err):
			// expecting absence and the file is indeed gone
		case err != nil:
			failures = append(failures, fmt.Sprintf("expected workspace file %q: %v", name, err))
		case string(got) != wantContent:
			failures = append(failures, fmt.Sprintf("workspace file %q content mismatch", name))
		}
	}

	return failures
}
