// Package main provides the CLI entry point for agentrun, the harness
// that drives the LLM-driven tool-calling agent loop against declarative
// scenarios.
//
// Run a single scenario by path or by id (resolved against the
// configured scenario suite):
//
//	agentrun run --scenario scenarios/fs-read-file-basic.json
//	agentrun run --scenario fs-read-file-basic --llm real --timeout 30s
//
// --llm mock (the default) replays the scenario's own ScriptedDecisions
// and validates the run against its expectations. --llm real discards
// the scripted decisions and drives the scenario's Goal, Budget, and
// Policy through an actual Anthropic or OpenAI-backed Planner against
// the same seeded workspace instead — useful for sanity-checking a
// scenario's workspace and goal against a live model, but its result is
// reported as a plain AgentResult rather than a pass/fail
// BenchmarkResult, since there are no scripted expectations to check it
// against.
//
// An --llm real run checkpoints its AgentState after every turn. With
// state.dir set in the config, a run interrupted mid-scenario (ctrl-C,
// timeout, crash) can be continued with --resume <trace-id>, printed in
// the run's own log output.
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key, required for --llm real with
//     llm.provider: anthropic
//   - OPENAI_API_KEY: OpenAI API key, required for --llm real with
//     llm.provider: openai
//
// Both may instead be placed in a .env file in the working directory,
// loaded once at startup.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/conversation"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/executor"
	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/loop"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/planner"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/internal/state"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/internal/workspace"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// A missing .env is not an error: ANTHROPIC_API_KEY/OPENAI_API_KEY can
	// just as well come from the real environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentrun",
		Short:        "Run and validate agent-loop scenarios",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	root.AddCommand(buildConfigCmd())
	return root
}

func buildConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate RunnerConfig files",
	}

	var configPath string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse a config file and report errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("--config is required")
			}
			if _, err := config.Load(configPath); err != nil {
				return err
			}
			fmt.Println("config is valid")
			return nil
		},
	}
	validateCmd.Flags().StringVar(&configPath, "config", "", "path to a RunnerConfig YAML file")

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the RunnerConfig JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(schema))
			return nil
		},
	}

	configCmd.AddCommand(validateCmd, schemaCmd)
	return configCmd
}

func buildRunCmd() *cobra.Command {
	var (
		scenarioArg string
		llmMode     string
		timeoutStr  string
		configPath  string
		resumeTrace string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scenario and report whether it passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenarioArg == "" {
				return errors.New("--scenario is required")
			}
			if llmMode != "mock" && llmMode != "real" {
				return fmt.Errorf("unknown --llm mode %q, want mock or real", llmMode)
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			scenario, err := resolveScenario(scenarioArg, cfg.Harness.ScenarioGlob)
			if err != nil {
				return fmt.Errorf("resolve scenario: %w", err)
			}

			timeout := cfg.Harness.Timeout
			if timeoutStr != "" {
				parsed, err := time.ParseDuration(timeoutStr)
				if err != nil {
					return fmt.Errorf("parse --timeout: %w", err)
				}
				timeout = parsed
			}
			if timeout <= 0 {
				timeout = 2 * time.Minute
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			metrics := observability.NewMetrics()
			tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
				ServiceName: "agentrun",
				Endpoint:    cfg.Observability.OTLPEndpoint,
			})
			defer func() { _ = shutdownTracer(context.Background()) }()
			stopMetricsServer := serveMetrics(cfg.Observability.MetricsAddr, logger)
			defer stopMetricsServer()

			if llmMode == "real" {
				llmProvider, err := resolveProvider(cfg.LLM)
				if err != nil {
					return err
				}
				result, err := runScenarioWithProvider(ctx, scenario, cfg, llmProvider, metrics, resumeTrace)
				if err != nil {
					return fmt.Errorf("real-llm run: %w", err)
				}
				reportAgentResult(scenario.ID, result)
				if !result.Success {
					return fmt.Errorf("scenario %q: %s", scenario.ID, result.StopReason)
				}
				return nil
			}

			runner := harness.New(harness.Config{
				WorkspaceRoot: cfg.Harness.WorkspaceRoot,
				ToolTimeout:   cfg.Executor.PerCallTimeout,
				Logger:        logger,
				Metrics:       metrics,
				Tracer:        tracer,
			})

			result := runner.Run(ctx, scenario)
			reportResult(result)

			if !result.Passed {
				return fmt.Errorf("scenario %q failed", scenario.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioArg, "scenario", "", "scenario id or path to a scenario JSON file")
	cmd.Flags().StringVar(&llmMode, "llm", "mock", "llm mode: mock replays the scenario's scripted decisions, real drives it through a live LLM provider")
	cmd.Flags().StringVar(&timeoutStr, "timeout", "", "whole-scenario timeout, e.g. 30s (defaults to config/harness.timeout)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a RunnerConfig YAML file (defaults to built-in defaults)")
	cmd.Flags().StringVar(&resumeTrace, "resume", "", "trace id of a previously checkpointed --llm real run to continue (requires state.dir in config)")

	return cmd
}

func loadConfig(path string) (*config.RunnerConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// resolveScenario loads scenarioArg as a scenario file when it looks like
// a path, otherwise searches the configured scenario suite glob for a
// file whose BenchmarkScenario.ID matches.
func resolveScenario(scenarioArg, scenarioGlob string) (contracts.BenchmarkScenario, error) {
	if _, err := os.Stat(scenarioArg); err == nil {
		return loadScenarioFile(scenarioArg)
	}

	matches, err := filepath.Glob(scenarioGlob)
	if err != nil {
		return contracts.BenchmarkScenario{}, fmt.Errorf("glob scenario suite %q: %w", scenarioGlob, err)
	}
	for _, path := range matches {
		scenario, err := loadScenarioFile(path)
		if err != nil {
			continue
		}
		if scenario.ID == scenarioArg {
			return scenario, nil
		}
	}
	return contracts.BenchmarkScenario{}, fmt.Errorf("no scenario file or suite entry found for %q", scenarioArg)
}

func loadScenarioFile(path string) (contracts.BenchmarkScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.BenchmarkScenario{}, err
	}
	var scenario contracts.BenchmarkScenario
	if err := json.Unmarshal(data, &scenario); err != nil {
		return contracts.BenchmarkScenario{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return scenario, nil
}

// resolveProvider builds the real LLM adapter cfg.Provider names, gated
// on the matching API key environment variable per spec's
// environment-variable contract. Only called for --llm real; --llm mock
// never reaches here since it takes the harness's scripted-scenario path.
func resolveProvider(cfg config.LLMConfig) (provider.LLMProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for --llm real with llm.provider: anthropic")
		}
		return provider.NewAnthropicProvider(provider.AnthropicConfig{APIKey: apiKey, DefaultModel: cfg.Model})
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for --llm real with llm.provider: openai")
		}
		return provider.NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown llm.provider %q for --llm real", cfg.Provider)
	}
}

// runScenarioWithProvider drives scenario.Goal through a real Loop backed
// by llmProvider instead of replaying ScriptedDecisions, in a workspace
// seeded the same way the harness seeds one. It exists because
// harness.Runner always drives a scenario's scripted decisions through a
// MockProvider (by design: that's what makes a seeded scenario
// deterministic and reproducible) — --llm real needs its own, simpler
// path that has no scripted expectations to validate against.
//
// When resumeTrace is set, the run continues the AgentState checkpointed
// under that trace id by a previous --llm real invocation instead of
// starting fresh; this only restores Goal/TurnIndex/WorkingMemory/Notes,
// not the workspace's file contents, since the workspace directory itself
// is not checkpointed and is removed at the end of every invocation.
func runScenarioWithProvider(ctx context.Context, scenario contracts.BenchmarkScenario, cfg *config.RunnerConfig, llmProvider provider.LLMProvider, metrics *observability.Metrics, resumeTrace string) (contracts.AgentResult, error) {
	parent := cfg.Harness.WorkspaceRoot
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return contracts.AgentResult{}, fmt.Errorf("create workspace parent: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "scenario-"+scenario.ID+"-")
	if err != nil {
		return contracts.AgentResult{}, fmt.Errorf("create workspace dir: %w", err)
	}
	defer os.RemoveAll(dir)

	files := workspace.FilesFromScenario(scenario.WorkspaceFiles)
	if _, err := workspace.EnsureWorkspaceFiles(dir, files, true); err != nil {
		return contracts.AgentResult{}, fmt.Errorf("seed workspace: %w", err)
	}

	reg := executor.NewRegistry()
	reg.Register(tools.ReadFile{})
	reg.Register(tools.WriteFile{})
	reg.Register(tools.DeleteFile{})
	reg.Register(tools.CopyFile{})
	reg.Register(tools.MoveFile{})
	reg.Register(tools.ListDirectory{})

	stateManager, err := newStateManager(cfg.State)
	if err != nil {
		return contracts.AgentResult{}, err
	}

	l := loop.New(loop.Config{
		Planner:      planner.New(planner.Config{Provider: llmProvider, Registry: reg, Model: cfg.LLM.Model}),
		Executor:     executor.New(reg),
		StateManager: stateManager,
		ConvManager:  conversation.NewManager(0),
		ToolTimeout:  cfg.Executor.PerCallTimeout,
	})

	runCtx := tools.WithWorkspaceRoot(ctx, dir)
	sink := events.NewMetricsSink(metrics)
	if resumeTrace != "" {
		result, ok := l.Resume(runCtx, resumeTrace, scenario.Budget, scenario.Policy, sink)
		if !ok {
			return contracts.AgentResult{}, fmt.Errorf("no checkpoint found for trace id %q", resumeTrace)
		}
		return result, nil
	}
	result := l.Run(runCtx, scenario.Goal, scenario.Budget, scenario.Policy, sink)
	return result, nil
}

// newStateManager builds the State Manager a --llm real run checkpoints
// through: a FileStore under cfg.Dir when configured, so --resume works
// across process invocations, or an in-memory store otherwise.
func newStateManager(cfg config.StateConfig) (*state.Manager, error) {
	if cfg.Dir == "" {
		return state.NewManager(0), nil
	}
	store, err := state.NewFileStore(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return state.NewManagerWithStore(0, store), nil
}

// serveMetrics starts a background HTTP server exposing /metrics when addr
// is non-empty, returning a no-op stop function otherwise.
func serveMetrics(addr string, logger *observability.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "metrics server stopped", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func reportResult(result contracts.BenchmarkResult) {
	status := "PASS"
	if !result.Passed {
		status = "FAIL"
	}
	fmt.Printf("%s %s (%s)\n", status, result.ScenarioID, result.Duration)
	for _, reason := range result.FailureReasons {
		fmt.Printf("  - %s\n", reason)
	}
}

func reportAgentResult(scenarioID string, result contracts.AgentResult) {
	status := "OK"
	if !result.Success {
		status = "STOPPED"
	}
	fmt.Printf("%s %s trace=%s after %d turns: %s\n", status, scenarioID, result.FinalState.TraceID, result.TotalTurns, result.StopReason)
}
