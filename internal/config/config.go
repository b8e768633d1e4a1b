// Package config loads the runner configuration used to drive the agent
// loop and the scenario harness. Files are YAML, optionally split across
// fragments joined with $include, and support ${VAR} environment expansion.
package config

import (
	"time"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// RunnerConfig is the top-level configuration for `agentrun`.
type RunnerConfig struct {
	Budget        BudgetConfig        `yaml:"budget"`
	Policy        PolicyConfig        `yaml:"policy"`
	Executor      ExecutorConfig      `yaml:"executor"`
	LLM           LLMConfig           `yaml:"llm"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Harness       HarnessConfig       `yaml:"harness"`
	State         StateConfig         `yaml:"state"`
}

// StateConfig configures where --llm real runs checkpoint AgentState so
// an interrupted run can be resumed with --resume. An empty Dir keeps
// checkpoints in memory only, which makes --resume useless across
// process restarts but harmless within one.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// BudgetConfig mirrors contracts.Budget with YAML-friendly duration strings.
type BudgetConfig struct {
	MaxTurns     int           `yaml:"max_turns"`
	MaxToolCalls int           `yaml:"max_tool_calls"`
	MaxWallClock time.Duration `yaml:"max_wall_clock"`
	MaxTokens    int           `yaml:"max_tokens"`
}

// PolicyConfig mirrors contracts.ErrorHandlingPolicy.
type PolicyConfig struct {
	MaxRetriesPerCall        int           `yaml:"max_retries_per_call"`
	BaseBackoff              time.Duration `yaml:"base_backoff"`
	MaxBackoff               time.Duration `yaml:"max_backoff"`
	AskUserWhenMissingFields bool          `yaml:"ask_user_when_missing_fields"`
}

// ToContracts converts b into the Budget type the Loop consumes.
func (b BudgetConfig) ToContracts() contracts.Budget {
	return contracts.Budget{
		MaxTurns:     b.MaxTurns,
		MaxToolCalls: b.MaxToolCalls,
		MaxWallClock: b.MaxWallClock,
		MaxTokens:    b.MaxTokens,
	}
}

// ToContracts converts p into the ErrorHandlingPolicy type the Loop's
// Policy Engine consumes.
func (p PolicyConfig) ToContracts() contracts.ErrorHandlingPolicy {
	return contracts.ErrorHandlingPolicy{
		MaxRetriesPerCall:        p.MaxRetriesPerCall,
		BaseBackoff:              p.BaseBackoff,
		MaxBackoff:               p.MaxBackoff,
		AskUserWhenMissingFields: p.AskUserWhenMissingFields,
	}
}

// ExecutorConfig configures the tool executor.
type ExecutorConfig struct {
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`
}

// LLMConfig selects and configures the production LLM provider used by the
// Planner and Critic outside of scenario-harness (mocked) runs.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "anthropic" | "openai" | "mock"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// LoggingConfig configures log/slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "text"
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsAddr    string `yaml:"metrics_addr"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// HarnessConfig configures the scenario runner.
type HarnessConfig struct {
	WorkspaceRoot string        `yaml:"workspace_root"`
	ScenarioGlob  string        `yaml:"scenario_glob"`
	CleanupOnFail bool          `yaml:"cleanup_on_fail"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Default returns a RunnerConfig with the same defaults the Loop, Policy
// Engine and Executor fall back to when no config file is supplied.
func Default() *RunnerConfig {
	return &RunnerConfig{
		Budget: BudgetConfig{
			MaxTurns:     20,
			MaxToolCalls: 50,
			MaxWallClock: 5 * time.Minute,
			MaxTokens:    0,
		},
		Policy: PolicyConfig{
			MaxRetriesPerCall:        3,
			BaseBackoff:              200 * time.Millisecond,
			MaxBackoff:               10 * time.Second,
			AskUserWhenMissingFields: false,
		},
		Executor: ExecutorConfig{
			PerCallTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "mock",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Harness: HarnessConfig{
			ScenarioGlob:  "scenarios/*.json",
			CleanupOnFail: false,
			Timeout:       2 * time.Minute,
		},
	}
}
