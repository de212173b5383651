package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	dirName     = ".foundry"
	envFileName = "env"
)

// Defaults
const (
	DefaultProvider       = "claude"
	DefaultClaudeModel    = "opus"
	DefaultCodexModel     = "gpt-5.2-codex"
	DefaultCodexReasoning = "high"
	DefaultMaxRetries     = 3
	DefaultQuickMinutes   = 5
	DefaultFullMinutes    = 120
	DefaultErrorSleepMins = 1
)

var knownProviders = map[string]bool{"claude": true, "codex": true}

// Dir returns <dir>/.foundry.
func Dir(dir string) string {
	return filepath.Join(dir, dirName)
}

// OutputDir returns <dir>/.foundry/output.
func OutputDir(dir string) string {
	return filepath.Join(Dir(dir), "output")
}

// PromptsDir returns <dir>/.foundry/prompts.
func PromptsDir(dir string) string {
	return filepath.Join(Dir(dir), "prompts")
}

// AttachmentsDir returns <dir>/.foundry/attachments.
func AttachmentsDir(dir string) string {
	return filepath.Join(Dir(dir), "attachments")
}

// LoadEnvFile reads <dir>/.foundry/env into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(dir string) error {
	path := filepath.Join(Dir(dir), envFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the env file for dir, then the process environment.
func Load(dir string) (*Config, error) {
	if err := LoadEnvFile(dir); err != nil {
		return nil, err
	}
	return Parse(dir, os.LookupEnv, slog.Default()), nil
}

// Parse builds a Config from lookup. Malformed numbers and reasoning
// efforts fall back to their defaults with a warning; Parse does not
// validate the result.
func Parse(dir string, lookup LookupFunc, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}
	e := env{lookup: lookup, logger: logger}

	level, ok := parseLevel(e.str("FOUNDRY_LOG_LEVEL", "info"))
	if !ok {
		logger.Warn("invalid log level, using info", "value", e.str("FOUNDRY_LOG_LEVEL", ""))
	}

	effort := e.reasoning("CODEX_REASONING_EFFORT", DefaultCodexReasoning)

	cfg := &Config{
		Dir:                 dir,
		Provider:            strings.ToLower(e.str("FOUNDRY_PROVIDER", DefaultProvider)),
		ClaudeModel:         e.str("FOUNDRY_CLAUDE_MODEL", DefaultClaudeModel),
		MaxIterations:       e.integer("FOUNDRY_MAX_ITERATIONS", 0),
		RateLimitMaxRetries: e.integer("FOUNDRY_RATE_LIMIT_MAX_RETRIES", DefaultMaxRetries),
		GCPAutoStop:         e.boolean("FOUNDRY_GCP_AUTO_STOP", false),
		QuickCheckInterval:  minutes(e.minutesAtLeastOne("FOUNDRY_QUICK_CHECK_INTERVAL_MINUTES", DefaultQuickMinutes)),
		FullCheckInterval:   minutes(e.minutesAtLeastOne("FOUNDRY_FULL_CHECK_INTERVAL_MINUTES", DefaultFullMinutes)),
		ErrorSleep:          minutes(e.integer("FOUNDRY_ERROR_SLEEP_MINUTES", DefaultErrorSleepMins)),
		AgentTimeout:        minutes(e.integer("FOUNDRY_AGENT_TIMEOUT_MINUTES", 0)),
		StatsDB:             e.boolean("FOUNDRY_STATS_DB", true),
		LogLevel:            level,
		Codex: CodexConfig{
			Model:           e.str("CODEX_MODEL", DefaultCodexModel),
			ReasoningEffort: effort,
			Agent1Reasoning: e.reasoning("CODEX_AGENT1_REASONING", "high"),
			Agent2Reasoning: e.reasoning("CODEX_AGENT2_REASONING", effort),
			Agent3Reasoning: e.reasoning("CODEX_AGENT3_REASONING", "medium"),
		},
		Linear: LinearConfig{
			APIKey:  e.str("LINEAR_API_KEY", ""),
			TeamKey: e.str("LINEAR_TEAM_KEY", ""),
		},
	}
	return cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !knownProviders[c.Provider] {
		errs = append(errs, fmt.Errorf("unknown provider %q (want claude or codex)", c.Provider))
	}
	if c.QuickCheckInterval <= 0 {
		errs = append(errs, errors.New("quick check interval must be positive"))
	}
	if c.FullCheckInterval < c.QuickCheckInterval {
		errs = append(errs, errors.New("full check interval must not be shorter than the quick check interval"))
	}
	if c.RateLimitMaxRetries < 0 {
		errs = append(errs, errors.New("rate limit max retries must not be negative"))
	}
	if c.MaxIterations < 0 {
		errs = append(errs, errors.New("max iterations must not be negative"))
	}
	if c.ErrorSleep < 0 || c.AgentTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Linear.APIKey == "" {
		errs = append(errs, errors.New("LINEAR_API_KEY is required"))
	}
	if c.Linear.TeamKey == "" {
		errs = append(errs, errors.New("LINEAR_TEAM_KEY is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation: %w", errors.Join(errs...))
	}
	return nil
}

// WorkerModel is the model agent 2 uses with the configured provider.
func (c *Config) WorkerModel() string {
	if c.Provider == "codex" {
		return c.Codex.Model
	}
	return c.ClaudeModel
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
