package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupFrom(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func validVars() map[string]string {
	return map[string]string{
		"LINEAR_API_KEY":  "lin_api_test",
		"LINEAR_TEAM_KEY": "ENG",
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg := Parse("/repo", lookupFrom(validVars()), discardLogger())

	if cfg.Provider != "claude" || cfg.ClaudeModel != "opus" {
		t.Errorf("unexpected provider defaults: %q %q", cfg.Provider, cfg.ClaudeModel)
	}
	if cfg.MaxIterations != 0 || cfg.RateLimitMaxRetries != 3 {
		t.Errorf("unexpected loop defaults: %d %d", cfg.MaxIterations, cfg.RateLimitMaxRetries)
	}
	if cfg.QuickCheckInterval != 5*time.Minute || cfg.FullCheckInterval != 2*time.Hour {
		t.Errorf("unexpected intervals: %s %s", cfg.QuickCheckInterval, cfg.FullCheckInterval)
	}
	if cfg.ErrorSleep != time.Minute || cfg.AgentTimeout != 0 {
		t.Errorf("unexpected sleeps: %s %s", cfg.ErrorSleep, cfg.AgentTimeout)
	}
	if cfg.GCPAutoStop || !cfg.StatsDB {
		t.Errorf("unexpected flags: auto-stop=%v stats-db=%v", cfg.GCPAutoStop, cfg.StatsDB)
	}
	if cfg.Codex.Model != "gpt-5.2-codex" {
		t.Errorf("unexpected codex model %q", cfg.Codex.Model)
	}
	if got := []string{cfg.Codex.Agent1Reasoning, cfg.Codex.Agent2Reasoning, cfg.Codex.Agent3Reasoning}; strings.Join(got, ",") != "high,high,medium" {
		t.Errorf("unexpected reasoning defaults: %v", got)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("unexpected log level %v", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestParse_Overrides(t *testing.T) {
	vars := validVars()
	vars["FOUNDRY_PROVIDER"] = "Codex"
	vars["FOUNDRY_MAX_ITERATIONS"] = "7"
	vars["FOUNDRY_GCP_AUTO_STOP"] = "yes"
	vars["FOUNDRY_QUICK_CHECK_INTERVAL_MINUTES"] = "2"
	vars["FOUNDRY_FULL_CHECK_INTERVAL_MINUTES"] = "30"
	vars["FOUNDRY_AGENT_TIMEOUT_MINUTES"] = "45"
	vars["FOUNDRY_STATS_DB"] = "off"
	vars["FOUNDRY_LOG_LEVEL"] = "debug"
	vars["CODEX_MODEL"] = "gpt-5-codex"
	vars["CODEX_REASONING_EFFORT"] = "low"

	cfg := Parse("/repo", lookupFrom(vars), discardLogger())

	if cfg.Provider != "codex" || cfg.WorkerModel() != "gpt-5-codex" {
		t.Errorf("unexpected provider: %q %q", cfg.Provider, cfg.WorkerModel())
	}
	if cfg.MaxIterations != 7 || !cfg.GCPAutoStop || cfg.StatsDB {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if cfg.QuickCheckInterval != 2*time.Minute || cfg.FullCheckInterval != 30*time.Minute || cfg.AgentTimeout != 45*time.Minute {
		t.Errorf("unexpected durations: %s %s %s", cfg.QuickCheckInterval, cfg.FullCheckInterval, cfg.AgentTimeout)
	}
	// Agent 2 inherits the general effort; agents 1 and 3 keep their own defaults.
	if cfg.Codex.ReasoningFor(2) != "low" || cfg.Codex.ReasoningFor(1) != "high" || cfg.Codex.ReasoningFor(3) != "medium" {
		t.Errorf("unexpected per-agent reasoning: %+v", cfg.Codex)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("unexpected log level %v", cfg.LogLevel)
	}
}

func TestParse_InvalidValuesFallBack(t *testing.T) {
	vars := validVars()
	vars["FOUNDRY_MAX_ITERATIONS"] = "many"
	vars["FOUNDRY_GCP_AUTO_STOP"] = "maybe"
	vars["CODEX_AGENT3_REASONING"] = "turbo"
	vars["FOUNDRY_QUICK_CHECK_INTERVAL_MINUTES"] = "0"
	vars["FOUNDRY_FULL_CHECK_INTERVAL_MINUTES"] = "-30"

	cfg := Parse("/repo", lookupFrom(vars), discardLogger())

	if cfg.MaxIterations != 0 {
		t.Errorf("expected fallback to 0, got %d", cfg.MaxIterations)
	}
	if cfg.GCPAutoStop {
		t.Error("expected fallback to false")
	}
	if cfg.Codex.Agent3Reasoning != "medium" {
		t.Errorf("expected fallback to medium, got %q", cfg.Codex.Agent3Reasoning)
	}
	if cfg.QuickCheckInterval != 5*time.Minute || cfg.FullCheckInterval != 2*time.Hour {
		t.Errorf("expected default intervals, got %s %s", cfg.QuickCheckInterval, cfg.FullCheckInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("fallback values must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(map[string]string)
		want string
	}{
		{"unknown provider", func(v map[string]string) { v["FOUNDRY_PROVIDER"] = "gemini" }, "unknown provider"},
		{"full shorter than quick", func(v map[string]string) {
			v["FOUNDRY_QUICK_CHECK_INTERVAL_MINUTES"] = "10"
			v["FOUNDRY_FULL_CHECK_INTERVAL_MINUTES"] = "5"
		}, "full check interval"},
		{"negative retries", func(v map[string]string) { v["FOUNDRY_RATE_LIMIT_MAX_RETRIES"] = "-1" }, "max retries"},
		{"missing api key", func(v map[string]string) { delete(v, "LINEAR_API_KEY") }, "LINEAR_API_KEY"},
		{"missing team", func(v map[string]string) { v["LINEAR_TEAM_KEY"] = "  " }, "LINEAR_TEAM_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := validVars()
			tt.mut(vars)
			err := Parse("/repo", lookupFrom(vars), discardLogger()).Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ZeroQuickInterval(t *testing.T) {
	cfg := Parse("/repo", lookupFrom(validVars()), discardLogger())
	cfg.QuickCheckInterval = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "quick check interval") {
		t.Errorf("expected quick check interval error, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	if err := LoadEnvFile(dir); err != nil {
		t.Fatalf("missing env file should not fail: %v", err)
	}

	if err := os.MkdirAll(Dir(dir), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "FOUNDRY_TEST_ONLY_VAR=from-file\nFOUNDRY_TEST_PRESET_VAR=from-file\n"
	if err := os.WriteFile(filepath.Join(Dir(dir), "env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FOUNDRY_TEST_PRESET_VAR", "from-env")
	t.Setenv("FOUNDRY_TEST_ONLY_VAR", "")
	os.Unsetenv("FOUNDRY_TEST_ONLY_VAR")

	if err := LoadEnvFile(dir); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("FOUNDRY_TEST_ONLY_VAR"); got != "from-file" {
		t.Errorf("expected value from file, got %q", got)
	}
	if got := os.Getenv("FOUNDRY_TEST_PRESET_VAR"); got != "from-env" {
		t.Errorf("process environment must win, got %q", got)
	}
}

func TestPaths(t *testing.T) {
	if got := OutputDir("/repo"); got != "/repo/.foundry/output" {
		t.Errorf("OutputDir = %q", got)
	}
	if got := AttachmentsDir("/repo"); got != "/repo/.foundry/attachments" {
		t.Errorf("AttachmentsDir = %q", got)
	}
}
