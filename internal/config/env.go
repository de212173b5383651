package config

import (
	"log/slog"
	"strconv"
	"strings"
)

// LookupFunc reads one variable, reporting whether it was set.
type LookupFunc func(key string) (string, bool)

type env struct {
	lookup LookupFunc
	logger *slog.Logger
}

func (e env) str(key, fallback string) string {
	raw, ok := e.lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return fallback
	}
	return raw
}

func (e env) integer(key string, fallback int) int {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		e.logger.Warn("invalid integer, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return value
}

// minutesAtLeastOne reads a polling interval; values below one minute
// fall back to the default.
func (e env) minutesAtLeastOne(key string, fallback int) int {
	n := e.integer(key, fallback)
	if n < 1 {
		e.logger.Warn("interval must be at least one minute, using default", "key", key, "value", n, "default", fallback)
		return fallback
	}
	return n
}

func (e env) boolean(key string, fallback bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	return parseBool(raw, fallback)
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

var reasoningEfforts = map[string]bool{
	"low":        true,
	"medium":     true,
	"high":       true,
	"extra_high": true,
}

func (e env) reasoning(key, fallback string) string {
	raw := strings.ToLower(e.str(key, fallback))
	if !reasoningEfforts[raw] {
		e.logger.Warn("invalid reasoning effort, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return raw
}

func parseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
