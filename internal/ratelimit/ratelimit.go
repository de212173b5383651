// Package ratelimit recognizes rate-limit messages from agent CLIs,
// extracts how long to wait from their free-text reset hints, and retries
// operations that report a rate limit.
package ratelimit

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // IANA zones named in reset messages must resolve on minimal hosts
)

// DefaultDelay is used when a message carries no recognizable reset time.
const DefaultDelay = 5 * time.Minute

// resetBuffer is added to every parsed reset time.
const resetBuffer = time.Minute

var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate.?limit`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)quota exceeded`),
	regexp.MustCompile(`(?i)usage.?limit`),
	regexp.MustCompile(`(?i)hit your limit`),
	regexp.MustCompile(`(?i)RateLimitError`),
	regexp.MustCompile(`(?i)request limit reached`),
	regexp.MustCompile(`(?i)exceeded.*quota`),
}

// IsRateLimitError reports whether text reads like a rate-limit message.
func IsRateLimitError(text string) bool {
	for _, re := range rateLimitPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var resetRe = regexp.MustCompile(`(?i)resets?\s+(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:\(([^)]+)\))?`)

// zoneOffsets holds the abbreviations agents print, in hours from UTC.
var zoneOffsets = map[string]int{
	"PST": -8, "PDT": -7,
	"MST": -7, "MDT": -6,
	"CST": -6, "CDT": -5,
	"EST": -5, "EDT": -4,
	"UTC": 0, "GMT": 0,
}

// ParseResetDelay returns how long to wait before retrying, based on a
// message such as "resets at 10:30 am (PST)".
func ParseResetDelay(text string) time.Duration {
	return ResetDelayAt(text, time.Now())
}

// ResetDelayAt is ParseResetDelay evaluated at now. Times without a zone,
// and times in an unknown zone, are read in now's location.
func ResetDelayAt(text string, now time.Time) time.Duration {
	m := resetRe.FindStringSubmatch(text)
	if m == nil {
		return DefaultDelay
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return DefaultDelay
	}

	loc := resolveZone(strings.TrimSpace(m[4]), now.Location())

	local := now.In(loc)
	reset := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !reset.After(now) {
		// On a fall-back day the same wall time occurs again an hour later.
		if later := reset.Add(time.Hour).In(loc); later.After(now) && later.Hour() == hour && later.Minute() == minute {
			reset = later
		} else {
			reset = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
		}
	}
	return reset.Sub(now) + resetBuffer
}

func resolveZone(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	if off, ok := zoneOffsets[strings.ToUpper(name)]; ok {
		return time.FixedZone(strings.ToUpper(name), off*3600)
	}
	if strings.EqualFold(name, "local") {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("unknown timezone in rate limit message, using local time", "timezone", name, "error", err)
		return fallback
	}
	return loc
}
