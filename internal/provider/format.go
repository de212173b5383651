package provider

import (
	"strconv"
	"strings"
)

// Commas formats n with thousands separators.
func Commas(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// OneLine collapses newlines so s fits on a single display line.
func OneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

// ShortPath trims dir from the front of path for display.
func ShortPath(path, dir string) string {
	if dir == "" {
		return path
	}
	prefix := strings.TrimRight(dir, "/") + "/"
	return strings.TrimPrefix(path, prefix)
}
