package orchestrator

import (
	"regexp"
	"strings"
)

// Ordered from most to least specific; the last one matches any
// ticket-like token.
var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\*\*Identifier\*\*:\s*([A-Z]+-\d+)`),
	regexp.MustCompile(`(?i)\*\*Issue Identifier\*\*:\s*([A-Z]+-\d+)`),
	regexp.MustCompile(`(?i)Issue ID[^:]*:\s*[^\n]*\n[^*]*\*\*Identifier\*\*:\s*([A-Z]+-\d+)`),
	regexp.MustCompile(`(?i)Identifier:\s*([A-Z]+-\d+)`),
	regexp.MustCompile(`(?i)Branch:\s*foundry/([A-Z]+-\d+)`),
	regexp.MustCompile(`\b([A-Z]+-\d+)\b`),
}

// ExtractIssueIdentifier returns the ticket key (e.g. "ENG-42") named in
// the triage output, or "" when there is none.
func ExtractIssueIdentifier(text string) string {
	for _, re := range identifierPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// IsNoWork reports whether the reader signalled an empty queue.
func IsNoWork(text string) bool {
	return strings.Contains(text, "no_work: true") || strings.Contains(text, "NO_WORK")
}
