package prompt

import (
	"fmt"
	"strings"

	"github.com/leandrotocalini/foundry/internal/session"
)

// Header returns the "Agent Instance" block that prefixes every prompt.
// The writer is additionally told to sign its comments with the pod name.
func Header(exec session.Execution, agent int, role string) string {
	var b strings.Builder
	b.WriteString("## Agent Instance\n\n")
	fmt.Fprintf(&b, "You are part of pod: **%s** / Loop %d / Agent %d (%s)\n\n", exec.Pod, exec.Iteration, agent, role)
	b.WriteString("This identifier format is: Pod Name / Loop Number / Agent Number (Role).\n")
	fmt.Fprintf(&b, "- **Pod Name**: %s - persists for this entire foundry session\n", exec.Pod)
	fmt.Fprintf(&b, "- **Loop Number**: %d - increments each time foundry processes a new ticket\n", exec.Iteration)
	fmt.Fprintf(&b, "- **Agent**: Agent %d (%s) - your role in this loop\n", agent, role)
	if agent == 3 {
		fmt.Fprintf(&b, "\n**IMPORTANT**: Include the pod name (%s) in all comments you post to Linear so that when multiple pods work in parallel, we can identify which one made which comment.\n", exec.Pod)
	}
	b.WriteString("\n---\n\n")
	return b.String()
}
