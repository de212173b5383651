package orchestrator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/session"
)

// run pairs an agent with the result it produced.
type run struct {
	agent
	res *provider.Result
}

func workerContext(triage string, attachments []string) string {
	var b strings.Builder
	b.WriteString("## Context from Linear (gathered by Agent 1)\n\n")
	b.WriteString(triage)
	b.WriteString("\n")
	if len(attachments) > 0 {
		b.WriteString("\n## Downloaded Attachments\n\n")
		b.WriteString("The following files have been downloaded locally from the Linear issue. You can read/view these files using the Read tool:\n\n")
		for _, p := range attachments {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")
	return b.String()
}

func writerContext(exec session.Execution, providerName string, reader, worker run) string {
	var b strings.Builder
	b.WriteString("## Context from Agent 1 (Linear issue details)\n\n")
	b.WriteString(reader.res.FinalOutput)
	b.WriteString("\n\n---\n\n## Results from Agent 2 (Work performed)\n\n")
	b.WriteString(worker.res.FinalOutput)
	b.WriteString("\n\n---\n\n")
	b.WriteString(statsSection(exec, providerName, reader, worker))
	b.WriteString("\n---\n\n")
	return b.String()
}

// statsSection summarizes reader and worker usage for the writer.
func statsSection(exec session.Execution, providerName string, reader, worker run) string {
	var b strings.Builder
	b.WriteString("## Session Stats\n\n")
	fmt.Fprintf(&b, "- Pod: %s\n- Loop: %d\n", exec.Pod, exec.Iteration)

	for _, r := range []run{reader, worker} {
		fmt.Fprintf(&b, "\n### Agent %d (%s)\n", r.number, r.role)
		fmt.Fprintf(&b, "- Provider: %s\n", providerName)
		fmt.Fprintf(&b, "- Model: %s\n", r.model)
		fmt.Fprintf(&b, "- Cost: %s\n", costString(r.res.Cost, r.res.CostEstimated))
		fmt.Fprintf(&b, "- Duration: %ds\n", seconds(r.res.Duration))
		fmt.Fprintf(&b, "- Tokens: %s\n", tokenLine(r.res.TokenUsage))
		if r.number == 2 {
			fmt.Fprintf(&b, "- Exit code: %d\n", r.res.ExitCode)
			fmt.Fprintf(&b, "- Rate limited: %t\n", r.res.RateLimited)
		}
	}

	cost := reader.res.Cost + worker.res.Cost
	estimated := ""
	if reader.res.CostEstimated || worker.res.CostEstimated {
		estimated = " (includes estimate)"
	}
	b.WriteString("\n### Loop Totals (Agent 1 + Agent 2)\n")
	fmt.Fprintf(&b, "- Total Cost: $%.4f%s\n", cost, estimated)
	fmt.Fprintf(&b, "- Total Duration: %ds\n", seconds(reader.res.Duration+worker.res.Duration))
	fmt.Fprintf(&b, "- Total Tokens: %s\n", tokenLine(reader.res.TokenUsage.Add(worker.res.TokenUsage)))
	return b.String()
}

func costString(cost float64, estimated bool) string {
	if estimated {
		return fmt.Sprintf("~$%.4f (estimated)", cost)
	}
	return fmt.Sprintf("$%.4f", cost)
}

func tokenLine(u provider.TokenUsage) string {
	return fmt.Sprintf("in=%s out=%s cached=%s",
		provider.Commas(u.Input), provider.Commas(u.Output), provider.Commas(u.Cached))
}

func seconds(d time.Duration) int64 {
	return int64(math.Round(d.Seconds()))
}
