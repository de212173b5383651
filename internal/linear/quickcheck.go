package linear

import (
	"context"
	"fmt"
)

// StatusCounts groups a team's issues by workflow state type.
type StatusCounts struct {
	Backlog   int `json:"backlog"`
	Unstarted int `json:"unstarted"`
	Started   int `json:"started"`
	Completed int `json:"completed"`
	Canceled  int `json:"canceled"`
}

// Pulse is the result of a quick check.
type Pulse struct {
	HasWork      bool
	Count        int // backlog + unstarted
	StatusCounts StatusCounts
}

const quickCheckQuery = `query FoundryQuickCheck($team: String!) {
  issues(first: 250, filter: { team: { key: { eq: $team } } }, includeArchived: false) {
    nodes { state { type } }
  }
}`

type quickCheckData struct {
	Issues struct {
		Nodes []struct {
			State *struct {
				Type string `json:"type"`
			} `json:"state"`
		} `json:"nodes"`
	} `json:"issues"`
}

// QuickCheck counts the team's issues by state type without running an
// agent. Only backlog and unstarted issues count as ready work.
func (c *Client) QuickCheck(ctx context.Context, teamKey string) (Pulse, error) {
	var data quickCheckData
	if err := c.Query(ctx, quickCheckQuery, map[string]any{"team": teamKey}, &data); err != nil {
		return Pulse{}, fmt.Errorf("quick check: %w", err)
	}

	var counts StatusCounts
	for _, n := range data.Issues.Nodes {
		if n.State == nil {
			continue
		}
		switch n.State.Type {
		case "backlog":
			counts.Backlog++
		case "unstarted":
			counts.Unstarted++
		case "started":
			counts.Started++
		case "completed":
			counts.Completed++
		case "canceled":
			counts.Canceled++
		}
	}

	ready := counts.Backlog + counts.Unstarted
	return Pulse{HasWork: ready > 0, Count: ready, StatusCounts: counts}, nil
}

// TeamChecker binds a Client to one team.
type TeamChecker struct {
	Client  *Client
	TeamKey string
}

// QuickCheck runs Client.QuickCheck for the bound team.
func (t TeamChecker) QuickCheck(ctx context.Context) (Pulse, error) {
	return t.Client.QuickCheck(ctx, t.TeamKey)
}
