package orchestrator

import (
	"context"
	"time"

	"github.com/leandrotocalini/foundry/internal/decisions"
	"github.com/leandrotocalini/foundry/internal/session"
)

// pollState lives for one no-work episode.
type pollState struct {
	lastFullCheck time.Time
	quick, full   time.Duration
}

// wait is the next sleep: the quick interval, cut short so the full
// interval is never overshot.
func (s pollState) wait(now time.Time) time.Duration {
	remaining := s.full - now.Sub(s.lastFullCheck)
	if remaining < s.quick {
		return remaining
	}
	return s.quick
}

// poll sleeps in quick-check steps until the work source reports pending
// items, a quick check fails, or the full-check interval has elapsed.
// Every exit leads to a full triage in the next iteration. It only
// returns an error when ctx is cancelled.
func (o *Orchestrator) poll(ctx context.Context, exec session.Execution) error {
	st := pollState{
		lastFullCheck: o.now(),
		quick:         o.cfg.QuickCheckInterval,
		full:          o.cfg.FullCheckInterval,
	}
	o.printer.Status("No work available. Quick check every %s, full check every %s.", st.quick, st.full)

	for checks := 0; ; checks++ {
		if wait := st.wait(o.now()); wait > 0 {
			if err := o.sleep(ctx, wait); err != nil {
				return err
			}
		}

		elapsed := o.now().Sub(st.lastFullCheck)
		if elapsed >= st.full {
			o.decide(ctx, exec, decisions.FullCheckDue, "run full triage", "full check interval elapsed",
				map[string]any{"elapsed": elapsed.Round(time.Second).String(), "quick_checks": checks})
			return nil
		}
		if o.deps.Work == nil {
			continue
		}

		pulse, err := o.deps.Work.QuickCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.decide(ctx, exec, decisions.QuickCheckFailed, "run full triage", err.Error(), nil)
			return nil
		}
		if pulse.HasWork {
			o.decide(ctx, exec, decisions.WorkDetected, "run full triage", "quick check found pending issues",
				map[string]any{"count": pulse.Count})
			o.printer.Status("Quick check found %d pending issue(s).", pulse.Count)
			return nil
		}
		o.decide(ctx, exec, decisions.QuickCheckIdle, "keep polling", "no pending issues",
			map[string]any{"elapsed": elapsed.Round(time.Second).String()})
	}
}
