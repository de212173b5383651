package decisions

import "time"

// DecisionType enumerates the scheduling choices the orchestrator records.
type DecisionType string

const (
	// TriageSkipped means the reader stayed rate-limited after every retry.
	TriageSkipped DecisionType = "triage_skipped"
	// NoWork means the reader reported nothing to do.
	NoWork DecisionType = "no_work"
	// HostStopped means the VM stop was issued.
	HostStopped DecisionType = "host_stopped"
	// HostStopFailed means auto-stop was requested but did not happen.
	HostStopFailed DecisionType = "host_stop_failed"
	// QuickCheckIdle means a quick check found nothing and polling goes on.
	QuickCheckIdle DecisionType = "quick_check_idle"
	// QuickCheckFailed ends polling early so a full triage runs.
	QuickCheckFailed DecisionType = "quick_check_failed"
	// WorkDetected ends polling because the quick check found work.
	WorkDetected DecisionType = "work_detected"
	// FullCheckDue ends polling because the full interval elapsed.
	FullCheckDue DecisionType = "full_check_due"
	// WorkerRateLimited means the worker was still limited after retries.
	WorkerRateLimited DecisionType = "worker_rate_limited"
)

// Decision is one JSONL entry.
type Decision struct {
	Timestamp time.Time      `json:"ts"`
	Pod       string         `json:"pod"`
	Iteration int            `json:"iteration"`
	Type      DecisionType   `json:"type"`
	Decision  string         `json:"decision"`
	Evidence  string         `json:"evidence,omitempty"`
	State     map[string]any `json:"state,omitempty"`
}

// AllDecisionTypes returns all valid decision types.
func AllDecisionTypes() []DecisionType {
	return []DecisionType{
		TriageSkipped,
		NoWork,
		HostStopped,
		HostStopFailed,
		QuickCheckIdle,
		QuickCheckFailed,
		WorkDetected,
		FullCheckDue,
		WorkerRateLimited,
	}
}

// IsValid checks if a decision type is one of the known types.
func (dt DecisionType) IsValid() bool {
	for _, valid := range AllDecisionTypes() {
		if dt == valid {
			return true
		}
	}
	return false
}
