package decisions

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fixedClock() time.Time {
	return time.Date(2026, 2, 25, 14, 30, 12, 0, time.UTC)
}

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "calm-otter")
	logger.now = fixedClock

	logger.Log(Decision{
		Iteration: 3,
		Type:      WorkDetected,
		Decision:  "run full triage",
		State:     map[string]any{"count": 2},
	})

	line := buf.String()
	for _, want := range []string{
		`"type":"work_detected"`,
		`"pod":"calm-otter"`,
		`"iteration":3`,
		`"ts":"2026-02-25T14:30:12Z"`,
		`"count":2`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %s in %s", want, line)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("line should end with newline")
	}
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "calm-otter")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Log(Decision{Iteration: n, Type: QuickCheckIdle, Decision: "keep polling"})
		}(i)
	}
	wg.Wait()

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 entries, got %d", len(got))
	}
}

type failingWriter struct{ calls int }

func (f *failingWriter) Write([]byte) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestLogger_WriteErrorsAreSwallowed(t *testing.T) {
	var logs bytes.Buffer
	w := &failingWriter{}
	logger := NewLogger(w, "calm-otter")
	logger.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	logger.Log(Decision{Type: NoWork})
	logger.Log(Decision{Type: NoWork})

	if w.calls != 2 {
		t.Errorf("expected 2 write attempts, got %d", w.calls)
	}
	if n := strings.Count(logs.String(), "decision log unavailable"); n != 1 {
		t.Errorf("expected a single warning, got %d", n)
	}
}

func TestFileLogger_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "calm-otter")
	logger, err := NewFileLogger(dir, "calm-otter")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	logger.now = fixedClock

	logger.Log(Decision{Iteration: 1, Type: NoWork, Decision: "poll"})
	logger.Log(Decision{Iteration: 1, Type: FullCheckDue, Decision: "run full triage"})
	logger.Log(Decision{Iteration: 2, Type: NoWork, Decision: "poll"})
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadLog(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(got))
	}
	if got[1].Type != FullCheckDue || !got[1].Timestamp.Equal(fixedClock()) {
		t.Errorf("unexpected decision %+v", got[1])
	}

	counts, other := Summary(append(got, Decision{Type: "workflow_selected"}))
	want := []TypeCount{{Type: NoWork, Count: 2}, {Type: FullCheckDue, Count: 1}}
	if diff := cmp.Diff(want, counts); diff != "" || other != 1 {
		t.Errorf("summary (-want +got):\n%s\nother=%d", diff, other)
	}
}

func TestReadLog_Missing(t *testing.T) {
	got, err := ReadLog(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil || got != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestDecode_SkipsMalformed(t *testing.T) {
	input := `{"type":"no_work","pod":"a"}
not json

{"type":"work_detected","pod":"a"}
`
	got, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 decisions, got %d", len(got))
	}
}

func TestDecisionType_IsValid(t *testing.T) {
	for _, dt := range AllDecisionTypes() {
		if !dt.IsValid() {
			t.Errorf("%s should be valid", dt)
		}
	}
	if DecisionType("workflow_selected").IsValid() {
		t.Error("unknown type should be invalid")
	}
}
