package gcp

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type fakeMetadata struct {
	onGCE   bool
	zoneErr error
}

func (f fakeMetadata) OnGCE() bool                                  { return f.onGCE }
func (f fakeMetadata) ProjectID(context.Context) (string, error)    { return "proj-1", nil }
func (f fakeMetadata) Zone(context.Context) (string, error)         { return "us-central1-a", f.zoneErr }
func (f fakeMetadata) InstanceName(context.Context) (string, error) { return "foundry-vm", nil }

type fakeStopper struct {
	calls [][3]string
	err   error
}

func (f *fakeStopper) Stop(_ context.Context, project, zone, instance string) error {
	f.calls = append(f.calls, [3]string{project, zone, instance})
	return f.err
}

func newTestHost(m Metadata, s Stopper) *Host {
	return NewHost(WithMetadata(m), WithStopper(s), WithLogger(slog.New(slog.DiscardHandler)))
}

func TestStopIfIdle_NotOnGCE(t *testing.T) {
	s := &fakeStopper{}
	stopped, err := newTestHost(fakeMetadata{}, s).StopIfIdle(context.Background())
	if err != nil || stopped {
		t.Fatalf("expected (false, nil), got (%v, %v)", stopped, err)
	}
	if len(s.calls) != 0 {
		t.Error("stop must not be called off GCE")
	}
}

func TestStopIfIdle_Stops(t *testing.T) {
	s := &fakeStopper{}
	stopped, err := newTestHost(fakeMetadata{onGCE: true}, s).StopIfIdle(context.Background())
	if err != nil || !stopped {
		t.Fatalf("expected (true, nil), got (%v, %v)", stopped, err)
	}
	if len(s.calls) != 1 || s.calls[0] != [3]string{"proj-1", "us-central1-a", "foundry-vm"} {
		t.Errorf("unexpected stop calls %v", s.calls)
	}
}

func TestStopIfIdle_MetadataError(t *testing.T) {
	s := &fakeStopper{}
	boom := errors.New("metadata unavailable")
	stopped, err := newTestHost(fakeMetadata{onGCE: true, zoneErr: boom}, s).StopIfIdle(context.Background())
	if stopped || !errors.Is(err, boom) {
		t.Fatalf("expected zone error, got (%v, %v)", stopped, err)
	}
	if len(s.calls) != 0 {
		t.Error("stop must not be called without a zone")
	}
}

func TestStopIfIdle_StopFails(t *testing.T) {
	boom := errors.New("permission denied")
	stopped, err := newTestHost(fakeMetadata{onGCE: true}, &fakeStopper{err: boom}).StopIfIdle(context.Background())
	if stopped || !errors.Is(err, boom) {
		t.Fatalf("expected stop error, got (%v, %v)", stopped, err)
	}
}
