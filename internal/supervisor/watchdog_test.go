package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeReconnector struct {
	calls int
	err   error
}

func (f *fakeReconnector) Reconnect(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestWatchdog_Scenario4_StalenessPauseAndRecovery(t *testing.T) {
	rc := &fakeReconnector{}
	w := New(rc, 500*time.Millisecond, zerolog.Nop())
	w.MarkStreaming()

	start := time.Unix(1_700_000_000, 0)
	w.NotifyApplied(start)

	// No diff applied for 600ms > 500ms threshold -> stale.
	later := start.Add(600 * time.Millisecond)
	if err := w.Check(context.Background(), later); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !w.Paused() {
		t.Fatalf("expected paused=true after staleness detected")
	}
	if rc.calls != 1 {
		t.Fatalf("expected exactly one reconnect call, got %d", rc.calls)
	}
	if w.State() != Streaming {
		t.Fatalf("state after successful reconnect = %v, want Streaming", w.State())
	}

	// First applied diff after reconnect clears paused.
	w.NotifyApplied(later)
	if w.Paused() {
		t.Fatalf("expected paused=false after recovery diff")
	}
}

func TestWatchdog_NotStaleWithinThreshold(t *testing.T) {
	rc := &fakeReconnector{}
	w := New(rc, 500*time.Millisecond, zerolog.Nop())
	w.MarkStreaming()

	start := time.Unix(1_700_000_000, 0)
	w.NotifyApplied(start)

	soon := start.Add(100 * time.Millisecond)
	if err := w.Check(context.Background(), soon); err != nil {
		t.Fatalf("check: %v", err)
	}
	if w.Paused() {
		t.Fatalf("expected paused=false within staleness threshold")
	}
	if rc.calls != 0 {
		t.Fatalf("expected no reconnect attempt, got %d calls", rc.calls)
	}
}

func TestWatchdog_ReconnectRequestsAreIdempotentWhileReconnecting(t *testing.T) {
	rc := &fakeReconnector{}
	w := New(rc, 500*time.Millisecond, zerolog.Nop())
	w.state.Store(int32(Reconnecting))

	if err := w.RequestReconnect(context.Background()); err != nil {
		t.Fatalf("request reconnect: %v", err)
	}
	if rc.calls != 0 {
		t.Fatalf("expected idempotent no-op while already reconnecting, got %d calls", rc.calls)
	}
}

func TestWatchdog_TransportErrorAlsoPausesAndReconnects(t *testing.T) {
	rc := &fakeReconnector{}
	w := New(rc, 500*time.Millisecond, zerolog.Nop())
	w.MarkStreaming()

	if err := w.ReportTransportError(context.Background()); err != nil {
		t.Fatalf("report transport error: %v", err)
	}
	if !w.Paused() {
		t.Fatalf("expected paused=true after transport error")
	}
	if rc.calls != 1 {
		t.Fatalf("expected one reconnect attempt, got %d", rc.calls)
	}
}
