package prediction

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRemainingUntil(t *testing.T) {
	deadline := t0.Add(15 * time.Second)
	tests := []struct {
		now  time.Time
		want time.Duration
	}{
		{t0, 15 * time.Second},
		{t0.Add(14*time.Second + 900*time.Millisecond), 100 * time.Millisecond},
		{deadline, 0},
		{deadline.Add(time.Hour), 0},
	}
	for _, tt := range tests {
		if got := RemainingUntil(tt.now, deadline); got != tt.want {
			t.Errorf("RemainingUntil(%s): got %s, want %s", tt.now.Sub(t0), got, tt.want)
		}
	}
}

func recv(t *testing.T, ch <-chan time.Duration) time.Duration {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for countdown tick")
	}
	return 0
}

func TestCountdownFollowsDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	ticks := make(chan time.Duration, 64)
	cd := NewCountdown(clock, time.Second, func(d time.Duration) { ticks <- d })

	deadline := t0.Add(15 * time.Second)
	cd.Start(deadline)
	done := cd.Done()

	if got := recv(t, ticks); got != 15*time.Second {
		t.Fatalf("First tick: got %s, want 15s", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("Ticker never armed: %v", err)
	}

	clock.Advance(time.Second)
	if got := recv(t, ticks); got != 14*time.Second {
		t.Fatalf("After 1s: got %s, want 14s", got)
	}

	// a stalled scheduler: one long jump must land on the true remaining time
	clock.Advance(9 * time.Second)
	if got := recv(t, ticks); got != 5*time.Second {
		t.Fatalf("After stall: got %s, want 5s", got)
	}

	clock.Advance(5 * time.Second)
	for {
		got := recv(t, ticks)
		if got < 0 {
			t.Fatalf("Negative remaining: %s", got)
		}
		if got == 0 {
			if clock.Now().Before(deadline) {
				t.Fatal("Reached zero before the deadline")
			}
			break
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Countdown kept running after zero")
	}

	clock.Advance(time.Minute)
	select {
	case d := <-ticks:
		if d != 0 {
			t.Errorf("Tick after stop: %s", d)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountdownRestartAndStop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	ticks := make(chan time.Duration, 64)
	cd := NewCountdown(clock, time.Second, func(d time.Duration) { ticks <- d })

	cd.Start(t0.Add(10 * time.Second))
	first := cd.Done()
	recv(t, ticks)

	cd.Start(t0.Add(30 * time.Second))
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("Replaced countdown did not exit")
	}
	if got := recv(t, ticks); got != 30*time.Second {
		t.Errorf("Restarted countdown: got %s, want 30s", got)
	}

	second := cd.Done()
	cd.Stop()
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("Stopped countdown did not exit")
	}
	if cd.Done() != nil {
		t.Error("Done should be nil after Stop")
	}
}

func TestCountdownPastDeadlineEmitsZeroOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	ticks := make(chan time.Duration, 8)
	cd := NewCountdown(clock, time.Second, func(d time.Duration) { ticks <- d })

	cd.Start(t0.Add(-time.Second))
	if got := recv(t, ticks); got != 0 {
		t.Errorf("Expected 0, got %s", got)
	}
	select {
	case <-cd.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Countdown should finish immediately")
	}
}

func TestControllerDrivesCountdown(t *testing.T) {
	c, clock := newTestController()
	ticks := make(chan time.Duration, 64)
	c.AttachCountdown(NewCountdown(clock, time.Second, func(d time.Duration) { ticks <- d }))

	c.OnWindowEvent(openWindow("m1", "1.2.1", 2, 1, t0.Add(8*time.Second)))
	if got := recv(t, ticks); got != 8*time.Second {
		t.Errorf("Open should start countdown at 8s, got %s", got)
	}

	c.OnWindowEvent(openWindow("m1", "1.2.1", 2, 1, t0.Add(12*time.Second)))
	if got := recv(t, ticks); got != 12*time.Second {
		t.Errorf("Deadline extension should restart at 12s, got %s", got)
	}
}

func TestReplacedCountdownNeverEmits(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	ticks := make(chan time.Duration, 64)
	cd := NewCountdown(clock, time.Second, func(d time.Duration) { ticks <- d })

	cd.Start(t0.Add(10 * time.Second))
	recv(t, ticks)
	cd.mu.Lock()
	oldGen := cd.gen
	cd.mu.Unlock()

	cd.Start(t0.Add(30 * time.Second))
	if got := recv(t, ticks); got != 30*time.Second {
		t.Fatalf("Restarted countdown: got %s, want 30s", got)
	}

	// a tick from the replaced run that slipped past its cancel check
	if cd.emit(context.Background(), oldGen, t0.Add(10*time.Second)) {
		t.Error("Replaced run asked to keep ticking")
	}
	select {
	case d := <-ticks:
		t.Errorf("Replaced run reported %s", d)
	default:
	}
	cd.Stop()
}
