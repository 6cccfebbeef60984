package stream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base := 3000 * time.Millisecond
	max := 30000 * time.Millisecond

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 3000 * time.Millisecond},
		{1, 6000 * time.Millisecond},
		{2, 12000 * time.Millisecond},
		{3, 24000 * time.Millisecond},
		{4, 30000 * time.Millisecond}, // capped
		{5, 30000 * time.Millisecond},
		{20, 30000 * time.Millisecond},
	}

	for _, tt := range tests {
		got := backoffDelay(tt.attempt, base, max)
		if got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClient_TerminalAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{failAlways: true}
	cfg := testConfig(d)
	cfg.MaxReconnectAttempts = 2

	c := New(cfg, nil)

	var errs eventCollector
	var progress eventCollector
	c.Subscribe(ChannelError, errs.handler())
	c.Subscribe(ChannelReconnect, progress.handler())

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded, want error with all endpoints failing")
	}

	terminalSeen := func() bool {
		for _, ev := range errs.list() {
			if errors.Is(ev.Err, ErrRetriesExhausted) {
				return true
			}
		}
		return false
	}
	waitFor(t, 2*time.Second, terminalSeen, "terminal error event")

	// No further retries fire after the terminal error.
	dials := d.dialCount()
	attempts := progress.count()
	time.Sleep(100 * time.Millisecond)

	if d.dialCount() != dials {
		t.Errorf("dials continued after terminal error: %d -> %d", dials, d.dialCount())
	}
	if progress.count() != attempts {
		t.Errorf("reconnect events continued after terminal error: %d -> %d", attempts, progress.count())
	}
	if attempts != cfg.MaxReconnectAttempts {
		t.Errorf("reconnect attempts = %d, want %d", attempts, cfg.MaxReconnectAttempts)
	}

	terminal := 0
	for _, ev := range errs.list() {
		if errors.Is(ev.Err, ErrRetriesExhausted) {
			terminal++
		}
	}
	if terminal != 1 {
		t.Errorf("terminal error fired %d times, want exactly 1", terminal)
	}

	if st := c.Status(); st.Quality != QualityDisconnected || st.Connected {
		t.Errorf("Status after exhaustion = %+v, want disconnected", st)
	}
}

func TestClient_ReconnectProgressCounters(t *testing.T) {
	d := &fakeDialer{failFirst: 4} // both endpoints fail twice, then succeed
	cfg := testConfig(d)

	c := New(cfg, nil)

	var progress eventCollector
	c.Subscribe(ChannelReconnect, progress.handler())

	c.Connect(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		return c.Status().Connected
	}, "reconnection to succeed")

	events := progress.list()
	if len(events) == 0 {
		t.Fatal("no reconnect progress events")
	}
	for i, ev := range events {
		if ev.Progress == nil {
			t.Fatalf("event %d has nil Progress", i)
		}
		if ev.Progress.Attempt != i+1 {
			t.Errorf("event %d Attempt = %d, want %d", i, ev.Progress.Attempt, i+1)
		}
		if ev.Progress.Reconnects != int64(i+1) {
			t.Errorf("event %d Reconnects = %d, want %d", i, ev.Progress.Reconnects, i+1)
		}
	}
}

func TestClient_AttemptResetOnOpen(t *testing.T) {
	d := &fakeDialer{failFirst: 2} // first Connect fails both endpoints, retry succeeds
	cfg := testConfig(d)

	c := New(cfg, nil)
	c.Connect(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		return c.Status().Connected
	}, "reconnection to succeed")

	st := c.Status()
	if st.Attempts != 0 {
		t.Errorf("Attempts after Open = %d, want 0", st.Attempts)
	}

	// Lifetime counter is unchanged by the reset.
	if m := c.Metrics(); m.Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", m.Reconnects)
	}

	c.Disconnect()
}

func TestClient_DisconnectCancelsPendingRetry(t *testing.T) {
	d := &fakeDialer{failAlways: true}
	cfg := testConfig(d)
	cfg.ReconnectBaseDelay = 50 * time.Millisecond

	c := New(cfg, nil)
	c.Connect(context.Background())

	dials := d.dialCount()
	c.Disconnect()

	time.Sleep(150 * time.Millisecond)
	if d.dialCount() != dials {
		t.Errorf("retry fired after Disconnect: dials %d -> %d", dials, d.dialCount())
	}
}
