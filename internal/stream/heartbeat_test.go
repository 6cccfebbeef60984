package stream

import (
	"context"
	"testing"
	"time"
)

func TestHeartbeat_Classify(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	goodBelow := 5 * time.Second

	hb := newHeartbeat(start)

	q, changed := hb.classify(start.Add(3*time.Second), goodBelow)
	if q != QualityGood || changed {
		t.Errorf("3s silence: quality = %s changed=%v, want good, unchanged", q, changed)
	}

	q, changed = hb.classify(start.Add(20*time.Second), goodBelow)
	if q != QualityPoor || !changed {
		t.Errorf("20s silence: quality = %s changed=%v, want poor, changed", q, changed)
	}

	// Inbound traffic restores Good.
	hb.touch(start.Add(21 * time.Second))
	q, changed = hb.classify(start.Add(22*time.Second), goodBelow)
	if q != QualityGood || !changed {
		t.Errorf("after touch: quality = %s changed=%v, want good, changed", q, changed)
	}
}

func TestHeartbeat_Dead(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deadAfter := 60 * time.Second

	hb := newHeartbeat(start)

	// Silence alone is not dead until a probe has gone unanswered.
	if hb.dead(start.Add(2*time.Minute), deadAfter) {
		t.Error("dead without any probe sent")
	}

	hb.markProbe(start.Add(30 * time.Second))
	if hb.dead(start.Add(59*time.Second), deadAfter) {
		t.Error("dead before threshold")
	}
	if !hb.dead(start.Add(65*time.Second), deadAfter) {
		t.Error("not dead at 65s of unacknowledged silence")
	}

	// An ack after the probe clears the pending-probe condition.
	hb.touch(start.Add(70 * time.Second))
	if hb.dead(start.Add(3*time.Minute), deadAfter) {
		t.Error("dead with no probe outstanding")
	}
}

func TestClient_HeartbeatProbesAndForceClose(t *testing.T) {
	d := &fakeDialer{}
	cfg := testConfig(d)
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.QualityGoodBelow = 5 * time.Millisecond
	cfg.DeadAfter = 25 * time.Millisecond

	c := New(cfg, nil)

	var progress eventCollector
	c.Subscribe(ChannelReconnect, progress.handler())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	conn := d.lastConn()

	// Server stays silent: probes go out, then the monitor forces the close
	// and the abnormal-close path schedules reconnection.
	waitFor(t, 2*time.Second, conn.isClosed, "force close of silent connection")

	probes := 0
	for _, typ := range conn.writtenTypes() {
		if typ == wireProbe {
			probes++
		}
	}
	if probes == 0 {
		t.Error("no liveness probes sent before force close")
	}

	waitFor(t, 2*time.Second, func() bool { return progress.count() > 0 },
		"reconnect scheduled after force close")

	c.Disconnect()
}

func TestClient_QualityPoorWhileSilent(t *testing.T) {
	d := &fakeDialer{}
	cfg := testConfig(d)
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.QualityGoodBelow = 5 * time.Millisecond
	cfg.DeadAfter = time.Hour // keep the session alive

	c := New(cfg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	waitFor(t, 2*time.Second, func() bool {
		st := c.Status()
		return st.Connected && st.Quality == QualityPoor
	}, "quality to degrade to poor while open")

	// Traffic restores Good.
	d.lastConn().deliver(`{"type":"liveness_ack"}`)
	waitFor(t, 2*time.Second, func() bool {
		return c.Status().Quality == QualityGood
	}, "quality to recover on inbound ack")
}

func TestClient_QualityNeverGoodUnlessOpen(t *testing.T) {
	d := &fakeDialer{failAlways: true}
	c := New(testConfig(d), nil)

	if st := c.Status(); st.Quality != QualityDisconnected {
		t.Errorf("initial quality = %s, want disconnected", st.Quality)
	}

	c.Connect(context.Background())
	if st := c.Status(); st.Quality == QualityGood {
		t.Error("quality good while not open")
	}
	c.Disconnect()
}
