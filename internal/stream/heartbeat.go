package stream

import (
	"encoding/json"
	"sync"
	"time"
)

// heartbeat tracks liveness for one open session. Any inbound envelope
// counts as proof of life; acks to our probes arrive through the same path.
type heartbeat struct {
	mu        sync.Mutex
	lastSeen  time.Time
	lastProbe time.Time
	quality   Quality
}

func newHeartbeat(now time.Time) *heartbeat {
	return &heartbeat{
		lastSeen: now,
		quality:  QualityGood,
	}
}

// touch records inbound traffic.
func (h *heartbeat) touch(now time.Time) {
	h.mu.Lock()
	h.lastSeen = now
	h.mu.Unlock()
}

// markProbe records that a liveness probe was sent.
func (h *heartbeat) markProbe(now time.Time) {
	h.mu.Lock()
	h.lastProbe = now
	h.mu.Unlock()
}

// classify recomputes quality from time since the last inbound message and
// reports whether the classification changed.
func (h *heartbeat) classify(now time.Time, goodBelow time.Duration) (Quality, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q := QualityPoor
	if now.Sub(h.lastSeen) < goodBelow {
		q = QualityGood
	}

	changed := q != h.quality
	h.quality = q
	return q, changed
}

// dead reports whether the session has been silent past the dead threshold
// with at least one probe outstanding since the last inbound message.
func (h *heartbeat) dead(now time.Time, deadAfter time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lastProbe.IsZero() || !h.lastProbe.After(h.lastSeen) {
		return false
	}
	return now.Sub(h.lastSeen) >= deadAfter
}

// heartbeatLoop sends liveness probes while the session is open and forces
// the socket closed once the dead threshold passes with no acknowledgment.
// The forced close surfaces through the read loop as an abnormal close, which
// in turn schedules reconnection.
func (c *Client) heartbeatLoop(conn Conn, gen uint64, hb *heartbeat, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.isCurrent(gen) {
				return
			}

			now := time.Now()
			if hb.dead(now, c.cfg.DeadAfter) {
				c.logger.Warn("no liveness ack, forcing close",
					"dead_after", c.cfg.DeadAfter,
				)
				conn.Close()
				return
			}

			probe, _ := json.Marshal(Envelope{Type: wireProbe})
			if err := conn.WriteMessage(probe); err != nil {
				c.logger.Debug("probe send failed", "error", err)
			} else {
				hb.markProbe(now)
			}

			if q, changed := hb.classify(now, c.cfg.QualityGoodBelow); changed && c.isCurrent(gen) {
				c.dispatchStatus(true, q)
			}
		}
	}
}
