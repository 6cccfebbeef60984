package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// handleInbound classifies one received envelope and routes it to the right
// subscription channel. Unknown discriminators are logged and dropped so
// server-side additions don't break older panels; malformed envelopes
// surface once on the error channel and leave the connection open.
func (c *Client) handleInbound(gen uint64, data []byte) {
	c.mu.Lock()
	current := gen == c.gen && c.state == StateOpen
	hb := c.hb
	conn := c.conn
	c.mu.Unlock()

	if !current {
		return
	}

	now := time.Now()
	if hb != nil {
		hb.touch(now)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("malformed envelope", "error", err)
		c.dispatcher.Dispatch(Event{
			Channel: ChannelError,
			Err:     fmt.Errorf("%w: %v", ErrMalformedEnvelope, err),
		})
		return
	}
	if env.Type == "" {
		c.logger.Warn("envelope missing type")
		c.dispatcher.Dispatch(Event{
			Channel: ChannelError,
			Err:     fmt.Errorf("%w: missing type", ErrMalformedEnvelope),
		})
		return
	}

	c.metrics.addReceived(Channel(env.Type))

	switch env.Type {
	case wireAck:
		// Liveness only; the touch above already recorded it.

	case wireProbe:
		// Server-initiated probe: answer, don't forward.
		ack, _ := json.Marshal(Envelope{Type: wireAck})
		if conn != nil {
			if err := conn.WriteMessage(ack); err != nil {
				c.logger.Debug("liveness ack send failed", "error", err)
			}
		}

	case string(ChannelNewEntry):
		c.dispatcher.Dispatch(Event{
			Channel: ChannelNewEntry,
			Payload: enhanceLogEntry(env.Payload, now),
		})

	case string(ChannelStatsUpdate),
		string(ChannelRealtimeStats),
		string(ChannelSecurityAlert),
		string(ChannelTrafficSummary),
		string(ChannelMonitoringStatus):
		c.dispatcher.Dispatch(Event{
			Channel: Channel(env.Type),
			Payload: env.Payload,
		})

	case wireError:
		var se serverError
		json.Unmarshal(env.Payload, &se)
		c.dispatcher.Dispatch(Event{
			Channel: ChannelError,
			Payload: env.Payload,
			Err:     fmt.Errorf("server error %s: %s", se.Code, se.Message),
		})

	default:
		c.logger.Debug("unknown envelope type, dropping", "type", env.Type)
	}

	if hb != nil {
		if q, changed := hb.classify(now, c.cfg.QualityGoodBelow); changed && c.isCurrent(gen) {
			c.dispatchStatus(true, q)
		}
	}
}

// enhanceLogEntry fills in display fields the backend omits from log
// entries. Existing fields are never overwritten; anything unparseable is
// passed through untouched.
func enhanceLogEntry(payload json.RawMessage, now time.Time) json.RawMessage {
	var entry map[string]any
	if err := json.Unmarshal(payload, &entry); err != nil {
		return payload
	}

	if _, ok := entry["display_time"]; !ok {
		if ts, ok := entry["ts"].(float64); ok {
			entry["display_time"] = time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
		} else {
			entry["display_time"] = now.UTC().Format(time.RFC3339)
		}
	}

	if _, ok := entry["badge"]; !ok {
		entry["badge"] = badgeFor(entry)
	}

	enhanced, err := json.Marshal(entry)
	if err != nil {
		return payload
	}
	return enhanced
}

// badgeFor derives a severity badge from the entry's action, falling back
// to its log level.
func badgeFor(entry map[string]any) string {
	if action, ok := entry["action"].(string); ok {
		switch action {
		case "block", "drop", "reject":
			return "danger"
		case "pass", "allow":
			return "success"
		}
	}

	if level, ok := entry["level"].(string); ok {
		switch level {
		case "emergency", "alert", "critical", "error":
			return "danger"
		case "warning", "notice":
			return "warning"
		}
	}

	return "info"
}
