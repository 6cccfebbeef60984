package stream

import (
	"context"
	"time"
)

// backoffDelay returns min(base * 2^attempt, max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// scheduleReconnect arms the backoff timer after an abnormal close or a
// fully failed connect attempt. Once the attempt budget is spent it
// dispatches the terminal error instead; only a manual Connect resumes.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.state != StateDisconnected || c.retryTimer != nil {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.cfg.MaxReconnectAttempts {
		attempts := c.attempts
		c.mu.Unlock()
		c.logger.Error("giving up on automatic reconnection", "attempts", attempts)
		c.dispatcher.Dispatch(Event{Channel: ChannelError, Err: ErrRetriesExhausted})
		return
	}

	delay := backoffDelay(c.attempts, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay)
	c.retryTimer = time.AfterFunc(delay, c.retryFire)
	attempt := c.attempts
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "delay", delay, "attempt", attempt)
}

// retryFire runs when the backoff timer elapses.
func (c *Client) retryFire() {
	c.mu.Lock()
	c.retryTimer = nil
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	total := c.metrics.addReconnect()

	c.dispatcher.Dispatch(Event{
		Channel: ChannelReconnect,
		Progress: &ReconnectProgress{
			Attempt:     attempt,
			MaxAttempts: c.cfg.MaxReconnectAttempts,
			Reconnects:  total,
		},
	})

	if err := c.Connect(context.Background()); err != nil {
		c.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

// cancelRetryLocked stops a pending reconnect timer. Caller holds c.mu.
func (c *Client) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}
