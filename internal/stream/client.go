package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client keeps the dashboard's live views synchronized with the appliance
// backend over an unreliable network: ordered endpoint failover, exponential
// backoff reconnection, heartbeat liveness, a bounded offline send queue,
// and typed publish/subscribe fan-out to independent consumers.
//
// The single socket reference and connection state are mutated only here;
// the heartbeat, router, queue, and scheduler read state or call public
// methods. A session generation counter detaches the previous socket's
// goroutines before a new session is established, so a stale timer or a
// late-arriving read can never resurrect a dead session.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer Dialer
	id     uuid.UUID

	dispatcher *dispatcher
	queue      *sendQueue
	metrics    *metricsState

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        uint64
	hb         *heartbeat
	hbStop     chan struct{}
	attempts   int
	retryTimer *time.Timer
}

// New creates a fully initialized client. It does not connect.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewWebSocketDialer(cfg.WriteTimeout)
	}

	return &Client{
		cfg:        cfg,
		logger:     logger,
		dialer:     dialer,
		id:         uuid.New(),
		dispatcher: newDispatcher(logger),
		queue:      newSendQueue(cfg.QueueCapacity),
		metrics:    newMetricsState(),
	}
}

// ID returns the client instance identity advertised in the initialization
// handshake.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Connect establishes a session, trying endpoint candidates in order with a
// bounded timeout each. No-op if already connecting or open. If every
// candidate fails, the state returns to Disconnected and a reconnect is
// scheduled.
func (c *Client) Connect(ctx context.Context) error {
	if len(c.cfg.Endpoints) == 0 {
		return ErrNoEndpoints
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.cancelRetryLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	var lastErr error
	for _, endpoint := range c.cfg.Endpoints {
		if !c.stillConnecting() {
			// Disconnect raced the dial loop; stop quietly.
			return nil
		}

		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		conn, err := c.dialer.Dial(dialCtx, endpoint)
		cancel()

		if err != nil {
			lastErr = err
			c.logger.Warn("endpoint failed", "endpoint", endpoint, "error", err)
			continue
		}

		c.establish(conn, endpoint)
		return nil
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect raced the dial loop; don't schedule a retry.
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	err := fmt.Errorf("all endpoints failed: %w", lastErr)
	c.logger.Error("connect failed", "endpoints", len(c.cfg.Endpoints), "error", lastErr)
	c.dispatchStatus(false, QualityDisconnected)
	c.scheduleReconnect()
	return err
}

// establish promotes a dialed connection to the open session: attempt
// counter resets, heartbeat starts, the handshake goes out, the offline
// queue is flushed, and one connection-change event is dispatched.
func (c *Client) establish(conn Conn, endpoint string) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		conn.Close()
		return
	}

	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0

	now := time.Now()
	c.metrics.markConnected(now)

	hb := newHeartbeat(now)
	stop := make(chan struct{})
	c.hb = hb
	c.hbStop = stop
	c.mu.Unlock()

	c.logger.Info("connected", "endpoint", endpoint)

	go c.readLoop(conn, gen)
	go c.heartbeatLoop(conn, gen, hb, stop)

	c.sendInit(conn)
	c.flush(conn)
	c.dispatchStatus(true, QualityGood)
}

// Disconnect closes the session cleanly: the pending reconnect timer is
// cancelled, the heartbeat stops, and the close is signalled as
// user-initiated so no automatic retry follows.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.cancelRetryLocked()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.state = StateClosing
	c.teardownLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.logger.Info("disconnected")
	c.dispatchStatus(false, QualityDisconnected)
}

// teardownLocked detaches the current session. Caller holds c.mu. Bumping
// the generation orphans the session's read and heartbeat goroutines.
func (c *Client) teardownLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	c.hb = nil
	c.conn = nil
	c.gen++
	c.state = StateDisconnected
	c.metrics.markDisconnected(time.Now())
}

// readLoop pumps inbound messages into the router until the session ends.
func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleInbound(gen, data)
	}
}

// handleClose is the abnormal-close path: any close not initiated by
// Disconnect lands here and hands the episode to the reconnect scheduler.
func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateOpen {
		// Stale session, or a deliberate shutdown already tore this down.
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.mu.Unlock()

	c.logger.Warn("connection lost", "error", err)
	c.dispatchStatus(false, QualityDisconnected)
	c.scheduleReconnect()
}

// Send transmits an envelope if the session is open, otherwise queues it.
// A transport failure on an open session also falls back to the queue.
func (c *Client) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	c.sendBytes(data)
	return nil
}

func (c *Client) sendBytes(data []byte) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if open && conn != nil {
		if err := conn.WriteMessage(data); err == nil {
			c.metrics.addSent()
			return
		} else {
			c.logger.Warn("send failed, queueing", "error", err)
		}
	}

	if evicted := c.queue.Push(data); evicted {
		c.logger.Warn("send queue full, dropped oldest message")
	}
}

// flush drains the offline queue in FIFO order. A failed send stops the
// flush and leaves the remainder queued, order intact, for the next session.
func (c *Client) flush(conn Conn) {
	flushed := 0
	for {
		data, ok := c.queue.Peek()
		if !ok {
			break
		}
		if err := conn.WriteMessage(data); err != nil {
			c.logger.Warn("flush interrupted, remainder stays queued",
				"flushed", flushed,
				"remaining", c.queue.Len(),
				"error", err,
			)
			return
		}
		c.queue.Pop()
		c.metrics.addSent()
		flushed++
	}

	if flushed > 0 {
		c.logger.Info("flushed queued messages", "count", flushed)
	}
}

// sendInit sends the initialization handshake announcing client identity
// and capabilities.
func (c *Client) sendInit(conn Conn) {
	payload, _ := json.Marshal(initPayload{
		ClientID:     c.id.String(),
		Capabilities: c.cfg.Capabilities,
	})
	data, _ := json.Marshal(Envelope{Type: wireInit, Payload: payload})

	if err := conn.WriteMessage(data); err != nil {
		c.logger.Warn("initialization handshake failed", "error", err)
		return
	}
	c.metrics.addSent()
}

// Subscribe registers a handler for a channel and returns its unsubscribe
// function, the only handle consumers need.
func (c *Client) Subscribe(ch Channel, fn Handler) func() {
	return c.dispatcher.Subscribe(ch, fn)
}

// RequestData asks the backend to (re)send current data for the given
// channels, e.g. after a dashboard view mounts.
func (c *Client) RequestData(channels ...Channel) error {
	payload, err := json.Marshal(requestDataPayload{Channels: channels})
	if err != nil {
		return fmt.Errorf("encode request_data: %w", err)
	}
	return c.Send(Envelope{Type: wireRequestData, Payload: payload})
}

// SetFilters updates the server-side filter criteria for the log stream.
func (c *Client) SetFilters(criteria map[string]any) error {
	payload, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("encode set_filters: %w", err)
	}
	return c.Send(Envelope{Type: wireSetFilters, Payload: payload})
}

// Status returns a point-in-time snapshot for the connection indicator.
func (c *Client) Status() Status {
	c.mu.Lock()
	st := c.state
	attempts := c.attempts
	hb := c.hb
	c.mu.Unlock()

	quality := QualityDisconnected
	if st == StateOpen && hb != nil {
		quality, _ = hb.classify(time.Now(), c.cfg.QualityGoodBelow)
	}

	return Status{
		Connected:   st == StateOpen,
		State:       st,
		Quality:     quality,
		Attempts:    attempts,
		QueueLength: c.queue.Len(),
	}
}

// Metrics returns a copy of the connection metrics.
func (c *Client) Metrics() Metrics {
	return c.metrics.snapshot(c.queue.Dropped())
}

func (c *Client) dispatchStatus(connected bool, quality Quality) {
	c.dispatcher.Dispatch(Event{
		Channel: ChannelConnection,
		Status: &StatusChange{
			Connected: connected,
			Quality:   quality,
			Metrics:   c.Metrics(),
		},
	})
}

func (c *Client) stillConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnecting
}

// isCurrent reports whether gen still names the live session.
func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.state == StateOpen
}
