package stream

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNoEndpoints       = errors.New("no endpoints configured")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrRetriesExhausted  = errors.New("maximum reconnection attempts reached")
)

// State is the connection state machine's current state. The single live
// socket and the state value are mutated only by the Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Quality classifies how responsive the current session is, derived from
// heartbeat timing. Never Good unless the state is Open.
type Quality string

const (
	QualityGood         Quality = "good"
	QualityPoor         Quality = "poor"
	QualityDisconnected Quality = "disconnected"
)

// Channel names a category of event with its own subscriber list. Data
// channels match the wire discriminators; connection_change and
// reconnect_progress are produced locally.
type Channel string

const (
	ChannelNewEntry         Channel = "new_entry"
	ChannelStatsUpdate      Channel = "statistics_update"
	ChannelRealtimeStats    Channel = "realtime_statistics"
	ChannelSecurityAlert    Channel = "security_alert"
	ChannelTrafficSummary   Channel = "traffic_summary"
	ChannelMonitoringStatus Channel = "monitoring_status"
	ChannelConnection       Channel = "connection_change"
	ChannelError            Channel = "error"
	ChannelReconnect        Channel = "reconnect_progress"
)

// Wire-only envelope types never forwarded to subscribers.
const (
	wireProbe       = "liveness_probe"
	wireAck         = "liveness_ack"
	wireInit        = "initialization"
	wireRequestData = "request_data"
	wireSetFilters  = "set_filters"
	wireError       = "error"
)

// Envelope is the structured unit exchanged over the stream: a discriminator
// naming the event type and an opaque payload body.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// initPayload is the handshake sent immediately on reaching Open.
type initPayload struct {
	ClientID     string   `json:"client_id"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// requestDataPayload asks the backend to (re)send current data for channels.
type requestDataPayload struct {
	Channels []Channel `json:"channels"`
}

// serverError is the payload body of an inbound "error" envelope.
type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is delivered to subscribers. Payload carries the raw body for data
// channels; Status, Progress, and Err are set for the locally produced
// connection_change, reconnect_progress, and error channels respectively.
type Event struct {
	Channel  Channel
	Payload  json.RawMessage
	Status   *StatusChange
	Progress *ReconnectProgress
	Err      error
}

// Handler receives dispatched events in arrival order.
type Handler func(Event)

// StatusChange describes a connection_change event.
type StatusChange struct {
	Connected bool
	Quality   Quality
	Metrics   Metrics
}

// ReconnectProgress describes a reconnect_progress event. Attempt counts
// from 1 within the current disconnection episode; Reconnects is the
// lifetime total and never resets.
type ReconnectProgress struct {
	Attempt     int
	MaxAttempts int
	Reconnects  int64
}

// Status is a point-in-time snapshot of the client.
type Status struct {
	Connected   bool
	State       State
	Quality     Quality
	Attempts    int
	QueueLength int
}

// Config configures a stream client. Endpoints are tried in order when
// establishing a session and are fixed at construction.
type Config struct {
	Endpoints []string

	// Dialer establishes sessions. Nil means WebSocket.
	Dialer Dialer

	DialTimeout  time.Duration // per-candidate connect timeout
	WriteTimeout time.Duration // write deadline for sends

	ProbeInterval    time.Duration // liveness probe cadence while Open
	QualityGoodBelow time.Duration // silence below this is Good
	DeadAfter        time.Duration // unacknowledged silence that forces a close

	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	QueueCapacity int // bounded offline send queue

	// Capabilities advertised in the initialization handshake.
	Capabilities []string
}

// Defaults for optional Config fields.
const (
	DefaultDialTimeout          = 5 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultProbeInterval        = 30 * time.Second
	DefaultQualityGoodBelow     = 5 * time.Second
	DefaultDeadAfter            = 60 * time.Second
	DefaultReconnectBaseDelay   = 3 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultQueueCapacity        = 1000
)

// DefaultConfig returns a Config with defaults applied for the given
// endpoint candidates.
func DefaultConfig(endpoints ...string) Config {
	cfg := Config{Endpoints: endpoints}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.QualityGoodBelow == 0 {
		c.QualityGoodBelow = DefaultQualityGoodBelow
	}
	if c.DeadAfter == 0 {
		c.DeadAfter = DefaultDeadAfter
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
}
