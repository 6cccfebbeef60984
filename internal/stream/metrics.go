package stream

import (
	"sync"
	"time"
)

// Metrics describes the session's health and throughput. Read-only to
// consumers; mutated only by the client, router, and reconnect scheduler.
type Metrics struct {
	ConnectedAt       time.Time
	DisconnectedAt    time.Time
	MessagesSent      int64
	MessagesReceived  int64
	Reconnects        int64
	QueueDropped      int64
	ReceivedByChannel map[Channel]int64
}

// metricsState is the mutable backing store behind Metrics snapshots.
type metricsState struct {
	mu             sync.Mutex
	connectedAt    time.Time
	disconnectedAt time.Time
	sent           int64
	received       int64
	reconnects     int64
	byChannel      map[Channel]int64
}

func newMetricsState() *metricsState {
	return &metricsState{
		byChannel: make(map[Channel]int64),
	}
}

func (m *metricsState) markConnected(t time.Time) {
	m.mu.Lock()
	m.connectedAt = t
	m.mu.Unlock()
}

func (m *metricsState) markDisconnected(t time.Time) {
	m.mu.Lock()
	m.disconnectedAt = t
	m.mu.Unlock()
}

func (m *metricsState) addSent() {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *metricsState) addReceived(ch Channel) {
	m.mu.Lock()
	m.received++
	m.byChannel[ch]++
	m.mu.Unlock()
}

func (m *metricsState) addReconnect() int64 {
	m.mu.Lock()
	m.reconnects++
	total := m.reconnects
	m.mu.Unlock()
	return total
}

// snapshot returns a consumer-safe copy.
func (m *metricsState) snapshot(queueDropped int64) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	byChannel := make(map[Channel]int64, len(m.byChannel))
	for ch, n := range m.byChannel {
		byChannel[ch] = n
	}

	return Metrics{
		ConnectedAt:       m.connectedAt,
		DisconnectedAt:    m.disconnectedAt,
		MessagesSent:      m.sent,
		MessagesReceived:  m.received,
		Reconnects:        m.reconnects,
		QueueDropped:      queueDropped,
		ReceivedByChannel: byChannel,
	}
}
