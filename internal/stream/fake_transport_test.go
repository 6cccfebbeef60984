package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	errFakeConnClosed  = errors.New("fake conn closed")
	errFakeWriteFailed = errors.New("fake write failed")
)

// fakeConn is an in-memory Conn for exercising failure handling without
// network I/O.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}

	mu          sync.Mutex
	writes      [][]byte
	writeErr    error
	writeSeq    int
	failWriteAt int // 1-based ordinal of the single write that fails

	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, errFakeConnClosed
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-f.closed:
		return errFakeConnClosed
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeSeq++
	if f.failWriteAt != 0 && f.writeSeq == f.failWriteAt {
		return errFakeWriteFailed
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// deliver simulates an inbound message from the server.
func (f *fakeConn) deliver(msg string) {
	f.in <- []byte(msg)
}

// writtenTypes decodes the envelope type of every client write.
func (f *fakeConn) writtenTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.writes))
	for _, data := range f.writes {
		var env Envelope
		json.Unmarshal(data, &env)
		types = append(types, env.Type)
	}
	return types
}

func (f *fakeConn) setWriteErr(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out fakeConns, optionally failing the first N dials or
// all of them. failWriteAt is applied to the next conn created, then cleared.
type fakeDialer struct {
	mu          sync.Mutex
	dials       []string
	conns       []*fakeConn
	failFirst   int
	failAlways  bool
	failWriteAt int
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, endpoint)
	if d.failAlways || len(d.dials) <= d.failFirst {
		return nil, errors.New("dial refused")
	}

	conn := newFakeConn()
	conn.failWriteAt = d.failWriteAt
	d.failWriteAt = 0
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// eventCollector records dispatched events for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventCollector) handler() Handler {
	return func(ev Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	}
}

func (e *eventCollector) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *eventCollector) list() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}

// testConfig returns a Config wired to the fake dialer with timings short
// enough for tests.
func testConfig(d *fakeDialer) Config {
	return Config{
		Endpoints:            []string{"fake://primary", "fake://secondary"},
		Dialer:               d,
		DialTimeout:          100 * time.Millisecond,
		ProbeInterval:        time.Hour, // heartbeat inert unless a test overrides
		ReconnectBaseDelay:   5 * time.Millisecond,
		ReconnectMaxDelay:    20 * time.Millisecond,
		MaxReconnectAttempts: 3,
		QueueCapacity:        8,
	}
}
