package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single established stream session.
type Conn interface {
	// ReadMessage blocks until the next inbound message or a read error.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one outbound message.
	WriteMessage(data []byte) error

	// Close tears down the session. Safe to call more than once.
	Close() error
}

// Dialer establishes sessions against one endpoint candidate. Injectable so
// the reconnection and heartbeat logic can be exercised without network I/O.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// wsDialer dials WebSocket endpoints.
type wsDialer struct {
	writeTimeout time.Duration
}

// NewWebSocketDialer returns the production Dialer.
func NewWebSocketDialer(writeTimeout time.Duration) Dialer {
	if writeTimeout == 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &wsDialer{writeTimeout: writeTimeout}
}

func (d *wsDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, err
	}

	return &wsConn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

// wsConn wraps a gorilla connection with write serialization.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close frame so the server treats the shutdown as
// clean, then closes the underlying connection.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
