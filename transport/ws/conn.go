// Package ws carries relay frames over gorilla websocket connections.
package ws

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// Conn adapts a websocket connection to contract.Conn.
// Reads are not cancelable through ctx, closing the connection unblocks them.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex // gorilla supports one concurrent writer
}

func NewConn(conn *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Conn{conn: conn, writeTimeout: writeTimeout}
}

// Read returns the payload of the next text or binary frame.
// A close initiated by the peer is reported as io.EOF.
func (c *Conn) Read(_ context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if isExpectedClose(err) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Write sends frame as a single text message. The ctx deadline, when set,
// bounds the write, otherwise the connection write timeout does.
func (c *Conn) Write(ctx context.Context, frame []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close drops the underlying connection without a close handshake,
// so nothing is written back to the peer.
func (c *Conn) Close() error {
	err := c.conn.Close()
	if err != nil && stderrors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Leave sends a normal close frame before closing.
func (c *Conn) Leave() error {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	c.mu.Unlock()
	if err != nil && !stderrors.Is(err, websocket.ErrCloseSent) {
		_ = c.conn.Close()
		return err
	}
	return c.Close()
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func isExpectedClose(err error) bool {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
