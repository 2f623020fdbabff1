package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Dial opens a client connection to a relay.
func Dial(ctx context.Context, url string, writeTimeout time.Duration) (*Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(conn, writeTimeout), nil
}
