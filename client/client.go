// Package client is a line oriented relay client: it replays the stored
// history of a room, joins it and relays stdin lines as frames.
package client

import (
	"bufio"
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gookit/color"
)

// Conn is a relay connection able to leave with a normal close.
type Conn interface {
	contract.Conn
	Leave() error
}

type Client struct {
	log     *slog.Logger
	conn    Conn
	history contract.Gateway
	name    string
	roomID  chat.RoomID
	out     io.Writer
}

func New(log *slog.Logger, conn Conn, history contract.Gateway, name string, roomID chat.RoomID, out io.Writer) *Client {
	return &Client{
		log:     log.With("user", name, "room_id", roomID),
		conn:    conn,
		history: history,
		name:    name,
		roomID:  roomID,
		out:     out,
	}
}

// Join sends the handshake frame. The relay never answers it, a refused
// room shows up as a closed connection on the first read.
func (c *Client) Join(ctx context.Context) error {
	return c.conn.Write(ctx, []byte(strconv.FormatUint(uint64(c.roomID), 10)))
}

func (c *Client) RenderHistory(ctx context.Context) error {
	if c.history == nil {
		return nil
	}
	lines, err := c.history.LoadHistory(ctx, c.roomID)
	if err != nil {
		return fmt.Errorf("load history of room %d: %w", c.roomID, err)
	}
	for _, line := range lines {
		c.render(line)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, body string) error {
	frame := chat.Frame{Sender: c.name, Body: body}
	return c.conn.Write(ctx, []byte(frame.String()))
}

// Run relays input lines until a blank line, the end of input, the relay
// closing the connection or ctx being done.
func (c *Client) Run(ctx context.Context, input io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	received := make(chan error, 1)
	go func() { received <- c.receive(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return c.conn.Leave()
		case err := <-received:
			return err
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "" {
				c.log.Debug("Leaving room")
				return c.conn.Leave()
			}
			if err := c.Send(ctx, line); err != nil {
				_ = c.conn.Close()
				return err
			}
		}
	}
}

func (c *Client) receive(ctx context.Context) error {
	for {
		frame, err := c.conn.Read(ctx)
		if stderrors.Is(err, io.EOF) {
			c.log.Info("Relay closed the connection")
			return nil
		}
		if err != nil {
			return err
		}
		c.render(string(frame))
	}
}

func (c *Client) render(line string) {
	frame, err := chat.ParseFrame(line)
	if err != nil {
		c.log.Warn("Malformed line", "error", err)
		_, _ = fmt.Fprintln(c.out, line)
		return
	}
	sender := color.Cyan.Sprint(frame.Sender)
	if frame.Sender == c.name {
		sender = color.Magenta.Sprint(frame.Sender)
	}
	_, _ = fmt.Fprintln(c.out, sender+chat.FrameDelimiter+frame.Body)
}
