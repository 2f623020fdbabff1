package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

type SessionState int32

const (
	StateHandshaking SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one accepted connection:
// a single handshake frame carrying the room id, then relaying in both
// directions until the transport or the room ends.
type Session struct {
	log       *slog.Logger
	conn      contract.Conn
	registry  *Registry
	persister *Persister
	metrics   *observability.Metrics
	identity  string
	state     atomic.Int32
	room      *Room
	sub       *Subscription
}

func NewSession(log *slog.Logger, conn contract.Conn, registry *Registry,
	persister *Persister, metrics *observability.Metrics) *Session {
	identity := conn.RemoteAddr()
	return &Session{
		log:       log.With("remote", identity),
		conn:      conn,
		registry:  registry,
		persister: persister,
		metrics:   metrics,
		identity:  identity,
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Room is nil until the handshake succeeded.
func (s *Session) Room() *Room {
	return s.room
}

// Run returns once the session is closed.
// Handshake failures are wrapped with errors.ErrHandshake and nothing is
// written back to the peer.
func (s *Session) Run(ctx context.Context) error {
	defer s.close()
	if err := s.handshake(ctx); err != nil {
		return err
	}
	return s.relay(ctx)
}

func (s *Session) handshake(ctx context.Context) error {
	frame, err := s.conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrHandshake, err)
	}
	id, err := chat.ParseRoomID(string(frame))
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrHandshake, err)
	}
	room, err := s.registry.Resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: room %d: %w", errors.ErrHandshake, id, err)
	}
	s.room = room
	s.sub = room.Subscribe()
	s.state.Store(int32(StateActive))
	s.log.Debug("Session joined room", "room_id", id)
	return nil
}

func (s *Session) relay(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := s.conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case frame := <-inbound:
			s.publish(frame)
		case <-s.sub.Ready():
			if err := s.deliver(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Session) publish(frame []byte) {
	text := string(frame)
	if _, err := chat.ParseFrame(text); err != nil {
		s.log.Debug("Relaying malformed frame", "error", err)
	}
	n := s.room.Publish(chat.NewMessage(s.identity, text))
	s.metrics.MessagePublished()
	s.log.Debug("Message published", "room_id", s.room.ID(), "subscribers", n)
	s.persister.Submit(s.room.ID(), text)
}

// deliver drains at most one buffer worth of messages, then yields back to
// the relay loop so inbound frames keep being served.
func (s *Session) deliver(ctx context.Context) error {
	for range s.room.fanout.Capacity() {
		d, ok := s.sub.TryRecv()
		if !ok {
			return nil
		}
		switch d.Kind {
		case DeliveryLagged:
			s.log.Warn("Subscription lagged, messages skipped", "room_id", s.room.ID(), "skipped", d.Skipped)
			s.metrics.LagSkipped(d.Skipped)
		case DeliveryClosed:
			return errors.ErrSubscriptionClosed
		case DeliveryMessage:
			if d.Message.IsFrom(s.identity) {
				continue
			}
			if err := s.conn.Write(ctx, []byte(d.Message.Content())); err != nil {
				return err
			}
			s.metrics.MessageDelivered()
		}
	}
	s.sub.notify()
	return nil
}

func (s *Session) close() {
	s.state.Store(int32(StateClosed))
	if s.sub != nil {
		s.sub.Close()
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("Unable to close connection", "error", err)
	}
}
