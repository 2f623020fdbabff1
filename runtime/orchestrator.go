// Package runtime holds the relay engine: the room registry, the per room
// fanout and the sessions bridging connections to rooms.
// It orchestrates the relay without knowing about transports or storage engines.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

type Orchestrator struct {
	log                  *slog.Logger
	supervisor           contract.ISupervisor
	registry             *Registry
	persister            *Persister
	metrics              *observability.Metrics
	metricInterval       time.Duration
	lowCapacityThreshold int
	sessions             atomic.Int64
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry *Registry, persister *Persister, metrics *observability.Metrics,
	metricInterval time.Duration, lowCapacityThreshold int) *Orchestrator {
	metrics.TrackRooms(registry.Len)
	return &Orchestrator{
		log:                  log,
		supervisor:           supervisor,
		registry:             registry,
		persister:            persister,
		metrics:              metrics,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

// HandleConn runs one session to completion.
// Errors stay scoped to the connection, they are only logged.
func (o *Orchestrator) HandleConn(ctx context.Context, conn contract.Conn) {
	o.sessions.Add(1)
	o.metrics.SessionOpened()
	defer func() {
		o.sessions.Add(-1)
		o.metrics.SessionClosed()
	}()

	session := NewSession(o.log, conn, o.registry, o.persister, o.metrics)
	err := session.Run(ctx)
	switch {
	case err == nil,
		stderrors.Is(err, io.EOF),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, errors.ErrSubscriptionClosed):
		o.log.Debug("Session closed", "remote", conn.RemoteAddr())
	case stderrors.Is(err, errors.ErrHandshake):
		o.metrics.HandshakeRejected(rejectionReason(err))
		o.log.Warn("Handshake rejected", "remote", conn.RemoteAddr(), "error", err)
	default:
		o.log.Warn("Session ended on transport error", "remote", conn.RemoteAddr(), "error", err)
	}
}

func rejectionReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrMalformedRoomID):
		return observability.ReasonMalformed
	case stderrors.Is(err, errors.ErrRoomNotFound):
		return observability.ReasonNotFound
	case stderrors.Is(err, io.EOF):
		return observability.ReasonTransport
	default:
		return observability.ReasonStorage
	}
}

// Start registers the background workers and blocks until ctx is canceled
// or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(workers.NewTelemetryWorker(o.log, o.metricInterval, o.lowCapacityThreshold, o.Stats))
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

// Stop ends the workers, closes every room so sessions terminate,
// then waits for pending appends.
func (o *Orchestrator) Stop() {
	o.supervisor.Stop()
	o.registry.Close()
	o.persister.Close()
}

func (o *Orchestrator) Stats() chat.RelayStats {
	return chat.RelayStats{
		Rooms:          o.registry.Snapshot(),
		ActiveSessions: o.sessions.Load(),
	}
}
