package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Persister appends relayed messages in the background.
// Failures are logged and never retried, delivery does not wait for it.
type Persister struct {
	log     *slog.Logger
	gateway contract.Gateway
	metrics *observability.Metrics
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPersister(log *slog.Logger, gateway contract.Gateway, metrics *observability.Metrics, timeout time.Duration) *Persister {
	return &Persister{log: log, gateway: gateway, metrics: metrics, timeout: timeout}
}

// Submit returns immediately. The append runs detached from the caller's
// context, bounded by the persister timeout. A message submitted after
// Close is dropped.
func (p *Persister) Submit(id chat.RoomID, text string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn("Persister closed, message dropped", "room_id", id)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.gateway.AppendMessage(ctx, id, text); err != nil {
			p.log.Error("Unable to persist message", "room_id", id, "error", err)
			p.metrics.PersistFailed()
		}
	}()
}

// Close refuses further submits and blocks until every accepted append has
// finished.
func (p *Persister) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
