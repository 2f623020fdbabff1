package runtime

import (
	"chat-relay/domain/chat"
	"context"
	"sync"
)

// DefaultFanoutCapacity is the number of messages a room keeps for
// subscriptions that have not consumed them yet.
const DefaultFanoutCapacity = 16

type DeliveryKind int

const (
	DeliveryMessage DeliveryKind = iota
	DeliveryLagged
	DeliveryClosed
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveryMessage:
		return "message"
	case DeliveryLagged:
		return "lagged"
	case DeliveryClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Delivery is the outcome of one receive on a Subscription.
// Message is set for DeliveryMessage, Skipped for DeliveryLagged.
type Delivery struct {
	Kind    DeliveryKind
	Message chat.Message
	Skipped uint64
}

// Fanout is a bounded broadcast buffer.
// Publishers never block: a subscription that falls more than capacity
// messages behind loses the oldest ones and is told how many on its next receive.
type Fanout struct {
	mu       sync.Mutex
	capacity int
	buf      []chat.Message
	tail     uint64 // sequence of the next publish
	subs     map[*Subscription]struct{}
	closed   bool
}

func NewFanout(capacity int) *Fanout {
	if capacity <= 0 {
		capacity = DefaultFanoutCapacity
	}
	return &Fanout{
		capacity: capacity,
		buf:      make([]chat.Message, capacity),
		subs:     make(map[*Subscription]struct{}),
	}
}

// Publish appends msg and wakes every subscription.
// It returns the number of subscriptions that will observe the message.
func (f *Fanout) Publish(msg chat.Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}
	f.buf[f.tail%uint64(f.capacity)] = msg
	f.tail++
	for s := range f.subs {
		s.notify()
	}
	return len(f.subs)
}

// Subscribe starts receiving from the next publish on.
func (f *Fanout) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &Subscription{
		fanout: f,
		next:   f.tail,
		ready:  make(chan struct{}, 1),
	}
	if f.closed {
		s.closed = true
		s.notify()
		return s
	}
	f.subs[s] = struct{}{}
	return s
}

// Close ends every subscription once it has drained what was published.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		s.notify()
	}
}

// Published is the total number of messages ever published.
func (f *Fanout) Published() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tail
}

func (f *Fanout) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Backlog is the largest number of buffered messages a single subscription
// has not consumed, capped at capacity.
func (f *Fanout) Backlog() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var backlog uint64
	for s := range f.subs {
		backlog = max(backlog, f.tail-s.next)
	}
	return int(min(backlog, uint64(f.capacity)))
}

func (f *Fanout) Capacity() int {
	return f.capacity
}

// oldest is the sequence of the oldest message still buffered.
// Must be called with mu held.
func (f *Fanout) oldest() uint64 {
	if f.tail < uint64(f.capacity) {
		return 0
	}
	return f.tail - uint64(f.capacity)
}

func (f *Fanout) remove(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, s)
}

// Subscription is a private cursor into a Fanout.
// It is meant to be consumed by a single goroutine.
type Subscription struct {
	fanout *Fanout
	next   uint64
	ready  chan struct{}
	closed bool
}

// Ready is signalled whenever a receive may make progress.
// A signal can be spurious, TryRecv tells.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

func (s *Subscription) notify() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// TryRecv returns the next delivery without blocking.
// The boolean is false when nothing is available yet.
func (s *Subscription) TryRecv() (Delivery, bool) {
	f := s.fanout
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.closed {
		return Delivery{Kind: DeliveryClosed}, true
	}
	if oldest := f.oldest(); s.next < oldest {
		skipped := oldest - s.next
		s.next = oldest
		return Delivery{Kind: DeliveryLagged, Skipped: skipped}, true
	}
	if s.next == f.tail {
		if f.closed {
			return Delivery{Kind: DeliveryClosed}, true
		}
		return Delivery{}, false
	}
	msg := f.buf[s.next%uint64(f.capacity)]
	s.next++
	return Delivery{Kind: DeliveryMessage, Message: msg}, true
}

// Recv blocks until a delivery is available or ctx is done.
func (s *Subscription) Recv(ctx context.Context) (Delivery, error) {
	for {
		if d, ok := s.TryRecv(); ok {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-s.ready:
		}
	}
}

// Close detaches the subscription. Later receives report DeliveryClosed.
func (s *Subscription) Close() {
	s.fanout.remove(s)
	s.fanout.mu.Lock()
	s.closed = true
	s.fanout.mu.Unlock()
	s.notify()
}
