package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// entry is a registry slot. ready is closed once room or err is set.
type entry struct {
	ready chan struct{}
	room  *Room
	err   error
}

func (e *entry) resolved() bool {
	select {
	case <-e.ready:
		return e.err == nil
	default:
		return false
	}
}

// Registry maps a room id to its single resident Room.
// The first resolver of an unknown id inserts a pending entry and loads the
// metadata from the gateway, later resolvers of the same id wait on that entry.
// mu only guards the map: it is never held while the gateway is called.
// Rooms are never evicted. Once closed, the registry resolves nothing.
type Registry struct {
	mu       sync.Mutex
	log      *slog.Logger
	gateway  contract.Gateway
	capacity int
	rooms    map[chat.RoomID]*entry
	closed   bool
}

func NewRegistry(log *slog.Logger, gateway contract.Gateway, capacity int) *Registry {
	return &Registry{
		log:      log,
		gateway:  gateway,
		capacity: capacity,
		rooms:    make(map[chat.RoomID]*entry),
	}
}

// Resolve returns the Room for id, loading it on first reference.
// A failed load is not cached, the next resolver tries again. A waiter whose
// loader was canceled takes the load over.
func (r *Registry) Resolve(ctx context.Context, id chat.RoomID) (*Room, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, errors.ErrRegistryClosed
		}
		e, ok := r.rooms[id]
		if !ok {
			e = &entry{ready: make(chan struct{})}
			r.rooms[id] = e
		}
		r.mu.Unlock()

		if !ok {
			r.load(ctx, id, e)
		}

		select {
		case <-e.ready:
			if ok && isCancellation(e.err) && ctx.Err() == nil {
				continue
			}
			return e.room, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// load always settles e, even when the gateway panics. A room loaded after
// Close is closed at once.
func (r *Registry) load(ctx context.Context, id chat.RoomID, e *entry) {
	defer func() {
		if p := recover(); p != nil {
			e.room = nil
			e.err = fmt.Errorf("%w: loading room %d: %v", errors.ErrGatewayPanic, id, p)
			r.log.Error("Room load panicked", "room_id", id, "panic", p)
		}
		r.mu.Lock()
		if e.err != nil {
			delete(r.rooms, id)
		} else if r.closed {
			e.room.close()
		}
		r.mu.Unlock()
		close(e.ready)
	}()

	meta, err := r.gateway.LoadRoom(ctx, id)
	if err != nil {
		e.err = err
		return
	}
	e.room = NewRoom(meta, r.capacity)
	r.log.Info("Room loaded", "room_id", id, "name", meta.Name)
}

// Len is the number of resident rooms.
func (r *Registry) Len() int {
	return len(r.residents())
}

// Snapshot returns the stats of every resident room ordered by id.
func (r *Registry) Snapshot() []chat.RoomStats {
	stats := lo.Map(r.residents(), func(room *Room, _ int) chat.RoomStats {
		return room.Stats()
	})
	slices.SortFunc(stats, func(a, b chat.RoomStats) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return stats
}

// Close ends every fanout, so active sessions terminate, and refuses any
// later Resolve.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	for _, room := range r.residents() {
		room.close()
	}
}

func (r *Registry) residents() []*Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rooms []*Room
	for _, e := range r.rooms {
		if e.resolved() {
			rooms = append(rooms, e.room)
		}
	}
	return rooms
}
