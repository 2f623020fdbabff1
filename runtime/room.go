package runtime

import "chat-relay/domain/chat"

// Room is a resident chat room: its stored metadata plus the live fanout
// shared by every session joined to it.
type Room struct {
	meta   chat.RoomMetadata
	fanout *Fanout
}

func NewRoom(meta chat.RoomMetadata, capacity int) *Room {
	return &Room{meta: meta, fanout: NewFanout(capacity)}
}

func (r *Room) ID() chat.RoomID {
	return r.meta.ID
}

func (r *Room) Metadata() chat.RoomMetadata {
	return r.meta
}

func (r *Room) Publish(msg chat.Message) int {
	return r.fanout.Publish(msg)
}

func (r *Room) Subscribe() *Subscription {
	return r.fanout.Subscribe()
}

func (r *Room) Stats() chat.RoomStats {
	return chat.RoomStats{
		ID:          r.meta.ID,
		Name:        r.meta.Name,
		Subscribers: r.fanout.Subscribers(),
		Backlog:     r.fanout.Backlog(),
		Capacity:    r.fanout.Capacity(),
		Published:   r.fanout.Published(),
	}
}

func (r *Room) close() {
	r.fanout.Close()
}
