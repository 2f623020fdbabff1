package chat

// RoomStats is a point-in-time view of a resident room.
// Backlog is the largest number of published messages a single
// subscription has not consumed yet.
type RoomStats struct {
	ID          RoomID
	Name        string
	Subscribers int
	Backlog     int
	Capacity    int
	Published   uint64
}

// LagHeadroom is how many more messages the slowest subscription can fall
// behind before it starts skipping.
func (s RoomStats) LagHeadroom() int {
	return s.Capacity - s.Backlog
}

// RelayStats aggregates everything the telemetry worker reports.
type RelayStats struct {
	Rooms          []RoomStats
	ActiveSessions int64
}
