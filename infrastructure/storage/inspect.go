package storage

import (
	"chat-relay/internal"
	"strconv"
	"strings"
	"time"
)

// InspectRecord maps a raw badger entry to a row of the debug inspect page.
func InspectRecord(key string, val []byte) internal.InspectRow {
	switch {
	case strings.HasPrefix(key, roomPrefix):
		room, err := decodeRoom(val)
		if err != nil {
			return corrupted(key, err)
		}
		return internal.InspectRow{
			Key:       key,
			Type:      "ROOM",
			Timestamp: "--:--:--",
			EntityID:  strconv.FormatUint(uint64(room.ID), 10),
			Namespace: "rooms",
			Detail:    room.Name + " (" + strconv.FormatUint(uint64(room.ParticipantA), 10) + ", " + strconv.FormatUint(uint64(room.ParticipantB), 10) + ")",
		}
	case strings.HasPrefix(key, messagePrefix):
		msg, err := decodeMessage(val)
		if err != nil {
			return corrupted(key, err)
		}
		id := msg.ID.String()
		return internal.InspectRow{
			Key:       key,
			Type:      "MESSAGE",
			Timestamp: msg.At.Format(time.TimeOnly),
			EntityID:  id[:8],
			Namespace: strconv.FormatUint(uint64(msg.Room), 10),
			Detail:    msg.Content,
		}
	default:
		return internal.DefaultMapper(key, val)
	}
}

func corrupted(key string, err error) internal.InspectRow {
	row := internal.DefaultMapper(key, nil)
	row.Type = "CORRUPTED"
	row.Detail = err.Error()
	return row
}
