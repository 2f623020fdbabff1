package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are protobuf encoded with protowire.
//
//	StoredMessage: 1 id (string), 2 room (varint), 3 content (string), 4 at (varint, unix nano)
//	Room:          1 id (varint), 2 name (string), 3 participant a (varint), 4 participant b (varint)

// StoredMessage is a message as kept by the embedded store.
type StoredMessage struct {
	ID      uuid.UUID
	Room    chat.RoomID
	Content string
	At      time.Time
}

func encodeMessage(m StoredMessage) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.ID.String())
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Room))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, m.Content)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.At.UnixNano()))
	return b
}

func decodeMessage(b []byte) (StoredMessage, error) {
	var m StoredMessage
	err := walk(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			if n < 0 {
				return n, nil
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return n, err
			}
			m.ID = id
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			m.Room = chat.RoomID(v)
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(field)
			m.Content = v
			return n, nil
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			m.At = time.Unix(0, int64(v)).UTC()
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
	})
	return m, err
}

func encodeRoom(r chat.RoomMetadata) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ID))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, r.Name)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ParticipantA))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ParticipantB))
	return b
}

func decodeRoom(b []byte) (chat.RoomMetadata, error) {
	var r chat.RoomMetadata
	err := walk(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if typ == protowire.BytesType && num == 2 {
			v, n := protowire.ConsumeString(field)
			r.Name = v
			return n, nil
		}
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
		v, n := protowire.ConsumeVarint(field)
		switch num {
		case 1:
			r.ID = chat.RoomID(v)
		case 3:
			r.ParticipantA = uint32(v)
		case 4:
			r.ParticipantB = uint32(v)
		}
		return n, nil
	})
	return r, err
}

// walk calls fn for every field of b. fn returns how many bytes of the
// field value it consumed, negative on malformed input.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", errors.ErrCorruptedRecord, protowire.ParseError(n))
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("%w: %w", errors.ErrCorruptedRecord, err)
		}
		if n < 0 {
			return fmt.Errorf("%w: %w", errors.ErrCorruptedRecord, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
