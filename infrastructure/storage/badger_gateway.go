package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	roomPrefix      = "room:"
	messagePrefix   = "msg:"
	roomSequenceKey = "seq:room"
)

// BadgerGateway stores rooms and messages in an embedded BadgerDB.
//
//	room:{id padded to 10}             -> Room record
//	msg:{room}:{unix nano padded to 19}:{uuid} -> StoredMessage record
type BadgerGateway struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	validate      *validator.Validate
	now           func() time.Time
}

func NewBadgerGateway(db *badger.DB, log *slog.Logger, limitMessages *int) *BadgerGateway {
	return &BadgerGateway{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func roomKey(id chat.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%010d", roomPrefix, id))
}

func messageRoomPrefix(id chat.RoomID) []byte {
	return []byte(fmt.Sprintf("%s%d:", messagePrefix, id))
}

// MessageKey keeps messages of a room sorted by time, the uuid separates
// two messages stored at the same nanosecond.
func MessageKey(m StoredMessage) []byte {
	return []byte(fmt.Sprintf("%s%d:%019d:%s", messagePrefix, m.Room, m.At.UnixNano(), m.ID))
}

func (g *BadgerGateway) LoadRoom(ctx context.Context, id chat.RoomID) (chat.RoomMetadata, error) {
	if err := ctx.Err(); err != nil {
		return chat.RoomMetadata{}, err
	}
	var room chat.RoomMetadata
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			room, err = decodeRoom(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.RoomMetadata{}, fmt.Errorf("%w: %d", errors.ErrRoomNotFound, id)
	}
	return room, err
}

func (g *BadgerGateway) AppendMessage(ctx context.Context, id chat.RoomID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	message := StoredMessage{ID: uuid.New(), Room: id, Content: text, At: g.now()}
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MessageKey(message), encodeMessage(message))
	})
}

// LoadHistory returns the latest messages of a room, oldest first.
// At most limitMessages are returned when a limit is configured.
func (g *BadgerGateway) LoadHistory(ctx context.Context, id chat.RoomID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messages, err := g.latestMessages(id)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return lo.Map(messages, func(m StoredMessage, _ int) string { return m.Content }), nil
}

// latestMessages walks the room backwards from the newest message.
func (g *BadgerGateway) latestMessages(id chat.RoomID) ([]StoredMessage, error) {
	var messages []StoredMessage
	err := g.db.View(func(txn *badger.Txn) error {
		prefix := messageRoomPrefix(id)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Highest possible key of the room: msg:7:9999999999999999999
		seekKey := append(slices.Clone(prefix), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if g.limitMessages != nil && len(messages) == *g.limitMessages {
				g.log.Debug(fmt.Sprintf("Maximum of %d message reached", *g.limitMessages))
				break
			}
			err := it.Item().Value(func(val []byte) error {
				m, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// CreateRoom allocates the next room id from a persisted sequence.
func (g *BadgerGateway) CreateRoom(ctx context.Context, name string, participantA, participantB uint32) (chat.RoomMetadata, error) {
	if err := ctx.Err(); err != nil {
		return chat.RoomMetadata{}, err
	}
	seq, err := g.db.GetSequence([]byte(roomSequenceKey), 1)
	if err != nil {
		return chat.RoomMetadata{}, err
	}
	defer func() {
		if err := seq.Release(); err != nil {
			g.log.Warn("Unable to release room sequence", "error", err)
		}
	}()
	next, err := seq.Next()
	if err != nil {
		return chat.RoomMetadata{}, err
	}

	room := chat.RoomMetadata{
		ID:           chat.RoomID(next + 1),
		Name:         name,
		ParticipantA: participantA,
		ParticipantB: participantB,
	}
	if err := g.validate.Struct(room); err != nil {
		return chat.RoomMetadata{}, err
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.ID), encodeRoom(room))
	})
	if err != nil {
		return chat.RoomMetadata{}, err
	}
	g.log.Debug("Room created", "room_id", room.ID, "name", room.Name)
	return room, nil
}

// ListRooms returns every room ordered by id.
func (g *BadgerGateway) ListRooms(ctx context.Context) ([]chat.RoomMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []chat.RoomMetadata
	err := g.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomPrefix)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				room, err := decodeRoom(val)
				if err != nil {
					return err
				}
				rooms = append(rooms, room)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rooms, err
}
