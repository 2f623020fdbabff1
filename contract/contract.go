//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/chat"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn abstracts one duplex connection carrying text frames.
type Conn interface {
	// Read blocks until the next frame arrives.
	// Returns io.EOF (or a transport error) once the peer is gone.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
	// RemoteAddr is the peer address, also used as the session identity.
	RemoteAddr() string
}

// Gateway is the storage boundary the relay consumes.
// LoadRoom returns errors.ErrRoomNotFound for unknown ids.
type Gateway interface {
	LoadRoom(ctx context.Context, id chat.RoomID) (chat.RoomMetadata, error)
	AppendMessage(ctx context.Context, id chat.RoomID, text string) error
	LoadHistory(ctx context.Context, id chat.RoomID) ([]string, error)
}

type RoomCatalog interface {
	CreateRoom(ctx context.Context, name string, participantA, participantB uint32) (chat.RoomMetadata, error)
	ListRooms(ctx context.Context) ([]chat.RoomMetadata, error)
}
