package errors

import "fmt"

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrRoomNotFound         = fmt.Errorf("room not found")
	ErrMalformedRoomID      = fmt.Errorf("malformed room id")
	ErrHandshake            = fmt.Errorf("handshake failed")
	ErrMalformedFrame       = fmt.Errorf("frame has no sender delimiter")
	ErrSubscriptionClosed   = fmt.Errorf("subscription closed")
	ErrUnknownStorageDriver = fmt.Errorf("unknown storage driver")
	ErrCorruptedRecord      = fmt.Errorf("corrupted storage record")
	ErrGatewayPanic         = fmt.Errorf("gateway panic")
	ErrRegistryClosed       = fmt.Errorf("registry closed")
)
