package chat

import (
	"chat-relay/errors"
	"fmt"
	"strconv"
)

type RoomID uint32

// RoomMetadata is the static part of a room as stored by the gateway.
// A room groups the conversation of exactly two participants.
type RoomMetadata struct {
	ID           RoomID `validate:"required"`
	Name         string `validate:"required,max=255"`
	ParticipantA uint32 `validate:"required"`
	ParticipantB uint32 `validate:"required,nefield=ParticipantA"`
}

// ParseRoomID reads the handshake frame: a bare decimal number.
// Surrounding spaces, signs or trailing characters are rejected.
func ParseRoomID(frame string) (RoomID, error) {
	id, err := strconv.ParseUint(frame, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errors.ErrMalformedRoomID, frame)
	}
	return RoomID(id), nil
}

func (id RoomID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
