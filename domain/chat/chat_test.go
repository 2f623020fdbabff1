package chat

import (
	"chat-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    RoomID
		wantErr bool
	}{
		{name: "plain decimal", frame: "42", want: 42},
		{name: "zero", frame: "0", want: 0},
		{name: "max uint32", frame: "4294967295", want: 4294967295},
		{name: "overflow", frame: "4294967296", wantErr: true},
		{name: "text", frame: "not_a_number", wantErr: true},
		{name: "negative", frame: "-1", wantErr: true},
		{name: "padded", frame: " 7", wantErr: true},
		{name: "trailing newline", frame: "7\n", wantErr: true},
		{name: "empty", frame: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			id, err := ParseRoomID(tt.frame)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrMalformedRoomID)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, id)
		})
	}
}

func TestParseFrame_SplitsOnFirstDelimiter(t *testing.T) {
	req := require.New(t)

	frame, err := ParseFrame("alice: note: bring snacks")

	req.NoError(err)
	req.Equal("alice", frame.Sender)
	req.Equal("note: bring snacks", frame.Body)
	req.Equal("alice: note: bring snacks", frame.String())
}

func TestParseFrame_WithoutDelimiter(t *testing.T) {
	req := require.New(t)

	// A colon without a following space is not a delimiter
	_, err := ParseFrame("alice:hi")

	req.ErrorIs(err, errors.ErrMalformedFrame)
}

func TestMessage_IsFrom(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("127.0.0.1:50000", "alice: hi")

	req.True(msg.IsFrom("127.0.0.1:50000"))
	req.False(msg.IsFrom("127.0.0.1:50001"))
	req.Equal("alice: hi", msg.Content())
	req.Equal("127.0.0.1:50000: alice: hi", msg.String())
}

func TestRoomStats_LagHeadroom(t *testing.T) {
	stats := RoomStats{Capacity: 16, Backlog: 12}
	require.Equal(t, 4, stats.LagHeadroom())
}
