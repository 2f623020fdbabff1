package chat

import (
	"chat-relay/errors"
	"fmt"
	"strings"
)

// FrameDelimiter separates the sender name from the body on the wire.
const FrameDelimiter = ": "

// Frame is the "<sender-name>: <message body>" text convention used by
// clients. The relay itself forwards frames verbatim.
type Frame struct {
	Sender string
	Body   string
}

// ParseFrame splits on the first delimiter only, so bodies may contain ": ".
func ParseFrame(text string) (Frame, error) {
	sender, body, found := strings.Cut(text, FrameDelimiter)
	if !found {
		return Frame{}, fmt.Errorf("%w: %q", errors.ErrMalformedFrame, text)
	}
	return Frame{Sender: sender, Body: body}, nil
}

func (f Frame) String() string {
	return f.Sender + FrameDelimiter + f.Body
}
