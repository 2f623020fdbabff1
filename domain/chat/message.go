// Package chat contains core concepts of the relay.
// This file defines Message values exchanged inside a room.
// Messages are immutable once built.
package chat

import "fmt"

// Message is what a session publishes to its room.
// Origin identifies the publishing connection (its peer address) and is
// the key used for echo suppression.
type Message struct {
	origin  string
	content string
}

func NewMessage(origin, content string) Message {
	return Message{origin: origin, content: content}
}

func (m Message) Origin() string { return m.origin }

func (m Message) Content() string { return m.content }

// IsFrom reports whether the message was published by the given identity.
func (m Message) IsFrom(identity string) bool {
	return m.origin == identity
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.origin, m.content)
}
