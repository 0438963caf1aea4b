package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage carries a resolved chat message to sender and receiver.
	EventNewMessage EventKind = iota
	// EventUserTyping notifies that a peer started typing.
	EventUserTyping
	// EventUserStoppedTyping notifies that a peer stopped typing.
	EventUserStoppedTyping
	// EventUserStatusChanged notifies all clients about a presence transition.
	EventUserStatusChanged
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Message *ChatMessage

	// UserID is the subject of typing and presence events.
	UserID   string
	IsOnline bool
	LastSeen *time.Time
}
