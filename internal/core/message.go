package core

import (
	"time"

	"github.com/pulsenet/pulse-server/internal/store"
)

// MessageType discriminates the payload rules of a chat message.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeRepost MessageType = "repost"
)

// Participant carries the display fields of a message party.
type Participant struct {
	ID       string
	Username string
	Avatar   string
}

// ChatMessage is the fully-resolved domain model of a direct message.
// The canonical copy lives in storage; this is a read-side projection.
type ChatMessage struct {
	ID        string
	Sender    Participant
	Receiver  Participant
	Type      MessageType
	Content   string
	PostID    string
	Read      bool
	CreatedAt time.Time
}

// MessageFromRecord converts a resolved storage record into the domain model.
func MessageFromRecord(rec *store.ResolvedMessage) *ChatMessage {
	msg := &ChatMessage{
		ID:        rec.ID,
		Type:      MessageType(rec.Type),
		Content:   rec.Content,
		Read:      rec.Read,
		CreatedAt: rec.CreatedAt,
		Sender: Participant{
			ID:       rec.Sender.ID,
			Username: rec.Sender.Username,
			Avatar:   rec.Sender.Avatar,
		},
		Receiver: Participant{
			ID:       rec.Receiver.ID,
			Username: rec.Receiver.Username,
			Avatar:   rec.Receiver.Avatar,
		},
	}
	if rec.PostID != nil {
		msg.PostID = *rec.PostID
	}
	return msg
}
