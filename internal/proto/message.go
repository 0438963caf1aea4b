package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for frames coming from the client. Seq is a
// client-chosen correlation id echoed back in the ack for sendMessage.
type Inbound struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSendMessage = "sendMessage"
	InboundTypeTyping      = "typing"
	InboundTypeStopTyping  = "stopTyping"

	OutboundTypeAck               = "ack"
	OutboundTypeNewMessage        = "newMessage"
	OutboundTypeUserTyping        = "userTyping"
	OutboundTypeUserStoppedTyping = "userStoppedTyping"
	OutboundTypeUserStatusChanged = "userStatusChanged"
	OutboundTypeError             = "error"
)

// SendMessageData is an outgoing chat message from the client.
type SendMessageData struct {
	RecipientID string `json:"recipientId"`
	Type        string `json:"type,omitempty"`
	Content     string `json:"content,omitempty"`
	PostID      string `json:"postId,omitempty"`
}

// TypingData targets a typing or stopTyping signal.
type TypingData struct {
	RecipientID string `json:"recipientId"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Seq   int64  `json:"seq,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ParticipantPayload mirrors the resolved display fields of a message party.
type ParticipantPayload struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// MessagePayload is the resolved chat message as delivered to clients.
type MessagePayload struct {
	ID        string             `json:"_id"`
	Type      string             `json:"type"`
	Content   string             `json:"content,omitempty"`
	PostID    string             `json:"postId,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	Read      bool               `json:"read"`
	Sender    ParticipantPayload `json:"sender"`
	Receiver  ParticipantPayload `json:"receiver"`
}

// ChatPayload is one conversation in the chat-list response, keyed by peer.
type ChatPayload struct {
	ID          string             `json:"_id"`
	User        ParticipantPayload `json:"user"`
	LastMessage MessagePayload     `json:"lastMessage"`
	UnreadCount int64              `json:"unreadCount"`
}

// TypingPayload identifies the user who is (or stopped) typing.
type TypingPayload struct {
	UserID string `json:"userId"`
}

// StatusPayload announces a presence transition.
type StatusPayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
