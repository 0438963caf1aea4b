package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsenet/pulse-server/internal/metrics"
	"github.com/pulsenet/pulse-server/internal/store"
	"github.com/pulsenet/pulse-server/internal/utils"
)

// RecipientDirectory resolves recipients before a message is accepted.
type RecipientDirectory interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
}

// MessageStorage is the persistence slice the engine writes and reads through.
type MessageStorage interface {
	SaveMessage(ctx context.Context, m *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.ResolvedMessage, error)
}

// SendRequest is a validated-on-entry outgoing message.
type SendRequest struct {
	RecipientID string
	Type        MessageType
	Content     string
	PostID      string
}

// Engine validates, persists and routes outgoing chat messages. Persistence
// must complete before any live delivery is attempted; an offline receiver is
// not an error, the message stays durable and is fetched on the next history
// read.
type Engine struct {
	registry       *Registry
	users          RecipientDirectory
	messages       MessageStorage
	storageTimeout time.Duration
	log            *zerolog.Logger
}

// NewEngine constructs a message delivery engine.
func NewEngine(registry *Registry, users RecipientDirectory, messages MessageStorage, storageTimeout time.Duration, logger *zerolog.Logger) *Engine {
	return &Engine{
		registry:       registry,
		users:          users,
		messages:       messages,
		storageTimeout: storageTimeout,
		log:            logger,
	}
}

// Send runs the full pipeline for one message: validate, resolve recipient,
// persist, re-read the resolved payload, then fan out to the sender's own
// connection (echo) and the receiver's connection if one is live.
//
// Storage calls carry a timeout and run before the registry is touched; the
// registry lookups at the end are the only step under shared state.
func (e *Engine) Send(ctx context.Context, sender Identity, req SendRequest) (*ChatMessage, error) {
	if req.Type == "" {
		req.Type = MessageTypeText
	}
	if err := validateSend(req); err != nil {
		metrics.MessagesSent.WithLabelValues("rejected").Inc()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	if _, err := e.users.GetUserByID(ctx, req.RecipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.MessagesSent.WithLabelValues("rejected").Inc()
			return nil, coreError(ErrCodeRecipientNotFound, "recipient not found")
		}
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return nil, wrapError(ErrCodePersistenceFailed, "resolve recipient", err)
	}

	rec := &store.Message{
		ID:         utils.NewID(),
		SenderID:   sender.ID,
		ReceiverID: req.RecipientID,
		Type:       string(req.Type),
		Content:    req.Content,
		CreatedAt:  time.Now().UTC(),
	}
	if req.PostID != "" {
		rec.PostID = &req.PostID
	}

	if err := e.messages.SaveMessage(ctx, rec); err != nil {
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return nil, wrapError(ErrCodePersistenceFailed, "save message", err)
	}

	resolved, err := e.messages.GetMessage(ctx, rec.ID)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return nil, wrapError(ErrCodePersistenceFailed, "resolve message", err)
	}
	msg := MessageFromRecord(resolved)

	ev := &Event{Kind: EventNewMessage, Message: msg}
	if c := e.registry.Lookup(sender.ID); c != nil {
		c.Deliver(ev)
	}
	if req.RecipientID != sender.ID {
		if c := e.registry.Lookup(req.RecipientID); c != nil {
			c.Deliver(ev)
		} else {
			e.log.Debug().Str("receiver_id", req.RecipientID).Str("message_id", msg.ID).Msg("receiver offline, delivery deferred to history fetch")
		}
	}

	metrics.MessagesSent.WithLabelValues("ok").Inc()
	return msg, nil
}

func validateSend(req SendRequest) error {
	if req.RecipientID == "" {
		return coreError(ErrCodeValidationFailed, "recipientId is required")
	}
	switch req.Type {
	case MessageTypeText, MessageTypeImage:
		if strings.TrimSpace(req.Content) == "" {
			return coreError(ErrCodeValidationFailed, "content is required")
		}
	case MessageTypeRepost:
		if req.PostID == "" {
			return coreError(ErrCodeValidationFailed, "postId is required for reposts")
		}
	default:
		return coreError(ErrCodeValidationFailed, "unknown message type")
	}
	return nil
}
