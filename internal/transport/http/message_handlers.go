package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pulsenet/pulse-server/internal/core"
	"github.com/pulsenet/pulse-server/internal/proto"
	"github.com/pulsenet/pulse-server/internal/store"
)

// MessageHandlers provides HTTP handlers for direct-message history and
// sending. Sends go through the same delivery engine as the WebSocket path,
// so REST-submitted messages also reach live connections.
type MessageHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// SendMessageRequest represents the send request body.
type SendMessageRequest struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
	PostID  string `json:"postId,omitempty"`
}

// MarkReadResponse reports how many messages were marked read.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// ListChats returns the caller's conversation list: one entry per peer with
// the latest message and the unread count, for the chat sidebar.
// GET /api/chats
func (h *MessageHandlers) ListChats(c *gin.Context) {
	currentID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chats, err := h.store.ListChats(c.Request.Context(), currentID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", currentID).Msg("failed to list chats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.ChatPayload, 0, len(chats))
	for _, chat := range chats {
		msg := core.MessageFromRecord(&chat.LastMessage)
		peer := msg.Sender
		if peer.ID == currentID {
			peer = msg.Receiver
		}
		response = append(response, proto.ChatPayload{
			ID:          peer.ID,
			User:        participantPayload(peer),
			LastMessage: messagePayload(msg),
			UnreadCount: chat.UnreadCount,
		})
	}
	c.JSON(http.StatusOK, response)
}

// ListConversation returns the message history with another user.
// GET /api/messages/:userID?limit=&before=
func (h *MessageHandlers) ListConversation(c *gin.Context) {
	currentID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	otherID := c.Param("userID")

	if _, err := h.store.GetUserByID(c.Request.Context(), otherID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", otherID).Msg("failed to resolve user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}
	var before *string
	if raw := c.Query("before"); raw != "" {
		before = &raw
	}

	records, err := h.store.ListConversation(c.Request.Context(), currentID, otherID, limit, before)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", otherID).Msg("failed to list conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.MessagePayload, 0, len(records))
	for _, rec := range records {
		response = append(response, messagePayload(core.MessageFromRecord(rec)))
	}
	c.JSON(http.StatusOK, response)
}

// SendMessage sends a direct message over the REST surface.
// POST /api/messages/:userID
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	currentID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	username, _ := c.Get(ContextKeyUsername)
	name, _ := username.(string)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sender := core.Identity{ID: currentID, Username: name}
	msg, err := h.hub.Delivery.Send(c.Request.Context(), sender, core.SendRequest{
		RecipientID: c.Param("userID"),
		Type:        core.MessageType(req.Type),
		Content:     req.Content,
		PostID:      req.PostID,
	})
	if err != nil {
		switch core.ErrCode(err) {
		case core.ErrCodeValidationFailed:
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case core.ErrCodeRecipientNotFound:
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "recipient not found"})
		default:
			h.log.Error().Err(err).Str("sender_id", currentID).Msg("failed to send message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, messagePayload(msg))
}

// MarkRead marks the conversation with another user as read.
// POST /api/messages/:userID/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	currentID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	updated, err := h.store.MarkConversationRead(c.Request.Context(), currentID, c.Param("userID"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", c.Param("userID")).Msg("failed to mark conversation read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MarkReadResponse{Updated: updated})
}
