package http

import (
	"context"
	"encoding/json"

	"github.com/pulsenet/pulse-server/internal/core"
	"github.com/pulsenet/pulse-server/internal/proto"
)

const defaultAvatar = "/default-avatar.jpg"

// handleInbound dispatches one client frame. A non-nil return is written back
// on the same connection (acks and protocol errors); typing signals return
// nil because they produce no reply.
func (h *WSHandler) handleInbound(ctx context.Context, client *core.Client, inbound proto.Inbound) *proto.Outbound {
	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return protocolError(inbound.Seq, core.ErrCodeBadRequest, "malformed sendMessage payload")
		}

		msg, err := h.hub.Delivery.Send(ctx, client.Identity, core.SendRequest{
			RecipientID: data.RecipientID,
			Type:        core.MessageType(data.Type),
			Content:     data.Content,
			PostID:      data.PostID,
		})
		if err != nil {
			code := core.ErrCode(err)
			if code == "" {
				code = core.ErrCodeBadRequest
			}
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("send rejected")
			return &proto.Outbound{
				Type:  proto.OutboundTypeAck,
				Seq:   inbound.Seq,
				Error: &proto.Error{Code: code, Msg: err.Error()},
			}
		}

		payload := messagePayload(msg)
		return &proto.Outbound{
			Type: proto.OutboundTypeAck,
			Seq:  inbound.Seq,
			Data: payload,
		}

	case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil || data.RecipientID == "" {
			return protocolError(inbound.Seq, core.ErrCodeBadRequest, "recipientId is required")
		}
		if inbound.Type == proto.InboundTypeTyping {
			h.hub.Signals.Typing(client.Identity, data.RecipientID)
		} else {
			h.hub.Signals.StopTyping(client.Identity, data.RecipientID)
		}
		return nil

	default:
		return protocolError(inbound.Seq, core.ErrCodeBadRequest, "unknown message type")
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage:
		return proto.Outbound{
			Type: proto.OutboundTypeNewMessage,
			Data: messagePayload(event.Message),
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type: proto.OutboundTypeUserTyping,
			Data: proto.TypingPayload{UserID: event.UserID},
		}
	case core.EventUserStoppedTyping:
		return proto.Outbound{
			Type: proto.OutboundTypeUserStoppedTyping,
			Data: proto.TypingPayload{UserID: event.UserID},
		}
	case core.EventUserStatusChanged:
		return proto.Outbound{
			Type: proto.OutboundTypeUserStatusChanged,
			Data: proto.StatusPayload{
				UserID:   event.UserID,
				IsOnline: event.IsOnline,
				LastSeen: event.LastSeen,
			},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown event"}}
	}
}

func messagePayload(msg *core.ChatMessage) proto.MessagePayload {
	return proto.MessagePayload{
		ID:        msg.ID,
		Type:      string(msg.Type),
		Content:   msg.Content,
		PostID:    msg.PostID,
		CreatedAt: msg.CreatedAt,
		Read:      msg.Read,
		Sender:    participantPayload(msg.Sender),
		Receiver:  participantPayload(msg.Receiver),
	}
}

func participantPayload(p core.Participant) proto.ParticipantPayload {
	return proto.ParticipantPayload{
		ID:     p.ID,
		Name:   p.Username,
		Avatar: avatarOrDefault(p.Avatar),
	}
}

func avatarOrDefault(avatar string) string {
	if avatar == "" {
		return defaultAvatar
	}
	return avatar
}

func protocolError(seq int64, code, msg string) *proto.Outbound {
	return &proto.Outbound{
		Type:  proto.OutboundTypeError,
		Seq:   seq,
		Error: &proto.Error{Code: code, Msg: msg},
	}
}
