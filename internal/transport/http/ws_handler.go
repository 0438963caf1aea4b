package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pulsenet/pulse-server/internal/core"
	"github.com/pulsenet/pulse-server/internal/proto"
)

// errReplaced signals that a newer connection for the same identity preempted
// this one.
var errReplaced = errors.New("connection replaced")

// WSHandler upgrades HTTP connections and bridges them to the realtime core.
type WSHandler struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, log: logger}
}

// Handle authenticates the credential, upgrades the connection and runs the
// read/write loops until the connection closes or is preempted.
// GET /ws?token=...
func (h *WSHandler) Handle(c *gin.Context) {
	token := wsCredential(c)

	sess := h.hub.NewSession()
	identity, err := sess.Authenticate(c.Request.Context(), token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws authentication failed")
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "authentication failed"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		sess.Close()
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client, err := sess.Activate(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("ws activate error")
		sess.Close()
		return
	}
	defer sess.Close()

	h.log.Info().Str("user_id", identity.ID).Str("conn_id", client.ID).Msg("ws connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	h.log.Info().Str("user_id", identity.ID).Str("conn_id", client.ID).Msg("ws disconnected")

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errReplaced):
		status = websocket.StatusGoingAway
		reason = "connection replaced"
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		// Inbound frames are handled synchronously so a sender's messages
		// reach storage, and the receiver, in submission order.
		if out := h.handleInbound(ctx, client, inbound); out != nil {
			if err := wsjson.Write(ctx, conn, out); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws response")
				return err
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errReplaced
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wsCredential extracts the bearer credential from the query string or, as a
// fallback, the Authorization header.
func wsCredential(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}
