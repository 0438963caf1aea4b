package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pulsenet/pulse-server/internal/auth"
	"github.com/pulsenet/pulse-server/internal/config"
	"github.com/pulsenet/pulse-server/internal/core"
	"github.com/pulsenet/pulse-server/internal/proto"
	"github.com/pulsenet/pulse-server/internal/store"
	"github.com/pulsenet/pulse-server/internal/store/sqlite"
)

// Short grace window so presence tests don't wait for the production default.
const testPresenceGrace = 100 * time.Millisecond

type testEnv struct {
	ts   *httptest.Server
	st   store.Store
	auth *auth.Service
	hub  *core.Hub
}

func startTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "pulse-test",
		Audience: "pulse-test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtCfg)
	hub := core.NewHub(authService, st, core.Options{
		PresenceGrace:  testPresenceGrace,
		StorageTimeout: time.Second,
	}, &logger)

	srv := NewServer(hub, authService, st, config.Default(), &logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		st.Close()
	})

	return &testEnv{ts: ts, st: st, auth: authService, hub: hub}
}

// createUser registers a user with a fixed password and returns the stored
// record plus a valid token.
func (e *testEnv) createUser(t *testing.T, username string) (*store.User, string) {
	t.Helper()
	ctx := context.Background()

	token, err := e.auth.Register(ctx, username, "password")
	require.NoError(t, err)

	user, err := e.st.GetUserByUsername(ctx, username)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func (e *testEnv) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return conn
}

// serverFrame mirrors proto.Outbound with the payload left raw so each test
// decodes only what it asserts on.
type serverFrame struct {
	Type  string          `json:"type"`
	Seq   int64           `json:"seq"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType string, seq int64, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Seq: seq, Data: raw}))
}

// readFrame reads frames until one of the wanted type arrives, skipping
// unrelated broadcasts (e.g. presence churn from other connections).
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) serverFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		var frame serverFrame
		require.NoError(t, wsjson.Read(ctx, conn, &frame), "waiting for %q frame", wantType)
		if frame.Type == wantType {
			return frame
		}
	}
}

// readStatus reads frames until a status broadcast for userID with the wanted
// online flag arrives.
func readStatus(t *testing.T, conn *websocket.Conn, userID string, online bool) proto.StatusPayload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		var frame serverFrame
		require.NoError(t, wsjson.Read(ctx, conn, &frame), "waiting for status of %s online=%v", userID, online)
		if frame.Type != proto.OutboundTypeUserStatusChanged {
			continue
		}
		var status proto.StatusPayload
		require.NoError(t, json.Unmarshal(frame.Data, &status))
		if status.UserID == userID && status.IsOnline == online {
			return status
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *stdhttp.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
