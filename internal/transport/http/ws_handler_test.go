package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsenet/pulse-server/internal/proto"
)

func TestWSRejectsBadCredential(t *testing.T) {
	env := startTestEnv(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/ws?token=not-a-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)

	resp, err = env.ts.Client().Get(env.ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode, "missing credential")
}

func TestWSSendMessageAckEchoAndDelivery(t *testing.T) {
	env := startTestEnv(t)
	alice, aliceToken := env.createUser(t, "alice")
	bob, bobToken := env.createUser(t, "bob")

	aliceConn := env.dialWS(t, aliceToken)
	bobConn := env.dialWS(t, bobToken)

	// Both connections are live once alice sees bob come online.
	readStatus(t, aliceConn, bob.ID, true)

	sendFrame(t, aliceConn, proto.InboundTypeSendMessage, 7, proto.SendMessageData{
		RecipientID: bob.ID,
		Content:     "hello bob",
	})

	ack := readFrame(t, aliceConn, proto.OutboundTypeAck)
	assert.EqualValues(t, 7, ack.Seq, "ack echoes the client seq")
	require.Nil(t, ack.Error)

	var acked proto.MessagePayload
	require.NoError(t, json.Unmarshal(ack.Data, &acked))
	assert.Equal(t, "hello bob", acked.Content)
	assert.Equal(t, "text", acked.Type, "type defaults to text")
	assert.Equal(t, alice.ID, acked.Sender.ID)
	assert.Equal(t, bob.ID, acked.Receiver.ID)
	assert.Equal(t, "/default-avatar.jpg", acked.Sender.Avatar)
	assert.False(t, acked.Read)

	echo := readFrame(t, aliceConn, proto.OutboundTypeNewMessage)
	var echoed proto.MessagePayload
	require.NoError(t, json.Unmarshal(echo.Data, &echoed))
	assert.Equal(t, acked.ID, echoed.ID, "sender receives the echo copy")

	delivered := readFrame(t, bobConn, proto.OutboundTypeNewMessage)
	var received proto.MessagePayload
	require.NoError(t, json.Unmarshal(delivered.Data, &received))
	assert.Equal(t, acked.ID, received.ID)
	assert.Equal(t, "alice", received.Sender.Name)
}

func TestWSSendValidationError(t *testing.T) {
	env := startTestEnv(t)
	_, aliceToken := env.createUser(t, "alice")
	bob, _ := env.createUser(t, "bob")

	aliceConn := env.dialWS(t, aliceToken)

	sendFrame(t, aliceConn, proto.InboundTypeSendMessage, 3, proto.SendMessageData{
		RecipientID: bob.ID,
		Content:     "   ",
	})

	ack := readFrame(t, aliceConn, proto.OutboundTypeAck)
	assert.EqualValues(t, 3, ack.Seq)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "validation_failed", ack.Error.Code)
}

func TestWSUnknownFrameType(t *testing.T) {
	env := startTestEnv(t)
	_, aliceToken := env.createUser(t, "alice")

	aliceConn := env.dialWS(t, aliceToken)
	sendFrame(t, aliceConn, "subscribe", 1, map[string]string{"channel": "news"})

	frame := readFrame(t, aliceConn, proto.OutboundTypeError)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "bad_request", frame.Error.Code)
}

func TestWSTypingSignals(t *testing.T) {
	env := startTestEnv(t)
	alice, aliceToken := env.createUser(t, "alice")
	bob, bobToken := env.createUser(t, "bob")

	aliceConn := env.dialWS(t, aliceToken)
	bobConn := env.dialWS(t, bobToken)
	readStatus(t, aliceConn, bob.ID, true)

	sendFrame(t, aliceConn, proto.InboundTypeTyping, 0, proto.TypingData{RecipientID: bob.ID})
	frame := readFrame(t, bobConn, proto.OutboundTypeUserTyping)
	var typing proto.TypingPayload
	require.NoError(t, json.Unmarshal(frame.Data, &typing))
	assert.Equal(t, alice.ID, typing.UserID)

	sendFrame(t, aliceConn, proto.InboundTypeStopTyping, 0, proto.TypingData{RecipientID: bob.ID})
	frame = readFrame(t, bobConn, proto.OutboundTypeUserStoppedTyping)
	require.NoError(t, json.Unmarshal(frame.Data, &typing))
	assert.Equal(t, alice.ID, typing.UserID)
}

func TestWSPresenceBroadcasts(t *testing.T) {
	env := startTestEnv(t)
	_, aliceToken := env.createUser(t, "alice")
	bob, bobToken := env.createUser(t, "bob")

	aliceConn := env.dialWS(t, aliceToken)

	bobConn := env.dialWS(t, bobToken)
	status := readStatus(t, aliceConn, bob.ID, true)
	assert.Nil(t, status.LastSeen)

	// A clean disconnect goes offline only after the grace window.
	require.NoError(t, bobConn.Close(websocket.StatusNormalClosure, "bye"))
	status = readStatus(t, aliceConn, bob.ID, false)
	require.NotNil(t, status.LastSeen, "offline broadcast carries lastSeen")
}

func TestWSPreemption(t *testing.T) {
	env := startTestEnv(t)
	alice, aliceToken := env.createUser(t, "alice")
	bob, bobToken := env.createUser(t, "bob")

	device1 := env.dialWS(t, aliceToken)
	device2 := env.dialWS(t, aliceToken)

	// Device 1 is force-closed with a going-away status.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var discard serverFrame
	var err error
	for err == nil {
		err = wsjson.Read(ctx, device1, &discard)
	}
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	// Device 2 owns the identity now: deliveries to alice land there.
	bobConn := env.dialWS(t, bobToken)
	sendFrame(t, bobConn, proto.InboundTypeSendMessage, 1, proto.SendMessageData{
		RecipientID: alice.ID,
		Content:     "still there?",
	})

	frame := readFrame(t, device2, proto.OutboundTypeNewMessage)
	var msg proto.MessagePayload
	require.NoError(t, json.Unmarshal(frame.Data, &msg))
	assert.Equal(t, "still there?", msg.Content)
	assert.Equal(t, bob.ID, msg.Sender.ID)

	// Reconnecting within the grace window means alice never went offline, so
	// device 2 must not observe an offline broadcast for its own user; it does
	// observe bob coming online, proving the event stream is alive.
	readStatus(t, device2, bob.ID, true)
}

func TestWSOfflineRecipientGetsHistory(t *testing.T) {
	env := startTestEnv(t)
	_, aliceToken := env.createUser(t, "alice")
	bob, bobToken := env.createUser(t, "bob")

	aliceConn := env.dialWS(t, aliceToken)

	// Bob is offline; the send still succeeds and persists.
	sendFrame(t, aliceConn, proto.InboundTypeSendMessage, 1, proto.SendMessageData{
		RecipientID: bob.ID,
		Content:     "see you later",
	})
	ack := readFrame(t, aliceConn, proto.OutboundTypeAck)
	require.Nil(t, ack.Error)

	var sent proto.MessagePayload
	require.NoError(t, json.Unmarshal(ack.Data, &sent))

	// Bob finds the message in history once back.
	resp := env.do(t, stdhttp.MethodGet, "/api/messages/"+sent.Sender.ID, bobToken, nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var history []proto.MessagePayload
	decodeBody(t, resp, &history)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
	assert.False(t, history[0].Read)
}
