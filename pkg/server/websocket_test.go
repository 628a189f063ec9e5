package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackmatch/hackmatch/pkg/chat"
)

func wsURL(ts *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
}

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendIntent(t *testing.T, ws *websocket.Conn, intent chat.Intent) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(intent))
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketTeamMessageFlow(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	u1 := dialWS(t, ts, mustToken(t, srv, "u1"))
	u2 := dialWS(t, ts, mustToken(t, srv, "u2"))
	u3 := dialWS(t, ts, mustToken(t, srv, "u3"))

	sendIntent(t, u2, chat.Intent{Type: chat.IntentJoinChannel, Channel: "team-42"})
	sendIntent(t, u3, chat.Intent{Type: chat.IntentJoinChannel, Channel: "team-42"})
	require.Eventually(t, func() bool {
		return srv.rooms.Subscribers("team-42") == 2
	}, 2*time.Second, 10*time.Millisecond)

	sendIntent(t, u1, chat.Intent{Type: chat.IntentTeamMessage, Channel: "team-42", Content: "hello team", Kind: "text"})

	for _, ws := range []*websocket.Conn{u2, u3} {
		event := readEvent(t, ws)
		assert.Equal(t, chat.EventTeamMessage, event["type"])

		msg := event["message"].(map[string]any)
		assert.Equal(t, "u1", msg["senderId"])
		assert.Equal(t, "hello team", msg["content"])
		assert.NotEmpty(t, msg["id"], "event carries the server-assigned id")
		assert.NotZero(t, msg["createdAt"])
	}

	// The stored history has the message as its most recent entry
	history, err := srv.db.PageTeamHistory("team-42", 1, 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello team", history[0].Content)
}

func TestWebSocketDirectMessageEcho(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	alice := dialWS(t, ts, mustToken(t, srv, "alice"))
	bob := dialWS(t, ts, mustToken(t, srv, "bob"))
	require.Eventually(t, func() bool {
		return srv.presence.Online() == 2
	}, 2*time.Second, 10*time.Millisecond)

	sendIntent(t, alice, chat.Intent{Type: chat.IntentDirectMessage, RecipientID: "bob", Content: "hi bob"})

	bobEvent := readEvent(t, bob)
	assert.Equal(t, chat.EventDirectMessage, bobEvent["type"])

	// Sender gets the stored form echoed back, same id as the recipient saw
	aliceEvent := readEvent(t, alice)
	assert.Equal(t, chat.EventDirectMessage, aliceEvent["type"])
	assert.Equal(t,
		bobEvent["message"].(map[string]any)["id"],
		aliceEvent["message"].(map[string]any)["id"])
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	u1 := dialWS(t, ts, mustToken(t, srv, "u1"))
	sendIntent(t, u1, chat.Intent{Type: chat.IntentJoinChannel, Channel: "team-a"})
	sendIntent(t, u1, chat.Intent{Type: chat.IntentJoinChannel, Channel: "team-b"})
	require.Eventually(t, func() bool {
		return srv.rooms.Subscribers("team-a") == 1 && srv.rooms.Subscribers("team-b") == 1
	}, 2*time.Second, 10*time.Millisecond)

	u1.Close()

	require.Eventually(t, func() bool {
		return srv.presence.Online() == 0 &&
			srv.rooms.Subscribers("team-a") == 0 &&
			srv.rooms.Subscribers("team-b") == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The identity is now offline: direct messages are stored, not pushed
	msg, err := srv.router.SendDirectMessage("u2", "u1", "late", "text")
	require.NoError(t, err)
	history, err := srv.db.PageDirectHistory("u1", "u2", 1, 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}
