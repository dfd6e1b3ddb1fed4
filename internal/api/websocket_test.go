package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/shakescript/internal/services"
)

func dialStatus(t *testing.T, srv *httptest.Server, sid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Cookie": {sessionCookie + "=" + sid}})
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) StatusMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StatusMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStatusWebSocket_StreamsSessionProgress(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	sid := env.newSession(t)
	conn := dialStatus(t, srv, sid)
	defer conn.Close()

	first := readStatus(t, conn)
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, services.StatusIdle, first.Status)

	tracker := env.progress.Tracker(sid)
	tracker.Start("creating story")
	tracker.Complete("done", 42)

	assert.Equal(t, services.StatusGenerating, readStatus(t, conn).Status)
	done := readStatus(t, conn)
	assert.Equal(t, services.StatusCompleted, done.Status)
	assert.Equal(t, 42, done.StoryID)
	assert.Equal(t, 100, done.Progress)

	assert.Equal(t, 1, env.hub.Count(sid))

	// another session's progress is not delivered here
	env.progress.Tracker("someone-else").Start("x")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
}

func TestStatusWebSocket_UnregistersOnClose(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	sid := env.newSession(t)
	conn := dialStatus(t, srv, sid)
	readStatus(t, conn)
	require.Eventually(t, func() bool { return env.hub.Count("") == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.Count("") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStatusHub_CloseDisconnectsClients(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	conn := dialStatus(t, srv, env.newSession(t))
	defer conn.Close()
	readStatus(t, conn)

	env.hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, env.hub.Count(""))
}

func TestStatusHub_BroadcastAndUnknownMessages(t *testing.T) {
	env := newTestEnv(t, newFakeBackend())
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	sid := env.newSession(t)
	conn := dialStatus(t, srv, sid)
	defer conn.Close()
	readStatus(t, conn)
	require.Eventually(t, func() bool { return env.hub.Count(sid) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, env.hub.Broadcast(sid, map[string]string{"type": "notice"}))
	var msg map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notice", msg["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "status"}))
	status := readStatus(t, conn)
	assert.Equal(t, services.StatusIdle, status.Status)
}

func TestWebSocketClient_Expiry(t *testing.T) {
	client := newWebSocketClient(nopConn{}, "s1")
	assert.False(t, client.IsExpired(time.Minute))
	assert.True(t, client.IsExpired(0))

	client.Close()
	assert.True(t, client.IsClosed())
	assert.False(t, client.SendJSON("late"))
	assert.NotPanics(t, client.Close)
}

type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error { return nil }
func (nopConn) ReadMessage() (int, []byte, error) { return 0, nil, nil }
func (nopConn) Close() error { return nil }
func (nopConn) SetReadDeadline(time.Time) error { return nil }
func (nopConn) SetWriteDeadline(time.Time) error { return nil }
func (nopConn) SetPongHandler(func(appData string) error) {}
