package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/realtime"
	"github.com/zhouzirui/mindsync/backend/internal/service/community"
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// asUser stands in for the token middleware.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("as"); id != "" {
			r = r.WithContext(middleware.WithUser(r.Context(), user.User{ID: id, Name: strings.ToUpper(id)}))
		}
		next.ServeHTTP(w, r)
	})
}

func newServer(t *testing.T) (*httptest.Server, *realtime.Hub, *community.Service) {
	t.Helper()
	hub := realtime.NewHub()
	statuses := community.NewService(time.Minute)
	t.Cleanup(statuses.Close)
	statuses.SetBroadcaster(hub)

	r := chi.NewRouter()
	r.Use(asUser)
	New(hub, statuses, statuses, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub, statuses
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?as=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ev := read(t, conn)
	require.Equal(t, realtime.EventConnected, ev.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsAnonymous(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusBroadcastReachesOtherUsers(t *testing.T) {
	srv, hub, statuses := newServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	waitFor(t, func() bool { return hub.Connections("alice") == 1 && hub.Connections("bob") == 1 })

	require.NoError(t, bob.WriteJSON(map[string]any{
		"type": "status",
		"data": map[string]string{"status": "Meditating", "activity": "Body scan"},
	}))

	ev := read(t, alice)
	assert.Equal(t, community.EventStatusUpdate, ev.Type)
	var st community.Status
	require.NoError(t, json.Unmarshal(ev.Data, &st))
	assert.Equal(t, "bob", st.UserID)
	assert.Equal(t, "Meditating", st.Status)

	feed := statuses.Feed(t.Context(), "alice")
	require.NotEmpty(t, feed)
	assert.Equal(t, "bob", feed[0].UserID)

	bob.Close()
	waitFor(t, func() bool { return hub.Connections("bob") == 0 })
	waitFor(t, func() bool { return len(statuses.Feed(t.Context(), "alice")) == 4 })
}

func TestSessionPushAndPing(t *testing.T) {
	srv, hub, _ := newServer(t)
	alice := dial(t, srv, "alice")
	waitFor(t, func() bool { return hub.Connections("alice") == 1 })

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, realtime.EventPong, read(t, alice).Type)

	assert.Equal(t, 1, hub.SendToUser("alice", realtime.EventSessionCompleted, map[string]string{"id": "s1"}))
	assert.Equal(t, realtime.EventSessionCompleted, read(t, alice).Type)
}

func TestInvalidMessagesGetErrors(t *testing.T) {
	srv, hub, _ := newServer(t)
	alice := dial(t, srv, "alice")
	waitFor(t, func() bool { return hub.Connections("alice") == 1 })

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, realtime.EventError, read(t, alice).Type)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "dance"}))
	assert.Equal(t, realtime.EventError, read(t, alice).Type)

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "status", "data": map[string]string{"status": ""}}))
	ev := read(t, alice)
	assert.Equal(t, realtime.EventError, ev.Type)
	assert.Contains(t, string(ev.Data), "VALIDATION_ERROR")
}
