package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gestoria/pkg/logger"
	"gestoria/pkg/token"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("ws-test-secret")

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, testSecret) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID, role string) *gws.Conn {
	t.Helper()
	tok, err := token.Generate(testSecret, "test", token.KindAccess, token.Subject{UserID: userID, Username: userID, Role: role}, time.Minute)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readEvent skips frames until one with the wanted event name arrives.
func readEvent(t *testing.T, conn *gws.Conn, want string) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env struct {
			Event   string                 `json:"event"`
			Payload map[string]interface{} `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Event == want {
			return env.Payload
		}
	}
}

func expectSilence(t *testing.T, conn *gws.Conn, event string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		require.NotEqual(t, event, env.Event, "unexpected %s frame: %s", event, data)
	}
}

func waitConnected(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ConnectedUsers() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWsRejectsMissingAndInvalidToken(t *testing.T) {
	_, srv := startHub(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := gws.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	refresh, _ := token.Generate(testSecret, "test", token.KindRefresh, token.Subject{UserID: "u1"}, time.Minute)
	_, resp, err = gws.DefaultDialer.Dial(base+"?token="+refresh, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotifyTargetsUser(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, srv, "alice", "asesor")
	bob := dial(t, srv, "bob", "asesor")
	waitConnected(t, hub, 2)

	hub.Notify(Notification{Type: NotifyTask, Action: ActionAssigned, Title: "Tarea", Message: "nueva", UserID: "bob"})

	payload := readEvent(t, bob, EventNotification)
	assert.Equal(t, "Tarea", payload["title"])
	assert.Equal(t, "bob", payload["userId"])
	assert.NotEmpty(t, payload["timestamp"])
	expectSilence(t, alice, EventNotification)
}

func TestNotifyTargetsRole(t *testing.T) {
	hub, srv := startHub(t)
	admin := dial(t, srv, "root", "admin")
	asesor := dial(t, srv, "ana", "asesor")
	waitConnected(t, hub, 2)

	hub.Notify(Notification{Type: NotifyGeneral, Action: ActionCreated, Title: "Solo admins", Role: "admin"})

	payload := readEvent(t, admin, EventNotification)
	assert.Equal(t, "Solo admins", payload["title"])
	expectSilence(t, asesor, EventNotification)
}

func TestSystemLogBroadcastsAndClampsProgress(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv, "a", "admin")
	b := dial(t, srv, "b", "administrativo")
	waitConnected(t, hub, 2)

	p := 140
	hub.SystemLog(SystemLog{Type: LogMigration, Level: LevelInfo, Message: "step", Progress: &p})

	for _, conn := range []*gws.Conn{a, b} {
		payload := readEvent(t, conn, EventSystemLog)
		assert.Equal(t, "step", payload["message"])
		assert.EqualValues(t, 100, payload["progress"])
	}
}

func TestPresenceEvents(t *testing.T) {
	hub, srv := startHub(t)
	watcher := dial(t, srv, "watcher", "admin")
	waitConnected(t, hub, 1)

	// the watcher first sees its own connect event
	payload := readEvent(t, watcher, EventUserConnected)
	assert.Equal(t, "watcher", payload["userId"])

	other := dial(t, srv, "other", "asesor")
	payload = readEvent(t, watcher, EventUserConnected)
	assert.Equal(t, "other", payload["userId"])
	assert.EqualValues(t, 2, payload["connectedUsers"])

	require.NoError(t, other.Close())
	payload = readEvent(t, watcher, EventUserDisconnected)
	assert.Equal(t, "other", payload["userId"])
	assert.EqualValues(t, 1, payload["connectedUsers"])
}

func TestServeWsAfterShutdownDoesNotBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, testSecret) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	early := dial(t, srv, "u1", "admin")
	readEvent(t, early, EventUserConnected)

	cancel()
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// the hub closed the early socket; its read loop must still exit
	_ = early.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := early.ReadMessage(); err != nil {
			assert.False(t, isTimeout(err), "early socket left open")
			break
		}
	}

	late := dial(t, srv, "u2", "asesor")
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ReadMessage()
	require.Error(t, err)
	assert.True(t, gws.IsCloseError(err, gws.CloseGoingAway), "got %v", err)
}

func TestFloodingClientIsDisconnected(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "u1", "admin")
	readEvent(t, conn, EventUserConnected)

	for i := 0; i < inboundBurst+10; i++ {
		if err := conn.WriteMessage(gws.TextMessage, []byte(`{}`)); err != nil {
			break
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			require.False(t, isTimeout(err), "connection still open")
			break
		}
	}
	assert.Eventually(t, func() bool { return hub.ConnectedUsers() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
