package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"gestoria/pkg/logger"
	"gestoria/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// inbound frames per second tolerated before a client is dropped
	inboundRate  = 5
	inboundBurst = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced on the REST API; sockets authenticate with the token.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a single connected WebSocket client
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	role   string
}

type delivery struct {
	userID string
	role   string
	data   []byte
}

// Hub maintains the set of active clients and routes events to them. Run owns
// the client registry; the mutex only guards reads from other goroutines.
type Hub struct {
	clients    map[*Client]bool
	deliveries chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *logger.Logger
	now        func() time.Time
}

// NewHub initializes a new WS Hub instance
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		deliveries: make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.Named("websocket"),
		now:        time.Now,
	}
}

// Run dispatches events until ctx is cancelled, then closes every connection.
// Late registrations after that are refused.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			first := h.connectionsOf(client.userID) == 0
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info().Str("user_id", client.userID).Str("role", client.role).Msg("websocket client connected")
			if first {
				h.fanOut(delivery{data: h.encode(EventUserConnected, presence{UserID: client.userID, ConnectedUsers: h.ConnectedUsers()})})
			}
		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			last := ok && h.connectionsOf(client.userID) == 0
			h.mu.Unlock()
			if ok {
				h.log.Info().Str("user_id", client.userID).Msg("websocket client disconnected")
			}
			if last {
				h.fanOut(delivery{data: h.encode(EventUserDisconnected, presence{UserID: client.userID, ConnectedUsers: h.ConnectedUsers()})})
			}
		case d := <-h.deliveries:
			h.fanOut(d)
		}
	}
}

// connectionsOf must be called with mu held.
func (h *Hub) connectionsOf(userID string) int {
	n := 0
	for c := range h.clients {
		if c.userID == userID {
			n++
		}
	}
	return n
}

func (h *Hub) fanOut(d delivery) {
	if d.data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if d.userID != "" && client.userID != d.userID {
			continue
		}
		if d.role != "" && client.role != d.role {
			continue
		}
		select {
		case client.send <- d.data:
		default:
			// slow consumer
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) encode(event string, payload interface{}) []byte {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode websocket event")
		return nil
	}
	return data
}

func (h *Hub) enqueue(d delivery) {
	if d.data == nil {
		return
	}
	select {
	case h.deliveries <- d:
	default:
		h.log.Warn().Msg("websocket delivery queue full, dropping event")
	}
}

// ConnectedUsers returns the number of distinct users with an open socket.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make(map[string]struct{}, len(h.clients))
	for c := range h.clients {
		users[c.userID] = struct{}{}
	}
	return len(users)
}

// Notify sends n to one user when UserID is set, to one role when Role is
// set, otherwise to everyone.
func (h *Hub) Notify(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = h.now()
	}
	h.enqueue(delivery{userID: n.UserID, role: n.Role, data: h.encode(EventNotification, n)})
}

// SystemLog broadcasts a maintenance log line to everyone.
func (h *Hub) SystemLog(l SystemLog) {
	if l.Timestamp.IsZero() {
		l.Timestamp = h.now()
	}
	if l.Progress != nil {
		p := clamp(*l.Progress, 0, 100)
		l.Progress = &p
	}
	h.enqueue(delivery{data: h.encode(EventSystemLog, l)})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one JSON frame per message
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive and detects disconnects. Client
// messages are ignored, but a client sending too many is disconnected.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	limiter := rate.NewLimiter(rate.Limit(inboundRate), inboundBurst)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("user_id", c.userID).Msg("websocket read error")
			}
			return
		}
		if !limiter.Allow() {
			c.hub.log.Warn().Str("user_id", c.userID).Msg("websocket client flooding, closing connection")
			return
		}
	}
}

// ServeWs authenticates the access token passed as ?token= and upgrades the connection.
func ServeWs(hub *Hub, c *gin.Context, secret []byte) {
	tokenString := c.Query("token")
	if tokenString == "" {
		hub.log.Debug().Msg("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := token.Parse(secret, tokenString, token.KindAccess)
	if err != nil {
		hub.log.Debug().Err(err).Msg("websocket connection rejected: invalid token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), userID: claims.UserID, role: claims.Role}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
