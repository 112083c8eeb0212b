package notifications

import (
	"context"
	"errors"
	"sync"

	"threads/internal/middleware"
	"threads/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrServerConnLimit = errors.New("server connection limit reached")
	ErrUserConnLimit   = errors.New("user connection limit reached")
)

// Hub tracks live feed sockets. Every client receives every feed event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	perUser map[uint]int
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{}), perUser: make(map[uint]int)}
}

// Name labels this hub in metrics.
func (h *Hub) Name() string { return "feed hub" }

// Register admits a socket for userID unless a connection cap is reached.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case len(h.clients) >= maxTotalConns:
		return nil, ErrServerConnLimit
	case h.perUser[userID] >= maxConnsPerUser:
		return nil, ErrUserConnLimit
	}

	c := newClient(h, conn, userID)
	h.clients[c] = struct{}{}
	h.perUser[userID]++
	observability.WebSocketConnectionsTotal.Inc()
	return c, nil
}

// UnregisterClient removes c and closes its Send channel. Repeated calls are
// no-ops.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if h.perUser[c.UserID]--; h.perUser[c.UserID] <= 0 {
		delete(h.perUser, c.UserID)
	}
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Dec()
	c.closeSend(nil)
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// BroadcastAll queues message on every client without holding the hub lock.
func (h *Hub) BroadcastAll(message string) {
	data := []byte(message)
	for _, c := range h.snapshot() {
		c.TrySend(data)
	}
}

// StartWiring subscribes the hub to events published through n.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, h.BroadcastAll)
}

// Shutdown forgets every socket and has each write pump send a going-away
// close frame.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.perUser = make(map[uint]int)
	h.mu.Unlock()

	goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for c := range clients {
		observability.WebSocketConnectionsTotal.Dec()
		c.closeSend(goingAway)
	}
	if n := len(clients); n > 0 {
		middleware.Logger.Info("feed sockets closed for shutdown", "count", n)
	}
	return nil
}
