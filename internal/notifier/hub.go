package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/pkg/types"
)

// AlertMessage is the JSON frame sent to websocket clients.
type AlertMessage struct {
	Type    string      `json:"type"`
	Alert   types.Alert `json:"alert"`
	FiredAt time.Time   `json:"fired_at"`
}

// MessageTypeReminder tags alert frames.
const MessageTypeReminder = "reminder"

const (
	clientBuffer = 16
	writeTimeout = 10 * time.Second
)

// Hub fans due alerts out to connected websocket clients. It is a Sink, so
// a Timer can deliver straight into it.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	logger         *slog.Logger
	originPatterns []string
}

type client struct {
	hub  *Hub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

// NewHub creates a hub. originPatterns lists extra origins allowed to
// connect; same-host requests are always accepted.
func NewHub(logger *slog.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:        make(map[*client]struct{}),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *client),
		unregister:     make(chan *client),
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		originPatterns: originPatterns,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "total", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "total", count)

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Too slow to keep up; drop the client.
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("websocket client dropped, send buffer full")
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects all clients and ends Run.
func (h *Hub) Stop() {
	h.cancel()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver queues alert for every connected client.
func (h *Hub) Deliver(_ context.Context, alert types.Alert) error {
	data, err := json.Marshal(AlertMessage{
		Type:    MessageTypeReminder,
		Alert:   alert,
		FiredAt: time.Now().UTC(),
	})
	if err != nil {
		return goerr.Wrap(err, "hub: failed to marshal alert", goerr.V("id", alert.ID))
	}

	select {
	case <-h.ctx.Done():
		return goerr.Wrap(ErrStopped, "hub cannot deliver", goerr.V("id", alert.ID))
	default:
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return goerr.New("hub: broadcast queue full", goerr.V("id", alert.ID))
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "shutting down") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// writePump sends queued frames until the hub closes the send channel.
func (c *client) writePump() {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for data := range c.send {
		ctx, cancel := context.WithTimeout(c.hub.ctx, writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, data) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()
		if err != nil {
			c.hub.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// readPump drains client frames to notice disconnects.
func (c *client) readPump() {
	defer c.hub.drop(c)
	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}
