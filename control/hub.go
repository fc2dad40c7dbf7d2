// Package control is the operator-facing WebSocket surface: clients toggle
// the engine and receive live log lines and status updates.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Operator UI is served from arbitrary local origins.
		return true
	},
}

// Controller is the engine surface the hub drives.
type Controller interface {
	Start()
	Stop()
}

// command is the inbound client frame.
type command struct {
	Type string `json:"type"` // "start" or "stop"
}

// logFrame mirrors an engine log line to clients.
type logFrame struct {
	Type string `json:"type"`
	Line string `json:"line"`
}

// statusFrame is the engine status pushed to clients. Amounts are decimal
// strings; they can exceed float precision.
type statusFrame struct {
	Type           string `json:"type"`
	Running        bool   `json:"running"`
	Status         string `json:"status"`
	TotalNetProfit string `json:"totalNetProfit"`
	LastTxHash     string `json:"lastTxHash,omitempty"`
}

// Hub fans engine events out to connected WebSocket clients and feeds their
// start/stop commands back into the controller. It satisfies the engine's
// broadcast boundary.
type Hub struct {
	controller Controller
	logger     *zap.Logger

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu         sync.RWMutex
	lastStatus []byte // replayed to newly connected clients
}

// NewHub creates a hub driving controller. A nil controller can be set
// later with SetController; commands arriving before that are dropped.
func NewHub(controller Controller, logger *zap.Logger) *Hub {
	return &Hub{
		controller: controller,
		logger:     logger,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
	}
}

// Log broadcasts one engine log line.
func (h *Hub) Log(line string) {
	h.send(logFrame{Type: "log", Line: line})
}

// Status broadcasts an engine status update and caches it for new clients.
func (h *Hub) Status(update engine.StatusUpdate) {
	frame := statusFrame{
		Type:           "status",
		Running:        update.Running,
		Status:         string(update.Status),
		TotalNetProfit: update.CumulativeNetProfit.String(),
		LastTxHash:     update.LastTxHash,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.lastStatus = data
	h.mu.Unlock()

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("status broadcast dropped, hub congested")
	}
}

func (h *Hub) send(frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast dropped, hub congested")
	}
}

// Run is the hub's event loop; call it in a goroutine. Exits when ctx is
// cancelled, closing every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			last := h.lastStatus
			h.mu.Unlock()
			if last != nil {
				select {
				case c.send <- last:
				default:
				}
			}
			h.logger.Info("control client connected", zap.Int("clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("control client disconnected", zap.Int("clients", h.clientCount()))

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("dropping frame for slow control client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetController wires the engine in after construction. The hub and the
// scheduler reference each other, so one of them has to be attached late.
func (h *Hub) SetController(c Controller) {
	h.mu.Lock()
	h.controller = c
	h.mu.Unlock()
}

// handleCommand dispatches one inbound client frame.
func (h *Hub) handleCommand(cmd command) {
	h.mu.RLock()
	controller := h.controller
	h.mu.RUnlock()
	if controller == nil {
		h.logger.Warn("control command before engine attach", zap.String("type", cmd.Type))
		return
	}

	switch cmd.Type {
	case "start":
		controller.Start()
	case "stop":
		controller.Stop()
	default:
		h.logger.Warn("unknown control command", zap.String("type", cmd.Type))
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("control client read error", zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Warn("malformed control command", zap.Error(err))
			continue
		}
		c.hub.handleCommand(cmd)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
