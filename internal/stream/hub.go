package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/seven320/pose-net-correction/internal/analytics"
	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	TypeSnapshot = "snapshot"
	TypeAlert    = "alert"
	TypeArmed    = "armed"
	TypeError    = "error"
	TypeFrame    = "frame"
	TypeStart    = "start"

	writeWait  = 5 * time.Second
	sendBuffer = 16
)

// Message is the envelope for both directions of the socket.
type Message struct {
	Type     string            `json:"type"`
	Snapshot *model.Snapshot   `json:"snapshot,omitempty"`
	Alert    *model.AlertEvent `json:"alert,omitempty"`
	Frame    *model.Frame      `json:"frame,omitempty"`
	Baseline *float64          `json:"baseline,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// FrameSink accepts frames pushed by clients.
type FrameSink interface {
	Offer(f model.Frame) error
}

// Armer arms the alert threshold on behalf of a client's start action.
type Armer interface {
	Arm(ctx context.Context) (float64, error)
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Hub fans snapshots and alert events out to every connected client and
// forwards client frames and start actions to the service.
type Hub struct {
	upgrader websocket.Upgrader
	sink     FrameSink
	armer    Armer
	validate *validator.Validate

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub validates client frames with validate before they reach sink.
func NewHub(sink FrameSink, armer Armer, validate *validator.Validate) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sink:     sink,
		armer:    armer,
		validate: validate,
		clients:  make(map[string]*client),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "[stream.ServeHTTP] upgrade failed")
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan Message, sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	log.Debug(log.Fields{"client": c.id}, "[stream.ServeHTTP] client connected")

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer h.remove(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendTo(c, Message{Type: TypeError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case TypeFrame:
			if msg.Frame == nil || h.sink == nil {
				continue
			}
			if err := h.validate.Struct(*msg.Frame); err != nil {
				h.sendTo(c, Message{Type: TypeError, Error: "invalid pose values"})
				continue
			}
			if err := h.sink.Offer(*msg.Frame); err != nil {
				h.sendTo(c, Message{Type: TypeError, Error: err.Error()})
			}
		case TypeStart:
			if h.armer == nil {
				continue
			}
			armCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			baseline, err := h.armer.Arm(armCtx)
			cancel()
			if err != nil {
				h.sendTo(c, Message{Type: TypeError, Error: err.Error()})
				continue
			}
			h.sendTo(c, Message{Type: TypeArmed, Baseline: &baseline})
		default:
			h.sendTo(c, Message{Type: TypeError, Error: "unknown message type"})
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Debug(log.Fields{"client": c.id, "error": err.Error()}, "[stream.writeLoop] write failed")
			_ = c.conn.Close()
			// drain so broadcasters never block on a dead client
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.conn.Close()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	log.Debug(log.Fields{"client": c.id}, "[stream.remove] client disconnected")
}

// sendTo never blocks; a full client buffer drops the message.
func (h *Hub) sendTo(c *client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Alert tells every client to play the alert sound.
func (h *Hub) Alert(_ context.Context, ev model.AlertEvent) {
	h.Broadcast(Message{Type: TypeAlert, Alert: &ev})
}

// PublishFrame pushes a snapshot whenever a window closes.
func (h *Hub) PublishFrame(_ context.Context, res analytics.Result, snap model.Snapshot, _ time.Duration, _ error) {
	if !res.Closed {
		return
	}
	h.Broadcast(Message{Type: TypeSnapshot, Snapshot: &snap})
}

func (h *Hub) PublishArm(_ context.Context, baseline float64, snap model.Snapshot) {
	h.Broadcast(Message{Type: TypeSnapshot, Snapshot: &snap, Baseline: &baseline})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
