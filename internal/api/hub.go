package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/event"
	"github.com/Lokesh2Arvind/Quizchain/internal/identity"
	"github.com/Lokesh2Arvind/Quizchain/internal/room"
	"github.com/Lokesh2Arvind/Quizchain/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Handler processes one inbound command; the Gateway implements it.
type Handler interface {
	Handle(ctx context.Context, connID string, raw []byte) Response
}

type HubConfig struct {
	EventBus *event.Bus
	Registry *identity.Registry
	Store    *room.Store
}

// Hub owns every websocket connection and routes room broadcasts to the
// connections bound to that room. It subscribes to all room events on the
// bus, so publishers never talk to sockets directly.
type Hub struct {
	eb    *event.Bus
	reg   *identity.Registry
	store *room.Store

	handler  Handler
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]*client
}

func NewHub(c HubConfig) *Hub {
	h := &Hub{
		eb:    c.EventBus,
		reg:   c.Registry,
		store: c.Store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*client),
		rooms: make(map[string]map[string]*client),
	}

	h.eb.SubscribeAll(domain.RoomEventNames, func(ctx context.Context, e event.Event) error {
		return h.onEvent(ctx, e)
	})

	return h
}

// SetHandler wires the command handler in; it must be called before Serve.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Serve upgrades the request and runs the connection's pumps until it drops.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "hub: upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	telemetry.ConnectedUsers.Inc()

	go c.writePump()
	c.readPump(h)
}

// Bind subscribes the connection to a room's broadcasts.
func (h *Hub) Bind(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*client)
	}
	h.rooms[roomID][connID] = c
}

// Unbind removes the connection from whichever room it follows.
func (h *Hub) Unbind(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID, members := range h.rooms {
		if _, ok := members[connID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// onEvent broadcasts a room event to every member connection. A slow
// consumer's full buffer drops the message for that connection only.
func (h *Hub) onEvent(ctx context.Context, e event.Event) error {
	re, ok := e.(domain.RoomEvent)
	if !ok {
		return nil
	}

	b, err := json.Marshal(Notification{Event: e.Name(), Data: e})
	if err != nil {
		return err
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[re.Room()]))
	for _, c := range h.rooms[re.Room()] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		select {
		case c.send <- b:
		default:
			slog.WarnContext(ctx, "hub: dropping broadcast for slow connection", "conn", c.id, "event", e.Name())
		}
	}

	// A closed room has no further broadcasts; release the bindings.
	if e.Name() == domain.EventNameRoomClosed {
		h.mu.Lock()
		delete(h.rooms, re.Room())
		h.mu.Unlock()
	}

	return nil
}

// disconnect tears the connection down and applies the room lifecycle rules
// for an abrupt drop.
func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	for roomID, members := range h.rooms {
		if _, ok := members[c.id]; ok {
			delete(members, c.id)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	telemetry.ConnectedUsers.Dec()
	close(c.send)

	h.store.UnbindConnection(context.Background(), c.id)
	h.reg.Unregister(c.id)
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("hub: read failed", "conn", c.id, "error", err)
			}
			return
		}

		resp := h.handler.Handle(context.Background(), c.id, raw)
		b, err := json.Marshal(resp)
		if err != nil {
			slog.Error("hub: marshal response failed", "conn", c.id, "error", err)
			continue
		}

		select {
		case c.send <- b:
		default:
			slog.Warn("hub: dropping reply for slow connection", "conn", c.id)
		}
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
