// Package dashboard is an optional, read-only live feed of negotiation
// events (FSM transitions, commits, final report) pushed to connected
// websocket viewers. It never drives negotiation logic -- it is purely
// a sink an operator can point a browser at.
package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxConnections caps concurrent dashboard viewers.
const maxConnections = 200

// EventKind identifies what a pushed Event reports.
type EventKind string

const (
	EventFSMTransition EventKind = "fsm_transition"
	EventCommit        EventKind = "commit"
	EventRunComplete   EventKind = "run_complete"
)

// Event is one negotiation-observability record pushed to every
// connected viewer.
type Event struct {
	Kind      EventKind `json:"kind"`
	Professor string    `json:"professor,omitempty"`
	Room      string    `json:"room,omitempty"`
	State     string    `json:"state,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

type registration struct {
	conn *websocket.Conn
}

// Hub fans negotiation Events out to every connected websocket viewer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	register   chan registration
	unregister chan *websocket.Conn
	events     chan Event
}

// NewHub constructs an idle Hub; call Run to start fanning out events.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		events:     make(chan Event, 256),
	}
}

// Publish enqueues an Event for broadcast. It never blocks negotiation
// logic: when the buffer is full, the event being published is dropped
// and the drop is logged.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case h.events <- e:
	default:
		log.Printf("[dashboard] event buffer full, dropping %s event", e.Kind)
	}
}

// Register adds conn as a viewer, closing it immediately if the hub is
// already at maxConnections.
func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- registration{conn: conn}
}

// Unregister removes and closes conn.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// Run drives the hub's fan-out loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case reg := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxConnections {
				h.mu.Unlock()
				reg.conn.Close()
				continue
			}
			h.clients[reg.conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case e := <-h.events:
			h.broadcast(e)
		}
	}
}

func (h *Hub) broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(e); err != nil {
			log.Printf("[dashboard] write error, dropping client: %v", err)
			go h.Unregister(conn)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// ClientCount reports the number of currently connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
