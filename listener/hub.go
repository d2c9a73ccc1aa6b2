// Package listener is the live-listener sink: a registry of WebSocket
// subscribers that receive broadcast events matching their mask.
package listener

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"i4.energy/across/smsgw/events"
)

const (
	outboundBufferSize = 32
	writeTimeout       = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	id       uint64
	outbound chan events.Event
	mask     events.Kind
}

// Hub is the events.Sink registry described in spec.md §4.9: for each
// registered listener whose mask accepts an event's kind, attempt a
// non-blocking send; a listener whose send fails is removed.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	logger      *slog.Logger
}

// NewHub builds an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subscribers: make(map[uint64]*subscriber), logger: logger}
}

// Submit implements events.Sink.
func (h *Hub) Submit(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subscribers {
		if !e.Matches(sub.mask) {
			continue
		}
		select {
		case sub.outbound <- e:
		default:
			h.logger.Warn("listener: subscriber outbound channel full, dropping", "id", id)
			delete(h.subscribers, id)
			close(sub.outbound)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers a
// subscriber for the lifetime of the connection. The optional
// "events" query parameter is a decimal EventKind mask; 0 or absent
// means all kinds.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("listener: upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		id:       h.nextID.Add(1),
		outbound: make(chan events.Event, outboundBufferSize),
		mask:     parseMask(r.URL.Query().Get("events")),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	h.writeLoop(conn, sub)
}

func (h *Hub) writeLoop(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		h.mu.Lock()
		delete(h.subscribers, sub.id)
		h.mu.Unlock()
		conn.Close()
	}()

	for e := range sub.outbound {
		payload, err := json.Marshal(e)
		if err != nil {
			h.logger.Error("listener: marshal event", "error", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("listener: write failed, dropping subscriber", "id", sub.id, "error", err)
			return
		}
	}
}

func parseMask(raw string) events.Kind {
	if raw == "" {
		return 0
	}
	var n uint64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + uint64(c-'0')
	}
	return events.Kind(n)
}
