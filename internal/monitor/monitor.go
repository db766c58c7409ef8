// Package monitor implements the optional live-progress dashboard
// (SPEC_FULL.md "OPTIONAL MONITOR MODE"): an HTTP+WebSocket hub that
// broadcasts pipeline progress events to connected viewers, with an
// optional Redis pub/sub fan-out so multiple monitor processes can share
// one run's progress stream.
//
// The Hub/Client registration and broadcast loop is adapted from
// genomevedic's internal/collab.Hub (same register/unregister/broadcast
// channel shape), simplified from per-session multi-user document
// collaboration down to one-way progress fan-out: there is no document
// state to synchronize, so Client has no Send-side document patches, only
// a single outbound progress feed.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Event is one progress update broadcast to every connected viewer.
type Event struct {
	Stage     string  `json:"stage"`
	Processed uint64  `json:"processed"`
	Total     uint64  `json:"total,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Message   string  `json:"message,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// client is one connected WebSocket viewer.
type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans progress events out to every connected viewer, and optionally
// republishes them on a Redis channel so out-of-process viewers (or a
// second monitor instance behind a load balancer) stay in sync.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	last    map[string]Event

	broadcast chan Event

	redisClient  *redis.Client
	redisChannel string
}

// NewHub creates an empty Hub. If redisAddr is non-empty, events are also
// published to redisChannel on that Redis instance.
func NewHub(redisAddr, redisChannel string) *Hub {
	h := &Hub{
		clients:      make(map[*client]bool),
		last:         make(map[string]Event),
		broadcast:    make(chan Event, 256),
		redisChannel: redisChannel,
	}
	if redisAddr != "" {
		h.redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return h
}

// Run drives the hub's broadcast loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			log.Printf("[monitor] client send buffer full, dropping event")
		}
	}
	if h.redisClient != nil {
		if payload, err := json.Marshal(ev); err == nil {
			h.redisClient.Publish(context.Background(), h.redisChannel, payload)
		}
	}
}

// Publish enqueues ev for broadcast, stamping its Timestamp if unset. Safe
// to call from the pipeline's single-threaded run loop between reads.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	h.mu.Lock()
	h.last[ev.Stage] = ev
	h.mu.Unlock()
	select {
	case h.broadcast <- ev:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[monitor] upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan Event, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
}

func (h *Hub) writePump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.conn.Close()
	}()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// serveSnapshot returns the latest event per stage as a JSON object, a
// poll-friendly view for dashboards that don't hold a WebSocket open.
func (h *Hub) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	snapshot := make(map[string]Event, len(h.last))
	for stage, ev := range h.last {
		snapshot[stage] = ev
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		log.Printf("[monitor] snapshot encode failed: %v", err)
	}
}

// Router returns the mux.Router serving the JSON progress snapshot at
// /progress and the WebSocket event feed at /ws, ready to be passed to
// http.ListenAndServe.
func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/progress", h.serveSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.serveWS)
	return r
}
