// Package wsreg provides a hibernation-safe WebSocket fan-out registry.
//
// Each entity instance owns one Registry. Sockets are tagged with an
// opaque identity string at accept time (the agentId for a Coordinator
// connection, for example) so a broadcast can exclude the sender.
// Broadcast always re-enumerates the live socket map rather than
// trusting a separately maintained mirror, per the entity runtime
// contract (no durable hibernation facility on this platform, so the
// map itself is the in-memory source of truth for the process
// lifetime — adapted from the single global Hub in
// internal/server/hub.go, generalized to one registry per entity
// instance with tagged sockets instead of one untagged pool).
package wsreg

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn pairs a socket with the tag it was accepted under.
type Conn struct {
	Tag  string
	ws   *websocket.Conn
	send chan []byte
}

// Registry tracks live sockets for one entity instance.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

// Add registers a socket under tag and starts its write pump.
// The returned Conn must be removed with Remove when the connection
// closes.
func (r *Registry) Add(tag string, ws *websocket.Conn) *Conn {
	c := &Conn{Tag: tag, ws: ws, send: make(chan []byte, 256)}

	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()

	go c.writePump()
	return c
}

// Remove unregisters a socket and closes its send channel.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	if _, ok := r.conns[c]; ok {
		delete(r.conns, c)
		close(c.send)
	}
	r.mu.Unlock()
}

// Count returns the number of live sockets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast JSON-encodes payload and fans it out to every registered
// socket, skipping the one tagged excludeTag (pass "" to exclude none).
// A socket whose send buffer is full is dropped — WebSocket delivery
// is best-effort, never exactly-once.
func (r *Registry) Broadcast(excludeTag string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WS] ERROR: failed to marshal broadcast payload: %v", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.conns {
		if excludeTag != "" && c.Tag == excludeTag {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Printf("[WS] WARNING: dropping broadcast to tag=%s (send buffer full)", c.Tag)
		}
	}
}

// writePump drains the send channel to the underlying socket until it
// is closed or a write fails.
func (c *Conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadLoop blocks reading frames from ws, invoking onMessage for each
// one, until the socket errors or closes. Callers run this on its own
// goroutine and call Remove when it returns.
func ReadLoop(ws *websocket.Conn, onMessage func(data []byte)) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(data)
	}
}
