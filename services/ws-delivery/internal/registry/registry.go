// Package registry maps user ids to their live connections (spec
// §4.4). It holds only an identifier and an enqueue handle per
// connection, never the connection task itself, so the cyclic
// reference a naive registry<->connection design would create never
// arises (spec §9, "Cyclic references").
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tom-notifier/shared/wire"
)

// Conn is the enqueue handle a connection task registers. Deliver never
// blocks: a frame for a connection whose channel is full is dropped, and
// the connection stays registered.
type Conn interface {
	ID() uuid.UUID
	TryEnqueue(frame wire.WSFrame) bool
}

// Registry is a concurrent user_id -> set<Conn> map.
type Registry struct {
	mu    sync.RWMutex
	byUser map[uuid.UUID]map[uuid.UUID]Conn
}

func New() *Registry {
	return &Registry{byUser: make(map[uuid.UUID]map[uuid.UUID]Conn)}
}

// Register adds c under userID. Call on WS handshake.
func (r *Registry) Register(userID uuid.UUID, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[uuid.UUID]Conn)
		r.byUser[userID] = conns
	}
	conns[c.ID()] = c
}

// Unregister removes c from userID's set. Call on connection close;
// authoritative regardless of why the connection died (spec §4.4).
func (r *Registry) Unregister(userID uuid.UUID, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
	}
}

// Deliver pushes frame to every live connection for userID,
// non-blockingly (spec §4.4).
func (r *Registry) Deliver(userID uuid.UUID, frame wire.WSFrame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byUser[userID] {
		c.TryEnqueue(frame)
	}
}

// Broadcast pushes frame to every live connection across every user,
// used by the network-status broadcaster (spec §4.6) for
// connection-agnostic OK/ERROR frames.
func (r *Registry) Broadcast(frame wire.WSFrame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conns := range r.byUser {
		for _, c := range conns {
			c.TryEnqueue(frame)
		}
	}
}

// ConnectionCount reports the number of live connections for userID,
// exposed for tests.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}
