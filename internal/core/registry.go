package core

import "sync"

// Registry owns the identity -> live connection mapping. It is the single
// source of truth for who is reachable right now; the raw map is never
// exposed. Register, Lookup and Remove are linearizable per identity.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Client)}
}

// Register installs client as the sole live connection for its identity.
// An existing connection for the same identity is force-closed (preempted)
// and returned so the caller can log it. Preemption is not an error.
func (r *Registry) Register(c *Client) *Client {
	r.mu.Lock()
	prev := r.conns[c.Identity.ID]
	r.conns[c.Identity.ID] = c
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return prev
}

// Lookup returns the live connection for an identity, or nil if offline.
func (r *Registry) Lookup(userID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID]
}

// Remove deletes the mapping only if the stored connection is exactly c.
// A stale disconnect handler therefore never evicts a newer connection.
// Returns true if the mapping was removed.
func (r *Registry) Remove(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] != c {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Broadcast delivers an event to every live connection. The snapshot is
// taken under the lock; the channel sends happen outside it.
func (r *Registry) Broadcast(ev *Event) {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.Deliver(ev)
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
