package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/pulsenet/pulse-server/internal/metrics"
)

// SessionState is a step in the per-connection lifecycle.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one connection through
// connecting -> authenticating -> active -> closing -> closed.
// It owns the ordering between verifier, registry and presence tracker so the
// transport layer only calls Authenticate, Activate and Close.
type Session struct {
	hub *Hub

	mu       sync.Mutex
	state    SessionState
	identity Identity
	client   *Client
}

// NewSession starts a lifecycle for a freshly opened connection.
func (h *Hub) NewSession() *Session {
	return &Session{hub: h, state: StateConnecting}
}

// Authenticate resolves the presented credential to an identity. On failure
// the session goes straight to closed and nothing was registered.
func (s *Session) Authenticate(ctx context.Context, credential string) (Identity, error) {
	s.mu.Lock()
	if s.state != StateConnecting {
		state := s.state
		s.mu.Unlock()
		return Identity{}, fmt.Errorf("authenticate in state %s", state)
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	identity, err := s.hub.verifier.VerifyCredential(ctx, credential)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return Identity{}, wrapError(ErrCodeUnauthenticated, "authentication failed", err)
	}

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	return identity, nil
}

// Activate registers the connection (preempting any prior one for the same
// identity) and marks the identity online. Returns the live client whose
// Events channel the transport must drain.
func (s *Session) Activate(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	if s.state != StateAuthenticating {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("activate in state %s", state)
	}
	client := NewClient(s.identity)
	s.client = client
	s.state = StateActive
	s.mu.Unlock()

	if prev := s.hub.Registry.Register(client); prev != nil {
		s.hub.log.Info().
			Str("user_id", client.Identity.ID).
			Str("old_conn", prev.ID).
			Str("new_conn", client.ID).
			Msg("preempted existing connection")
	}
	s.hub.Presence.ClientConnected(ctx, client.Identity.ID)

	metrics.ActiveConnections.Inc()
	return client, nil
}

// Close tears the connection down. The registry removal is identity-matched,
// so a close racing with a newer connection's Activate never evicts the newer
// connection, and the grace timer only starts when this session's client was
// actually the registered one.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	s.state = StateClosing
	client := s.client
	s.mu.Unlock()

	if client != nil {
		removed := s.hub.Registry.Remove(client.Identity.ID, client)
		client.Close()
		if removed {
			s.hub.Presence.ClientClosed(client.Identity.ID)
		}
	}
	if wasActive {
		metrics.ActiveConnections.Dec()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
