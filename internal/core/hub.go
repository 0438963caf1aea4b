package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsenet/pulse-server/internal/store"
)

// CredentialVerifier authenticates a bearer credential presented at
// connection time. Implemented by the auth service.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, credential string) (Identity, error)
}

// Options tune the realtime core.
type Options struct {
	// PresenceGrace is the debounce window between a transport close and the
	// offline transition.
	PresenceGrace time.Duration
	// StorageTimeout bounds every storage call made by the core.
	StorageTimeout time.Duration
}

const (
	defaultPresenceGrace  = 5 * time.Second
	defaultStorageTimeout = 3 * time.Second
)

// Hub aggregates the realtime core: the connection registry, the presence
// tracker, the message delivery engine and the typing-signal router.
type Hub struct {
	Registry *Registry
	Presence *Tracker
	Delivery *Engine
	Signals  *SignalRouter

	verifier CredentialVerifier
	log      *zerolog.Logger
}

// NewHub wires the core components over the given verifier and store.
func NewHub(verifier CredentialVerifier, st store.Store, opts Options, logger *zerolog.Logger) *Hub {
	if opts.PresenceGrace <= 0 {
		opts.PresenceGrace = defaultPresenceGrace
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = defaultStorageTimeout
	}

	registry := NewRegistry()
	return &Hub{
		Registry: registry,
		Presence: NewTracker(registry, st, opts.PresenceGrace, opts.StorageTimeout, logger),
		Delivery: NewEngine(registry, st, st, opts.StorageTimeout, logger),
		Signals:  NewSignalRouter(registry),
		verifier: verifier,
		log:      logger,
	}
}
