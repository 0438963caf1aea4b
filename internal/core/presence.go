package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsenet/pulse-server/internal/metrics"
)

// PresenceStore is the slice of the user store the tracker persists through.
type PresenceStore interface {
	UpdatePresence(ctx context.Context, userID string, online bool, lastSeen *time.Time) error
}

// Tracker derives online/offline state from registry membership and debounces
// transient disconnects with a grace window, so a page reload does not flap
// presence for everyone watching.
//
// Timers are generation-counted: every connect or disconnect bumps the
// identity's generation, and a firing timer re-checks its generation under the
// tracker mutex. A timer that lost the race to a reconnect is a no-op.
//
// Transitions commit (persist + broadcast) while the mutex is held, so a
// reconnect that lands while a timer is mid-fire queues behind the offline
// commit and re-announces online afterwards; an offline can never be emitted
// after a newer online. The persist call is bounded by storageTimeout, which
// caps how long a commit can hold the mutex.
type Tracker struct {
	registry       *Registry
	store          PresenceStore
	grace          time.Duration
	storageTimeout time.Duration
	log            *zerolog.Logger

	mu     sync.Mutex
	gens   map[string]uint64
	timers map[string]*time.Timer
	online map[string]struct{}
}

// NewTracker constructs a presence tracker.
func NewTracker(registry *Registry, st PresenceStore, grace, storageTimeout time.Duration, logger *zerolog.Logger) *Tracker {
	return &Tracker{
		registry:       registry,
		store:          st,
		grace:          grace,
		storageTimeout: storageTimeout,
		log:            logger,
		gens:           make(map[string]uint64),
		timers:         make(map[string]*time.Timer),
		online:         make(map[string]struct{}),
	}
}

// ClientConnected cancels any pending grace timer for the identity and, if
// the state actually changed, persists and broadcasts the online transition.
func (t *Tracker) ClientConnected(ctx context.Context, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gens[userID]++
	if tm := t.timers[userID]; tm != nil {
		tm.Stop()
		delete(t.timers, userID)
	}
	if _, wasOnline := t.online[userID]; wasOnline {
		// Reconnect within the grace window; skip the redundant broadcast.
		return
	}
	t.online[userID] = struct{}{}

	metrics.PresenceTransitions.WithLabelValues("online").Inc()
	t.persist(ctx, userID, true, nil)
	t.registry.Broadcast(&Event{
		Kind:     EventUserStatusChanged,
		UserID:   userID,
		IsOnline: true,
	})
}

// ClientClosed starts (or restarts) the grace timer for the identity. The
// offline transition only happens if no reconnect lands before it fires.
func (t *Tracker) ClientClosed(userID string) {
	t.mu.Lock()
	t.gens[userID]++
	gen := t.gens[userID]
	if tm := t.timers[userID]; tm != nil {
		tm.Stop()
	}
	t.timers[userID] = time.AfterFunc(t.grace, func() {
		t.expire(userID, gen)
	})
	t.mu.Unlock()
}

func (t *Tracker) expire(userID string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gens[userID] != gen {
		// A newer connect or disconnect superseded this timer.
		return
	}
	delete(t.timers, userID)
	if t.registry.Lookup(userID) != nil {
		return
	}
	delete(t.online, userID)

	now := time.Now()
	metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	t.persist(context.Background(), userID, false, &now)
	t.registry.Broadcast(&Event{
		Kind:     EventUserStatusChanged,
		UserID:   userID,
		IsOnline: false,
		LastSeen: &now,
	})
}

// IsOnline reports the tracker's view of an identity, grace window included.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

func (t *Tracker) persist(ctx context.Context, userID string, online bool, lastSeen *time.Time) {
	ctx, cancel := context.WithTimeout(ctx, t.storageTimeout)
	defer cancel()

	if err := t.store.UpdatePresence(ctx, userID, online, lastSeen); err != nil {
		t.log.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("failed to persist presence")
	}
}
