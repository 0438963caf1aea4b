package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsenet/pulse-server/internal/store"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// fakePresenceStore records presence writes for assertions.
type fakePresenceStore struct {
	mu    sync.Mutex
	calls []presenceCall
}

type presenceCall struct {
	userID   string
	online   bool
	lastSeen *time.Time
}

func (f *fakePresenceStore) UpdatePresence(_ context.Context, userID string, online bool, lastSeen *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, presenceCall{userID: userID, online: online, lastSeen: lastSeen})
	return nil
}

func (f *fakePresenceStore) snapshot() []presenceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]presenceCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeDirectory resolves recipients from a fixed user set.
type fakeDirectory struct {
	users map[string]*store.User
}

func (f *fakeDirectory) GetUserByID(_ context.Context, id string) (*store.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

// fakeMessageStore persists messages in memory and resolves participants
// through the directory.
type fakeMessageStore struct {
	mu       sync.Mutex
	dir      *fakeDirectory
	saved    map[string]*store.Message
	failSave error
	failGet  error
}

func newFakeMessageStore(dir *fakeDirectory) *fakeMessageStore {
	return &fakeMessageStore{dir: dir, saved: make(map[string]*store.Message)}
}

func (f *fakeMessageStore) SaveMessage(_ context.Context, m *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return f.failSave
	}
	cp := *m
	f.saved[m.ID] = &cp
	return nil
}

func (f *fakeMessageStore) GetMessage(_ context.Context, id string) (*store.ResolvedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	m, ok := f.saved[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	resolved := &store.ResolvedMessage{Message: *m}
	if u, ok := f.dir.users[m.SenderID]; ok {
		resolved.Sender = store.Participant{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
	}
	if u, ok := f.dir.users[m.ReceiverID]; ok {
		resolved.Receiver = store.Participant{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
	}
	return resolved, nil
}

func (f *fakeMessageStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// fakeVerifier hands out a fixed identity per credential.
type fakeVerifier struct {
	identities map[string]Identity
}

func (f *fakeVerifier) VerifyCredential(_ context.Context, credential string) (Identity, error) {
	if id, ok := f.identities[credential]; ok {
		return id, nil
	}
	return Identity{}, coreError(ErrCodeUnauthenticated, "unknown credential")
}

// newTestHub builds a hub over in-memory fakes with a short grace window.
func newTestHub(verifier CredentialVerifier, dir *fakeDirectory, msgs *fakeMessageStore, presence *fakePresenceStore, grace time.Duration) *Hub {
	logger := testLogger()
	registry := NewRegistry()
	return &Hub{
		Registry: registry,
		Presence: NewTracker(registry, presence, grace, time.Second, logger),
		Delivery: NewEngine(registry, dir, msgs, time.Second, logger),
		Signals:  NewSignalRouter(registry),
		verifier: verifier,
		log:      logger,
	}
}

// mustEvent waits for the next event of the given kind, skipping others.
func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// collectEvents drains everything currently buffered on the channel.
func collectEvents(ch <-chan *Event) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
