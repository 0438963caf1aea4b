package core

// SignalRouter fans out typing indicators. Signals are best-effort UX hints:
// nothing is persisted and an offline recipient silently drops them.
type SignalRouter struct {
	registry *Registry
}

// NewSignalRouter constructs a signal router over the given registry.
func NewSignalRouter(registry *Registry) *SignalRouter {
	return &SignalRouter{registry: registry}
}

// Typing forwards a typing signal to the recipient if they are connected.
func (s *SignalRouter) Typing(from Identity, toID string) {
	s.forward(EventUserTyping, from, toID)
}

// StopTyping forwards a stop-typing signal to the recipient if connected.
func (s *SignalRouter) StopTyping(from Identity, toID string) {
	s.forward(EventUserStoppedTyping, from, toID)
}

func (s *SignalRouter) forward(kind EventKind, from Identity, toID string) {
	if c := s.registry.Lookup(toID); c != nil {
		c.Deliver(&Event{Kind: kind, UserID: from.ID})
	}
}
