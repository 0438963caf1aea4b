package core

import (
	"sync"
	"time"

	"github.com/pulsenet/pulse-server/internal/metrics"
	"github.com/pulsenet/pulse-server/internal/utils"
)

// Client is a single live connection bound to one identity. The transport
// layer drains Events; the core never writes to the wire directly.
type Client struct {
	ID        string
	Identity  Identity
	Events    chan *Event
	CreatedAt time.Time

	once sync.Once
	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(identity Identity) *Client {
	return &Client{
		ID:        utils.NewID(),
		Identity:  identity,
		Events:    make(chan *Event, 16),
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Deliver enqueues an event for the transport write loop. Events for closed
// or slow clients are dropped; durability lives in storage, not here.
func (c *Client) Deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		metrics.EventsDropped.Inc()
		return false
	}
}

// Close marks the client as closed. Idempotent; safe to call from the
// registry (preemption) and the session (normal teardown) concurrently.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Done is closed when the client has been closed or preempted.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
