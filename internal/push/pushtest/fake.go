// Package pushtest provides an in-memory push.Channel for tests.
package pushtest

import (
	"context"
	"sync"

	"github.com/example/ridewatch/internal/push"
)

// Channel records subscriptions and lets a test deliver messages, simulate
// establishment and simulate failures.
type Channel struct {
	mu          sync.Mutex
	handlers    map[string]push.Handler
	onReady     []func()
	onFailure   []func(error)
	active      bool
	connected   bool
	activations int
	deactivated int
}

func New() *Channel {
	return &Channel{handlers: make(map[string]push.Handler)}
}

func (c *Channel) Activate(ctx context.Context, onReady func(), onFailure func(error)) {
	c.mu.Lock()
	c.active = true
	c.activations++
	if onReady != nil {
		c.onReady = append(c.onReady, onReady)
	}
	if onFailure != nil {
		c.onFailure = append(c.onFailure, onFailure)
	}
	connected := c.connected
	c.mu.Unlock()
	if connected && onReady != nil {
		onReady()
	}
}

func (c *Channel) Subscribe(topic string, h push.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
}

func (c *Channel) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
}

func (c *Channel) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.deactivated++
	}
	c.active, c.connected = false, false
	c.onReady, c.onFailure = nil, nil
	c.handlers = make(map[string]push.Handler)
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Establish marks the channel connected and runs the ready callbacks.
func (c *Channel) Establish() {
	c.mu.Lock()
	c.connected = true
	ready := append([]func(){}, c.onReady...)
	c.mu.Unlock()
	for _, fn := range ready {
		fn()
	}
}

// Fail marks the channel down and runs the failure callbacks.
func (c *Channel) Fail(err error) {
	c.mu.Lock()
	c.connected = false
	fails := append([]func(error){}, c.onFailure...)
	c.mu.Unlock()
	for _, fn := range fails {
		fn(err)
	}
}

// Deliver hands body to the topic's handler and reports whether one was
// subscribed.
func (c *Channel) Deliver(topic string, body []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if ok {
		h(body)
	}
	return ok
}

func (c *Channel) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Channel) Deactivations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deactivated
}
