package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"

	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/observability"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultHeartbeat      = 4 * time.Second
	defaultDialTimeout    = 10 * time.Second
)

type StompOptions struct {
	// Name labels logs and metrics.
	Name string
	// URL is the raw websocket endpoint, e.g. ws://host:8080/ws/websocket.
	URL               string
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	Dialer            *websocket.Dialer
}

// StompChannel is a Channel speaking STOMP over a websocket. After a
// transport failure it retries after a fixed delay forever.
type StompChannel struct {
	opts   StompOptions
	logger *slog.Logger

	mu        sync.Mutex
	handlers  map[string]Handler
	live      map[string]*stomp.Subscription
	conn      *stomp.Conn
	stream    *wsStream
	connected bool
	onReady   []func()
	onFailure []func(error)
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewStompChannel(opts StompOptions, logger *slog.Logger) *StompChannel {
	if opts.Name == "" {
		opts.Name = "stomp"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeat
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &StompChannel{
		opts:     opts,
		logger:   logger.With("channel", opts.Name),
		handlers: make(map[string]Handler),
		live:     make(map[string]*stomp.Subscription),
	}
}

func (c *StompChannel) Activate(ctx context.Context, onReady func(), onFailure func(error)) {
	c.mu.Lock()
	if onReady != nil {
		c.onReady = append(c.onReady, onReady)
	}
	if onFailure != nil {
		c.onFailure = append(c.onFailure, onFailure)
	}
	connected := c.connected
	if c.cancel == nil {
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.done = make(chan struct{})
		go c.run(runCtx, c.done)
	}
	c.mu.Unlock()

	if connected && onReady != nil {
		onReady()
	}
}

func (c *StompChannel) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.live[topic]; ok {
		delete(c.live, topic)
		go c.unsubscribe(topic, old)
	}
	c.handlers[topic] = h
	if c.connected {
		if err := c.subscribeLocked(topic, h); err != nil {
			c.logger.Warn("subscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *StompChannel) Unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.handlers, topic)
	sub, ok := c.live[topic]
	delete(c.live, topic)
	c.mu.Unlock()
	if ok {
		go c.unsubscribe(topic, sub)
	}
}

func (c *StompChannel) Deactivate() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.onReady, c.onFailure = nil, nil
	c.handlers = make(map[string]Handler)
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("channel deactivated")
}

func (c *StompChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *StompChannel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	b := backoff.WithContext(backoff.NewConstantBackOff(c.opts.ReconnectDelay), ctx)
	_ = backoff.RetryNotify(func() error { return c.session(ctx) }, b, func(err error, wait time.Duration) {
		observability.ChannelReconnects.WithLabelValues(c.opts.Name).Inc()
		c.logger.Warn("channel unavailable, retrying", "error", err, "retry_in", wait.String())
		c.mu.Lock()
		callbacks := append([]func(error){}, c.onFailure...)
		c.mu.Unlock()
		for _, fn := range callbacks {
			fn(err)
		}
	})
}

// session runs one connection until it fails (returns an error, which
// schedules a retry) or ctx is cancelled (returns nil).
func (c *StompChannel) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	ws, _, err := c.opts.Dialer.DialContext(dialCtx, c.opts.URL, nil)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: dial %s: %v", models.ErrNetworkFailure, c.opts.URL, err)
	}

	stream := newWSStream(ws)
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(c.opts.DialTimeout))
	conn, err := stomp.Connect(stream,
		stomp.ConnOpt.HeartBeat(c.opts.HeartbeatInterval, c.opts.HeartbeatInterval),
		stomp.ConnOpt.Host("/"),
	)
	stop()
	if err != nil {
		_ = stream.Close()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: stomp connect: %v", models.ErrNetworkFailure, err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn, c.stream, c.connected = conn, stream, true
	for topic, h := range c.handlers {
		if err := c.subscribeLocked(topic, h); err != nil {
			c.logger.Warn("subscribe failed", "topic", topic, "error", err)
		}
	}
	ready := append([]func(){}, c.onReady...)
	c.mu.Unlock()

	observability.ChannelConnected.WithLabelValues(c.opts.Name).Set(1)
	c.logger.Info("channel established", "url", c.opts.URL)
	for _, fn := range ready {
		fn()
	}

	select {
	case <-ctx.Done():
		c.teardown(true)
		return nil
	case <-stream.Done():
		c.teardown(false)
		return fmt.Errorf("%w: channel closed: %v", models.ErrNetworkFailure, stream.Err())
	}
}

func (c *StompChannel) subscribeLocked(topic string, h Handler) error {
	sub, err := c.conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		return err
	}
	c.live[topic] = sub
	go c.pump(topic, sub, h)
	c.logger.Debug("subscribed", "topic", topic)
	return nil
}

func (c *StompChannel) pump(topic string, sub *stomp.Subscription, h Handler) {
	for msg := range sub.C {
		if msg.Err != nil {
			c.logger.Warn("subscription ended", "topic", topic, "error", msg.Err)
			return
		}
		h(msg.Body)
	}
}

// unsubscribe runs off the caller's goroutine: the broker acknowledges
// UNSUBSCRIBE with a receipt and a dead connection never sends one.
func (c *StompChannel) unsubscribe(topic string, sub *stomp.Subscription) {
	if err := sub.Unsubscribe(); err != nil {
		c.logger.Debug("unsubscribe", "topic", topic, "error", err)
		return
	}
	c.logger.Debug("unsubscribed", "topic", topic)
}

func (c *StompChannel) teardown(graceful bool) {
	c.mu.Lock()
	conn, stream := c.conn, c.stream
	c.conn, c.stream, c.connected = nil, nil, false
	c.live = make(map[string]*stomp.Subscription)
	c.mu.Unlock()

	observability.ChannelConnected.WithLabelValues(c.opts.Name).Set(0)
	if graceful && conn != nil {
		_ = conn.MustDisconnect()
	}
	if stream != nil {
		_ = stream.Close()
	}
}
