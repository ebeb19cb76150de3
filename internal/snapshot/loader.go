// Package snapshot polls the bulk ride query and hands each full result to
// the reconciler as an authoritative replacement.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/observability"
)

// DefaultInterval is the polling period between snapshots.
const DefaultInterval = 10 * time.Second

// Source is the bulk query endpoint.
type Source interface {
	ListRides(ctx context.Context, q backend.RideQuery) ([]models.RideRecord, error)
}

// Replacer receives every successful snapshot.
type Replacer interface {
	ReplaceAll(records []models.RideRecord) error
}

// Status is what the view shows about data freshness. Stale is set after a
// failed fetch and cleared by the next successful one; prior data stays visible.
type Status struct {
	Loading     bool      `json:"loading"`
	Stale       bool      `json:"stale"`
	LastSuccess time.Time `json:"lastSuccess,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	LastCount   int       `json:"lastCount"`
}

type Loader struct {
	src      Source
	rec      Replacer
	limit    int
	interval time.Duration
	logger   *slog.Logger
	refresh  chan struct{}
	waiters  chan chan fetchResult

	mu       sync.Mutex
	inflight int
	status   Status
}

func New(src Source, rec Replacer, limit int, interval time.Duration, logger *slog.Logger) *Loader {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loader{
		src:      src,
		rec:      rec,
		limit:    limit,
		interval: interval,
		logger:   logger,
		refresh:  make(chan struct{}, 1),
		waiters:  make(chan chan fetchResult),
	}
}

// FetchSnapshot queries up to limit rides and replaces the collection with
// them. On any failure the collection is left as it was and the error is
// returned.
func (l *Loader) FetchSnapshot(ctx context.Context, limit int) ([]models.RideRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("snapshot limit must be positive, got %d", limit)
	}
	l.begin()
	start := time.Now()

	records, err := l.src.ListRides(ctx, backend.RideQuery{Limit: limit})
	if err == nil {
		err = l.rec.ReplaceAll(records)
		if err != nil {
			err = fmt.Errorf("%w: %w", models.ErrProtocolFailure, err)
		}
	}
	observability.SnapshotDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		observability.SnapshotsTotal.WithLabelValues("error").Inc()
		l.end(func(s *Status) {
			s.Stale = true
			s.LastError = err.Error()
		})
		return nil, err
	}
	observability.SnapshotsTotal.WithLabelValues("ok").Inc()
	l.end(func(s *Status) {
		s.Stale = false
		s.LastError = ""
		s.LastSuccess = time.Now()
		s.LastCount = len(records)
	})
	return records, nil
}

// Run fetches once immediately and then on every tick or Refresh until ctx is
// cancelled. Cancelling stops the timer; a fetch already in flight is detached
// from ctx and still applies.
func (l *Loader) Run(ctx context.Context) error {
	_, _ = l.poll(ctx, "initial")
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("snapshot loader stopped")
			return nil
		case <-t.C:
			_, _ = l.poll(ctx, "timer")
		case <-l.refresh:
			_, _ = l.poll(ctx, "refresh")
		case reply := <-l.waiters:
			n, err := l.poll(ctx, "refresh-wait")
			reply <- fetchResult{count: n, err: err}
		}
	}
}

// Refresh asks a running loader for an out-of-cycle fetch. Requests made
// while one is already queued collapse into it.
func (l *Loader) Refresh() {
	select {
	case l.refresh <- struct{}{}:
	default:
	}
}

type fetchResult struct {
	count int
	err   error
}

// RefreshWait asks a running loader for an out-of-cycle fetch and waits for
// its outcome: the number of rides applied, or why the fetch failed. The
// fetch is serialized with the loader's own polls.
func (l *Loader) RefreshWait(ctx context.Context) (int, error) {
	reply := make(chan fetchResult, 1)
	select {
	case l.waiters <- reply:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.count, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Limit is the page size used by Run.
func (l *Loader) Limit() int { return l.limit }

func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loader) poll(ctx context.Context, trigger string) (int, error) {
	records, err := l.FetchSnapshot(context.WithoutCancel(ctx), l.limit)
	if err != nil {
		l.logger.Warn("snapshot fetch failed", "trigger", trigger, "error", err)
		return 0, err
	}
	l.logger.Debug("snapshot applied", "trigger", trigger, "rides", len(records))
	return len(records), nil
}

func (l *Loader) begin() {
	l.mu.Lock()
	l.inflight++
	l.status.Loading = true
	l.mu.Unlock()
}

func (l *Loader) end(apply func(*Status)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight--
	l.status.Loading = l.inflight > 0
	apply(&l.status)
}
