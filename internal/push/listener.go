package push

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/observability"
)

// RideUpdatesTopic carries one ride record per message for every ride change.
const RideUpdatesTopic = "/topic/rides/updates"

// Merger receives each decoded push update.
type Merger interface {
	MergeOne(rec models.RideRecord) error
}

// Listener subscribes the ride update topic and merges every payload.
// Undecodable payloads are logged and dropped; the subscription stays up.
type Listener struct {
	ch     Channel
	rec    Merger
	logger *slog.Logger

	mu     sync.Mutex
	active bool
}

func NewListener(ch Channel, rec Merger, logger *slog.Logger) *Listener {
	return &Listener{ch: ch, rec: rec, logger: logger}
}

func (l *Listener) Activate(ctx context.Context, onReady func(), onFailure func(error)) {
	l.mu.Lock()
	l.active = true
	l.mu.Unlock()
	l.ch.Subscribe(RideUpdatesTopic, l.handle)
	l.ch.Activate(ctx, onReady, onFailure)
}

// Deactivate unsubscribes and tears the channel down. The reconciler's
// collection is left as it is.
func (l *Listener) Deactivate() {
	l.mu.Lock()
	wasActive := l.active
	l.active = false
	l.mu.Unlock()
	if !wasActive {
		return
	}
	l.ch.Unsubscribe(RideUpdatesTopic)
	l.ch.Deactivate()
}

func (l *Listener) Connected() bool { return l.ch.Connected() }

func (l *Listener) handle(body []byte) {
	rec, err := models.DecodeRideRecord(body)
	if err != nil {
		observability.PushEventsTotal.WithLabelValues(RideUpdatesTopic, "dropped").Inc()
		l.logger.Warn("dropping ride update", "error", err, "bytes", len(body))
		return
	}
	if err := l.rec.MergeOne(rec); err != nil {
		observability.PushEventsTotal.WithLabelValues(RideUpdatesTopic, "dropped").Inc()
		l.logger.Warn("ride update rejected", "ride_id", rec.ID, "error", err)
		return
	}
	observability.PushEventsTotal.WithLabelValues(RideUpdatesTopic, "merged").Inc()
	l.logger.Debug("ride update merged", "ride_id", rec.ID, "status", rec.Status)
}
