package app

import (
	"context"
	"encoding/json"

	"github.com/example/ridewatch/internal/dispatch"
	"github.com/example/ridewatch/internal/ingest"
	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/observability"
	"github.com/example/ridewatch/internal/reconciler"
)

// delivered remembers the payload a sink last accepted per ride.
type delivered map[int64]string

type pendingRecord struct {
	ride    models.RideRecord
	payload string
}

// pending returns the records whose content differs from what the sink
// last accepted. Nothing is marked here; callers mark after the sink accepts.
func (d delivered) pending(records []models.RideRecord) []pendingRecord {
	out := make([]pendingRecord, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		if d[r.ID] == string(b) {
			continue
		}
		out = append(out, pendingRecord{ride: r, payload: string(b)})
	}
	return out
}

// retain drops every id not in records.
func (d delivered) retain(records []models.RideRecord) {
	keep := make(map[int64]struct{}, len(records))
	for _, r := range records {
		keep[r.ID] = struct{}{}
	}
	for id := range d {
		if _, ok := keep[id]; !ok {
			delete(d, id)
		}
	}
}

// runFeed delivers changes in apply order. After the buffer overflowed the
// queued changes still reach the sinks, then viewers are rebased on a fresh
// snapshot and the sinks are reconciled against the full collection.
func (a *App) runFeed(ctx context.Context) error {
	for {
		select {
		case <-a.resync:
			a.resyncAll(ctx)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case <-a.resync:
			a.resyncAll(ctx)
		case ch := <-a.feed:
			a.deliver(ctx, ch)
		}
	}
}

func (a *App) resyncAll(ctx context.Context) {
	for drained := false; !drained; {
		select {
		case ch := <-a.feed:
			a.export(ctx, ch)
		default:
			drained = true
		}
	}
	rides, seq := a.Rides.View()
	a.Viewers.Rebase(a.snapshotFrame(rides, seq))
	a.export(ctx, reconciler.Change{Seq: seq, Kind: reconciler.ChangeReplaced, Records: rides, Size: len(rides)})
	a.logger.Info("viewers resynced after feed overflow", "seq", seq, "rides", len(rides))
}

func (a *App) deliver(ctx context.Context, ch reconciler.Change) {
	a.Viewers.Broadcast(dispatch.Frame{Type: "change", Seq: ch.Seq, Data: ch})
	a.export(ctx, ch)
}

// export hands the records of ch that changed to the journal and the change
// feed. Each sink keeps its own record of what it accepted, so a failed
// write is retried by the next change that carries the ride.
func (a *App) export(ctx context.Context, ch reconciler.Change) {
	if ch.Kind == reconciler.ChangeReplaced {
		a.journaled.retain(ch.Records)
		a.exported.retain(ch.Records)
	}

	if a.journal != nil {
		for _, p := range a.journaled.pending(ch.Records) {
			if err := a.journal.Record(ctx, p.ride); err != nil {
				observability.ExportedTotal.WithLabelValues("journal", "error").Inc()
				a.logger.Warn("journal write failed", "ride_id", p.ride.ID, "error", err)
				continue
			}
			a.journaled[p.ride.ID] = p.payload
			observability.ExportedTotal.WithLabelValues("journal", "ok").Inc()
		}
	}

	if a.exporter != nil {
		pend := a.exported.pending(ch.Records)
		if len(pend) == 0 {
			return
		}
		at := a.now()
		events := make([]ingest.Event, 0, len(pend))
		for _, p := range pend {
			events = append(events, ingest.Event{Kind: string(ch.Kind), Ride: p.ride, ObservedAt: at})
		}
		if err := a.exporter.Publish(ctx, events...); err != nil {
			observability.ExportedTotal.WithLabelValues("kafka", "error").Add(float64(len(events)))
			a.logger.Warn("change feed publish failed", "events", len(events), "error", err)
			return
		}
		for _, p := range pend {
			a.exported[p.ride.ID] = p.payload
		}
		observability.ExportedTotal.WithLabelValues("kafka", "ok").Add(float64(len(events)))
	}
}
