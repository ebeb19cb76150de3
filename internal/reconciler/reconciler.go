// Package reconciler owns the authoritative ride collection. Snapshot loads
// and push updates both flow through it; nothing else mutates the collection.
package reconciler

import (
	"fmt"
	"sync"

	"github.com/example/ridewatch/internal/models"
)

type ChangeKind string

const (
	// ChangeReplaced is a full snapshot swap.
	ChangeReplaced ChangeKind = "replaced"
	// ChangeInserted is a push for an id not seen before; it was prepended.
	ChangeInserted ChangeKind = "inserted"
	// ChangeUpdated is a push that replaced an existing record in place.
	ChangeUpdated ChangeKind = "updated"
)

// Change describes one applied mutation. For ChangeReplaced Records is the new
// collection; otherwise it holds the single merged record. Seq increases by
// one per applied change.
type Change struct {
	Seq      uint64              `json:"seq"`
	Kind     ChangeKind          `json:"kind"`
	Records  []models.RideRecord `json:"records"`
	Position int                 `json:"position"`
	Size     int                 `json:"size"`
}

// Observer is called after every applied change, in call order.
// Observers may read the reconciler but must not mutate it.
type Observer func(Change)

// Stats matches the dashboard counters.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

type Reconciler struct {
	// applyMu serializes mutation plus observer fan-out so observers see
	// changes in the same order they were applied.
	applyMu sync.Mutex

	mu    sync.RWMutex
	rides []models.RideRecord
	index map[int64]int
	seq   uint64

	obsMu     sync.RWMutex
	observers []Observer
}

func New() *Reconciler {
	return &Reconciler{index: make(map[int64]int)}
}

// Observe registers fn for all future changes.
func (r *Reconciler) Observe(fn Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, fn)
}

// ReplaceAll swaps the collection for records, keeping their order. Nothing
// from before survives. A record without an id, or a repeated id, rejects the
// whole batch and leaves the collection untouched.
func (r *Reconciler) ReplaceAll(records []models.RideRecord) error {
	next := make([]models.RideRecord, len(records))
	copy(next, records)
	index := make(map[int64]int, len(next))
	for i, rec := range next {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("snapshot record %d: %w", i, err)
		}
		if _, dup := index[rec.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d in snapshot", models.ErrInvalidRecord, rec.ID)
		}
		index[rec.ID] = i
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	r.mu.Lock()
	r.rides = next
	r.index = index
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	r.notify(Change{Seq: seq, Kind: ChangeReplaced, Records: clone(next), Size: len(next)})
	return nil
}

// MergeOne replaces the record with the same id in place, or prepends it when
// the id is new.
func (r *Reconciler) MergeOne(rec models.RideRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	r.mu.Lock()
	ch := Change{Records: []models.RideRecord{rec}}
	if i, ok := r.index[rec.ID]; ok {
		r.rides[i] = rec
		ch.Kind = ChangeUpdated
		ch.Position = i
	} else {
		r.rides = append(r.rides, models.RideRecord{})
		copy(r.rides[1:], r.rides)
		r.rides[0] = rec
		for id, pos := range r.index {
			r.index[id] = pos + 1
		}
		r.index[rec.ID] = 0
		ch.Kind = ChangeInserted
	}
	ch.Size = len(r.rides)
	r.seq++
	ch.Seq = r.seq
	r.mu.Unlock()

	r.notify(ch)
	return nil
}

// Rides returns a copy of the current collection.
func (r *Reconciler) Rides() []models.RideRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.rides)
}

// View returns a copy of the collection together with the Seq of the last
// change applied to it. Changes with a greater Seq are not reflected.
func (r *Reconciler) View() ([]models.RideRecord, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.rides), r.seq
}

// Seq is the sequence number of the last applied change, zero before any.
func (r *Reconciler) Seq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Get looks a ride up by id.
func (r *Reconciler) Get(id int64) (models.RideRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return models.RideRecord{}, false
	}
	return r.rides[i], true
}

func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rides)
}

func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return StatsOf(r.rides)
}

// StatsOf computes the dashboard counters for rides.
func StatsOf(rides []models.RideRecord) Stats {
	s := Stats{Total: len(rides)}
	for _, rec := range rides {
		switch {
		case rec.Status.Active():
			s.Active++
		case rec.Status == models.StatusCompleted:
			s.Completed++
		}
	}
	return s
}

func (r *Reconciler) notify(ch Change) {
	r.obsMu.RLock()
	obs := make([]Observer, len(r.observers))
	copy(obs, r.observers)
	r.obsMu.RUnlock()
	for _, fn := range obs {
		fn(ch)
	}
}

func clone(in []models.RideRecord) []models.RideRecord {
	out := make([]models.RideRecord, len(in))
	copy(out, in)
	return out
}
