package storage

import (
	"context"
	"sync"

	"github.com/example/ridewatch/internal/models"
)

// Journal records every ride state the client observes, last write wins.
type Journal interface {
	Record(ctx context.Context, r models.RideRecord) error
	Close() error
}

type Entry struct {
	Ride    models.RideRecord
	Updates int
}

type MemoryJournal struct {
	mu    sync.RWMutex
	rides map[int64]*Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{rides: make(map[int64]*Entry)}
}

func (m *MemoryJournal) Record(_ context.Context, r models.RideRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rides[r.ID]; ok {
		e.Ride = r
		e.Updates++
		return nil
	}
	m.rides[r.ID] = &Entry{Ride: r, Updates: 1}
	return nil
}

func (m *MemoryJournal) Get(id int64) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rides[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (m *MemoryJournal) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rides)
}

func (m *MemoryJournal) Close() error { return nil }
