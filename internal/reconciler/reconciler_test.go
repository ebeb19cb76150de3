package reconciler

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ridewatch/internal/models"
)

func ride(id int64, status models.RideStatus) models.RideRecord {
	return models.RideRecord{ID: id, Status: status, RiderID: 1}
}

func ids(rs []models.RideRecord) []int64 {
	out := make([]int64, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestMergeOneInsertThenUpdate(t *testing.T) {
	r := New()
	require.NoError(t, r.MergeOne(ride(7, models.StatusRequested)))
	assert.Equal(t, []models.RideRecord{ride(7, models.StatusRequested)}, r.Rides())

	require.NoError(t, r.MergeOne(ride(7, models.StatusAccepted)))
	got := r.Rides()
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusAccepted, got[0].Status)
}

func TestMergeOnePrependsUnseenAndKeepsPositionOfSeen(t *testing.T) {
	r := New()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, r.MergeOne(ride(id, models.StatusRequested)))
	}
	assert.Equal(t, []int64{3, 2, 1}, ids(r.Rides()))

	require.NoError(t, r.MergeOne(ride(2, models.StatusMatched)))
	got := r.Rides()
	assert.Equal(t, []int64{3, 2, 1}, ids(got))
	assert.Equal(t, models.StatusMatched, got[1].Status)

	rec, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusRequested, rec.Status)
}

func TestMergeOneIsIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.ReplaceAll([]models.RideRecord{ride(1, models.StatusSearching), ride(2, models.StatusCompleted)}))
	require.NoError(t, r.MergeOne(ride(5, models.StatusMatched)))
	once := r.Rides()
	require.NoError(t, r.MergeOne(ride(5, models.StatusMatched)))
	assert.Equal(t, once, r.Rides())
}

func TestReplaceAllDropsSurvivorsAndKeepsOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.ReplaceAll([]models.RideRecord{ride(3, models.StatusRequested), ride(1, models.StatusRequested)}))
	require.NoError(t, r.ReplaceAll([]models.RideRecord{ride(1, models.StatusAccepted), ride(2, models.StatusRequested)}))
	assert.Equal(t, []int64{1, 2}, ids(r.Rides()))

	_, ok := r.Get(3)
	assert.False(t, ok)

	require.NoError(t, r.ReplaceAll(nil))
	assert.Equal(t, 0, r.Len())
	assert.NotNil(t, r.Rides())
}

func TestReplaceAllDoesNotAliasInput(t *testing.T) {
	r := New()
	in := []models.RideRecord{ride(1, models.StatusRequested)}
	require.NoError(t, r.ReplaceAll(in))
	in[0].Status = models.StatusFailed
	got, _ := r.Get(1)
	assert.Equal(t, models.StatusRequested, got.Status)
}

func TestInvalidRecordsLeaveStateUntouched(t *testing.T) {
	r := New()
	require.NoError(t, r.MergeOne(ride(1, models.StatusRequested)))

	err := r.MergeOne(models.RideRecord{Status: models.StatusAccepted})
	assert.True(t, errors.Is(err, models.ErrInvalidRecord))

	err = r.ReplaceAll([]models.RideRecord{ride(4, models.StatusRequested), {Status: models.StatusMatched}})
	assert.True(t, errors.Is(err, models.ErrInvalidRecord))

	err = r.ReplaceAll([]models.RideRecord{ride(4, models.StatusRequested), ride(4, models.StatusMatched)})
	assert.True(t, errors.Is(err, models.ErrInvalidRecord))

	assert.Equal(t, []int64{1}, ids(r.Rides()))
}

func TestMergeAfterReplaceIsSupersededByLaterReplace(t *testing.T) {
	r := New()
	require.NoError(t, r.MergeOne(ride(9, models.StatusInProgress)))
	require.NoError(t, r.ReplaceAll([]models.RideRecord{ride(9, models.StatusMatched)}))
	got, _ := r.Get(9)
	assert.Equal(t, models.StatusMatched, got.Status)
}

func TestRandomMergesNeverDuplicate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	r := New()
	statuses := []models.RideStatus{models.StatusRequested, models.StatusAccepted, models.StatusCompleted}
	for i := 0; i < 2000; i++ {
		if rng.Intn(50) == 0 {
			n := rng.Intn(10)
			batch := make([]models.RideRecord, 0, n)
			for j := 0; j < n; j++ {
				batch = append(batch, ride(int64(j*3+1), statuses[rng.Intn(3)]))
			}
			require.NoError(t, r.ReplaceAll(batch))
			continue
		}
		require.NoError(t, r.MergeOne(ride(int64(rng.Intn(40)+1), statuses[rng.Intn(3)])))
	}
	seen := map[int64]bool{}
	for _, rec := range r.Rides() {
		assert.False(t, seen[rec.ID], "duplicate id %d", rec.ID)
		seen[rec.ID] = true
		got, ok := r.Get(rec.ID)
		require.True(t, ok)
		assert.Equal(t, rec, got)
	}
}

func TestConcurrentProducersSerialize(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if i%50 == 0 {
					_ = r.ReplaceAll([]models.RideRecord{ride(1000, models.StatusSearching)})
					continue
				}
				_ = r.MergeOne(ride(int64(w*1000+i%20+1), models.StatusAccepted))
			}
		}(w)
	}
	wg.Wait()
	seen := map[int64]bool{}
	for _, rec := range r.Rides() {
		require.False(t, seen[rec.ID])
		seen[rec.ID] = true
	}
}

func TestObserversSeeChangesInOrder(t *testing.T) {
	r := New()
	var kinds []ChangeKind
	var sizes []int
	r.Observe(func(c Change) {
		kinds = append(kinds, c.Kind)
		sizes = append(sizes, c.Size)
		assert.Equal(t, c.Size, r.Len())
	})
	require.NoError(t, r.MergeOne(ride(1, models.StatusRequested)))
	require.NoError(t, r.MergeOne(ride(1, models.StatusAccepted)))
	require.NoError(t, r.ReplaceAll([]models.RideRecord{ride(2, models.StatusRequested), ride(3, models.StatusRequested)}))
	_ = r.MergeOne(models.RideRecord{})

	assert.Equal(t, []ChangeKind{ChangeInserted, ChangeUpdated, ChangeReplaced}, kinds)
	assert.Equal(t, []int{1, 1, 2}, sizes)
}

func TestStats(t *testing.T) {
	r := New()
	require.NoError(t, r.ReplaceAll([]models.RideRecord{
		ride(1, models.StatusRequested),
		ride(2, models.StatusSearching),
		ride(3, models.StatusInProgress),
		ride(4, models.StatusCompleted),
		ride(5, models.StatusCancelled),
	}))
	assert.Equal(t, Stats{Total: 5, Active: 2, Completed: 1}, r.Stats())
}

func TestViewCarriesSeqOfLastAppliedChange(t *testing.T) {
	r := New()
	var seqs []uint64
	r.Observe(func(c Change) {
		seqs = append(seqs, c.Seq)
		rides, seq := r.View()
		assert.Equal(t, c.Seq, seq)
		assert.Len(t, rides, c.Size)
	})

	_, seq := r.View()
	assert.Zero(t, seq)

	require.NoError(t, r.MergeOne(ride(1, models.StatusRequested)))
	require.NoError(t, r.ReplaceAll([]models.RideRecord{ride(2, models.StatusRequested)}))
	require.NoError(t, r.MergeOne(ride(2, models.StatusAccepted)))
	_ = r.MergeOne(models.RideRecord{})
	_ = r.ReplaceAll([]models.RideRecord{{}})

	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	assert.Equal(t, uint64(3), r.Seq())
}
