package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ridewatch/internal/models"
)

func TestMemoryJournalLastWriteWins(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.Record(ctx, models.RideRecord{ID: 1, Status: models.StatusSearching}))
	require.NoError(t, j.Record(ctx, models.RideRecord{ID: 1, Status: models.StatusMatched}))
	require.NoError(t, j.Record(ctx, models.RideRecord{ID: 2, Status: models.StatusCancelled}))

	e, ok := j.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusMatched, e.Ride.Status)
	assert.Equal(t, 2, e.Updates)
	assert.Equal(t, 2, j.Len())

	assert.ErrorIs(t, j.Record(ctx, models.RideRecord{}), models.ErrInvalidRecord)
	require.NoError(t, j.Close())
}

func TestRowArgs(t *testing.T) {
	driver := int64(9)
	fare := 12.5
	r := models.RideRecord{ID: 4, Status: models.StatusAccepted, RiderID: 3, DriverID: &driver, EstimatedFare: &fare, PickupAddress: "A"}
	args, err := rowArgs(r)
	require.NoError(t, err)
	require.Len(t, args, 8)
	assert.Equal(t, int64(4), args[0])
	assert.Equal(t, "ACCEPTED", args[1])
	assert.Equal(t, sql.NullInt64{Int64: 3, Valid: true}, args[2])
	assert.Equal(t, sql.NullInt64{Int64: 9, Valid: true}, args[3])
	assert.Equal(t, sql.NullFloat64{Float64: 12.5, Valid: true}, args[6])

	var back models.RideRecord
	require.NoError(t, json.Unmarshal(args[7].([]byte), &back))
	assert.Equal(t, r.ID, back.ID)

	args, err = rowArgs(models.RideRecord{ID: 5, Status: models.StatusSearching})
	require.NoError(t, err)
	assert.False(t, args[2].(sql.NullInt64).Valid)
	assert.False(t, args[3].(sql.NullInt64).Valid)
	assert.False(t, args[6].(sql.NullFloat64).Valid)

	_, err = rowArgs(models.RideRecord{Status: models.StatusSearching})
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestMigrationsBundled(t *testing.T) {
	b, err := migrations.ReadFile("migrations/001_create_observed_rides.sql")
	require.NoError(t, err)
	assert.Contains(t, string(b), "CREATE TABLE IF NOT EXISTS observed_rides")
}

// Runs against a real database when RIDEWATCH_TEST_PG_DSN is set.
func TestPostgresJournal(t *testing.T) {
	dsn := os.Getenv("RIDEWATCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("RIDEWATCH_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	j, err := NewPostgresJournal(ctx, dsn)
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Migrate(ctx)
	require.NoError(t, err)
	_, err = j.db.ExecContext(ctx, `DELETE FROM observed_rides WHERE id = 990001`)
	require.NoError(t, err)

	require.NoError(t, j.Record(ctx, models.RideRecord{ID: 990001, Status: models.StatusSearching}))
	require.NoError(t, j.Record(ctx, models.RideRecord{ID: 990001, Status: models.StatusCompleted}))

	var status string
	var updates int
	require.NoError(t, j.db.QueryRowContext(ctx, `SELECT status, updates FROM observed_rides WHERE id = 990001`).Scan(&status, &updates))
	assert.Equal(t, "COMPLETED", status)
	assert.Equal(t, 2, updates)
}
