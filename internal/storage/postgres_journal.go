package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"

	_ "github.com/lib/pq"

	"github.com/example/ridewatch/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const upsertRide = `INSERT INTO observed_rides
	(id, status, rider_id, driver_id, pickup_address, destination_address, estimated_fare, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	rider_id = EXCLUDED.rider_id,
	driver_id = EXCLUDED.driver_id,
	pickup_address = EXCLUDED.pickup_address,
	destination_address = EXCLUDED.destination_address,
	estimated_fare = EXCLUDED.estimated_fare,
	payload = EXCLUDED.payload,
	last_seen = now(),
	updates = observed_rides.updates + 1`

type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresJournal{db: db}, nil
}

// Migrate applies the bundled migrations in name order. They are idempotent.
func (p *PostgresJournal) Migrate(ctx context.Context) ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return names, nil
}

func (p *PostgresJournal) Record(ctx context.Context, r models.RideRecord) error {
	args, err := rowArgs(r)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, upsertRide, args...); err != nil {
		return fmt.Errorf("journal ride %d: %w", r.ID, err)
	}
	return nil
}

func (p *PostgresJournal) Close() error { return p.db.Close() }

func rowArgs(r models.RideRecord) ([]any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return []any{
		r.ID,
		string(r.Status),
		nullInt(r.RiderID),
		nullIntPtr(r.DriverID),
		r.PickupAddress,
		r.DestinationAddress,
		nullFloatPtr(r.EstimatedFare),
		payload,
	}, nil
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullIntPtr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloatPtr(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (p *PostgresJournal) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
