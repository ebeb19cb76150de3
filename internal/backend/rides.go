package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/example/ridewatch/internal/models"
)

// RideQuery filters GET /v1/rides. Zero values are omitted.
type RideQuery struct {
	Status   models.RideStatus
	RiderID  int64
	DriverID int64
	Limit    int
}

func (q RideQuery) values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.RiderID > 0 {
		v.Set("riderId", strconv.FormatInt(q.RiderID, 10))
	}
	if q.DriverID > 0 {
		v.Set("driverId", strconv.FormatInt(q.DriverID, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) ListRides(ctx context.Context, q RideQuery) ([]models.RideRecord, error) {
	var out []models.RideRecord
	if err := c.do(ctx, "GET", "/rides", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRide(ctx context.Context, id int64) (models.RideRecord, error) {
	var out models.RideRecord
	err := c.do(ctx, "GET", fmt.Sprintf("/rides/%d", id), nil, nil, &out)
	return out, err
}

// CreateRide submits a ride request. An idempotency key is generated when the
// caller did not set one so a retried submit cannot create a second ride.
func (c *Client) CreateRide(ctx context.Context, req models.CreateRideRequest) (models.RideRecord, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	var out models.RideRecord
	err := c.do(ctx, "POST", "/rides", nil, req, &out)
	return out, err
}

func (c *Client) CancelRide(ctx context.Context, id int64, reason string) (models.RideRecord, error) {
	q := url.Values{}
	if reason != "" {
		q.Set("reason", reason)
	}
	var out models.RideRecord
	err := c.do(ctx, "POST", fmt.Sprintf("/rides/%d/cancel", id), q, nil, &out)
	return out, err
}
