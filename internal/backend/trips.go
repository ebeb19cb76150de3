package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/example/ridewatch/internal/models"
)

func (c *Client) StartTrip(ctx context.Context, rideID int64) (models.Trip, error) {
	q := url.Values{"rideId": []string{strconv.FormatInt(rideID, 10)}}
	var out models.Trip
	err := c.do(ctx, "POST", "/trips/start", q, nil, &out)
	return out, err
}

func (c *Client) EndTrip(ctx context.Context, tripID int64, req models.EndTripRequest) (models.Trip, error) {
	req.TripID = tripID
	var out models.Trip
	err := c.do(ctx, "POST", fmt.Sprintf("/trips/%d/end", tripID), nil, req, &out)
	return out, err
}

func (c *Client) PauseTrip(ctx context.Context, tripID int64) (models.Trip, error) {
	var out models.Trip
	err := c.do(ctx, "POST", fmt.Sprintf("/trips/%d/pause", tripID), nil, nil, &out)
	return out, err
}

func (c *Client) ResumeTrip(ctx context.Context, tripID int64) (models.Trip, error) {
	var out models.Trip
	err := c.do(ctx, "POST", fmt.Sprintf("/trips/%d/resume", tripID), nil, nil, &out)
	return out, err
}

func (c *Client) GetTrip(ctx context.Context, tripID int64) (models.Trip, error) {
	var out models.Trip
	err := c.do(ctx, "GET", fmt.Sprintf("/trips/%d", tripID), nil, nil, &out)
	return out, err
}
