package backend

import (
	"context"
	"fmt"

	"github.com/example/ridewatch/internal/models"
)

func (c *Client) GetDriver(ctx context.Context, id int64) (models.Driver, error) {
	var out models.Driver
	err := c.do(ctx, "GET", fmt.Sprintf("/drivers/%d", id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateDriver(ctx context.Context, req models.CreateDriverRequest) (models.Driver, error) {
	var out models.Driver
	err := c.do(ctx, "POST", "/drivers", nil, req, &out)
	return out, err
}

func (c *Client) UpdateDriver(ctx context.Context, id int64, req models.UpdateDriverRequest) (models.Driver, error) {
	var out models.Driver
	err := c.do(ctx, "PUT", fmt.Sprintf("/drivers/%d", id), nil, req, &out)
	return out, err
}

// UpdateLocation reports a driver position. The response data is an
// acknowledgement string and is ignored.
func (c *Client) UpdateLocation(ctx context.Context, driverID int64, u models.LocationUpdate) error {
	return c.do(ctx, "POST", fmt.Sprintf("/drivers/%d/location", driverID), nil, u, nil)
}

func (c *Client) AcceptRide(ctx context.Context, driverID int64, req models.AcceptRideRequest) (models.RideRecord, error) {
	var out models.RideRecord
	err := c.do(ctx, "POST", fmt.Sprintf("/drivers/%d/accept", driverID), nil, req, &out)
	return out, err
}

func (c *Client) PendingRides(ctx context.Context, driverID int64) ([]models.RideRecord, error) {
	var out []models.RideRecord
	if err := c.do(ctx, "GET", fmt.Sprintf("/drivers/%d/pending-rides", driverID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
