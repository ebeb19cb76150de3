package backend

import (
	"context"
	"fmt"

	"github.com/example/ridewatch/internal/models"
)

func (c *Client) GetRider(ctx context.Context, id int64) (models.Rider, error) {
	var out models.Rider
	err := c.do(ctx, "GET", fmt.Sprintf("/riders/%d", id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateRider(ctx context.Context, req models.CreateRiderRequest) (models.Rider, error) {
	var out models.Rider
	err := c.do(ctx, "POST", "/riders", nil, req, &out)
	return out, err
}

func (c *Client) UpdateRider(ctx context.Context, id int64, req models.UpdateRiderRequest) (models.Rider, error) {
	var out models.Rider
	err := c.do(ctx, "PUT", fmt.Sprintf("/riders/%d", id), nil, req, &out)
	return out, err
}
