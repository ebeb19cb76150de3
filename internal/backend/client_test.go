package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ridewatch/internal/logging"
	"github.com/example/ridewatch/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 2*time.Second, logging.Discard())
	require.NoError(t, err)
	return c
}

func TestListRidesDecodesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rides", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "3", r.URL.Query().Get("riderId"))
		_, _ = io.WriteString(w, `{"success":true,"data":[{"id":1,"status":"REQUESTED"},{"id":2,"status":"MATCHED"}]}`)
	})
	rides, err := c.ListRides(context.Background(), RideQuery{Limit: 100, RiderID: 3})
	require.NoError(t, err)
	require.Len(t, rides, 2)
	assert.Equal(t, models.StatusMatched, rides[1].Status)
}

func TestUnsuccessfulEnvelopeIsProtocolFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"Driver not available"}`)
	})
	_, err := c.AcceptRide(context.Background(), 1, models.AcceptRideRequest{RideID: 2, DriverID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrProtocolFailure))
	assert.Equal(t, "Driver not available", UserMessage(err))
}

func TestNonSuccessStatusCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false,"message":"Ride not found"}`)
	})
	_, err := c.GetRide(context.Background(), 99)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusNotFound, be.Status)
	assert.Equal(t, "Ride not found", be.Message)
	assert.True(t, errors.Is(err, models.ErrProtocolFailure))
}

func TestMalformedBodyIsProtocolFailure(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     `<html>oops</html>`,
		"missing data": `{"success":true}`,
		"wrong shape":  `{"success":true,"data":{"rides":[]}}`,
		"bare array":   `[{"id":1}]`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			_, err := c.ListRides(context.Background(), RideQuery{Limit: 10})
			assert.True(t, errors.Is(err, models.ErrProtocolFailure), "got %v", err)
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second, logging.Discard())
	require.NoError(t, err)
	_, err = c.ListRides(context.Background(), RideQuery{Limit: 1})
	assert.True(t, errors.Is(err, models.ErrNetworkFailure))
}

func TestCreateRideSetsIdempotencyKey(t *testing.T) {
	var got models.CreateRideRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":11,"status":"REQUESTED"}}`)
	})
	ride, err := c.CreateRide(context.Background(), models.CreateRideRequest{RiderID: 1, VehicleTier: "ECONOMY"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), ride.ID)
	assert.NotEmpty(t, got.IdempotencyKey)
}

func TestTripEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/trips/start":
			assert.Equal(t, "5", r.URL.Query().Get("rideId"))
			_, _ = io.WriteString(w, `{"success":true,"data":{"id":70,"rideId":5,"status":"STARTED"}}`)
		case "/v1/trips/70/end":
			var req models.EndTripRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(70), req.TripID)
			assert.Equal(t, 15.5, req.DistanceKm)
			_, _ = io.WriteString(w, `{"success":true,"data":{"id":70,"rideId":5,"status":"COMPLETED","distanceKm":15.5}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	trip, err := c.StartTrip(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(70), trip.ID)

	trip, err = c.EndTrip(context.Background(), trip.ID, models.EndTripRequest{DistanceKm: 15.5})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", trip.Status)
}

func TestUpdateLocationIgnoresData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/drivers/4/location", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":"Location updated"}`)
	})
	require.NoError(t, c.UpdateLocation(context.Background(), 4, models.LocationUpdate{DriverID: 4, Latitude: 1, Longitude: 2}))
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/drivers/{id}/accept", routeLabel("/drivers/42/accept"))
	assert.Equal(t, "/rides", routeLabel("/rides"))
}
