// Package driverdesk keeps the driver panel state: offers pushed to the
// driver's topic, the ride the driver accepted, its trip, and short-lived
// notices reporting the outcome of each command.
package driverdesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/geo"
	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/observability"
	"github.com/example/ridewatch/internal/push"
)

// NoticeTTL is how long a notice stays visible.
const NoticeTTL = 5 * time.Second

const topicLabel = "/topic/driver"

var (
	ErrNoDriver      = errors.New("no driver selected")
	ErrNoActiveRide  = errors.New("no accepted ride")
	ErrNoActiveTrip  = errors.New("no trip in progress")
	ErrTripStarted   = errors.New("trip already started")
	ErrBadCoordinate = errors.New("coordinate out of range")
	// ErrDriverChanged means another driver was selected, or the ride was
	// replaced, while the command was with the backend. The desk keeps the
	// current driver's state.
	ErrDriverChanged = errors.New("driver changed during command")
)

// Commands is the part of the backend client the desk drives.
type Commands interface {
	AcceptRide(ctx context.Context, driverID int64, req models.AcceptRideRequest) (models.RideRecord, error)
	StartTrip(ctx context.Context, rideID int64) (models.Trip, error)
	EndTrip(ctx context.Context, tripID int64, req models.EndTripRequest) (models.Trip, error)
	UpdateLocation(ctx context.Context, driverID int64, u models.LocationUpdate) error
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Pending is an offered ride with distance and ETA from the driver's last
// known location, when there is one.
type Pending struct {
	models.RideOffer
	DistanceKm *float64  `json:"distanceKm,omitempty"`
	ETASeconds *float64  `json:"etaSeconds,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type Snapshot struct {
	DriverID   int64              `json:"driverId"`
	Connected  bool               `json:"connected"`
	Location   *models.Coord      `json:"location,omitempty"`
	Pending    []Pending          `json:"pending"`
	ActiveRide *models.RideRecord `json:"activeRide,omitempty"`
	ActiveTrip *models.Trip       `json:"activeTrip,omitempty"`
	Notices    []Notice           `json:"notices"`
}

func DriverTopic(driverID int64) string {
	return fmt.Sprintf("/topic/driver/%d", driverID)
}

type offer struct {
	models.RideOffer
	received time.Time
}

type Desk struct {
	ch     push.Channel
	cmds   Commands
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	driverID   int64
	subscribed string
	location   *models.Coord
	pending    []offer
	activeRide *models.RideRecord
	activeTrip *models.Trip
	starting   bool
	// locations reported since the trip started, for its distance
	trail   []models.Coord
	notices []Notice
}

// New builds a desk for driverID; zero means no driver selected yet.
func New(ch push.Channel, cmds Commands, driverID int64, logger *slog.Logger) *Desk {
	return &Desk{ch: ch, cmds: cmds, driverID: driverID, logger: logger, now: time.Now}
}

func (d *Desk) Activate(ctx context.Context, onReady func(), onFailure func(error)) {
	d.mu.Lock()
	d.subscribeLocked()
	d.mu.Unlock()
	d.ch.Activate(ctx, onReady, onFailure)
}

func (d *Desk) Deactivate() {
	d.mu.Lock()
	topic := d.subscribed
	d.subscribed = ""
	d.mu.Unlock()
	if topic != "" {
		d.ch.Unsubscribe(topic)
	}
	d.ch.Deactivate()
}

// SetDriver switches to another driver. Offers and the accepted ride of the
// previous driver are dropped.
func (d *Desk) SetDriver(driverID int64) {
	d.mu.Lock()
	if driverID == d.driverID {
		d.mu.Unlock()
		return
	}
	old := d.subscribed
	d.driverID = driverID
	d.subscribed = ""
	d.pending = nil
	d.activeRide, d.activeTrip, d.location = nil, nil, nil
	d.trail = nil
	d.mu.Unlock()

	if old != "" {
		d.ch.Unsubscribe(old)
	}
	d.mu.Lock()
	d.subscribeLocked()
	d.mu.Unlock()
	d.logger.Info("driver selected", "driver_id", driverID)
}

func (d *Desk) subscribeLocked() {
	if d.driverID <= 0 || d.subscribed != "" {
		return
	}
	d.subscribed = DriverTopic(d.driverID)
	d.ch.Subscribe(d.subscribed, d.handle)
}

func (d *Desk) DriverID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driverID
}

func (d *Desk) handle(body []byte) {
	n, err := models.DecodeDriverNotification(body)
	if err != nil {
		observability.PushEventsTotal.WithLabelValues(topicLabel, "dropped").Inc()
		d.logger.Warn("dropping driver notification", "error", err)
		return
	}
	if n.EventType != models.EventNewRideRequest {
		observability.PushEventsTotal.WithLabelValues(topicLabel, "ignored").Inc()
		d.logger.Debug("ignoring driver notification", "event_type", n.EventType)
		return
	}
	o, err := n.Offer()
	if err != nil {
		observability.PushEventsTotal.WithLabelValues(topicLabel, "dropped").Inc()
		d.logger.Warn("dropping ride offer", "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pending {
		if p.RideID == o.RideID {
			observability.PushEventsTotal.WithLabelValues(topicLabel, "duplicate").Inc()
			return
		}
	}
	d.pending = append(d.pending, offer{RideOffer: o, received: d.now()})
	observability.PushEventsTotal.WithLabelValues(topicLabel, "merged").Inc()
	d.logger.Info("ride offered", "driver_id", d.driverID, "ride_id", o.RideID)
}

func (d *Desk) Pending() []Pending {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingLocked()
}

func (d *Desk) pendingLocked() []Pending {
	out := make([]Pending, 0, len(d.pending))
	for _, o := range d.pending {
		p := Pending{RideOffer: o.RideOffer, ReceivedAt: o.received}
		if d.location != nil {
			pickup := models.Coord{Lat: o.PickupLatitude, Lon: o.PickupLongitude}
			km := geo.DistanceKm(*d.location, pickup)
			eta := geo.EstimateSeconds(*d.location, pickup, geo.DefaultSpeedMps)
			p.DistanceKm, p.ETASeconds = &km, &eta
		}
		out = append(out, p)
	}
	return out
}

// Accept claims an offered ride for the current driver.
func (d *Desk) Accept(ctx context.Context, rideID int64) (models.RideRecord, error) {
	d.mu.Lock()
	driverID := d.driverID
	req := models.AcceptRideRequest{RideID: rideID, DriverID: driverID}
	if d.location != nil {
		lat, lon := d.location.Lat, d.location.Lon
		req.CurrentLatitude, req.CurrentLongitude = &lat, &lon
	}
	d.mu.Unlock()
	if driverID <= 0 {
		return models.RideRecord{}, d.fail("accept", ErrNoDriver)
	}

	ride, err := d.cmds.AcceptRide(ctx, driverID, req)
	if err != nil {
		return models.RideRecord{}, d.fail("accept", err)
	}

	d.mu.Lock()
	if d.driverID != driverID {
		d.mu.Unlock()
		return ride, d.fail("accept", fmt.Errorf("%w: ride #%d was accepted for driver %d", ErrDriverChanged, rideID, driverID))
	}
	d.removePendingLocked(rideID)
	d.activeRide = &ride
	d.activeTrip = nil
	d.trail = nil
	d.mu.Unlock()
	d.succeed("accept", fmt.Sprintf("Ride #%d accepted", rideID))
	return ride, nil
}

// StartTrip starts the trip for the accepted ride. Only one start can be in
// flight at a time.
func (d *Desk) StartTrip(ctx context.Context) (models.Trip, error) {
	d.mu.Lock()
	ride := d.activeRide
	switch {
	case ride == nil:
		d.mu.Unlock()
		return models.Trip{}, d.fail("start_trip", ErrNoActiveRide)
	case d.activeTrip != nil || d.starting:
		d.mu.Unlock()
		return models.Trip{}, d.fail("start_trip", ErrTripStarted)
	}
	d.starting = true
	d.mu.Unlock()

	t, err := d.cmds.StartTrip(ctx, ride.ID)

	d.mu.Lock()
	d.starting = false
	if err != nil {
		d.mu.Unlock()
		return models.Trip{}, d.fail("start_trip", err)
	}
	if d.activeRide != ride {
		d.mu.Unlock()
		return t, d.fail("start_trip", fmt.Errorf("%w: trip #%d belongs to ride #%d", ErrDriverChanged, t.ID, ride.ID))
	}
	d.activeTrip = &t
	d.trail = d.trail[:0]
	if d.location != nil {
		d.trail = append(d.trail, *d.location)
	}
	d.mu.Unlock()
	d.succeed("start_trip", fmt.Sprintf("Trip #%d started", t.ID))
	return t, nil
}

// EndTrip ends the running trip at the driver's last location, or at the
// ride's destination when no location was reported. A zero distanceKm is
// replaced by the length of the route reported since the trip started.
func (d *Desk) EndTrip(ctx context.Context, distanceKm float64) (models.Trip, error) {
	d.mu.Lock()
	ride, trip, loc := d.activeRide, d.activeTrip, d.location
	route := geo.RouteDistanceKm(d.trail)
	d.mu.Unlock()
	if trip == nil {
		return models.Trip{}, d.fail("end_trip", ErrNoActiveTrip)
	}
	if distanceKm == 0 {
		distanceKm = route
	}

	end := models.Coord{}
	switch {
	case loc != nil:
		end = *loc
	case ride != nil:
		end = ride.Destination()
	}
	t, err := d.cmds.EndTrip(ctx, trip.ID, models.EndTripRequest{
		EndLatitude:  end.Lat,
		EndLongitude: end.Lon,
		DistanceKm:   distanceKm,
	})
	if err != nil {
		return models.Trip{}, d.fail("end_trip", err)
	}
	d.mu.Lock()
	if d.activeTrip == trip {
		d.activeTrip, d.activeRide = nil, nil
		d.trail = nil
	}
	d.mu.Unlock()
	d.succeed("end_trip", fmt.Sprintf("Trip #%d completed", t.ID))
	return t, nil
}

func (d *Desk) UpdateLocation(ctx context.Context, lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return d.fail("update_location", fmt.Errorf("%w: %f,%f", ErrBadCoordinate, lat, lon))
	}
	driverID := d.DriverID()
	if driverID <= 0 {
		return d.fail("update_location", ErrNoDriver)
	}
	err := d.cmds.UpdateLocation(ctx, driverID, models.LocationUpdate{
		DriverID:  driverID,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: d.now().UnixMilli(),
	})
	if err != nil {
		return d.fail("update_location", err)
	}
	d.mu.Lock()
	if d.driverID != driverID {
		d.mu.Unlock()
		return d.fail("update_location", fmt.Errorf("%w: location was sent for driver %d", ErrDriverChanged, driverID))
	}
	at := models.Coord{Lat: lat, Lon: lon}
	d.location = &at
	if d.activeTrip != nil {
		d.trail = append(d.trail, at)
	}
	d.mu.Unlock()
	d.succeed("update_location", "Location updated")
	return nil
}

// Notices returns the notices younger than NoticeTTL, oldest first.
func (d *Desk) Notices() []Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.noticesLocked()
}

func (d *Desk) noticesLocked() []Notice {
	cutoff := d.now().Add(-NoticeTTL)
	kept := d.notices[:0]
	for _, n := range d.notices {
		if n.At.After(cutoff) {
			kept = append(kept, n)
		}
	}
	d.notices = kept
	return append([]Notice{}, kept...)
}

func (d *Desk) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		DriverID:  d.driverID,
		Connected: d.ch.Connected(),
		Pending:   d.pendingLocked(),
		Notices:   d.noticesLocked(),
	}
	if d.location != nil {
		loc := *d.location
		s.Location = &loc
	}
	if d.activeRide != nil {
		r := *d.activeRide
		s.ActiveRide = &r
	}
	if d.activeTrip != nil {
		t := *d.activeTrip
		s.ActiveTrip = &t
	}
	return s
}

func (d *Desk) removePendingLocked(rideID int64) {
	kept := d.pending[:0]
	for _, o := range d.pending {
		if o.RideID != rideID {
			kept = append(kept, o)
		}
	}
	d.pending = kept
}

func (d *Desk) fail(op string, err error) error {
	observability.DeskCommandsTotal.WithLabelValues(op, "error").Inc()
	d.logger.Warn("driver command failed", "op", op, "error", err)
	d.notify(LevelError, backend.UserMessage(err))
	return err
}

func (d *Desk) succeed(op, msg string) {
	observability.DeskCommandsTotal.WithLabelValues(op, "ok").Inc()
	d.notify(LevelInfo, msg)
}

func (d *Desk) notify(level Level, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notices = append(d.notices, Notice{Level: level, Message: msg, At: d.now()})
}
