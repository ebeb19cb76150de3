package models

import (
	"encoding/json"
	"fmt"
)

// RideStatus mirrors the backend ride lifecycle enumeration.
type RideStatus string

const (
	StatusRequested     RideStatus = "REQUESTED"
	StatusSearching     RideStatus = "SEARCHING"
	StatusMatched       RideStatus = "MATCHED"
	StatusAccepted      RideStatus = "ACCEPTED"
	StatusDriverArrived RideStatus = "DRIVER_ARRIVED"
	StatusInProgress    RideStatus = "IN_PROGRESS"
	StatusCompleted     RideStatus = "COMPLETED"
	StatusCancelled     RideStatus = "CANCELLED"
	StatusFailed        RideStatus = "FAILED"
)

// Known reports whether s is one of the statuses the backend emits.
func (s RideStatus) Known() bool {
	switch s {
	case StatusRequested, StatusSearching, StatusMatched, StatusAccepted,
		StatusDriverArrived, StatusInProgress, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Active reports whether a ride in this status is still being served.
func (s RideStatus) Active() bool {
	switch s {
	case StatusSearching, StatusMatched, StatusAccepted, StatusDriverArrived, StatusInProgress:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

type Coord struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// DriverSummary is the driver block the backend embeds in ride responses.
type DriverSummary struct {
	Name            string   `json:"name"`
	PhoneNumber     string   `json:"phoneNumber"`
	VehicleNumber   string   `json:"vehicleNumber"`
	Rating          *float64 `json:"rating,omitempty"`
	CurrentLocation *Coord   `json:"currentLocation,omitempty"`
}

// RideRecord is the unit of live state. ID is the sole merge key.
type RideRecord struct {
	ID                   int64          `json:"id"`
	RiderID              int64          `json:"riderId"`
	DriverID             *int64         `json:"driverId,omitempty"`
	Status               RideStatus     `json:"status"`
	VehicleTier          string         `json:"vehicleTier,omitempty"`
	PaymentMethod        string         `json:"paymentMethod,omitempty"`
	PickupLatitude       float64        `json:"pickupLatitude"`
	PickupLongitude      float64        `json:"pickupLongitude"`
	PickupAddress        string         `json:"pickupAddress"`
	DestinationLatitude  float64        `json:"destinationLatitude"`
	DestinationLongitude float64        `json:"destinationLongitude"`
	DestinationAddress   string         `json:"destinationAddress"`
	EstimatedFare        *float64       `json:"estimatedFare,omitempty"`
	SurgeMultiplier      *float64       `json:"surgeMultiplier,omitempty"`
	Region               string         `json:"region,omitempty"`
	CreatedAt            *Timestamp     `json:"createdAt,omitempty"`
	MatchedAt            *Timestamp     `json:"matchedAt,omitempty"`
	AcceptedAt           *Timestamp     `json:"acceptedAt,omitempty"`
	StartedAt            *Timestamp     `json:"startedAt,omitempty"`
	EndedAt              *Timestamp     `json:"endedAt,omitempty"`
	DriverInfo           *DriverSummary `json:"driverInfo,omitempty"`
}

// Validate rejects records without a backend-assigned identity.
func (r RideRecord) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	return nil
}

// Pickup returns the pickup point.
func (r RideRecord) Pickup() Coord { return Coord{Lat: r.PickupLatitude, Lon: r.PickupLongitude} }

// Destination returns the drop-off point.
func (r RideRecord) Destination() Coord {
	return Coord{Lat: r.DestinationLatitude, Lon: r.DestinationLongitude}
}

// DecodeRideRecord parses a single pushed ride payload.
func DecodeRideRecord(b []byte) (RideRecord, error) {
	var r RideRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return RideRecord{}, fmt.Errorf("%w: ride payload: %v", ErrProtocolFailure, err)
	}
	if err := r.Validate(); err != nil {
		return RideRecord{}, err
	}
	return r, nil
}

// Envelope is the canonical wrapper of every backend response.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type Driver struct {
	ID                 int64      `json:"id"`
	PhoneNumber        string     `json:"phoneNumber"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	LicenseNumber      string     `json:"licenseNumber"`
	VehicleNumber      string     `json:"vehicleNumber"`
	VehicleTier        string     `json:"vehicleTier"`
	Status             string     `json:"status"`
	Region             string     `json:"region"`
	TenantID           string     `json:"tenantId,omitempty"`
	Rating             *float64   `json:"rating,omitempty"`
	TotalRides         int        `json:"totalRides"`
	LastLocationUpdate *Timestamp `json:"lastLocationUpdate,omitempty"`
	CreatedAt          *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt          *Timestamp `json:"updatedAt,omitempty"`
}

type Rider struct {
	ID          int64      `json:"id"`
	PhoneNumber string     `json:"phoneNumber"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Region      string     `json:"region"`
	TenantID    string     `json:"tenantId,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	TotalRides  int        `json:"totalRides"`
	CreatedAt   *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt   *Timestamp `json:"updatedAt,omitempty"`
}

type Trip struct {
	ID                    int64      `json:"id"`
	RideID                int64      `json:"rideId"`
	DriverID              int64      `json:"driverId"`
	RiderID               int64      `json:"riderId"`
	Status                string     `json:"status"`
	StartLatitude         *float64   `json:"startLatitude,omitempty"`
	StartLongitude        *float64   `json:"startLongitude,omitempty"`
	EndLatitude           *float64   `json:"endLatitude,omitempty"`
	EndLongitude          *float64   `json:"endLongitude,omitempty"`
	StartTime             *Timestamp `json:"startTime,omitempty"`
	EndTime               *Timestamp `json:"endTime,omitempty"`
	PausedDurationSeconds int64      `json:"pausedDurationSeconds"`
	DistanceKm            float64    `json:"distanceKm"`
	DurationMinutes       int64      `json:"durationMinutes"`
	BaseFare              *float64   `json:"baseFare,omitempty"`
	SurgeMultiplier       *float64   `json:"surgeMultiplier,omitempty"`
	TotalFare             *float64   `json:"totalFare,omitempty"`
}
