package models

import (
	"encoding/json"
	"fmt"
)

// EventNewRideRequest is sent to a driver topic when a ride is offered to them.
const EventNewRideRequest = "NEW_RIDE_REQUEST"

// DriverNotification is the envelope of /topic/driver/{id} messages.
type DriverNotification struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// RideOffer is the pending-ride summary carried by NEW_RIDE_REQUEST.
type RideOffer struct {
	RideID          int64   `json:"rideId"`
	PickupAddress   string  `json:"pickupAddress"`
	PickupLatitude  float64 `json:"pickupLatitude"`
	PickupLongitude float64 `json:"pickupLongitude"`
}

func DecodeDriverNotification(b []byte) (DriverNotification, error) {
	var n DriverNotification
	if err := json.Unmarshal(b, &n); err != nil {
		return DriverNotification{}, fmt.Errorf("%w: driver notification: %v", ErrProtocolFailure, err)
	}
	if n.EventType == "" {
		return DriverNotification{}, fmt.Errorf("%w: driver notification without eventType", ErrProtocolFailure)
	}
	return n, nil
}

// Offer decodes the NEW_RIDE_REQUEST payload.
func (n DriverNotification) Offer() (RideOffer, error) {
	var o RideOffer
	if err := json.Unmarshal(n.Data, &o); err != nil {
		return RideOffer{}, fmt.Errorf("%w: ride offer: %v", ErrProtocolFailure, err)
	}
	if o.RideID <= 0 {
		return RideOffer{}, fmt.Errorf("%w: ride offer without rideId", ErrInvalidRecord)
	}
	return o, nil
}
