package models

// CreateRideRequest is the body of POST /v1/rides.
type CreateRideRequest struct {
	RiderID              int64   `json:"riderId"`
	PickupLatitude       float64 `json:"pickupLatitude"`
	PickupLongitude      float64 `json:"pickupLongitude"`
	PickupAddress        string  `json:"pickupAddress"`
	DestinationLatitude  float64 `json:"destinationLatitude"`
	DestinationLongitude float64 `json:"destinationLongitude"`
	DestinationAddress   string  `json:"destinationAddress"`
	VehicleTier          string  `json:"vehicleTier"`
	PaymentMethod        string  `json:"paymentMethod"`
	Region               string  `json:"region"`
	TenantID             string  `json:"tenantId,omitempty"`
	IdempotencyKey       string  `json:"idempotencyKey,omitempty"`
}

type AcceptRideRequest struct {
	RideID           int64    `json:"rideId"`
	DriverID         int64    `json:"driverId"`
	CurrentLatitude  *float64 `json:"currentLatitude,omitempty"`
	CurrentLongitude *float64 `json:"currentLongitude,omitempty"`
}

type EndTripRequest struct {
	TripID       int64   `json:"tripId"`
	EndLatitude  float64 `json:"endLatitude"`
	EndLongitude float64 `json:"endLongitude"`
	DistanceKm   float64 `json:"distanceKm"`
}

// LocationUpdate is the body of POST /v1/drivers/{id}/location.
// Timestamp is epoch milliseconds.
type LocationUpdate struct {
	DriverID  int64   `json:"driverId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

type CreateDriverRequest struct {
	Name          string   `json:"name"`
	PhoneNumber   string   `json:"phoneNumber"`
	Email         string   `json:"email"`
	LicenseNumber string   `json:"licenseNumber"`
	VehicleNumber string   `json:"vehicleNumber"`
	VehicleTier   string   `json:"vehicleTier"`
	Status        string   `json:"status"`
	Region        string   `json:"region"`
	TenantID      string   `json:"tenantId,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
}

// UpdateDriverRequest only sends the fields that are set.
type UpdateDriverRequest struct {
	Name          *string  `json:"name,omitempty"`
	PhoneNumber   *string  `json:"phoneNumber,omitempty"`
	Email         *string  `json:"email,omitempty"`
	LicenseNumber *string  `json:"licenseNumber,omitempty"`
	VehicleNumber *string  `json:"vehicleNumber,omitempty"`
	VehicleTier   *string  `json:"vehicleTier,omitempty"`
	Status        *string  `json:"status,omitempty"`
	Region        *string  `json:"region,omitempty"`
	TenantID      *string  `json:"tenantId,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
}

type CreateRiderRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Region      string `json:"region"`
	TenantID    string `json:"tenantId,omitempty"`
}

type UpdateRiderRequest struct {
	Name        *string  `json:"name,omitempty"`
	PhoneNumber *string  `json:"phoneNumber,omitempty"`
	Email       *string  `json:"email,omitempty"`
	Region      *string  `json:"region,omitempty"`
	TenantID    *string  `json:"tenantId,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}
