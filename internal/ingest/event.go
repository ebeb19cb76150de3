package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/example/ridewatch/internal/models"
)

// Event is one observed ride state on the change feed.
type Event struct {
	Kind       string            `json:"kind"`
	Ride       models.RideRecord `json:"ride"`
	ObservedAt time.Time         `json:"observedAt"`
}

func (e Event) Key() []byte {
	return []byte(strconv.FormatInt(e.Ride.ID, 10))
}

func DecodeEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("%w: change event: %v", models.ErrProtocolFailure, err)
	}
	if err := e.Ride.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
