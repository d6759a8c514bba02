package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coordinate is a latitude/longitude pair. It marshals as a two-element
// JSON array, matching the wire and storage format used by clients.
type Coordinate struct {
	Lat float64
	Lng float64
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lng})
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return fmt.Errorf("coordinate must be a [lat, lng] pair")
	}
	c.Lat = pair[0]
	c.Lng = pair[1]
	return nil
}

// RunDetails carries the synthetic workout statistics attached to a route.
// It has no identity of its own and round-trips losslessly through storage.
type RunDetails struct {
	Distance      float64 `json:"distance"`
	Duration      int     `json:"duration"`
	Pace          string  `json:"pace"`
	Calories      int     `json:"calories"`
	RouteName     string  `json:"route_name"`
	ElevationGain float64 `json:"elevation_gain"`
	ActivityType  string  `json:"activity_type"`
	Name          string  `json:"name"`
	Date          string  `json:"date"`
	StartTime     string  `json:"start_time"`
	Description   string  `json:"description"`
}

// ApplyDefaults fills the documented fallback values for optional fields.
func (d *RunDetails) ApplyDefaults() {
	if d.ActivityType == "" {
		d.ActivityType = "run"
	}
	if d.StartTime == "" {
		d.StartTime = "08:00"
	}
}

// SavedRoute is a persisted route owned by exactly one user. Name is the
// overwrite key; duplicate names per owner are allowed unless an overwrite
// is explicitly requested.
type SavedRoute struct {
	ID          string
	Name        string
	Coordinates []Coordinate
	RunDetails  RunDetails
	CreatedAt   time.Time
	UserID      string
}
