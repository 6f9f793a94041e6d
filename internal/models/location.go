package models

import (
	"time"
)

// Coordinate is a latitude/longitude pair as reported by the location source.
// Values are taken verbatim; no range validation is applied.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Equal reports whether both coordinates describe the same position.
func (c Coordinate) Equal(other Coordinate) bool {
	return c.Latitude == other.Latitude && c.Longitude == other.Longitude
}

// LocationEvent is produced once per distinct coordinate observed by a tracker.
type LocationEvent struct {
	Coordinate Coordinate
	ObservedAt time.Time
}

// LocationFrame is the outbound message sent to every connected subscriber.
type LocationFrame struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Frame converts the event into its wire representation.
func (e LocationEvent) Frame() LocationFrame {
	return LocationFrame{Lat: e.Coordinate.Latitude, Lng: e.Coordinate.Longitude}
}

// LocationMessage is the payload republished over MQTT.
type LocationMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}
