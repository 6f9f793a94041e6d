package models

import "time"

// Status is the periodic engine status published over MQTT.
type Status struct {
	Timestamp   time.Time `json:"timestamp"`
	State       string    `json:"state"`
	Barcode     string    `json:"barcode,omitempty"`
	Subscribers int       `json:"subscribers"`
}
