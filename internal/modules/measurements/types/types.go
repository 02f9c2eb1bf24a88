package types

import "time"

// Measurement is one power-meter reading. Timestamp is assigned at ingest.
type Measurement struct {
	Power     float64   `json:"power"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Energy    float64   `json:"energy"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter bounds a time-range query. Nil bounds are open; both are inclusive.
type Filter struct {
	Start *time.Time
	End   *time.Time
}
