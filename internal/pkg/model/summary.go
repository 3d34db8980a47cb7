package model

import "time"

// Window is the half-open interval [Start, End) in a single zone.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) Location() *time.Location {
	return w.Start.Location()
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

type Bucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	KWh   float64   `json:"kwh"`
	Count int       `json:"count"`
}

// Point is one entry of a chart series.
type Point struct {
	At  time.Time `json:"at"`
	KWh float64   `json:"kwh"`
}

// Diagnostics collects data-quality counters for one pipeline run. A
// non-zero counter means data was dropped or clamped, not that the run failed.
type Diagnostics struct {
	CorruptRows   int `json:"corrupt_rows"`
	Duplicates    int `json:"duplicates"`
	CounterResets int `json:"counter_resets"`
	GapsSkipped   int `json:"gaps_skipped"`
	OutOfWindow   int `json:"out_of_window"`
	Samples       int `json:"samples"`
}

func (d Diagnostics) Clean() bool {
	return d.CorruptRows == 0 && d.Duplicates == 0 && d.CounterResets == 0 && d.GapsSkipped == 0 && d.OutOfWindow == 0
}

type DeviceSummary struct {
	DeviceID    string      `json:"device_id"`
	DeviceName  string      `json:"device_name"`
	Window      Window      `json:"window"`
	Width       Width       `json:"width"`
	TotalKWh    float64     `json:"total_kwh"`
	UnitPrice   float64     `json:"unit_price"`
	TotalCost   float64     `json:"total_cost"`
	Currency    string      `json:"currency"`
	Buckets     []Bucket    `json:"buckets"`
	Series      []Point     `json:"series"`
	Diagnostics Diagnostics `json:"diagnostics"`
}
