package model

import (
	"iter"
	"time"
)

// Instant is an absolute point in time tagged with the way it was derived
// from the stored value. Only the storage layer creates Instants.
type Instant struct {
	Time   time.Time       `json:"time"`
	Source TimestampSource `json:"source"`
}

type Phase struct {
	PowerW      float64 `json:"power_w"`
	VoltageV    float64 `json:"voltage_v"`
	CurrentA    float64 `json:"current_a"`
	PowerFactor float64 `json:"power_factor"`
}

// Sample is one telemetry reading of one device.
type Sample struct {
	DeviceID    string  `json:"device_id"`
	At          Instant `json:"at"`
	Phases      []Phase `json:"phases"`
	TotalPowerW float64 `json:"total_power_w"`
	// EnergyWh is the cumulative active-energy counter summed over phases,
	// nil when the row carries no counter.
	EnergyWh *float64 `json:"energy_wh,omitempty"`
}

func (s Sample) HasCounter() bool {
	return s.EnergyWh != nil
}

// SampleSeries is the result of a store query. Samples can be ranged over
// any number of times; every pass reads the underlying data again.
type SampleSeries interface {
	Samples() iter.Seq[Sample]
	// Corrupt returns the number of rows skipped during the most recent pass.
	Corrupt() int
	// Err reports why the most recent pass ended early. A series without
	// rows has a nil Err.
	Err() error
}

// SliceSeries adapts an in-memory slice to SampleSeries.
type SliceSeries []Sample

func (s SliceSeries) Samples() iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		for _, sample := range s {
			if !yield(sample) {
				return
			}
		}
	}
}

func (s SliceSeries) Corrupt() int { return 0 }

func (s SliceSeries) Err() error { return nil }

type Device struct {
	Key    string `yaml:"key" json:"key"`
	Name   string `yaml:"name" json:"name"`
	Host   string `yaml:"host" json:"host,omitempty"`
	Phases int    `yaml:"phases" json:"phases"`
}

func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Key
}
