package energy

import (
	"cmp"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

// DefaultMaxGap is the longest sample gap still integrated as real usage.
const DefaultMaxGap = 15 * time.Minute

type Method string

func (m Method) String() string {
	return string(m)
}

const (
	MethodNone    Method = "none"    // first sample or skipped gap.
	MethodCounter Method = "counter" // difference of cumulative counters.
	MethodPower   Method = "power"   // power integrated over the gap.
)

// Annotated is a sample together with the energy used since its predecessor.
type Annotated struct {
	model.Sample
	IntervalKWh float64
	Method      Method
}

type Stats struct {
	Duplicates    int
	CounterResets int
	GapsSkipped   int
}

type Deriver struct {
	maxGap time.Duration
	logger *zap.Logger
}

func NewDeriver(maxGap time.Duration) *Deriver {
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}
	return &Deriver{
		maxGap: maxGap,
		logger: zap.L(),
	}
}

func (d *Deriver) MaxGap() time.Duration {
	return d.maxGap
}

// Derive sorts samples, drops duplicate timestamps and attaches interval
// energy to every remaining sample. Of several rows sharing a timestamp the
// one with a counter wins, then the larger counter, then the larger power,
// so the result does not depend on input order. The input is not modified.
func (d *Deriver) Derive(samples []model.Sample) ([]Annotated, Stats) {
	var stats Stats
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b model.Sample) int {
		if c := a.At.Time.Compare(b.At.Time); c != 0 {
			return c
		}
		return preference(a, b)
	})

	unique := sorted[:0]
	for _, s := range sorted {
		if n := len(unique); n > 0 && unique[n-1].At.Time.Equal(s.At.Time) {
			unique[n-1] = s
			stats.Duplicates++
			continue
		}
		unique = append(unique, s)
	}

	out := make([]Annotated, len(unique))
	for i, s := range unique {
		out[i] = Annotated{Sample: s, Method: MethodNone}
		if i == 0 {
			continue
		}
		prev := unique[i-1]

		if s.HasCounter() && prev.HasCounter() {
			delta := *s.EnergyWh - *prev.EnergyWh
			if delta < 0 {
				stats.CounterResets++
				d.logger.Info("energy counter reset",
					zap.String("device", s.DeviceID),
					zap.Time("at", s.At.Time),
					zap.Float64("previous_wh", *prev.EnergyWh),
					zap.Float64("current_wh", *s.EnergyWh),
				)
				delta = 0
			}
			out[i].IntervalKWh = delta / 1000
			out[i].Method = MethodCounter
			continue
		}

		gap := s.At.Time.Sub(prev.At.Time)
		if gap > d.maxGap {
			stats.GapsSkipped++
			d.logger.Info("sample gap exceeds plausibility cap",
				zap.String("device", s.DeviceID),
				zap.Time("from", prev.At.Time),
				zap.Time("to", s.At.Time),
				zap.Duration("gap", gap),
				zap.Duration("max_gap", d.maxGap),
			)
			continue
		}
		out[i].IntervalKWh = s.TotalPowerW * gap.Hours() / 1000
		out[i].Method = MethodPower
	}
	return out, stats
}

// preference orders samples sharing a timestamp, least preferred first.
func preference(a, b model.Sample) int {
	if c := cmp.Compare(counterRank(a), counterRank(b)); c != 0 {
		return c
	}
	if a.HasCounter() {
		if c := cmp.Compare(*a.EnergyWh, *b.EnergyWh); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.TotalPowerW, b.TotalPowerW)
}

func counterRank(s model.Sample) int {
	if s.HasCounter() {
		return 1
	}
	return 0
}
