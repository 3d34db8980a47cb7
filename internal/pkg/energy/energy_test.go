package energy

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

var base = time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

func counterSample(offset time.Duration, wh float64) model.Sample {
	return model.Sample{
		DeviceID: "em1",
		At:       model.Instant{Time: base.Add(offset), Source: model.SourceEpoch},
		EnergyWh: &wh,
	}
}

func powerSample(offset time.Duration, w float64) model.Sample {
	return model.Sample{
		DeviceID:    "em1",
		At:          model.Instant{Time: base.Add(offset), Source: model.SourceEpoch},
		TotalPowerW: w,
	}
}

func kwh(in []Annotated) []float64 {
	out := make([]float64, len(in))
	for i, a := range in {
		out[i] = a.IntervalKWh
	}
	return out
}

func TestDeriveCounter(t *testing.T) {
	d := NewDeriver(0)
	got, stats := d.Derive([]model.Sample{
		counterSample(0, 1000),
		counterSample(time.Hour, 1200),
		counterSample(2*time.Hour, 1200),
		counterSample(3*time.Hour, 1500),
	})

	assert.InDeltaSlice(t, []float64{0, 0.2, 0, 0.3}, kwh(got), 1e-12)
	assert.Equal(t, MethodNone, got[0].Method)
	assert.Equal(t, MethodCounter, got[1].Method)
	assert.Equal(t, Stats{}, stats)
}

func TestDeriveCounterResetClamped(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	d := NewDeriver(0)
	got, stats := d.Derive([]model.Sample{
		counterSample(0, 5000),
		counterSample(time.Minute, 5100),
		counterSample(2*time.Minute, 20),
		counterSample(3*time.Minute, 70),
	})

	assert.InDeltaSlice(t, []float64{0, 0.1, 0, 0.05}, kwh(got), 1e-12)
	for _, a := range got {
		assert.GreaterOrEqual(t, a.IntervalKWh, 0.0)
	}
	assert.Equal(t, 1, stats.CounterResets)
	assert.Len(t, logs.FilterMessage("energy counter reset").All(), 1)
}

func TestDerivePowerIntegration(t *testing.T) {
	d := NewDeriver(10 * time.Minute)
	got, stats := d.Derive([]model.Sample{
		powerSample(0, 1000),
		powerSample(time.Minute, 600),
		powerSample(7*time.Minute, 1200),
	})

	// 600 W for 1 min, then 1200 W for 6 min
	assert.InDeltaSlice(t, []float64{0, 0.01, 0.12}, kwh(got), 1e-12)
	assert.Equal(t, MethodPower, got[2].Method)
	assert.Zero(t, stats.GapsSkipped)
}

func TestDerivePowerGapBeyondCap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	d := NewDeriver(15 * time.Minute)
	got, stats := d.Derive([]model.Sample{
		powerSample(0, 500),
		powerSample(time.Minute, 500),
		powerSample(3*time.Hour, 5000),
		powerSample(3*time.Hour+time.Minute, 600),
	})

	assert.InDeltaSlice(t, []float64{0, 500.0 / 60 / 1000, 0, 0.01}, kwh(got), 1e-12)
	assert.Equal(t, MethodNone, got[2].Method)
	assert.Equal(t, 1, stats.GapsSkipped)
	assert.Len(t, logs.FilterMessage("sample gap exceeds plausibility cap").All(), 1)
}

func TestDeriveSortsAndDeduplicates(t *testing.T) {
	d := NewDeriver(0)
	in := []model.Sample{
		counterSample(2*time.Hour, 1300),
		counterSample(0, 1000),
		counterSample(time.Hour, 1100),
		counterSample(time.Hour, 1200),
	}
	got, stats := d.Derive(in)

	require.Len(t, got, 3)
	assert.Equal(t, 1, stats.Duplicates)
	assert.InDeltaSlice(t, []float64{0, 0.2, 0.1}, kwh(got), 1e-12)
	// input untouched
	assert.True(t, in[0].At.Time.Equal(base.Add(2*time.Hour)))
}

func TestDeriveDuplicatesIndependentOfOrder(t *testing.T) {
	in := []model.Sample{
		counterSample(0, 1000),
		counterSample(time.Hour, 1400),
		powerSample(time.Hour, 900),
		counterSample(time.Hour, 1200),
		counterSample(2*time.Hour, 1500),
		powerSample(3*time.Hour, 300),
		powerSample(3*time.Hour, 600),
		counterSample(4*time.Hour, 1600),
	}
	d := NewDeriver(2 * time.Hour)
	want, wantStats := d.Derive(in)
	require.Len(t, want, 5)
	assert.Equal(t, 3, wantStats.Duplicates)
	// the larger counter at 1h wins, the larger power at 3h wins
	assert.InDeltaSlice(t, []float64{0, 0.4, 0.1, 0.6, 0}, kwh(want), 1e-12)

	rng := rand.New(rand.NewPCG(7, 11))
	for range 20 {
		shuffled := slices.Clone(in)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, stats := d.Derive(shuffled)
		assert.Equal(t, wantStats, stats)
		assert.InDeltaSlice(t, kwh(want), kwh(got), 1e-12)
	}
}

func TestDeriveMixedSources(t *testing.T) {
	d := NewDeriver(0)
	got, _ := d.Derive([]model.Sample{
		counterSample(0, 1000),
		powerSample(time.Minute, 600),
		counterSample(2*time.Minute, 1010),
	})

	// no counter on one side of a pair falls back to power integration
	assert.Equal(t, MethodPower, got[1].Method)
	assert.Equal(t, MethodPower, got[2].Method)
	assert.InDelta(t, 0.01, got[1].IntervalKWh, 1e-12)
	assert.InDelta(t, 0.0, got[2].IntervalKWh, 1e-12)
}

func TestDeriveEmpty(t *testing.T) {
	got, stats := NewDeriver(0).Derive(nil)
	assert.Empty(t, got)
	assert.Equal(t, Stats{}, stats)
}
