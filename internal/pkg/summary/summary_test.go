package summary

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/bucket"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

var midnight = time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

func TestRenderZeroSummaryKeepsBuckets(t *testing.T) {
	w := model.Window{Start: midnight, End: midnight.AddDate(0, 0, 1)}
	buckets, _ := bucket.Bucketize(nil, w, bucket.Hour)

	s, err := Render("em1", buckets, 0.32)
	require.NoError(t, err)

	assert.Len(t, s.Buckets, 24)
	assert.Len(t, s.Series, 24)
	assert.Zero(t, s.TotalKWh)
	assert.Zero(t, s.TotalCost)
	assert.True(t, s.Window.Start.Equal(w.Start))
	assert.True(t, s.Window.End.Equal(w.End))
}

func TestRenderEmptyWindow(t *testing.T) {
	_, err := Render("em1", nil, 0.32)
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestRenderTotalsMatchBuckets(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	buckets := make([]model.Bucket, 48)
	for i := range buckets {
		start := midnight.Add(time.Duration(i) * time.Hour)
		buckets[i] = model.Bucket{Start: start, End: start.Add(time.Hour), KWh: rng.Float64()}
	}

	s, err := Render("em1", buckets, 0.3)
	require.NoError(t, err)

	var sum float64
	for _, b := range s.Buckets {
		sum += b.KWh
	}
	assert.InDelta(t, sum, s.TotalKWh, 1e-9)
	assert.InDelta(t, s.TotalKWh*0.3, s.TotalCost, 1e-9)
	for i, p := range s.Series {
		assert.Equal(t, buckets[i].Start, p.At)
		assert.Equal(t, buckets[i].KWh, p.KWh)
	}
}

func TestTopBuckets(t *testing.T) {
	s := model.DeviceSummary{Buckets: []model.Bucket{
		{Start: midnight, KWh: 0.1},
		{Start: midnight.Add(time.Hour), KWh: 0},
		{Start: midnight.Add(2 * time.Hour), KWh: 0.5},
		{Start: midnight.Add(3 * time.Hour), KWh: 0.3},
	}}

	top := TopBuckets(s, 2)
	require.Len(t, top, 2)
	assert.Equal(t, 0.5, top[0].KWh)
	assert.Equal(t, 0.3, top[1].KWh)
	assert.Len(t, TopBuckets(s, 10), 3)
}

func TestText(t *testing.T) {
	s, err := Render("em1", []model.Bucket{
		{Start: midnight, End: midnight.Add(time.Hour), KWh: 1.2345},
		{Start: midnight.Add(time.Hour), End: midnight.Add(2 * time.Hour), KWh: 0.5},
	}, 0.3)
	require.NoError(t, err)
	s.DeviceName = "Kitchen"
	s.Currency = "EUR"
	s.Diagnostics = model.Diagnostics{CounterResets: 1}

	tests := map[string]struct {
		opts     Options
		contains []string
		excludes []string
	}{
		"detailed": {
			opts:     Options{},
			contains: []string{"Kitchen", "30.01.2026 00:00 - 30.01.2026 02:00", "Energy: 1.735 kWh", "Cost: 0.52 EUR", "Peak periods:", "30.01.2026 00:00  1.235 kWh", "Data quality: 1 counter resets"},
		},
		"simple": {
			opts:     Options{Detail: model.DetailSimple},
			contains: []string{"Energy: 1.735 kWh"},
			excludes: []string{"Peak periods:", "Data quality"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			text := Text(s, tt.opts)
			for _, c := range tt.contains {
				assert.Contains(t, text, c)
			}
			for _, e := range tt.excludes {
				assert.NotContains(t, text, e)
			}
		})
	}
}
