package summary

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/money"
)

var ErrEmptyWindow = errors.New("empty window")

// Render totals buckets into a summary. Buckets without energy are kept, both
// in Buckets and in Series.
func Render(deviceID string, buckets []model.Bucket, unitPrice float64) (model.DeviceSummary, error) {
	if len(buckets) == 0 {
		return model.DeviceSummary{}, fmt.Errorf("%w: no buckets for %q", ErrEmptyWindow, deviceID)
	}

	var total float64
	series := make([]model.Point, len(buckets))
	for i, b := range buckets {
		total += b.KWh
		series[i] = model.Point{At: b.Start, KWh: b.KWh}
	}

	return model.DeviceSummary{
		DeviceID:   deviceID,
		DeviceName: deviceID,
		Window:     model.Window{Start: buckets[0].Start, End: buckets[len(buckets)-1].End},
		TotalKWh:   total,
		UnitPrice:  unitPrice,
		TotalCost:  total * unitPrice,
		Buckets:    slices.Clone(buckets),
		Series:     series,
	}, nil
}

// TopBuckets returns up to n buckets with the highest usage, largest first.
// Buckets without usage are never included.
func TopBuckets(s model.DeviceSummary, n int) []model.Bucket {
	used := lo.Filter(s.Buckets, func(b model.Bucket, _ int) bool {
		return b.KWh > 0
	})
	slices.SortStableFunc(used, func(a, b model.Bucket) int {
		return cmp.Compare(b.KWh, a.KWh)
	})
	if n >= 0 && len(used) > n {
		used = used[:n]
	}
	return used
}

type Options struct {
	Detail model.DetailLevel
	// Top is the number of busiest buckets listed in detailed mode.
	Top        int
	TimeFormat string
}

func (o Options) withDefaults() Options {
	if o.Detail == "" {
		o.Detail = model.DetailDetailed
	}
	if o.Top == 0 {
		o.Top = 3
	}
	if o.TimeFormat == "" {
		o.TimeFormat = "02.01.2006 15:04"
	}
	return o
}

// Text renders s as a short chat message.
func Text(s model.DeviceSummary, opts Options) string {
	opts = opts.withDefaults()
	var b strings.Builder

	name := lo.Ternary(s.DeviceName != "", s.DeviceName, s.DeviceID)
	fmt.Fprintf(&b, "%s\n", name)
	fmt.Fprintf(&b, "%s - %s\n", s.Window.Start.Format(opts.TimeFormat), s.Window.End.Format(opts.TimeFormat))
	fmt.Fprintf(&b, "Energy: %s kWh\n", money.Format(s.TotalKWh, 3))
	if s.UnitPrice > 0 {
		fmt.Fprintf(&b, "Cost: %s %s\n", money.Format(s.TotalCost, 2), s.Currency)
	}

	if opts.Detail == model.DetailDetailed {
		top := TopBuckets(s, opts.Top)
		if len(top) > 0 {
			b.WriteString("Peak periods:\n")
			for _, bucket := range top {
				fmt.Fprintf(&b, "  %s  %s kWh\n", bucket.Start.Format(opts.TimeFormat), money.Format(bucket.KWh, 3))
			}
		}
		if !s.Diagnostics.Clean() {
			fmt.Fprintf(&b, "Data quality: %s\n", diagnostics(s.Diagnostics))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func diagnostics(d model.Diagnostics) string {
	var parts []string
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(d.CorruptRows, "corrupt rows")
	add(d.Duplicates, "duplicates")
	add(d.CounterResets, "counter resets")
	add(d.GapsSkipped, "gaps skipped")
	add(d.OutOfWindow, "out of window")
	return strings.Join(parts, ", ")
}
