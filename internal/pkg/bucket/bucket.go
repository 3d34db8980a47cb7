package bucket

import (
	"slices"
	"sort"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/energy"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

type Width = model.Width

const (
	Hour = model.WidthHour
	Day  = model.WidthDay
)

// Bounds returns the empty buckets covering w, the last one clipped to w.End.
func Bounds(w model.Window, width Width) []model.Bucket {
	if !w.Valid() {
		return nil
	}
	var out []model.Bucket
	for start := w.Start; start.Before(w.End); {
		end := width.Step(start)
		if end.After(w.End) {
			end = w.End
		}
		out = append(out, model.Bucket{Start: start, End: end})
		start = end
	}
	return out
}

// Bucketize folds the interval energy of samples into the buckets of w. The
// second result is the number of samples that fell outside every bucket.
func Bucketize(samples []energy.Annotated, w model.Window, width Width) ([]model.Bucket, int) {
	buckets := Bounds(w, width)

	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b energy.Annotated) int {
		return a.At.Time.Compare(b.At.Time)
	})

	var dropped int
	for _, s := range sorted {
		at := s.At.Time
		i := sort.Search(len(buckets), func(i int) bool {
			return buckets[i].End.After(at)
		})
		if i == len(buckets) || at.Before(buckets[i].Start) {
			dropped++
			continue
		}
		buckets[i].KWh += s.IntervalKWh
		buckets[i].Count++
	}
	return buckets, dropped
}
