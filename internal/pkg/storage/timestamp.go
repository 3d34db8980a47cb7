package storage

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

var errEmptyTimestamp = errors.New("empty timestamp")

// layouts carrying an explicit offset; the parsed instant is absolute.
var offsetLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05 Z07:00",
}

// layouts without offset; read as wall time in the configured zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2006-01-02",
}

// NormalizeTimestamp turns a stored timestamp into an absolute instant.
// Numeric values are unix time in UTC; the unit is picked by magnitude
// (seconds, milliseconds or nanoseconds). Strings with an offset are taken
// as is and strings without one are wall time in loc.
func NormalizeTimestamp(raw string, loc *time.Location) (model.Instant, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Instant{}, errEmptyTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return model.Instant{}, fmt.Errorf("epoch value out of range: %q", raw)
		}
		return model.Instant{Time: fromEpoch(f), Source: model.SourceEpoch}, nil
	}

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return model.Instant{Time: t.In(loc), Source: model.SourceOffset}, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return model.Instant{Time: t, Source: model.SourceNaiveLocal}, nil
		}
	}
	return model.Instant{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// fromEpoch picks the unit by magnitude: ns, us, ms or seconds.
func fromEpoch(f float64) time.Time {
	switch {
	case f > 1e17:
		return time.Unix(0, int64(f)).UTC()
	case f > 1e15:
		return time.UnixMicro(int64(f)).UTC()
	case f > 1e12:
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
