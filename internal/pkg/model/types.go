package model

import "time"

// TimestampSource records how a raw timestamp was interpreted when it was
// normalized into an Instant.
type TimestampSource int

const (
	SourceEpoch      TimestampSource = iota + 1 // numeric unix time, always UTC.
	SourceOffset                                // string carrying an explicit offset.
	SourceNaiveLocal                            // string without offset, read as local wall time.
)

func (s TimestampSource) String() string {
	switch s {
	case SourceEpoch:
		return "epoch"
	case SourceOffset:
		return "offset"
	case SourceNaiveLocal:
		return "naive_local"
	}
	return "unknown"
}

// Width is the size of one aggregation bucket.
type Width string

func (w Width) String() string {
	return string(w)
}

const (
	WidthHour Width = "hour"
	WidthDay  Width = "day"
)

var Widths = []Width{
	WidthHour,
	WidthDay,
}

// ParseWidth accepts the textual names used by the CLI and the HTTP API.
func ParseWidth(s string) (Width, bool) {
	switch s {
	case "hour", "hourly", "h":
		return WidthHour, true
	case "day", "daily", "d":
		return WidthDay, true
	}
	return "", false
}

// Step returns the start of the bucket following start. Day steps follow the
// calendar of start's location so buckets stay aligned to local midnight
// across DST changes.
func (w Width) Step(start time.Time) time.Time {
	switch w {
	case WidthDay:
		return start.AddDate(0, 0, 1)
	default:
		return start.Add(time.Hour)
	}
}

type DetailLevel string

const (
	DetailSimple   DetailLevel = "simple"
	DetailDetailed DetailLevel = "detailed"
)
