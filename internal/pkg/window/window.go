package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
)

var ErrInvalidWindow = errors.New("invalid window")

type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	KindToday         Kind = "today"
	KindPreviousDay   Kind = "previous_day"
	KindLastNHours    Kind = "last_n_hours"
	KindLastNDays     Kind = "last_n_days"
	KindThisMonth     Kind = "this_month"
	KindPreviousMonth Kind = "previous_month"
	KindCustom        Kind = "custom"
)

// Spec names a window before it is anchored to a reference instant.
type Spec struct {
	Kind  Kind
	N     int
	Start time.Time
	End   time.Time
}

func Today() Spec         { return Spec{Kind: KindToday} }
func PreviousDay() Spec   { return Spec{Kind: KindPreviousDay} }
func ThisMonth() Spec     { return Spec{Kind: KindThisMonth} }
func PreviousMonth() Spec { return Spec{Kind: KindPreviousMonth} }

func LastNHours(n int) Spec { return Spec{Kind: KindLastNHours, N: n} }
func LastNDays(n int) Spec  { return Spec{Kind: KindLastNDays, N: n} }

func Custom(start, end time.Time) Spec {
	return Spec{Kind: KindCustom, Start: start, End: end}
}

func (s Spec) String() string {
	switch s.Kind {
	case KindLastNHours:
		return fmt.Sprintf("last_%dh", s.N)
	case KindLastNDays:
		return fmt.Sprintf("last_%dd", s.N)
	case KindCustom:
		return "custom:" + s.Start.Format(time.RFC3339) + "/" + s.End.Format(time.RFC3339)
	}
	return s.Kind.String()
}

// DefaultWidth is hourly for windows of up to two days and daily otherwise.
func (s Spec) DefaultWidth() model.Width {
	switch s.Kind {
	case KindToday, KindPreviousDay:
		return model.WidthHour
	case KindLastNHours:
		if s.N <= 48 {
			return model.WidthHour
		}
	}
	return model.WidthDay
}

// Resolve anchors spec at ref and returns absolute boundaries in loc.
// Calendar kinds align to local midnight; the rolling kinds end exactly at ref.
func Resolve(spec Spec, ref time.Time, loc *time.Location) (model.Window, error) {
	if loc == nil {
		return model.Window{}, fmt.Errorf("%w: nil location", ErrInvalidWindow)
	}
	local := ref.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var w model.Window
	switch spec.Kind {
	case KindToday:
		w = model.Window{Start: midnight, End: midnight.AddDate(0, 0, 1)}
	case KindPreviousDay:
		w = model.Window{Start: midnight.AddDate(0, 0, -1), End: midnight}
	case KindLastNHours:
		if spec.N <= 0 {
			return model.Window{}, fmt.Errorf("%w: hours must be positive, got %d", ErrInvalidWindow, spec.N)
		}
		w = model.Window{Start: local.Add(-time.Duration(spec.N) * time.Hour), End: local}
	case KindLastNDays:
		if spec.N <= 0 {
			return model.Window{}, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidWindow, spec.N)
		}
		w = model.Window{Start: local.AddDate(0, 0, -spec.N), End: local}
	case KindThisMonth:
		first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		w = model.Window{Start: first, End: first.AddDate(0, 1, 0)}
	case KindPreviousMonth:
		first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		w = model.Window{Start: first.AddDate(0, -1, 0), End: first}
	case KindCustom:
		w = model.Window{Start: spec.Start.In(loc), End: spec.End.In(loc)}
	default:
		return model.Window{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidWindow, spec.Kind)
	}

	if !w.Valid() {
		return model.Window{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return w, nil
}

// ParseSpec reads the textual form used on the command line, in query
// strings and in the alert configuration.
func ParseSpec(s string, loc *time.Location) (Spec, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "today", "":
		return Today(), nil
	case "previous_day", "yesterday":
		return PreviousDay(), nil
	case "this_month", "month":
		return ThisMonth(), nil
	case "previous_month", "last_month":
		return PreviousMonth(), nil
	}

	if rest, ok := strings.CutPrefix(s, "custom:"); ok {
		return parseCustom(rest, loc)
	}

	if rest, ok := strings.CutPrefix(s, "last_"); ok && len(rest) > 1 {
		unit := rest[len(rest)-1:]
		n, err := strconv.Atoi(rest[:len(rest)-1])
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
		}
		switch unit {
		case "h":
			return LastNHours(n), nil
		case "d":
			return LastNDays(n), nil
		}
	}
	return Spec{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
}

var customLayouts = []string{
	time.RFC3339,
	"2006-01-02t15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02t15:04",
	"2006-01-02 15:04",
}

const dateOnly = "2006-01-02"

func parseCustom(s string, loc *time.Location) (Spec, error) {
	if loc == nil {
		loc = time.Local
	}
	rawStart, rawEnd, ok := strings.Cut(s, "/")
	if !ok {
		return Spec{}, fmt.Errorf("%w: custom window needs start/end", ErrInvalidWindow)
	}
	start, _, err := parseBoundary(rawStart, loc)
	if err != nil {
		return Spec{}, err
	}
	end, isDate, err := parseBoundary(rawEnd, loc)
	if err != nil {
		return Spec{}, err
	}
	// A bare end date covers that whole day.
	if isDate {
		end = end.AddDate(0, 0, 1)
	}
	return Custom(start, end), nil
}

func parseBoundary(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateOnly, s, loc); err == nil {
		return t, true, nil
	}
	for _, layout := range customLayouts {
		if t, err := time.ParseInLocation(layout, strings.ToUpper(s), loc); err == nil {
			return t, false, nil
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: cannot parse %q", ErrInvalidWindow, s)
}
