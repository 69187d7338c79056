package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// CLOCK - Injectable "now" (the whole engine runs in one fixed timezone)
// =============================================================================

const DefaultTimezone = "Asia/Jakarta"

type Clock interface {
	Now() time.Time
}

// SystemClock reports wall time in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// LoadLocation resolves a timezone name, falling back to a fixed WIB offset
// when the host has no tzdata.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultTimezone {
		return time.FixedZone("WIB", 7*60*60), nil
	}
	return nil, fmt.Errorf("load timezone %q: %w", name, err)
}

// =============================================================================
// DATE UTILITIES
// =============================================================================

const (
	DateOnlyLayout = "2006-01-02"
	LabelLayout    = "02/01/2006"
	compactLayout  = "02012006"
)

// DateOnly formats t as the calendar date in loc.
func DateOnly(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateOnlyLayout)
}

// MidnightOf returns 00:00:00 of t's calendar date in loc.
func MidnightOf(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// CompactDate formats a date as DDMMYYYY, the form accepted by commands.
func CompactDate(t time.Time) string { return t.Format(compactLayout) }
