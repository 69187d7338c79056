package generic

import (
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// WINDOW - The core concept for every report
// =============================================================================

// Window is a closed time range [Start, End] where End is the last whole
// second that belongs to the window.
//
// Examples:
//   - Business day 30/07/2025: 30 Jul 12:00:00 - 31 Jul 11:59:59
//   - Month 07/2025:           1 Jul 00:00:00 - 31 Jul 23:59:59
type Window struct {
	Start time.Time
	End   time.Time
	Label string
	Kind  WindowKind
}

type WindowKind string

const (
	WindowBusinessDay WindowKind = "business_day"
	WindowMonth       WindowKind = "month"
	WindowDays        WindowKind = "days"
	WindowRange       WindowKind = "range"
)

// BusinessDayBoundaryHour is the local hour at which a business day starts.
const BusinessDayBoundaryHour = 12

// EndExclusive is the first instant after the window.
func (w Window) EndExclusive() time.Time { return w.End.Add(time.Second) }

// Contains returns true if t is within [Start, End], End inclusive to the second.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.EndExclusive())
}

// Duration is the covered span including the final second.
func (w Window) Duration() time.Duration { return w.EndExclusive().Sub(w.Start) }

func (w Window) String() string {
	return "[" + w.Start.Format("2006-01-02 15:04:05") + ", " + w.End.Format("2006-01-02 15:04:05") + "]"
}

// =============================================================================
// BUSINESS DAY - 12:00 local to 11:59:59 local the next calendar day
// =============================================================================

// BusinessDay returns midnight of the business date that t falls into.
// Before 12:00 local time the business day is still the previous date.
func BusinessDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	day := MidnightOf(local, loc)
	if local.Hour() < BusinessDayBoundaryHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// BusinessDayWindow returns the business-day window containing t.
func BusinessDayWindow(t time.Time, loc *time.Location) Window {
	return windowForBusinessDate(BusinessDay(t, loc))
}

// PreviousBusinessDayWindow returns the window that closed most recently before t's window.
func PreviousBusinessDayWindow(t time.Time, loc *time.Location) Window {
	return windowForBusinessDate(BusinessDay(t, loc).AddDate(0, 0, -1))
}

// BusinessDayWindowForDate resolves an explicit DDMMYYYY date.
func BusinessDayWindowForDate(ddmmyyyy string, loc *time.Location) (Window, error) {
	day, err := ParseDDMMYYYY(ddmmyyyy, loc)
	if err != nil {
		return Window{}, err
	}
	return windowForBusinessDate(day), nil
}

// windowForBusinessDate builds [day 12:00:00, day+1 11:59:59]. time.Date
// normalizes the next-day arithmetic so month and year ends roll over.
func windowForBusinessDate(day time.Time) Window {
	loc := day.Location()
	next := day.AddDate(0, 0, 1)
	return Window{
		Start: time.Date(day.Year(), day.Month(), day.Day(), BusinessDayBoundaryHour, 0, 0, 0, loc),
		End:   time.Date(next.Year(), next.Month(), next.Day(), BusinessDayBoundaryHour-1, 59, 59, 0, loc),
		Label: day.Format(LabelLayout),
		Kind:  WindowBusinessDay,
	}
}

// =============================================================================
// CALENDAR WINDOWS - Exports use calendar bounds, not business-day bounds
// =============================================================================

// MonthWindow covers [1st 00:00:00, last 23:59:59] of the month.
func MonthWindow(year int, month time.Month, loc *time.Location) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Window{
		Start: start,
		End:   start.AddDate(0, 1, 0).Add(-time.Second),
		Label: start.Format("01/2006"),
		Kind:  WindowMonth,
	}
}

// LastNDaysWindow covers today plus the n-1 calendar days before it.
func LastNDaysWindow(now time.Time, n int, loc *time.Location) (Window, error) {
	if n < 1 {
		return Window{}, ErrInvalidWindow
	}
	today := MidnightOf(now, loc)
	start := today.AddDate(0, 0, -(n - 1))
	return Window{
		Start: start,
		End:   today.AddDate(0, 0, 1).Add(-time.Second),
		Label: start.Format(LabelLayout) + " - " + today.Format(LabelLayout),
		Kind:  WindowDays,
	}, nil
}

// DateRangeWindow covers whole calendar days from..to inclusive.
func DateRangeWindow(from, to time.Time, loc *time.Location) (Window, error) {
	start := MidnightOf(from, loc)
	last := MidnightOf(to, loc)
	if last.Before(start) {
		return Window{}, ErrInvalidWindow
	}
	return Window{
		Start: start,
		End:   last.AddDate(0, 0, 1).Add(-time.Second),
		Label: start.Format(LabelLayout) + " - " + last.Format(LabelLayout),
		Kind:  WindowRange,
	}, nil
}

// =============================================================================
// PARSING
// =============================================================================

// ParseDDMMYYYY parses a strict 8-digit date. Overflowing values such as
// 32012025 or 29022025 are rejected rather than normalized.
func ParseDDMMYYYY(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return time.Time{}, &DateError{Input: s, Cause: "expected DDMMYYYY"}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return time.Time{}, &DateError{Input: s, Cause: "expected digits only"}
		}
	}
	d, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	y, _ := strconv.Atoi(s[4:8])
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != m || t.Year() != y {
		return time.Time{}, &DateError{Input: s, Cause: "no such calendar day"}
	}
	return t, nil
}

var monthNames = map[string]time.Month{
	"januari": time.January, "january": time.January, "jan": time.January,
	"februari": time.February, "february": time.February, "feb": time.February,
	"maret": time.March, "march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"mei": time.May, "may": time.May,
	"juni": time.June, "june": time.June, "jun": time.June,
	"juli": time.July, "july": time.July, "jul": time.July,
	"agustus": time.August, "august": time.August, "agu": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"oktober": time.October, "october": time.October, "okt": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"desember": time.December, "december": time.December, "des": time.December, "dec": time.December,
}

// ParseMonthName recognizes Indonesian and English month names and abbreviations.
func ParseMonthName(s string) (time.Month, bool) {
	m, ok := monthNames[strings.ToLower(strings.TrimSpace(s))]
	return m, ok
}
