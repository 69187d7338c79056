package commands

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/warp/booking-engine/generic"
)

// =============================================================================
// WINDOW RESOLUTION - Turns command arguments into a report window
// =============================================================================

// Selection is a resolved report scope.
type Selection struct {
	Window    generic.Window
	Apartment string
}

var (
	compactDatePattern = regexp.MustCompile(`^\d{8}$`)
	dayRangePattern    = regexp.MustCompile(`^(\d{1,2})-(\d{8})$`)
	dayCountPattern    = regexp.MustCompile(`^\d{1,2}$`)
	monthYearPattern   = regexp.MustCompile(`^\d{6}$`)
	yearPattern        = regexp.MustCompile(`^\d{4}$`)
)

const maxExportDays = 31

// ResolveExport implements the !export grammar:
//
//	(none)              previous business day
//	today | hariini     current business day
//	N (1-31)            last N calendar days
//	DD-DDMMYYYY         calendar range within one month
//	<month> [YYYY]      calendar month, current year by default
//	DDMMYYYY            that business day
//	<apartment> [N|DDMMYYYY|today]
func ResolveExport(args []string, now time.Time, loc *time.Location, apartments ApartmentResolver) (Selection, error) {
	args = cleanArgs(args)
	if len(args) == 0 {
		return Selection{Window: generic.PreviousBusinessDayWindow(now, loc)}, nil
	}

	if w, ok, err := resolvePeriod(args, now, loc); ok || err != nil {
		return Selection{Window: w}, err
	}

	// Apartment, optionally followed by a single-token period.
	apartmentArgs, periodArgs := args, []string(nil)
	if len(args) > 1 {
		if _, ok, _ := resolvePeriod(args[len(args)-1:], now, loc); ok {
			apartmentArgs, periodArgs = args[:len(args)-1], args[len(args)-1:]
		}
	}
	apartment, err := apartments.Resolve(strings.Join(apartmentArgs, " "))
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %q", err, strings.Join(apartmentArgs, " "))
	}

	sel := Selection{Window: generic.PreviousBusinessDayWindow(now, loc), Apartment: apartment}
	if periodArgs != nil {
		w, _, err := resolvePeriod(periodArgs, now, loc)
		if err != nil {
			return Selection{}, err
		}
		sel.Window = w
	}
	return sel, nil
}

// resolvePeriod recognizes the period forms. ok is false when args are not a
// period at all; err is set when they look like one but are invalid.
func resolvePeriod(args []string, now time.Time, loc *time.Location) (generic.Window, bool, error) {
	first := args[0]

	if len(args) == 1 {
		switch {
		case first == "today" || first == "hariini":
			return generic.BusinessDayWindow(now, loc), true, nil

		case dayCountPattern.MatchString(first):
			n, _ := strconv.Atoi(first)
			if n < 1 || n > maxExportDays {
				return generic.Window{}, true, fmt.Errorf("%w: jumlah hari harus 1-%d", generic.ErrInvalidWindow, maxExportDays)
			}
			w, err := generic.LastNDaysWindow(now, n, loc)
			return w, true, err

		case dayRangePattern.MatchString(first):
			m := dayRangePattern.FindStringSubmatch(first)
			end, err := generic.ParseDDMMYYYY(m[2], loc)
			if err != nil {
				return generic.Window{}, true, err
			}
			startDay, _ := strconv.Atoi(m[1])
			start, err := generic.ParseDDMMYYYY(fmt.Sprintf("%02d%s", startDay, m[2][2:]), loc)
			if err != nil {
				return generic.Window{}, true, err
			}
			w, err := generic.DateRangeWindow(start, end, loc)
			return w, true, err

		case compactDatePattern.MatchString(first):
			w, err := generic.BusinessDayWindowForDate(first, loc)
			return w, true, err
		}
	}

	if month, ok := generic.ParseMonthName(first); ok && len(args) <= 2 {
		year := now.In(loc).Year()
		if len(args) == 2 {
			if !yearPattern.MatchString(args[1]) {
				return generic.Window{}, false, nil
			}
			year, _ = strconv.Atoi(args[1])
		}
		return generic.MonthWindow(year, month, loc), true, nil
	}
	return generic.Window{}, false, nil
}

// ResolveBusinessDay handles the optional DDMMYYYY argument of !rekap.
func ResolveBusinessDay(arg string, now time.Time, loc *time.Location) (generic.Window, error) {
	if arg == "" {
		return generic.BusinessDayWindow(now, loc), nil
	}
	return generic.BusinessDayWindowForDate(arg, loc)
}

// ResolveMonth parses MMYYYY; empty means the month before now.
func ResolveMonth(arg string, now time.Time, loc *time.Location) (generic.Window, error) {
	if arg == "" {
		prev := time.Date(now.In(loc).Year(), now.In(loc).Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
		return generic.MonthWindow(prev.Year(), prev.Month(), loc), nil
	}
	if !monthYearPattern.MatchString(arg) {
		return generic.Window{}, &generic.DateError{Input: arg, Cause: "expected MMYYYY"}
	}
	m, _ := strconv.Atoi(arg[:2])
	y, _ := strconv.Atoi(arg[2:])
	if m < 1 || m > 12 {
		return generic.Window{}, &generic.DateError{Input: arg, Cause: "no such month"}
	}
	return generic.MonthWindow(y, time.Month(m), loc), nil
}

// splitDateArg separates a trailing DDMMYYYY from the other arguments.
func splitDateArg(args []string) (rest []string, date string) {
	args = cleanArgs(args)
	if n := len(args); n > 0 && compactDatePattern.MatchString(args[n-1]) {
		return args[:n-1], args[n-1]
	}
	return args, ""
}

func cleanArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			out = append(out, a)
		}
	}
	return out
}
