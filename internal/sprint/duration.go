package sprint

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Working-time units used by human-readable estimates.
const (
	WorkDay  = 8 * time.Hour
	WorkWeek = 5 * WorkDay
)

var durationUnits = map[string]time.Duration{
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       WorkDay,
	"day":     WorkDay,
	"days":    WorkDay,
	"week":    WorkWeek,
	"weeks":   WorkWeek,
}

// ParseDuration parses a task or sprint estimate. Accepted forms:
//
//	"2 hours", "1.5 days", "30 min"   number and unit
//	"90m", "2h30m", "150ms"           Go duration syntax
//	"3", "0.5"                        bare number of hours
//
// A day is eight working hours and a week is five working days. Estimates
// must be positive.
func ParseDuration(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}

	d, err := parseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func parseDuration(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if hours, err := strconv.ParseFloat(raw, 64); err == nil {
		return scale(hours, time.Hour), nil
	}

	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid duration %q: expected \"<number> <unit>\"", raw)
	}

	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %q is not a number", raw, fields[0])
	}
	unit, ok := durationUnits[fields[1]]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", raw, fields[1])
	}
	return scale(n, unit), nil
}

func scale(n float64, unit time.Duration) time.Duration {
	return time.Duration(n * float64(unit))
}

// FormatDuration renders d in the largest whole working unit that divides it,
// falling back to Go duration syntax.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0"
	case d%WorkWeek == 0:
		return plural(int64(d/WorkWeek), "week")
	case d%WorkDay == 0:
		return plural(int64(d/WorkDay), "day")
	case d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
