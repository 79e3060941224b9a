// Package tzclock converts between wall-clock selections in an IANA timezone
// and absolute instants. All calendar arithmetic goes through time.Date in
// the target location so daylight-saving shifts are handled by the tz database
// rather than by reparsing formatted strings.
package tzclock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	// Embedded zone database so Load works on minimal container images.
	_ "time/tzdata"

	"mealvoice/internal/domain"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	maxZoneNameLen = 64
)

// Load resolves an IANA timezone name.
func Load(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxZoneNameLen {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, name)
	}
	// "Local" would silently follow the host, which is never what a caller
	// selecting a zone by name means.
	if name == "Local" {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// ParseHHMM parses a 24-hour "H:MM" or "HH:MM" string.
func ParseHHMM(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 || !digits(h) || !digits(m) {
		return 0, 0, fmt.Errorf("%w: time %q must be HH:MM", domain.ErrInvalidSchedule, s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q: %v", domain.ErrInvalidSchedule, s, err)
	}
	minute, err = strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q: %v", domain.ErrInvalidSchedule, s, err)
	}
	if !ValidClock(hour, minute) {
		return 0, 0, fmt.Errorf("%w: time %q out of range", domain.ErrInvalidSchedule, s)
	}
	return hour, minute, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func ValidClock(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

func FormatHHMM(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC and
// only its year, month and day are meaningful.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrInvalidSchedule, s)
	}
	return d, nil
}

// Combine builds the instant at which the wall clock in loc shows date and
// hhmm. Wall times skipped by a DST transition are normalized by time.Date.
func Combine(date, hhmm string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), nil
}

// OnDay returns hour:minute on the calendar day of day, in day's location.
func OnDay(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

// NextDay moves t one calendar day forward keeping its wall-clock time.
// This differs from t.Add(24*time.Hour) across DST changes.
func NextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

// DateOf formats the calendar date of t in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// SameDate reports whether a and b fall on the same calendar day as seen
// from a's location.
func SameDate(a, b time.Time) bool {
	return DateOf(a) == DateOf(b.In(a.Location()))
}

// LocalName resolves the IANA name of the host timezone. It falls back to
// "UTC" when the host only exposes an anonymous local zone.
func LocalName() string {
	if tz := os.Getenv("TZ"); tz != "" {
		if _, err := Load(tz); err == nil {
			return tz
		}
	}
	if name := time.Local.String(); name != "Local" && name != "" {
		return name
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if _, name, ok := strings.Cut(target, "zoneinfo/"); ok {
			if _, err := Load(name); err == nil {
				return name
			}
		}
	}
	return "UTC"
}
