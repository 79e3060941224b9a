package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	twelveHourPattern = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clockPattern      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// ParseTime resolves a spoken time phrase to zero-padded 24-hour HH:MM.
// A 12-hour phrase with am/pm takes precedence over a bare clock reading, so
// "7:30 pm" is 19:30 rather than 07:30. 12 am is midnight and 12 pm is noon.
func ParseTime(phrase string) (string, bool) {
	p := strings.ToLower(strings.TrimSpace(phrase))

	if m := twelveHourPattern.FindStringSubmatch(p); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
		if m[3] == "pm" {
			hour += 12
		}
		return clock(hour, minute)
	}

	if m := clockPattern.FindStringSubmatch(p); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return clock(hour, minute)
	}

	return "", false
}

func clock(hour, minute int) (string, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
