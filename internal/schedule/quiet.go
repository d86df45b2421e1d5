package schedule

import (
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ParseClock converts "HH:MM" to minutes since midnight. Missing or
// non-numeric parts count as 0, so a malformed value never disables prompts.
func ParseClock(v string) int {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 3)
	h := atoiLenient(parts[0])
	m := 0
	if len(parts) > 1 {
		m = atoiLenient(parts[1])
	}
	return h*60 + m
}

func atoiLenient(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

// QuietHoursEnabled reports whether the window is non-empty.
func QuietHoursEnabled(s Settings) bool {
	return ParseClock(s.QuietHoursStart) != ParseClock(s.QuietHoursEnd)
}

// InQuietHours reports whether now falls inside the quiet-hours window.
func InQuietHours(s Settings, now time.Time) bool {
	start := ParseClock(s.QuietHoursStart)
	end := ParseClock(s.QuietHoursEnd)
	cur := minuteOfDay(now)

	if start == end {
		return false
	}
	if start < end {
		return cur >= start && cur < end
	}
	// overnight
	return cur >= start || cur < end
}

// UntilQuietEnds returns the wait until the next quiet-hours end boundary, at
// minute resolution. Only meaningful while InQuietHours is true.
func UntilQuietEnds(s Settings, now time.Time) time.Duration {
	m := ParseClock(s.QuietHoursEnd) - minuteOfDay(now)
	if m <= 0 {
		m += minutesPerDay
	}
	return time.Duration(m) * time.Minute
}
