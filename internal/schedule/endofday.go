package schedule

import "time"

const (
	DefaultEndOfDayTarget = 21 * 60
	MinEndOfDayTarget     = 12 * 60
	quietStartBuffer      = 5
	SettleDuration        = 10 * time.Minute
)

// State is the scheduler's private memory between ticks. It is never
// persisted: a fresh scheduler starts as if no end-of-day prompt ever fired.
type State struct {
	// LastEndOfDayPrompt is the DayKey of the last end-of-day prompt, "" if none.
	LastEndOfDayPrompt string
	// SettleUntil ends the grace window after the daily target; zero when unset.
	SettleUntil time.Time
}

// DayKey is the calendar date of t in its own location.
func DayKey(t time.Time) string { return t.Format(time.DateOnly) }

// EndOfDayMinutes resolves the daily target as minutes since midnight.
func EndOfDayMinutes(s Settings) int {
	start := ParseClock(s.QuietHoursStart)
	if start == ParseClock(s.QuietHoursEnd) {
		return DefaultEndOfDayTarget
	}
	if start <= DefaultEndOfDayTarget {
		return max(start-quietStartBuffer, MinEndOfDayTarget)
	}
	return DefaultEndOfDayTarget
}

// dayAt returns the wall-clock time mins after midnight, days after t's date.
// Calendar arithmetic keeps DST days correct.
func dayAt(t time.Time, days, mins int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, mins/60, mins%60, 0, 0, t.Location())
}

// EndOfDayDelay computes the wait until the next end-of-day check and the
// updated state. A zero delay means "fire now".
func EndOfDayDelay(s Settings, now time.Time, st State) (time.Duration, State) {
	target := EndOfDayMinutes(s)

	if st.LastEndOfDayPrompt == DayKey(now) {
		st.SettleUntil = time.Time{}
		return dayAt(now, 1, target).Sub(now), st
	}
	if InQuietHours(s, now) {
		// After midnight inside an overnight window, today's target is
		// still ahead.
		next := dayAt(now, 0, target)
		if !now.Before(next) {
			next = dayAt(now, 1, target)
		}
		return next.Sub(now), st
	}

	targetToday := dayAt(now, 0, target)
	if now.Before(targetToday) {
		st.SettleUntil = targetToday.Add(SettleDuration)
		return targetToday.Sub(now), st
	}

	// Target passed and nothing fired today. A marker from an earlier cycle
	// (or none at all) starts a fresh settle window.
	if st.SettleUntil.IsZero() || st.SettleUntil.Before(targetToday) {
		st.SettleUntil = now.Add(SettleDuration)
	}
	if now.Before(st.SettleUntil) {
		return st.SettleUntil.Sub(now), st
	}
	st.SettleUntil = time.Time{}
	return 0, st
}
