package schedule

import "time"

// WindowOpenRetry is how long to wait when a prompt is already showing.
const WindowOpenRetry = 5 * time.Minute

type Action int

const (
	ActionWait Action = iota
	ActionOpen
)

func (a Action) String() string {
	if a == ActionOpen {
		return "open"
	}
	return "wait"
}

// Reason explains a decision in logs.
type Reason string

const (
	ReasonEndOfDayWait Reason = "end_of_day_wait"
	ReasonPaused       Reason = "paused"
	ReasonWindowOpen   Reason = "window_open"
	ReasonQuietHours   Reason = "quiet_hours"
	ReasonPrompt       Reason = "prompt"
)

// Decision is the outcome of one tick: what to do now and when to look again.
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason Reason
	State  State
}

// IntervalDelay converts minutes to a delay, clamping to at least one minute.
func IntervalDelay(minutes int) time.Duration {
	return time.Duration(max(minutes, 1)) * time.Minute
}

// Decide runs one tick of the scheduler without side effects.
func Decide(s Settings, now time.Time, windowOpen bool, st State) Decision {
	eod := s.EndOfDay()

	next := func(st State) (time.Duration, State) {
		if eod {
			return EndOfDayDelay(s, now, st)
		}
		return IntervalDelay(s.PromptIntervalMinutes), st
	}
	wait := func(d time.Duration, r Reason, st State) Decision {
		return Decision{Action: ActionWait, Delay: d, Reason: r, State: st}
	}

	if eod {
		d, nst := EndOfDayDelay(s, now, st)
		st = nst
		if d > 0 {
			return wait(d, ReasonEndOfDayWait, st)
		}
	}

	if s.IsPaused {
		d, nst := next(st)
		return wait(d, ReasonPaused, nst)
	}

	if windowOpen {
		return wait(WindowOpenRetry, ReasonWindowOpen, st)
	}

	if InQuietHours(s, now) {
		if eod {
			d, nst := EndOfDayDelay(s, now, st)
			return wait(d, ReasonQuietHours, nst)
		}
		return wait(UntilQuietEnds(s, now), ReasonQuietHours, st)
	}

	if eod {
		st.LastEndOfDayPrompt = DayKey(now)
		st.SettleUntil = time.Time{}
	}
	d, st := next(st)
	return Decision{Action: ActionOpen, Delay: d, Reason: ReasonPrompt, State: st}
}
