package schedule

import "time"

// Timer is a pending single-shot callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time and timers so ticks can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
