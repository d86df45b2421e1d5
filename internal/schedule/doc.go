// Package schedule decides when quietq surfaces a reflective prompt.
//
// # Modes
//
// Interval mode fires a prompt every PromptIntervalMinutes. End-of-day mode
// (PromptIntervalMinutes == EndOfDayInterval) fires at most once per calendar
// day near a target time, pulled earlier when quiet hours start before 21:00.
//
// # Decision order
//
// Every tick evaluates, in order: end-of-day wait, pause, already-open prompt,
// quiet hours, fire. Each branch re-arms exactly one timer. Decide is the pure
// form of a tick and is what the tests exercise; Scheduler owns the timer.
//
// # Timers
//
// A Scheduler has at most one pending timer. Start, Refresh, Snooze and Stop
// cancel it before doing anything else, so the most recent call wins.
package schedule
