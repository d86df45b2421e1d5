package schedule

import "context"

// EndOfDayInterval is the PromptIntervalMinutes sentinel that selects
// end-of-day mode.
const EndOfDayInterval = -1

// Settings is the slice of user configuration the scheduler reads.
// Quiet hours are "HH:MM" in local wall-clock time; End < Start spans midnight
// and Start == End disables quiet hours.
type Settings struct {
	PromptIntervalMinutes int
	QuietHoursStart       string
	QuietHoursEnd         string
	IsPaused              bool
}

// EndOfDay reports whether end-of-day mode is selected.
func (s Settings) EndOfDay() bool { return s.PromptIntervalMinutes == EndOfDayInterval }

// SettingsProvider returns the current settings. It is consulted on every tick.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// Surface opens prompts for the user.
type Surface interface {
	IsPromptOpen() bool
	OpenPrompt(ctx context.Context) error
}
