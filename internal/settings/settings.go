// Package settings owns the user's scheduling preferences.
//
// It reads and writes the settings row, validates edits, and announces every
// change on the event bus so the prompt scheduler can refresh.
package settings

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"quietq/internal/eventbus"
	"quietq/internal/schedule"
	"quietq/internal/storage"
	logx "quietq/pkg/logx"
)

var ErrInvalid = errors.New("settings: invalid value")

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Repo is the storage the service needs.
type Repo interface {
	GetSettings(ctx context.Context) (storage.Settings, error)
	UpdateSettings(ctx context.Context, patch storage.SettingsPatch) (storage.Settings, error)
}

type Service struct {
	repo Repo
	bus  eventbus.Bus
	log  logx.Logger
}

func New(repo Repo, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{repo: repo, bus: bus, log: log.With(logx.String("comp", "settings"))}
}

// Settings implements schedule.SettingsProvider.
func (s *Service) Settings(ctx context.Context) (schedule.Settings, error) {
	row, err := s.repo.GetSettings(ctx)
	if err != nil {
		return schedule.Settings{}, err
	}
	return ToSchedule(row), nil
}

// Get returns the stored row.
func (s *Service) Get(ctx context.Context) (storage.Settings, error) {
	return s.repo.GetSettings(ctx)
}

// Update validates and stores patch, then publishes settings.updated.
func (s *Service) Update(ctx context.Context, patch storage.SettingsPatch) (storage.Settings, error) {
	if err := Validate(patch); err != nil {
		return storage.Settings{}, err
	}
	before, err := s.repo.GetSettings(ctx)
	if err != nil {
		return storage.Settings{}, err
	}
	after, err := s.repo.UpdateSettings(ctx, patch)
	if err != nil {
		return storage.Settings{}, err
	}
	s.log.Info("settings updated",
		logx.String("interval", IntervalLabel(after.PromptIntervalMinutes)),
		logx.String("quiet", after.QuietHoursStart+"-"+after.QuietHoursEnd),
		logx.Bool("paused", after.IsPaused),
	)
	if s.bus != nil && changed(before, after) {
		s.bus.Publish(eventbus.Event{Type: eventbus.SettingsUpdated, Data: ToSchedule(after)})
	}
	return after, nil
}

func (s *Service) Pause(ctx context.Context) (storage.Settings, error) {
	v := true
	return s.Update(ctx, storage.SettingsPatch{IsPaused: &v})
}

func (s *Service) Resume(ctx context.Context) (storage.Settings, error) {
	v := false
	return s.Update(ctx, storage.SettingsPatch{IsPaused: &v})
}

// Validate rejects values the scheduler cannot act on.
func Validate(p storage.SettingsPatch) error {
	if p.PromptIntervalMinutes != nil {
		if v := *p.PromptIntervalMinutes; v != schedule.EndOfDayInterval && v < 1 {
			return fmt.Errorf("%w: interval must be >= 1 minute or end-of-day, got %d", ErrInvalid, v)
		}
	}
	if p.QuietHoursStart != nil && !clockRe.MatchString(*p.QuietHoursStart) {
		return fmt.Errorf("%w: quiet hours start %q is not HH:MM", ErrInvalid, *p.QuietHoursStart)
	}
	if p.QuietHoursEnd != nil && !clockRe.MatchString(*p.QuietHoursEnd) {
		return fmt.Errorf("%w: quiet hours end %q is not HH:MM", ErrInvalid, *p.QuietHoursEnd)
	}
	return nil
}

// ToSchedule maps the stored row onto what the scheduler reads.
func ToSchedule(row storage.Settings) schedule.Settings {
	return schedule.Settings{
		PromptIntervalMinutes: row.PromptIntervalMinutes,
		QuietHoursStart:       row.QuietHoursStart,
		QuietHoursEnd:         row.QuietHoursEnd,
		IsPaused:              row.IsPaused,
	}
}

// IntervalLabel renders an interval for humans.
func IntervalLabel(minutes int) string {
	if minutes == schedule.EndOfDayInterval {
		return "end of day"
	}
	return fmt.Sprintf("%dm", minutes)
}

func changed(a, b storage.Settings) bool {
	return ToSchedule(a) != ToSchedule(b)
}
