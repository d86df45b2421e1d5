package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

const (
	DefaultStoragePath   = "data/quietq.db"
	DefaultSnoozeMinutes = 15
)

// Kind resolves the transport kind, applying the token-based default.
func (c *Config) Kind() string {
	k := strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if k != "" {
		return k
	}
	if strings.TrimSpace(c.Transport.Telegram.Token) != "" {
		return TransportTelegram
	}
	return TransportConsole
}

// StoragePath returns the database path, defaulted.
func (c *Config) StoragePath() string {
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		return p
	}
	return DefaultStoragePath
}

func (c *Config) SnoozeMinutes() int {
	if c.Prompts.SnoozeDefaultMinutes > 0 {
		return c.Prompts.SnoozeDefaultMinutes
	}
	return DefaultSnoozeMinutes
}

// Location loads prompts.timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Prompts.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("prompts.timezone: %w", err)
	}
	return loc, nil
}

// Validate checks everything that can be checked without side effects.
// Errors are prefixed with the offending key.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch c.Kind() {
	case TransportTelegram:
		if strings.TrimSpace(c.Transport.Telegram.Token) == "" {
			errs = append(errs, errors.New("transport.telegram.token: required for the telegram transport"))
		}
		if len(c.Transport.Telegram.OwnerUserIDs) == 0 {
			errs = append(errs, errors.New("transport.telegram.owner_user_ids: at least one owner is required"))
		}
		if c.Transport.Telegram.SendRatePerSec < 0 {
			errs = append(errs, errors.New("transport.telegram.send_rate_per_sec: must be >= 0"))
		}
	case TransportConsole:
	default:
		errs = append(errs, fmt.Errorf("transport.kind: unknown %q (want telegram or console)", c.Transport.Kind))
	}

	for path, raw := range map[string]string{
		"transport.telegram.poll_timeout": c.Transport.Telegram.PollTimeout,
		"storage.busy_timeout":            c.Storage.BusyTimeout,
		"prompts.window_ttl":              c.Prompts.WindowTTL,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Prompts.SnoozeDefaultMinutes < 0 {
		errs = append(errs, errors.New("prompts.snooze_default_minutes: must be >= 0"))
	}
	d := c.Prompts.Defaults
	if d.IntervalMinutes < 0 && d.IntervalMinutes != -1 {
		errs = append(errs, errors.New("prompts.defaults.interval_minutes: must be > 0, or -1 for end of day"))
	}
	for path, raw := range map[string]string{
		"prompts.defaults.quiet_hours_start": d.QuietHoursStart,
		"prompts.defaults.quiet_hours_end":   d.QuietHoursEnd,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.Parse("15:04", raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not HH:MM", path, raw))
		}
	}
	if c.Logging.Chat.RatePerSec < 0 {
		errs = append(errs, errors.New("logging.chat.rate_per_sec: must be >= 0"))
	}
	return errors.Join(errs...)
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// toJSON converts YAML to JSON so both formats share the strict decoder.
// Files without a .yaml/.yml extension are assumed to be JSON already.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		v = map[string]any{}
	}
	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// stringKeys rewrites map[any]any nodes so the tree can be JSON-marshaled.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
