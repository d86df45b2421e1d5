package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var (
		out    Settings
		paused int
		upd    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt_interval_minutes, quiet_hours_start, quiet_hours_end, is_paused, updated_at
		 FROM settings WHERE id = 1`,
	).Scan(&out.PromptIntervalMinutes, &out.QuietHoursStart, &out.QuietHoursEnd, &paused, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNoSettings
	}
	if err != nil {
		return Settings{}, fmt.Errorf("storage: get settings: %w", err)
	}
	out.IsPaused = paused != 0
	out.UpdatedAt = fromMillis(upd)
	return out, nil
}

// UpdateSettings applies patch and returns the stored row.
func (s *Store) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	if patch.Empty() {
		return s.GetSettings(ctx)
	}

	var (
		fields []string
		args   []any
	)
	if patch.PromptIntervalMinutes != nil {
		fields = append(fields, "prompt_interval_minutes = ?")
		args = append(args, *patch.PromptIntervalMinutes)
	}
	if patch.QuietHoursStart != nil {
		fields = append(fields, "quiet_hours_start = ?")
		args = append(args, *patch.QuietHoursStart)
	}
	if patch.QuietHoursEnd != nil {
		fields = append(fields, "quiet_hours_end = ?")
		args = append(args, *patch.QuietHoursEnd)
	}
	if patch.IsPaused != nil {
		fields = append(fields, "is_paused = ?")
		args = append(args, boolToInt(*patch.IsPaused))
	}
	fields = append(fields, "updated_at = ?")
	args = append(args, s.nowMillis())

	res, err := s.db.ExecContext(ctx,
		"UPDATE settings SET "+strings.Join(fields, ", ")+" WHERE id = 1", args...)
	if err != nil {
		return Settings{}, fmt.Errorf("storage: update settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Settings{}, ErrNoSettings
	}
	return s.GetSettings(ctx)
}
