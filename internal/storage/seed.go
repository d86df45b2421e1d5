package storage

import (
	"context"
	"fmt"

	logx "quietq/pkg/logx"
)

type seedPrompt struct {
	text            string
	category        Category
	requiresProject bool
}

// ProjectPlaceholder is replaced with a project name when a prompt is shown.
const ProjectPlaceholder = "[PROJECT]"

var defaultPrompts = []seedPrompt{
	{"How has the [PROJECT] project been coming today?", CategoryProject, true},
	{"What progress did you make today on [PROJECT]?", CategoryProject, true},
	{"What emotion kept showing up for you today?", CategoryEmotion, false},
	{"What feeling surprised you today?", CategoryEmotion, false},
	{"How did you practice resilience today?", CategoryTrait, false},
	{"Where did you show curiosity today?", CategoryTrait, false},
	{"What is one meaningful thing you completed recently?", CategoryProductivity, false},
	{"What small task could you do next to build momentum?", CategoryProductivity, false},
	{"If your future self saw you right now, what would they say?", CategoryIdentity, false},
	{"What's one tiny win from today?", CategorySmallWin, false},
	{"What action are you avoiding that would actually help?", CategoryBehavior, false},
	{"What's blocking your focus right now?", CategoryBehavior, false},
}

// DefaultSettings are used when the caller supplies none.
var DefaultSettings = Settings{
	PromptIntervalMinutes: 90,
	QuietHoursStart:       "22:00",
	QuietHoursEnd:         "07:00",
}

func (s *Store) seed(ctx context.Context, defaults Settings) error {
	if defaults.PromptIntervalMinutes == 0 && defaults.QuietHoursStart == "" && defaults.QuietHoursEnd == "" {
		defaults = DefaultSettings
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(id, prompt_interval_minutes, quiet_hours_start, quiet_hours_end, is_paused, updated_at)
		 VALUES(1,?,?,?,?,?)`,
		defaults.PromptIntervalMinutes, defaults.QuietHoursStart, defaults.QuietHoursEnd,
		boolToInt(defaults.IsPaused), s.nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("storage: seed settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("seeded settings",
			logx.Int("interval_minutes", defaults.PromptIntervalMinutes),
			logx.String("quiet", defaults.QuietHoursStart+"-"+defaults.QuietHoursEnd),
		)
	}

	for _, c := range Categories {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO prompt_categories(name) VALUES(?)`, string(c)); err != nil {
			return fmt.Errorf("storage: seed category %s: %w", c, err)
		}
	}

	now := s.nowMillis()
	for _, p := range defaultPrompts {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO prompts(text, category_id, is_active, requires_project, created_at)
			 VALUES(?, (SELECT id FROM prompt_categories WHERE name = ?), 1, ?, ?)`,
			p.text, string(p.category), boolToInt(p.requiresProject), now,
		)
		if err != nil {
			return fmt.Errorf("storage: seed prompt: %w", err)
		}
	}
	return tx.Commit()
}
