package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrNoSettings means the settings row was never seeded.
	ErrNoSettings = errors.New("storage: settings record missing")
)

// Config configures the SQLite file.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}

// Category is the kind of reflection an entry or prompt belongs to.
type Category string

const (
	CategoryProject      Category = "project"
	CategoryEmotion      Category = "emotion"
	CategoryTrait        Category = "trait"
	CategoryProductivity Category = "productivity"
	CategoryIdentity     Category = "identity"
	CategorySmallWin     Category = "small_win"
	CategoryBehavior     Category = "behavior"
)

// Categories lists every category in seed order.
var Categories = []Category{
	CategoryProject,
	CategoryEmotion,
	CategoryTrait,
	CategoryProductivity,
	CategoryIdentity,
	CategorySmallWin,
	CategoryBehavior,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Settings is the persisted scheduling configuration (row id=1).
type Settings struct {
	PromptIntervalMinutes int
	QuietHoursStart       string
	QuietHoursEnd         string
	IsPaused              bool
	UpdatedAt             time.Time
}

// SettingsPatch updates only the non-nil fields.
type SettingsPatch struct {
	PromptIntervalMinutes *int
	QuietHoursStart       *string
	QuietHoursEnd         *string
	IsPaused              *bool
}

func (p SettingsPatch) Empty() bool {
	return p.PromptIntervalMinutes == nil && p.QuietHoursStart == nil && p.QuietHoursEnd == nil && p.IsPaused == nil
}

type Prompt struct {
	ID              int64
	Text            string
	Category        Category
	Active          bool
	RequiresProject bool
}

// Entry is one journal answer.
type Entry struct {
	ID         int64
	CreatedAt  time.Time
	PromptID   int64 // 0 when free-form
	PromptText string
	Category   Category
	ProjectTag string
	TraitTag   string
	Text       string
	Sentiment  string
	Meta       map[string]any
}

// EntryPatch updates only the non-nil fields. Empty strings clear optional
// columns.
type EntryPatch struct {
	PromptText *string
	Category   *Category
	ProjectTag *string
	TraitTag   *string
	Text       *string
	Sentiment  *string
	Meta       map[string]any
	CreatedAt  *time.Time
}

// EntryFilter narrows ListEntries. Zero fields are ignored.
type EntryFilter struct {
	From       time.Time
	To         time.Time
	Category   Category
	ProjectTag string
	TraitTag   string
	Limit      int // default 50
	Offset     int
}

// Tag is a project or trait name.
type Tag struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type CategoryCount struct {
	Category Category
	Count    int
}

type TagCount struct {
	Tag   string
	Count int
}

// StatsSnapshot aggregates entries for the insights summary.
type StatsSnapshot struct {
	TotalSince     int
	CategoryCounts []CategoryCount
	ProjectCounts  []TagCount
	TraitCounts    []TagCount
}
