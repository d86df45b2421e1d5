// Package prompts chooses which question to ask next.
package prompts

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"quietq/internal/storage"
)

// TimeOfDay buckets the hour a prompt is shown in.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

const (
	historyWindow  = 3
	recentLookback = 5
)

var preferences = map[TimeOfDay][]storage.Category{
	Morning:   {storage.CategoryIdentity, storage.CategoryProductivity, storage.CategoryBehavior, storage.CategoryProject},
	Afternoon: {storage.CategoryProject, storage.CategoryProductivity, storage.CategoryTrait},
	Evening:   {storage.CategoryEmotion, storage.CategoryTrait, storage.CategorySmallWin},
	Night:     {storage.CategoryEmotion, storage.CategoryIdentity, storage.CategorySmallWin},
}

func TimeOfDayAt(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 22:
		return Evening
	default:
		return Night
	}
}

// Context is what selection considers besides the catalogue.
type Context struct {
	TimeOfDay      TimeOfDay
	RecentHistory  []storage.Category // newest first
	ActiveProjects []string
}

var genericProject = strings.NewReplacer(
	"the "+storage.ProjectPlaceholder+" project", "your project",
	storage.ProjectPlaceholder, "your project",
)

// Choice is a prompt ready to show.
type Choice struct {
	Prompt            storage.Prompt
	ProjectSuggestion string
}

// Text renders the prompt with the project placeholder filled in.
func (c Choice) Text() string {
	if c.ProjectSuggestion == "" {
		return genericProject.Replace(c.Prompt.Text)
	}
	return strings.ReplaceAll(c.Prompt.Text, storage.ProjectPlaceholder, c.ProjectSuggestion)
}

// CategoryOrder ranks the available categories for ctx. Categories used in
// the last few entries drop out unless nothing would remain.
func CategoryOrder(ctx Context, available []storage.Category) []storage.Category {
	combined := append([]storage.Category(nil), preferences[ctx.TimeOfDay]...)
	if len(ctx.ActiveProjects) > 0 {
		combined = append(combined, storage.CategoryProject)
	}
	combined = append(combined, available...)

	var unique []storage.Category
	for _, c := range combined {
		if slices.Contains(available, c) && !slices.Contains(unique, c) {
			unique = append(unique, c)
		}
	}

	recent := ctx.RecentHistory[:min(historyWindow, len(ctx.RecentHistory))]
	var fresh []storage.Category
	for _, c := range unique {
		if !slices.Contains(recent, c) {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) > 0 {
		return fresh
	}
	return unique
}

// Pick chooses a prompt from active. It returns false when active is empty.
func Pick(ctx Context, active []storage.Prompt, rng *rand.Rand) (Choice, bool) {
	if len(active) == 0 {
		return Choice{}, false
	}
	var available []storage.Category
	for _, p := range active {
		if !slices.Contains(available, p.Category) {
			available = append(available, p.Category)
		}
	}

	for _, c := range CategoryOrder(ctx, available) {
		var pool []storage.Prompt
		for _, p := range active {
			if p.Category == c {
				pool = append(pool, p)
			}
		}
		if len(pool) == 0 {
			continue
		}
		p := pool[rng.IntN(len(pool))]
		var suggestion string
		if p.RequiresProject && len(ctx.ActiveProjects) > 0 {
			suggestion = ctx.ActiveProjects[rng.IntN(len(ctx.ActiveProjects))]
		}
		return Choice{Prompt: p, ProjectSuggestion: suggestion}, true
	}

	return Choice{}, false
}

// Repo is the storage the selector reads.
type Repo interface {
	ActivePrompts(ctx context.Context) ([]storage.Prompt, error)
	RecentCategories(ctx context.Context, n int) ([]storage.Category, error)
	RecentProjectTags(ctx context.Context, n int) ([]string, error)
	ListTags(ctx context.Context, kind storage.TagKind) ([]storage.Tag, error)
}

// Selector builds the selection context from the journal and picks a prompt.
type Selector struct {
	repo Repo
	loc  *time.Location
	now  func() time.Time
	rng  *rand.Rand
}

type Option func(*Selector)

func WithLocation(loc *time.Location) Option {
	return func(s *Selector) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithNow(now func() time.Time) Option { return func(s *Selector) { s.now = now } }

// WithRand fixes the random source, for tests.
func WithRand(r *rand.Rand) Option { return func(s *Selector) { s.rng = r } }

func NewSelector(repo Repo, opts ...Option) *Selector {
	s := &Selector{
		repo: repo,
		loc:  time.Local,
		now:  time.Now,
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Next returns the prompt to show now; false when the catalogue is empty.
func (s *Selector) Next(ctx context.Context) (Choice, bool, error) {
	active, err := s.repo.ActivePrompts(ctx)
	if err != nil {
		return Choice{}, false, fmt.Errorf("prompts: %w", err)
	}
	if len(active) == 0 {
		return Choice{}, false, nil
	}
	history, err := s.repo.RecentCategories(ctx, recentLookback)
	if err != nil {
		return Choice{}, false, fmt.Errorf("prompts: %w", err)
	}
	recentProjects, err := s.repo.RecentProjectTags(ctx, recentLookback)
	if err != nil {
		return Choice{}, false, fmt.Errorf("prompts: %w", err)
	}
	known, err := s.repo.ListTags(ctx, storage.TagProject)
	if err != nil {
		return Choice{}, false, fmt.Errorf("prompts: %w", err)
	}

	var projects []string
	for _, p := range recentProjects {
		if p != "" && !slices.Contains(projects, p) {
			projects = append(projects, p)
		}
	}
	for _, t := range known {
		if !slices.Contains(projects, t.Name) {
			projects = append(projects, t.Name)
		}
	}

	pc := Context{
		TimeOfDay:      TimeOfDayAt(s.now().In(s.loc)),
		RecentHistory:  history,
		ActiveProjects: projects,
	}
	ch, ok := Pick(pc, active, s.rng)
	return ch, ok, nil
}
