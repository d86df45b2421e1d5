// Package journal records answers and summarizes them.
package journal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"quietq/internal/storage"
	logx "quietq/pkg/logx"
)

var (
	ErrEmptyText       = errors.New("journal: entry text is required")
	ErrUnknownCategory = errors.New("journal: unknown category")
)

// Repo is the storage the journal needs.
type Repo interface {
	CreateEntry(ctx context.Context, e storage.Entry) (storage.Entry, error)
	GetEntry(ctx context.Context, id int64) (storage.Entry, error)
	ListEntries(ctx context.Context, f storage.EntryFilter) ([]storage.Entry, int, error)
	UpdateEntry(ctx context.Context, id int64, patch storage.EntryPatch) (storage.Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
	LastEntryAt(ctx context.Context) (time.Time, bool, error)

	ListTags(ctx context.Context, kind storage.TagKind) ([]storage.Tag, error)
	CreateTag(ctx context.Context, kind storage.TagKind, name string) (storage.Tag, error)
	FindTag(ctx context.Context, kind storage.TagKind, name string) (storage.Tag, error)
	RenameTag(ctx context.Context, kind storage.TagKind, id int64, name string) (storage.Tag, error)
	DeleteTag(ctx context.Context, kind storage.TagKind, id int64) error

	StatsSnapshot(ctx context.Context, since time.Time) (storage.StatsSnapshot, error)
}

type Service struct {
	repo Repo
	loc  *time.Location
	now  func() time.Time
	log  logx.Logger
}

func New(repo Repo, loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{repo: repo, loc: loc, now: time.Now, log: log.With(logx.String("comp", "journal"))}
}

// Record stores a new entry. Tags named in the entry are added to the
// project/trait lists so they show up in later suggestions. Entries without
// a category are filed as small wins.
func (s *Service) Record(ctx context.Context, e storage.Entry) (storage.Entry, error) {
	e.Text = strings.TrimSpace(e.Text)
	if e.Text == "" {
		return storage.Entry{}, ErrEmptyText
	}
	if e.Category == "" {
		e.Category = storage.CategorySmallWin
	}
	if !e.Category.Valid() {
		return storage.Entry{}, fmt.Errorf("%w: %q", ErrUnknownCategory, e.Category)
	}
	e.ProjectTag = strings.TrimSpace(e.ProjectTag)
	e.TraitTag = strings.TrimSpace(e.TraitTag)

	out, err := s.repo.CreateEntry(ctx, e)
	if err != nil {
		return storage.Entry{}, err
	}
	if out.ProjectTag != "" {
		if _, err := s.repo.CreateTag(ctx, storage.TagProject, out.ProjectTag); err != nil {
			s.log.Warn("remember project failed", logx.Err(err))
		}
	}
	if out.TraitTag != "" {
		if _, err := s.repo.CreateTag(ctx, storage.TagTrait, out.TraitTag); err != nil {
			s.log.Warn("remember trait failed", logx.Err(err))
		}
	}
	s.log.Info("entry recorded",
		logx.Int64("id", out.ID),
		logx.String("category", string(out.Category)),
		logx.String("project", out.ProjectTag),
	)
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (storage.Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

func (s *Service) List(ctx context.Context, f storage.EntryFilter) ([]storage.Entry, int, error) {
	return s.repo.ListEntries(ctx, f)
}

func (s *Service) Update(ctx context.Context, id int64, patch storage.EntryPatch) (storage.Entry, error) {
	if patch.Text != nil {
		t := strings.TrimSpace(*patch.Text)
		if t == "" {
			return storage.Entry{}, ErrEmptyText
		}
		patch.Text = &t
	}
	if patch.Category != nil && !patch.Category.Valid() {
		return storage.Entry{}, fmt.Errorf("%w: %q", ErrUnknownCategory, *patch.Category)
	}
	return s.repo.UpdateEntry(ctx, id, patch)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.log.Info("entry deleted", logx.Int64("id", id))
	return nil
}

// LastEntryAt reports when the newest entry was written.
func (s *Service) LastEntryAt(ctx context.Context) (time.Time, bool, error) {
	return s.repo.LastEntryAt(ctx)
}

func (s *Service) Tags(ctx context.Context, kind storage.TagKind) ([]storage.Tag, error) {
	return s.repo.ListTags(ctx, kind)
}

func (s *Service) AddTag(ctx context.Context, kind storage.TagKind, name string) (storage.Tag, error) {
	return s.repo.CreateTag(ctx, kind, name)
}

func (s *Service) RenameTag(ctx context.Context, kind storage.TagKind, oldName, newName string) (storage.Tag, error) {
	t, err := s.repo.FindTag(ctx, kind, oldName)
	if err != nil {
		return storage.Tag{}, err
	}
	return s.repo.RenameTag(ctx, kind, t.ID, newName)
}

// RemoveTag deletes a tag by name. Entries keep their tag text.
func (s *Service) RemoveTag(ctx context.Context, kind storage.TagKind, name string) error {
	t, err := s.repo.FindTag(ctx, kind, name)
	if err != nil {
		return err
	}
	return s.repo.DeleteTag(ctx, kind, t.ID)
}

var tagRe = regexp.MustCompile(`#(project|trait):("[^"]+"|\S+)`)

// ExtractTags pulls #project:name and #trait:name tokens out of text.
// Quoted names may contain spaces. The returned text has the tokens removed.
func ExtractTags(text string) (clean, project, trait string) {
	clean = tagRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := tagRe.FindStringSubmatch(m)
		name := strings.Trim(sub[2], `"`)
		switch sub[1] {
		case "project":
			project = name
		case "trait":
			trait = name
		}
		return ""
	})
	return strings.Join(strings.Fields(clean), " "), project, trait
}
