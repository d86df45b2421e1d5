package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const entryColumns = `id, created_at, prompt_id, prompt_text, category, project_tag, trait_tag, text, sentiment, meta`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e                                      Entry
		created                                int64
		promptID                               sql.NullInt64
		promptText, project, trait, sent, meta sql.NullString
		cat                                    string
	)
	if err := r.Scan(&e.ID, &created, &promptID, &promptText, &cat, &project, &trait, &e.Text, &sent, &meta); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = fromMillis(created)
	e.PromptID = promptID.Int64
	e.PromptText = promptText.String
	e.Category = Category(cat)
	e.ProjectTag = project.String
	e.TraitTag = trait.String
	e.Sentiment = sent.String
	e.Meta = decodeMeta(meta)
	return e, nil
}

// CreateEntry inserts e and returns the stored row. A zero CreatedAt means now.
func (s *Store) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	meta, err := encodeMeta(e.Meta)
	if err != nil {
		return Entry{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_entries(created_at, prompt_id, prompt_text, category, project_tag, trait_tag, text, sentiment, meta)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		created.UnixMilli(), nullInt(e.PromptID), nullStr(e.PromptText), string(e.Category),
		nullStr(e.ProjectTag), nullStr(e.TraitTag), e.Text, nullStr(e.Sentiment), meta,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("storage: create entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("storage: create entry: %w", err)
	}
	return s.GetEntry(ctx, id)
}

func (s *Store) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("storage: get entry %d: %w", id, err)
	}
	return e, nil
}

func entryWhere(f EntryFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UnixMilli())
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.ProjectTag != "" {
		where = append(where, "project_tag = ?")
		args = append(args, f.ProjectTag)
	}
	if f.TraitTag != "" {
		where = append(where, "trait_tag = ?")
		args = append(args, f.TraitTag)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListEntries returns matching entries newest first and the total match count.
func (s *Store) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, int, error) {
	where, args := entryWhere(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(f.Offset, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(append([]any(nil), args...), limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count entries: %w", err)
	}
	return out, total, nil
}

// UpdateEntry applies patch and returns the stored row.
func (s *Store) UpdateEntry(ctx context.Context, id int64, patch EntryPatch) (Entry, error) {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+" = ?")
		args = append(args, v)
	}
	if patch.PromptText != nil {
		set("prompt_text", nullStr(*patch.PromptText))
	}
	if patch.Category != nil {
		set("category", string(*patch.Category))
	}
	if patch.ProjectTag != nil {
		set("project_tag", nullStr(*patch.ProjectTag))
	}
	if patch.TraitTag != nil {
		set("trait_tag", nullStr(*patch.TraitTag))
	}
	if patch.Text != nil {
		set("text", *patch.Text)
	}
	if patch.Sentiment != nil {
		set("sentiment", nullStr(*patch.Sentiment))
	}
	if patch.Meta != nil {
		meta, err := encodeMeta(patch.Meta)
		if err != nil {
			return Entry{}, err
		}
		set("meta", meta)
	}
	if patch.CreatedAt != nil {
		set("created_at", patch.CreatedAt.UnixMilli())
	}
	if len(fields) == 0 {
		return s.GetEntry(ctx, id)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE journal_entries SET "+strings.Join(fields, ", ")+" WHERE id = ?",
		append(args, id)...)
	if err != nil {
		return Entry{}, fmt.Errorf("storage: update entry %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Entry{}, ErrNotFound
	}
	return s.GetEntry(ctx, id)
}

func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete entry %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentCategories returns the categories of the newest n entries.
func (s *Store) RecentCategories(ctx context.Context, n int) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category FROM journal_entries ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage: recent categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, Category(c))
	}
	return out, rows.Err()
}

// RecentProjectTags returns non-empty project tags of the newest n tagged entries.
func (s *Store) RecentProjectTags(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_tag FROM journal_entries
		 WHERE project_tag IS NOT NULL AND project_tag != ''
		 ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage: recent projects: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LastEntryAt returns when the newest entry was written; false when empty.
func (s *Store) LastEntryAt(ctx context.Context) (time.Time, bool, error) {
	var ms sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM journal_entries`).Scan(&ms); err != nil {
		return time.Time{}, false, fmt.Errorf("storage: last entry: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(ms.Int64), true, nil
}
