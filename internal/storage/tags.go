package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TagKind selects the projects or traits table.
type TagKind string

const (
	TagProject TagKind = "projects"
	TagTrait   TagKind = "traits"
)

func (k TagKind) table() (string, error) {
	switch k {
	case TagProject, TagTrait:
		return string(k), nil
	default:
		return "", fmt.Errorf("storage: unknown tag kind %q", string(k))
	}
}

// ListTags returns all names of kind, alphabetically.
func (s *Store) ListTags(ctx context.Context, kind TagKind) ([]Tag, error) {
	tbl, err := kind.table()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM `+tbl+` ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", tbl, err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var (
			t  Tag
			ms int64
		)
		if err := rows.Scan(&t.ID, &t.Name, &ms); err != nil {
			return nil, err
		}
		t.CreatedAt = fromMillis(ms)
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTag inserts name or returns the existing row with that name.
func (s *Store) CreateTag(ctx context.Context, kind TagKind, name string) (Tag, error) {
	tbl, err := kind.table()
	if err != nil {
		return Tag{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, errors.New("storage: empty tag name")
	}
	var (
		t  Tag
		ms int64
	)
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO `+tbl+`(name, created_at) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET name = excluded.name
		 RETURNING id, name, created_at`,
		name, s.nowMillis(),
	).Scan(&t.ID, &t.Name, &ms)
	if err != nil {
		return Tag{}, fmt.Errorf("storage: create %s: %w", tbl, err)
	}
	t.CreatedAt = fromMillis(ms)
	return t, nil
}

// FindTag looks a tag up by exact name.
func (s *Store) FindTag(ctx context.Context, kind TagKind, name string) (Tag, error) {
	tbl, err := kind.table()
	if err != nil {
		return Tag{}, err
	}
	var (
		t  Tag
		ms int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM `+tbl+` WHERE name = ?`, strings.TrimSpace(name),
	).Scan(&t.ID, &t.Name, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	if err != nil {
		return Tag{}, fmt.Errorf("storage: find %s: %w", tbl, err)
	}
	t.CreatedAt = fromMillis(ms)
	return t, nil
}

func (s *Store) RenameTag(ctx context.Context, kind TagKind, id int64, name string) (Tag, error) {
	tbl, err := kind.table()
	if err != nil {
		return Tag{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, errors.New("storage: empty tag name")
	}
	var (
		t  Tag
		ms int64
	)
	err = s.db.QueryRowContext(ctx,
		`UPDATE `+tbl+` SET name = ? WHERE id = ? RETURNING id, name, created_at`, name, id,
	).Scan(&t.ID, &t.Name, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	if err != nil {
		return Tag{}, fmt.Errorf("storage: rename %s %d: %w", tbl, id, err)
	}
	t.CreatedAt = fromMillis(ms)
	return t, nil
}

func (s *Store) DeleteTag(ctx context.Context, kind TagKind, id int64) error {
	tbl, err := kind.table()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+tbl+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete %s %d: %w", tbl, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
