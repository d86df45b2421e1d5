package storage

import (
	"context"
	"fmt"
	"time"
)

const topTags = 5

// StatsSnapshot counts entries since `since` and ranks categories, projects
// and traits over the whole journal.
func (s *Store) StatsSnapshot(ctx context.Context, since time.Time) (StatsSnapshot, error) {
	var out StatsSnapshot
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journal_entries WHERE created_at >= ?`, since.UnixMilli(),
	).Scan(&out.TotalSince); err != nil {
		return StatsSnapshot{}, fmt.Errorf("storage: stats total: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) AS n FROM journal_entries
		 GROUP BY category ORDER BY n DESC, category ASC`)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("storage: stats categories: %w", err)
	}
	for rows.Next() {
		var (
			c string
			n int
		)
		if err := rows.Scan(&c, &n); err != nil {
			rows.Close()
			return StatsSnapshot{}, err
		}
		out.CategoryCounts = append(out.CategoryCounts, CategoryCount{Category: Category(c), Count: n})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return StatsSnapshot{}, err
	}

	if out.ProjectCounts, err = s.tagCounts(ctx, "project_tag"); err != nil {
		return StatsSnapshot{}, err
	}
	if out.TraitCounts, err = s.tagCounts(ctx, "trait_tag"); err != nil {
		return StatsSnapshot{}, err
	}
	return out, nil
}

func (s *Store) tagCounts(ctx context.Context, col string) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+col+`, COUNT(*) AS n FROM journal_entries
		 WHERE `+col+` IS NOT NULL AND `+col+` != ''
		 GROUP BY `+col+` ORDER BY n DESC, `+col+` ASC LIMIT ?`, topTags)
	if err != nil {
		return nil, fmt.Errorf("storage: stats %s: %w", col, err)
	}
	defer rows.Close()
	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
