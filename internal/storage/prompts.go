package storage

import (
	"context"
	"fmt"
)

// ActivePrompts returns every active prompt with its category name.
func (s *Store) ActivePrompts(ctx context.Context) ([]Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.text, c.name, p.is_active, p.requires_project
		 FROM prompts p
		 JOIN prompt_categories c ON c.id = p.category_id
		 WHERE p.is_active = 1
		 ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("storage: active prompts: %w", err)
	}
	defer rows.Close()

	var out []Prompt
	for rows.Next() {
		var (
			p             Prompt
			cat           string
			active, needs int
		)
		if err := rows.Scan(&p.ID, &p.Text, &cat, &active, &needs); err != nil {
			return nil, fmt.Errorf("storage: scan prompt: %w", err)
		}
		p.Category = Category(cat)
		p.Active = active != 0
		p.RequiresProject = needs != 0
		out = append(out, p)
	}
	return out, rows.Err()
}
