package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quietq/internal/storage"
)

// Insights summarizes the journal.
type Insights struct {
	WeekStart            time.Time
	TotalThisWeek        int
	EntriesByCategory    []storage.CategoryCount
	TopProjects          []storage.TagCount
	TopTraits            []storage.TagCount
	MostFrequentCategory storage.Category
	MostActiveProject    string
	MostActiveTrait      string
}

// WeekStart is 00:00 on the Sunday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}

func (s *Service) Insights(ctx context.Context) (Insights, error) {
	start := WeekStart(s.now().In(s.loc))
	snap, err := s.repo.StatsSnapshot(ctx, start)
	if err != nil {
		return Insights{}, err
	}
	out := Insights{
		WeekStart:         start,
		TotalThisWeek:     snap.TotalSince,
		EntriesByCategory: snap.CategoryCounts,
		TopProjects:       snap.ProjectCounts,
		TopTraits:         snap.TraitCounts,
	}
	if len(snap.CategoryCounts) > 0 {
		out.MostFrequentCategory = snap.CategoryCounts[0].Category
	}
	if len(snap.ProjectCounts) > 0 {
		out.MostActiveProject = snap.ProjectCounts[0].Tag
	}
	if len(snap.TraitCounts) > 0 {
		out.MostActiveTrait = snap.TraitCounts[0].Tag
	}
	return out, nil
}

// Format renders insights as plain chat text.
func (in Insights) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entries this week: %d\n", in.TotalThisWeek)
	if in.MostFrequentCategory != "" {
		fmt.Fprintf(&b, "Most frequent: %s\n", in.MostFrequentCategory)
	}
	if in.MostActiveProject != "" {
		fmt.Fprintf(&b, "Most active project: %s\n", in.MostActiveProject)
	}
	if in.MostActiveTrait != "" {
		fmt.Fprintf(&b, "Most active trait: %s\n", in.MostActiveTrait)
	}
	if len(in.EntriesByCategory) > 0 {
		b.WriteString("\nBy category:\n")
		for _, c := range in.EntriesByCategory {
			fmt.Fprintf(&b, "- %s: %d\n", c.Category, c.Count)
		}
	}
	writeTags := func(title string, tags []storage.TagCount) {
		if len(tags) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, t := range tags {
			fmt.Fprintf(&b, "- %s: %d\n", t.Tag, t.Count)
		}
	}
	writeTags("Top projects", in.TopProjects)
	writeTags("Top traits", in.TopTraits)
	return strings.TrimRight(b.String(), "\n")
}
