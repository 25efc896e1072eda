// Package search flattens the catalog into a small index and filters it
// by free-text queries. The matcher is deliberately the simplest correct
// one: a case-insensitive substring test, cheap enough to re-run on
// every keystroke.
package search

import (
	"strings"

	"github.com/mesenbrink/helpnow/internal/catalog"
)

// Entry is one searchable row: a behavior on its own, or a
// behavior/situation pair. SituationSlug is empty for behavior-level
// entries.
type Entry struct {
	Label         string `json:"label"`
	BehaviorSlug  string `json:"behaviorSlug"`
	SituationSlug string `json:"situationSlug,omitempty"`
}

// Build flattens a catalog into index entries: for each behavior one
// behavior-level entry followed by one entry per situation, all in the
// catalog's stored order. Pure function of the catalog; since the
// catalog is static per process the result can be built once and kept.
func Build(c *catalog.Catalog) []Entry {
	var index []Entry
	for _, b := range c.Behaviors() {
		index = append(index, Entry{
			Label:        b.Slug,
			BehaviorSlug: b.Slug,
		})
		for _, s := range b.Situations {
			index = append(index, Entry{
				Label:         b.Slug + " / " + s.Slug,
				BehaviorSlug:  b.Slug,
				SituationSlug: s.Slug,
			})
		}
	}
	return index
}

// Match returns the index entries whose label contains the query,
// case-folded, as a substring. A blank query matches nothing. The
// result keeps the index's original order; there is no ranking.
func Match(index []Entry, query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var matches []Entry
	for _, e := range index {
		if strings.Contains(strings.ToLower(e.Label), q) {
			matches = append(matches, e)
		}
	}
	return matches
}
