package storage

import "time"

// ViewEvent is one append-only record of a video view. The recently
// viewed list is the bounded, deduplicated projection of these; the
// events themselves are kept for export.
type ViewEvent struct {
	ID            string    `json:"id"`
	BehaviorSlug  string    `json:"behavior_slug"`
	SituationSlug string    `json:"situation_slug"`
	VideoURL      string    `json:"video_url"`
	ViewedAt      time.Time `json:"viewed_at"`
}
