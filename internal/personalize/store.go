// Package personalize implements the two persisted, ordered,
// deduplicated lists of video references the app keeps per device:
// favorites and recently viewed. Both share one store type,
// parameterized by storage key, size bound, and insert behavior.
//
// Storage failures never reach callers: they are logged and absorbed,
// and the in-memory list stays at its last known good state. The UI
// keeps working even when persistence doesn't.
package personalize

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mesenbrink/helpnow/internal/kv"
)

// Storage keys. Each store owns exactly one key; the value is a JSON
// array of records, most recent first.
const (
	FavoritesKey      = "favorite_videos"
	RecentlyViewedKey = "recently_viewed_videos"
)

// maxRecentVideos bounds the recently viewed list; the oldest record is
// evicted beyond this.
const maxRecentVideos = 10

// Record is one personalized video reference. (BehaviorSlug,
// SituationSlug) is the identity key: at most one record per pair lives
// in a store. The display fields are denormalized copies taken at
// insertion time.
type Record struct {
	BehaviorSlug   string `json:"behavior"`
	SituationSlug  string `json:"situation"`
	VideoURL       string `json:"videoUrl"`
	Title          string `json:"title"`
	SituationTitle string `json:"situationTitle"`
	Timestamp      int64  `json:"timestamp"` // ms since epoch, stamped by the store
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is a persisted, ordered, deduplicated, optionally bounded list
// of records backed by one kv key.
type Store struct {
	key     string
	maxSize int // 0 = unbounded
	kv      kv.Store
	clock   Clock

	mu      sync.RWMutex
	records []Record
}

// NewFavorites creates the favorites store: unbounded, toggle semantics.
func NewFavorites(store kv.Store) *Store {
	return &Store{key: FavoritesKey, kv: store, clock: realClock{}}
}

// NewRecentlyViewed creates the recently viewed store: capped at 10,
// upsert-and-bump semantics.
func NewRecentlyViewed(store kv.Store) *Store {
	return &Store{key: RecentlyViewedKey, maxSize: maxRecentVideos, kv: store, clock: realClock{}}
}

// WithClock replaces the store's clock (for testing).
func (s *Store) WithClock(clock Clock) *Store {
	s.clock = clock
	return s
}

// Load reads the persisted list into the in-memory cache and returns
// it. Missing or corrupt data yields an empty list; a storage read
// failure is logged and leaves the cache untouched. Load never fails
// the caller.
func (s *Store) Load(ctx context.Context) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		slog.Error("loading personalization store", "key", s.key, "error", err)
		return copyRecords(s.records)
	}
	if !ok {
		s.records = nil
		return nil
	}

	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		// Corrupt data is "no data", not an error.
		slog.Warn("corrupt personalization data, treating as empty", "key", s.key, "error", err)
		s.records = nil
		return nil
	}

	s.records = records
	return copyRecords(s.records)
}

// List returns a copy of the in-memory list, most recent first.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRecords(s.records)
}

// Exists reports whether a record with the given identity key is in the
// in-memory cache. No storage round-trip.
func (s *Store) Exists(behaviorSlug, situationSlug string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(behaviorSlug, situationSlug) >= 0
}

// Upsert stamps the record with the current time, removes any existing
// record with the same identity key, inserts at the front, and
// truncates to the size bound. This is the recently viewed store's sole
// write: called on every view, including repeat views.
func (s *Store) Upsert(ctx context.Context, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Timestamp = s.clock.Now().UnixMilli()

	next := removeRecord(copyRecords(s.records), r.BehaviorSlug, r.SituationSlug)
	next = append([]Record{r}, next...)
	if s.maxSize > 0 && len(next) > s.maxSize {
		next = next[:s.maxSize]
	}

	s.commit(ctx, next)
}

// Toggle flips the record's presence: removes it when present,
// otherwise stamps the current time and inserts at the front. Returns
// whether the record is present afterwards.
func (s *Store) Toggle(ctx context.Context, r Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(r.BehaviorSlug, r.SituationSlug); i >= 0 {
		next := append(copyRecords(s.records[:i]), s.records[i+1:]...)
		s.commit(ctx, next)
		return false
	}

	r.Timestamp = s.clock.Now().UnixMilli()
	next := append([]Record{r}, copyRecords(s.records)...)
	s.commit(ctx, next)
	return true
}

// Clear empties both the persisted key and the in-memory cache.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, s.key); err != nil {
		slog.Error("clearing personalization store", "key", s.key, "error", err)
		return
	}
	s.records = nil
}

// Len returns the number of records in the in-memory cache.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// commit persists next and, only on success, makes it the in-memory
// state. On failure the cache keeps the last known good list. Caller
// holds the write lock.
func (s *Store) commit(ctx context.Context, next []Record) {
	data, err := json.Marshal(next)
	if err != nil {
		slog.Error("encoding personalization store", "key", s.key, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		slog.Error("persisting personalization store", "key", s.key, "error", err)
		return
	}
	s.records = next
}

// indexOf returns the cache position of the identity key, or -1. Caller
// holds at least a read lock.
func (s *Store) indexOf(behaviorSlug, situationSlug string) int {
	for i, r := range s.records {
		if r.BehaviorSlug == behaviorSlug && r.SituationSlug == situationSlug {
			return i
		}
	}
	return -1
}

func removeRecord(records []Record, behaviorSlug, situationSlug string) []Record {
	out := records[:0]
	for _, r := range records {
		if r.BehaviorSlug == behaviorSlug && r.SituationSlug == situationSlug {
			continue
		}
		out = append(out, r)
	}
	return out
}

func copyRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
