package personalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// --- Mock kv ---

type mockKV struct {
	mu   sync.Mutex
	data map[string]string
	fail bool
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string]string)}
}

func (m *mockKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", false, errors.New("disk on fire")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk on fire")
	}
	m.data[key] = value
	return nil
}

func (m *mockKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk on fire")
	}
	delete(m.data, key)
	return nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func record(behavior, situation string) Record {
	return Record{
		BehaviorSlug:   behavior,
		SituationSlug:  situation,
		VideoURL:       "https://x/" + situation + ".mp4",
		Title:          behavior,
		SituationTitle: situation,
	}
}

// --- Favorites ---

func TestToggle_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	fav := NewFavorites(store).WithClock(newMockClock())

	if added := fav.Toggle(ctx, record("sundowning", "wants-to-go-home")); !added {
		t.Fatal("first toggle should add")
	}
	if !fav.Exists("sundowning", "wants-to-go-home") {
		t.Fatal("record should exist after favoriting")
	}

	if added := fav.Toggle(ctx, record("sundowning", "wants-to-go-home")); added {
		t.Fatal("second toggle should remove")
	}
	if fav.Exists("sundowning", "wants-to-go-home") {
		t.Fatal("record should be gone after unfavoriting")
	}

	// The persisted list is empty too.
	var persisted []Record
	if err := json.Unmarshal([]byte(store.data[FavoritesKey]), &persisted); err != nil {
		t.Fatalf("persisted favorites are not valid JSON: %v", err)
	}
	if len(persisted) != 0 {
		t.Errorf("persisted list should be empty, got %d records", len(persisted))
	}
}

func TestToggle_NewestFirst(t *testing.T) {
	ctx := context.Background()
	fav := NewFavorites(newMockKV()).WithClock(newMockClock())

	fav.Toggle(ctx, record("sundowning", "wants-to-go-home"))
	fav.Toggle(ctx, record("anger-or-aggression", "cursing-or-yelling"))

	list := fav.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	if list[0].SituationSlug != "cursing-or-yelling" {
		t.Errorf("most recent favorite should be first, got %q", list[0].SituationSlug)
	}
	if list[0].Timestamp <= list[1].Timestamp {
		t.Errorf("timestamps not descending: %d, %d", list[0].Timestamp, list[1].Timestamp)
	}
}

// --- Recently viewed ---

func TestUpsert_EvictsOldestBeyondCap(t *testing.T) {
	ctx := context.Background()
	recent := NewRecentlyViewed(newMockKV()).WithClock(newMockClock())

	for i := 1; i <= 11; i++ {
		recent.Upsert(ctx, record("sundowning", fmt.Sprintf("situation-%d", i)))
	}

	if recent.Len() != 10 {
		t.Fatalf("expected 10 records, got %d", recent.Len())
	}
	if recent.Exists("sundowning", "situation-1") {
		t.Error("the least recently inserted record should have been evicted")
	}
	if !recent.Exists("sundowning", "situation-2") || !recent.Exists("sundowning", "situation-11") {
		t.Error("newer records should have survived eviction")
	}
}

func TestUpsert_RepeatViewBumpsToFront(t *testing.T) {
	ctx := context.Background()
	recent := NewRecentlyViewed(newMockKV()).WithClock(newMockClock())

	recent.Upsert(ctx, record("sundowning", "wants-to-go-home"))
	recent.Upsert(ctx, record("sundowning", "refuses-to-sit-down-or-sleep"))

	first := recent.List()[1] // wants-to-go-home, now second
	if first.SituationSlug != "wants-to-go-home" {
		t.Fatalf("setup broken: %q", first.SituationSlug)
	}

	recent.Upsert(ctx, record("sundowning", "wants-to-go-home"))

	list := recent.List()
	if len(list) != 2 {
		t.Fatalf("repeat view must not grow the store, got %d", len(list))
	}
	if list[0].SituationSlug != "wants-to-go-home" {
		t.Errorf("re-viewed record should be first, got %q", list[0].SituationSlug)
	}
	if list[0].Timestamp <= first.Timestamp {
		t.Error("re-viewed record's timestamp was not refreshed")
	}
}

// --- Load ---

func TestLoad_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()

	store := newMockKV()
	fav := NewFavorites(store)
	if got := fav.Load(ctx); len(got) != 0 {
		t.Errorf("missing key should load empty, got %d", len(got))
	}

	store.data[FavoritesKey] = "{definitely not json"
	if got := fav.Load(ctx); len(got) != 0 {
		t.Errorf("corrupt data should load empty, got %d", len(got))
	}
}

func TestLoad_PersistedRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()

	fav := NewFavorites(store).WithClock(newMockClock())
	fav.Toggle(ctx, record("sundowning", "wants-to-go-home"))

	// A second store over the same kv sees the same list.
	reloaded := NewFavorites(store)
	list := reloaded.Load(ctx)
	if len(list) != 1 || list[0].SituationSlug != "wants-to-go-home" {
		t.Errorf("reload mismatch: %+v", list)
	}
	if !reloaded.Exists("sundowning", "wants-to-go-home") {
		t.Error("Exists should see loaded records")
	}
}

// --- Failure semantics ---

func TestStorageFailure_CacheKeepsLastKnownGood(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	fav := NewFavorites(store).WithClock(newMockClock())

	fav.Toggle(ctx, record("sundowning", "wants-to-go-home"))
	store.fail = true

	// Write failure: the toggle is absorbed, membership unchanged.
	fav.Toggle(ctx, record("anger-or-aggression", "cursing-or-yelling"))
	if fav.Exists("anger-or-aggression", "cursing-or-yelling") {
		t.Error("failed write must not change the in-memory list")
	}
	if !fav.Exists("sundowning", "wants-to-go-home") {
		t.Error("previous state should survive a failed write")
	}

	// Read failure: Load returns the last known good list.
	if got := fav.Load(ctx); len(got) != 1 {
		t.Errorf("failed read should return cached list, got %d records", len(got))
	}

	// Clear failure: cache intact.
	fav.Clear(ctx)
	if !fav.Exists("sundowning", "wants-to-go-home") {
		t.Error("failed clear must not drop the cache")
	}

	store.fail = false
	fav.Clear(ctx)
	if fav.Len() != 0 {
		t.Error("clear should empty the cache")
	}
	if _, ok := store.data[FavoritesKey]; ok {
		t.Error("clear should remove the persisted key")
	}
}
