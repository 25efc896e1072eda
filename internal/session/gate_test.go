package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

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
		return "", false, errors.New("storage down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("storage down")
	}
	m.data[key] = value
	return nil
}

func (m *mockKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("storage down")
	}
	delete(m.data, key)
	return nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func day(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestLoginThenCurrent(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	gate := NewGateWithClock(store, clock, day(30))

	rec, err := gate.Login(ctx, "carer@example.com", "lead-42")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if rec.Timestamp != clock.now.UnixMilli() {
		t.Errorf("record not stamped with login time")
	}

	got, ok := gate.Current()
	if !ok {
		t.Fatal("expected authenticated session")
	}
	if got.Email != "carer@example.com" || got.LeadID != "lead-42" {
		t.Errorf("wrong record: %+v", got)
	}
}

func TestLoad_ExpiredRecordIsCleared(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	rec := Record{
		Email:         "carer@example.com",
		LeadID:        "lead-42",
		Authenticated: true,
		Timestamp:     clock.now.Add(-day(31)).UnixMilli(),
	}
	data, _ := json.Marshal(rec)
	store.data["user_auth"] = string(data)

	gate := NewGateWithClock(store, clock, day(30))
	gate.Load(ctx)

	if _, ok := gate.Current(); ok {
		t.Error("31-day-old session should be unauthenticated")
	}
	if _, present := store.data["user_auth"]; present {
		t.Error("expired record should be removed from storage")
	}
}

func TestLoad_FreshRecordSurvives(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	rec := Record{Email: "carer@example.com", Authenticated: true, Timestamp: clock.now.Add(-day(29)).UnixMilli()}
	data, _ := json.Marshal(rec)
	store.data["user_auth"] = string(data)

	gate := NewGateWithClock(store, clock, day(30))
	gate.Load(ctx)

	if _, ok := gate.Current(); !ok {
		t.Error("29-day-old session should still be valid")
	}
}

func TestCurrent_ExpiresBetweenCalls(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	gate := NewGateWithClock(newMockKV(), clock, day(30))

	if _, err := gate.Login(ctx, "carer@example.com", "lead-42"); err != nil {
		t.Fatal(err)
	}
	if _, ok := gate.Current(); !ok {
		t.Fatal("session should be valid right after login")
	}

	clock.now = clock.now.Add(day(31))
	if _, ok := gate.Current(); ok {
		t.Error("session should expire once the TTL passes")
	}
}

func TestLoad_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	store.data["user_auth"] = "{nope"

	gate := NewGate(store)
	gate.Load(ctx)

	if _, ok := gate.Current(); ok {
		t.Error("corrupt record should be unauthenticated")
	}
	if _, present := store.data["user_auth"]; present {
		t.Error("corrupt record should be cleared")
	}
}

func TestLogin_StorageFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	store.fail = true

	gate := NewGate(store)
	if _, err := gate.Login(ctx, "carer@example.com", "lead-42"); err == nil {
		t.Error("login must surface a persistence failure")
	}
	if _, ok := gate.Current(); ok {
		t.Error("failed login must not authenticate")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := newMockKV()
	gate := NewGate(store)

	if _, err := gate.Login(ctx, "carer@example.com", "lead-42"); err != nil {
		t.Fatal(err)
	}
	gate.Clear(ctx)

	if _, ok := gate.Current(); ok {
		t.Error("cleared session should be unauthenticated")
	}
	if _, present := store.data["user_auth"]; present {
		t.Error("cleared session should be removed from storage")
	}
}
