// Package session holds the single TTL'd authentication record derived
// from membership verification. One record, one persisted key, valid
// for 30 days from issue.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mesenbrink/helpnow/internal/kv"
)

// authKey is the persisted key holding the session record.
const authKey = "user_auth"

// defaultTTL is how long a verified session stays valid.
const defaultTTL = 30 * 24 * time.Hour

// Record is the persisted authentication state.
type Record struct {
	Email         string `json:"email"`
	LeadID        string `json:"leadId"`
	Authenticated bool   `json:"authenticated"`
	Timestamp     int64  `json:"timestamp"` // ms since epoch, stamped at login
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Gate owns the session record. Expired or missing means
// unauthenticated; an expired record is cleared from storage on load.
type Gate struct {
	kv    kv.Store
	clock Clock
	ttl   time.Duration

	mu      sync.RWMutex
	current *Record
}

// NewGate creates a Gate with the 30-day TTL.
func NewGate(store kv.Store) *Gate {
	return &Gate{kv: store, clock: realClock{}, ttl: defaultTTL}
}

// NewGateWithClock creates a Gate with a custom clock and TTL (for testing).
func NewGateWithClock(store kv.Store, clock Clock, ttl time.Duration) *Gate {
	return &Gate{kv: store, clock: clock, ttl: ttl}
}

// Load reads the persisted record into memory. A stale or corrupt
// record is cleared from storage; a storage failure is logged and
// treated as unauthenticated. Load never fails the caller.
func (g *Gate) Load(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.current = nil

	raw, ok, err := g.kv.Get(ctx, authKey)
	if err != nil {
		slog.Error("loading session record", "error", err)
		return
	}
	if !ok {
		return
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("corrupt session record, clearing", "error", err)
		g.removeLocked(ctx)
		return
	}

	if !rec.Authenticated || g.expired(rec) {
		g.removeLocked(ctx)
		return
	}

	g.current = &rec
}

// Current returns the session record and whether it is valid right now.
// Expiry is re-checked against the clock on every call.
func (g *Gate) Current() (Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.current == nil || !g.current.Authenticated || g.expired(*g.current) {
		return Record{}, false
	}
	return *g.current, true
}

// Login stamps and persists a new session record. Unlike the stores in
// personalize, a failed login write is surfaced: the caller told the
// user they are signed in only if this succeeds.
func (g *Gate) Login(ctx context.Context, email, leadID string) (Record, error) {
	rec := Record{
		Email:         email,
		LeadID:        leadID,
		Authenticated: true,
		Timestamp:     g.clock.Now().UnixMilli(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encoding session record: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.kv.Set(ctx, authKey, string(data)); err != nil {
		return Record{}, fmt.Errorf("persisting session record: %w", err)
	}
	g.current = &rec
	return rec, nil
}

// Clear removes the session record from storage and memory.
func (g *Gate) Clear(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(ctx)
	g.current = nil
}

func (g *Gate) removeLocked(ctx context.Context) {
	if err := g.kv.Remove(ctx, authKey); err != nil {
		slog.Error("clearing session record", "error", err)
	}
}

func (g *Gate) expired(rec Record) bool {
	age := g.clock.Now().UnixMilli() - rec.Timestamp
	return age >= g.ttl.Milliseconds()
}
