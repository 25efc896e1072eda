// Package kv defines the persistence capability that personalization
// and session state live behind. Callers depend only on the Store
// interface; which variant backs it (SQLite app_state table or a plain
// JSON file) is a wiring decision.
package kv

import "context"

// Store is a named-key string store. Get reports ok=false for an absent
// key; absence is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
