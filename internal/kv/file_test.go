package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("absent key should be ok=false err=nil, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "favorite_videos", `[{"behavior":"sundowning"}]`); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// A fresh store reads back from disk.
	s2 := NewFileStore(path)
	v, ok, err := s2.Get(ctx, "favorite_videos")
	if err != nil || !ok {
		t.Fatalf("Get error: ok=%v err=%v", ok, err)
	}
	if v != `[{"behavior":"sundowning"}]` {
		t.Errorf("wrong value: %q", v)
	}

	if err := s2.Remove(ctx, "favorite_videos"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, ok, _ := NewFileStore(path).Get(ctx, "favorite_videos"); ok {
		t.Error("key should be gone after Remove")
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if _, _, err := s.Get(context.Background(), "anything"); err == nil {
		t.Error("expected an error for a corrupt state file")
	}
}

func TestFileStore_RemoveMissingKey(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err := s.Remove(context.Background(), "never-set"); err != nil {
		t.Errorf("removing an absent key should be a no-op, got %v", err)
	}
}
