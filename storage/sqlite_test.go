package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLite_SetGetDelete(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "bantai.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if err := s.Set(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	value, ok, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || string(value) != "v1" {
		t.Errorf("Get() = (%q, %v), want (%q, true)", value, ok, "v1")
	}

	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	_, ok, _ = s.Get(ctx, "k1")
	if ok {
		t.Error("key still present after Delete()")
	}
}

func TestSQLite_UpsertOverwritesValue(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "bantai.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	_ = s.Set(ctx, "k1", []byte("v1"), 0)
	if err := s.Set(ctx, "k1", []byte("v2"), 0); err != nil {
		t.Fatalf("Set() overwrite error: %v", err)
	}

	value, ok, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || string(value) != "v2" {
		t.Errorf("Get() = (%q, %v), want (%q, true)", value, ok, "v2")
	}
}

func TestSQLite_UpdateAtomicIncrement(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "bantai.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	incr := func(current []byte, ok bool) ([]byte, time.Duration, bool) {
		n := 0
		if ok {
			n = int(current[0])
		}
		return []byte{byte(n + 1)}, 0, true
	}

	const iterations = 25
	for i := 0; i < iterations; i++ {
		if _, _, err := s.Update(ctx, "counter", incr); err != nil {
			t.Fatalf("Update() error: %v", err)
		}
	}

	value, ok, err := s.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || int(value[0]) != iterations {
		t.Errorf("counter = %v, want %d", value, iterations)
	}
}

func TestSQLite_TTLExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var current time.Time = now
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "bantai.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer func() { _ = s.Close() }()
	s.clock = func() time.Time { return current }

	ctx := context.Background()
	if err := s.Set(ctx, "k1", []byte("v1"), time.Second); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	current = now.Add(2 * time.Second)
	_, ok, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("Get() ok = true for expired key, want false")
	}
}
