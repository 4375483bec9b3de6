package storage

import (
	"context"
	"testing"
	"time"
)

func TestFile_SetGetDelete(t *testing.T) {
	t.Parallel()

	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile() error: %v", err)
	}
	ctx := context.Background()

	if err := f.Set(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	value, ok, err := f.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || string(value) != "v1" {
		t.Errorf("Get() = (%q, %v), want (%q, true)", value, ok, "v1")
	}

	if err := f.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	_, ok, _ = f.Get(ctx, "k1")
	if ok {
		t.Error("key still present after Delete()")
	}
}

func TestFile_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f1, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile() error: %v", err)
	}
	ctx := context.Background()
	if err := f1.Set(ctx, "durable", []byte("payload"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	f2, err := NewFile(dir)
	if err != nil {
		t.Fatalf("second NewFile() error: %v", err)
	}
	value, ok, err := f2.Get(ctx, "durable")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || string(value) != "payload" {
		t.Errorf("Get() after reopen = (%q, %v), want (%q, true)", value, ok, "payload")
	}
}

func TestFile_UpdateAtomicIncrement(t *testing.T) {
	t.Parallel()

	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile() error: %v", err)
	}
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
		if _, _, err := f.Update(ctx, "counter", incr); err != nil {
			t.Fatalf("Update() error: %v", err)
		}
	}

	value, ok, err := f.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || int(value[0]) != iterations {
		t.Errorf("counter = %v, want %d", value, iterations)
	}
}

func TestFile_TTLExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var current time.Time = now
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile() error: %v", err)
	}
	f.clock = func() time.Time { return current }

	ctx := context.Background()
	if err := f.Set(ctx, "k1", []byte("v1"), time.Second); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	current = now.Add(2 * time.Second)
	_, ok, err := f.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("Get() ok = true for expired key, want false")
	}
}
