// Package storage provides the abstract key-value store used by stateful
// extensions (the rate-limit algorithms, primarily). It mirrors spec.md
// section 4.6's Storage Adapter contract: Get/Set/Delete, plus an
// optional atomic Updater for linearizable read-modify-write.
package storage

import (
	"context"
	"errors"
	"time"
)

// Entry is a stored value plus its expiry. Expiry is consulted only when
// HasTTL is true; HasTTL false means no expiry.
type Entry struct {
	Value   []byte
	Expiry  time.Time
	HasTTL  bool
}

// Adapter is the minimum contract every storage backend implements.
type Adapter interface {
	// Get returns the current value for key, or ok=false if absent or
	// expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set replaces the value for key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// UpdateFunc computes the next value for a key given its current value.
// current is nil and ok is false when the key is absent or expired.
// Returning write=false skips the write entirely (the "null" case of
// spec.md's updater(current) → {value, ttlMs?} | null contract).
type UpdateFunc func(current []byte, ok bool) (value []byte, ttl time.Duration, write bool)

// Updater is implemented by adapters that can perform a linearizable
// read-modify-write against a single key. Adapters without Updater force
// callers (the rate-limit extension, in this codebase) to fall back to a
// non-atomic Get-then-Set, accepting the race spec.md documents as
// acceptable for embedded, single-process use.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) (value []byte, ok bool, err error)
}

// TransientError reports that an adapter could not complete an operation
// in time, or lost a distributed lock before it could commit. Per
// spec.md section 5, callers (the rate-limit extension) convert this into
// a fail-closed deny rather than letting it escape as an opaque error.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return "storage: transient error during " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// ErrLockLost reports that a held lock expired before an adapter could
// commit its write (spec.md section 4.6). None of the adapters in this
// package returns it: File's flock and SQLite's transaction do not expire.
var ErrLockLost = errors.New("storage: lock expired before commit")

// Update runs fn against adapter, using its native Updater when available
// and falling back to a non-atomic Get-then-Set otherwise. This is the
// single place every caller should go through, so the fallback's race is
// documented in one spot instead of re-implemented per extension.
func Update(ctx context.Context, adapter Adapter, key string, fn UpdateFunc) (value []byte, ok bool, err error) {
	if updater, isUpdater := adapter.(Updater); isUpdater {
		return updater.Update(ctx, key, fn)
	}

	current, exists, err := adapter.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	next, ttl, write := fn(current, exists)
	if !write {
		return current, exists, nil
	}
	if err := adapter.Set(ctx, key, next, ttl); err != nil {
		return nil, false, err
	}
	return next, true, nil
}
