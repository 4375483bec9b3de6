package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bantai/bantai/internal/clock"
	"github.com/bantai/bantai/internal/idgen"
)

// File is a durable, single-process-per-file Adapter grounded on the
// teacher's FileStateStore: one JSON document per key under dir, written
// tmp-then-fsync-then-rename, guarded by a cross-process flock so two
// processes sharing dir do not tear each other's writes. Implements
// Updater by holding the flock across the whole read-modify-write, which
// is what makes Update linearizable across processes, not just goroutines.
type File struct {
	dir   string
	clock clock.Clock
	mu    sync.Mutex // serializes this process's own access to dir
}

// fileRecord is the on-disk shape of one key's document.
type fileRecord struct {
	Value     []byte    `json:"value"`
	HasTTL    bool      `json:"hasTtl"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// NewFile creates a File adapter rooted at dir, creating dir if absent.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &File{dir: dir, clock: clock.Default}, nil
}

func (f *File) keyPath(key string) string {
	return filepath.Join(f.dir, idgen.Slugify(key)+".json")
}

func (f *File) lockPath(key string) string {
	return f.keyPath(key) + ".lock"
}

// withLock acquires the in-process mutex and the cross-process flock for
// key's record, runs fn, and releases both in reverse order.
func (f *File) withLock(key string, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lockFile, err := os.OpenFile(f.lockPath(key), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &TransientError{Op: "open-lock", Err: err}
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return &TransientError{Op: "acquire-lock", Err: err}
	}
	defer func() { _ = flockUnlock(lockFile.Fd()) }()

	return fn()
}

func (f *File) readRecord(key string) (fileRecord, bool, error) {
	data, err := os.ReadFile(f.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fileRecord{}, false, nil
		}
		return fileRecord{}, false, fmt.Errorf("storage: read %s: %w", key, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fileRecord{}, false, fmt.Errorf("storage: parse %s: %w", key, err)
	}
	if rec.HasTTL && !rec.ExpiresAt.After(f.clock()) {
		return fileRecord{}, false, nil
	}
	return rec, true, nil
}

// writeAtomic writes data to path via a temp-file-fsync-rename sequence,
// identical in shape to the teacher's FileStateStore.writeAtomic.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	fh, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = fh.Close()
		_ = os.Remove(tmpPath)
	}
	if _, err := fh.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := fh.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (f *File) writeRecord(key string, rec fileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", key, err)
	}
	return writeAtomic(f.keyPath(key), data)
}

// Get returns the current value for key.
func (f *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var ok bool
	err := f.withLock(key, func() error {
		rec, found, err := f.readRecord(key)
		if err != nil {
			return err
		}
		ok = found
		if found {
			value = rec.Value
		}
		return nil
	})
	return value, ok, err
}

// Set replaces the value for key. ttl <= 0 means no expiry.
func (f *File) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return f.withLock(key, func() error {
		rec := fileRecord{Value: value}
		if ttl > 0 {
			rec.HasTTL = true
			rec.ExpiresAt = f.clock().Add(ttl)
		}
		return f.writeRecord(key, rec)
	})
}

// Delete removes key's record from disk.
func (f *File) Delete(ctx context.Context, key string) error {
	return f.withLock(key, func() error {
		if err := os.Remove(f.keyPath(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage: delete %s: %w", key, err)
		}
		return nil
	})
}

// Update performs a linearizable read-modify-write against key's record,
// holding the flock for the duration of fn so no other process can
// observe or clobber an intermediate state.
func (f *File) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, bool, error) {
	var value []byte
	var ok bool
	err := f.withLock(key, func() error {
		rec, found, err := f.readRecord(key)
		if err != nil {
			return err
		}
		var current []byte
		if found {
			current = rec.Value
		}

		next, ttl, write := fn(current, found)
		if !write {
			value, ok = current, found
			return nil
		}

		out := fileRecord{Value: next}
		if ttl > 0 {
			out.HasTTL = true
			out.ExpiresAt = f.clock().Add(ttl)
		}
		if err := f.writeRecord(key, out); err != nil {
			return err
		}
		value, ok = next, true
		return nil
	})
	return value, ok, err
}

var _ Adapter = (*File)(nil)
var _ Updater = (*File)(nil)
