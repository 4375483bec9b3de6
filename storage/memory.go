package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bantai/bantai/internal/clock"
)

// Memory is an in-memory Adapter with per-key mutual exclusion. It is the
// reference implementation spec.md section 4.6 calls for: every key gets
// its own lock, so Update is linearizable per key without serializing
// unrelated keys behind a single global mutex. For development, testing,
// and single-process embeddings only — state is lost on restart.
type Memory struct {
	clock clock.Clock

	mu      sync.Mutex // guards entries and locks maps themselves
	entries map[string]Entry
	locks   map[string]*sync.Mutex

	cleanupOnce sync.Once
	cleanupStop chan struct{}
	cleanupWG   sync.WaitGroup
}

// NewMemory creates an empty in-memory adapter using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(clock.Default)
}

// NewMemoryWithClock creates an empty in-memory adapter using c for TTL
// expiry checks, so tests can advance virtual time.
func NewMemoryWithClock(c clock.Clock) *Memory {
	return &Memory{
		clock:   clock.OrDefault(c),
		entries: make(map[string]Entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Memory) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *Memory) getLocked(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	if e.HasTTL && !e.Expiry.After(m.clock()) {
		delete(m.entries, key)
		return Entry{}, false
	}
	return e, true
}

func (m *Memory) setLocked(key string, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
}

// Get returns the current value for key, treating an expired entry as
// absent and evicting it.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok := m.getLocked(key)
	if !ok {
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Set replaces the value for key. ttl <= 0 means no expiry.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := Entry{Value: value}
	if ttl > 0 {
		e.HasTTL = true
		e.Expiry = m.clock().Add(ttl)
	}
	m.setLocked(key, e)
	return nil
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Update performs a linearizable read-modify-write against key: the
// per-key lock held across fn's execution is what makes this atomic with
// respect to concurrent Update/Get/Set calls on the same key.
func (m *Memory) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, bool, error) {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	current, ok := m.getLocked(key)
	var currentValue []byte
	if ok {
		currentValue = current.Value
	}

	next, ttl, write := fn(currentValue, ok)
	if !write {
		return currentValue, ok, nil
	}

	e := Entry{Value: next}
	if ttl > 0 {
		e.HasTTL = true
		e.Expiry = m.clock().Add(ttl)
	}
	m.setLocked(key, e)
	return next, true, nil
}

// Len returns the number of live (non-expired) keys, for tests.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	n := 0
	for _, e := range m.entries {
		if !e.HasTTL || e.Expiry.After(now) {
			n++
		}
	}
	return n
}

var _ Adapter = (*Memory)(nil)
var _ Updater = (*Memory)(nil)
