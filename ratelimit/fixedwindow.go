package ratelimit

import (
	"context"
	"time"

	json "github.com/segmentio/encoding/json"

	"github.com/bantai/bantai/storage"
)

// fixedWindowState is the value stored per key: how many events have
// landed in the window starting at WindowStart.
type fixedWindowState struct {
	WindowStart time.Time `json:"windowStart"`
	Count       int       `json:"count"`
}

// decodeFixedWindowState unmarshals raw into a fixedWindowState, resetting
// it to a fresh window starting at windowStart whenever raw is absent,
// unparseable, or belongs to an earlier window.
func decodeFixedWindowState(raw []byte, ok bool, windowStart time.Time) fixedWindowState {
	var state fixedWindowState
	if ok {
		if err := json.Unmarshal(raw, &state); err != nil {
			ok = false
		}
	}
	if !ok || state.WindowStart.Before(windowStart) {
		state = fixedWindowState{WindowStart: windowStart, Count: 0}
	}
	return state
}

// checkFixedWindow reports whether cfg.Cost more events fit in the window
// containing now, without mutating stored state.
func checkFixedWindow(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	raw, ok, err := adapter.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	windowStart := now.Truncate(cfg.Period)
	state := decodeFixedWindowState(raw, ok, windowStart)
	cost := normalizeCost(cfg.Cost)
	resetAfter := state.WindowStart.Add(cfg.Period).Sub(now)

	if state.Count+cost > cfg.Limit {
		return Result{Allowed: false, Remaining: max0(cfg.Limit - state.Count), RetryAfter: resetAfter, ResetAfter: resetAfter}, nil
	}
	return Result{Allowed: true, Remaining: cfg.Limit - state.Count - cost, ResetAfter: resetAfter}, nil
}

// incrementFixedWindow commits cfg.Cost units of capacity against the
// window containing now, resetting the counter whenever now has moved
// into a new window.
func incrementFixedWindow(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	var result Result
	cost := normalizeCost(cfg.Cost)

	_, _, err := storage.Update(ctx, adapter, key, func(current []byte, ok bool) ([]byte, time.Duration, bool) {
		windowStart := now.Truncate(cfg.Period)
		state := decodeFixedWindowState(current, ok, windowStart)

		resetAfter := state.WindowStart.Add(cfg.Period).Sub(now)
		if state.Count+cost > cfg.Limit {
			result = Result{Allowed: false, Remaining: max0(cfg.Limit - state.Count), RetryAfter: resetAfter, ResetAfter: resetAfter}
			return nil, 0, false
		}

		state.Count += cost
		result = Result{Allowed: true, Remaining: cfg.Limit - state.Count, ResetAfter: resetAfter}

		data, marshalErr := json.Marshal(state)
		if marshalErr != nil {
			return nil, 0, false
		}
		return data, cfg.Period, true
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
