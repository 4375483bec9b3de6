package ratelimit

import (
	"context"
	"time"

	json "github.com/segmentio/encoding/json"

	"github.com/bantai/bantai/storage"
)

// slidingWindowState tracks the two adjacent fixed windows the sliding
// window counter algorithm blends between.
type slidingWindowState struct {
	CurrentStart  time.Time `json:"currentStart"`
	CurrentCount  int       `json:"currentCount"`
	PreviousCount int       `json:"previousCount"`
}

// slidingWindowAdvance decodes raw (if any) and rolls it forward to the
// fixed window containing now, shifting CurrentCount into PreviousCount
// when exactly one window has elapsed, and dropping it otherwise.
func slidingWindowAdvance(raw []byte, ok bool, cfg Config, now time.Time) slidingWindowState {
	var state slidingWindowState
	if ok {
		if err := json.Unmarshal(raw, &state); err != nil {
			ok = false
		}
	}

	currentStart := now.Truncate(cfg.Period)
	switch {
	case !ok:
		state = slidingWindowState{CurrentStart: currentStart}
	case state.CurrentStart.Equal(currentStart):
		// same window, nothing to shift
	case state.CurrentStart.Add(cfg.Period).Equal(currentStart):
		// advanced exactly one window
		state = slidingWindowState{CurrentStart: currentStart, PreviousCount: state.CurrentCount}
	default:
		// advanced more than one window: previous window is now empty
		state = slidingWindowState{CurrentStart: currentStart}
	}
	return state
}

// slidingWindowWeighted estimates the event rate over a rolling window by
// weighting the previous fixed window's count by how much of it still
// overlaps [now-Period, now), avoiding the boundary burst fixed windows
// allow.
func slidingWindowWeighted(state slidingWindowState, cfg Config, now time.Time) float64 {
	elapsed := now.Sub(state.CurrentStart)
	overlap := 1 - float64(elapsed)/float64(cfg.Period)
	if overlap < 0 {
		overlap = 0
	}
	return float64(state.PreviousCount)*overlap + float64(state.CurrentCount)
}

// checkSlidingWindow reports whether cfg.Cost more events fit in the
// rolling window containing now, without mutating stored state.
func checkSlidingWindow(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	raw, ok, err := adapter.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	state := slidingWindowAdvance(raw, ok, cfg, now)
	weighted := slidingWindowWeighted(state, cfg, now)
	cost := normalizeCost(cfg.Cost)
	resetAfter := state.CurrentStart.Add(cfg.Period).Sub(now)

	if weighted+float64(cost) > float64(cfg.Limit) {
		return Result{Allowed: false, Remaining: 0, RetryAfter: resetAfter, ResetAfter: resetAfter}, nil
	}
	remaining := int(float64(cfg.Limit) - weighted - float64(cost))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAfter: resetAfter}, nil
}

// incrementSlidingWindow commits cfg.Cost units of capacity against the
// rolling window containing now.
func incrementSlidingWindow(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	var result Result
	cost := normalizeCost(cfg.Cost)

	_, _, err := storage.Update(ctx, adapter, key, func(current []byte, ok bool) ([]byte, time.Duration, bool) {
		state := slidingWindowAdvance(current, ok, cfg, now)
		weighted := slidingWindowWeighted(state, cfg, now)

		resetAfter := state.CurrentStart.Add(cfg.Period).Sub(now)
		if weighted+float64(cost) > float64(cfg.Limit) {
			result = Result{Allowed: false, Remaining: 0, RetryAfter: resetAfter, ResetAfter: resetAfter}
			return nil, 0, false
		}

		state.CurrentCount += cost
		remaining := int(float64(cfg.Limit) - weighted - float64(cost))
		if remaining < 0 {
			remaining = 0
		}
		result = Result{Allowed: true, Remaining: remaining, ResetAfter: resetAfter}

		data, marshalErr := json.Marshal(state)
		if marshalErr != nil {
			return nil, 0, false
		}
		return data, 2 * cfg.Period, true
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}
