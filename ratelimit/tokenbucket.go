package ratelimit

import (
	"context"
	"time"

	json "github.com/segmentio/encoding/json"

	"github.com/bantai/bantai/storage"
)

// tokenBucketState is the value stored per key: tokens remaining as of
// LastRefill. Tokens are refilled lazily on each check rather than by a
// background ticker.
type tokenBucketState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"lastRefill"`
}

// tokenBucketRefill decodes raw (if any) and refills the bucket for the
// elapsed time since its last refill, at a rate of cfg.Limit tokens per
// cfg.Period. A missing or unparseable raw starts from a full bucket.
func tokenBucketRefill(raw []byte, ok bool, cfg Config, now time.Time) tokenBucketState {
	var state tokenBucketState
	if ok {
		if err := json.Unmarshal(raw, &state); err != nil {
			ok = false
		}
	}
	if !ok {
		return tokenBucketState{Tokens: float64(cfg.Limit), LastRefill: now}
	}

	ratePerSecond := float64(cfg.Limit) / cfg.Period.Seconds()
	elapsed := now.Sub(state.LastRefill).Seconds()
	if elapsed > 0 {
		state.Tokens += elapsed * ratePerSecond
		if state.Tokens > float64(cfg.Limit) {
			state.Tokens = float64(cfg.Limit)
		}
		state.LastRefill = now
	}
	return state
}

// checkTokenBucket reports whether cfg.Cost tokens are available after
// refilling for elapsed time, without mutating stored state.
func checkTokenBucket(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	raw, ok, err := adapter.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	state := tokenBucketRefill(raw, ok, cfg, now)
	cost := float64(normalizeCost(cfg.Cost))
	ratePerSecond := float64(cfg.Limit) / cfg.Period.Seconds()

	if state.Tokens < cost {
		deficit := cost - state.Tokens
		retryAfter := time.Duration(deficit/ratePerSecond*float64(time.Second)) + time.Nanosecond
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter, ResetAfter: retryAfter}, nil
	}

	toFull := time.Duration((float64(cfg.Limit) - (state.Tokens - cost)) / ratePerSecond * float64(time.Second))
	return Result{Allowed: true, Remaining: int(state.Tokens - cost), ResetAfter: toFull}, nil
}

// incrementTokenBucket refills the bucket for elapsed time and, if
// cfg.Cost tokens are available, consumes them and persists the result.
// The refill is persisted even on denial so the next check doesn't
// recompute from a stale LastRefill, but no tokens are consumed.
func incrementTokenBucket(ctx context.Context, adapter storage.Adapter, key string, cfg Config, now time.Time) (Result, error) {
	var result Result
	cost := float64(normalizeCost(cfg.Cost))
	ratePerSecond := float64(cfg.Limit) / cfg.Period.Seconds()

	_, _, err := storage.Update(ctx, adapter, key, func(current []byte, ok bool) ([]byte, time.Duration, bool) {
		state := tokenBucketRefill(current, ok, cfg, now)

		if state.Tokens < cost {
			deficit := cost - state.Tokens
			retryAfter := time.Duration(deficit/ratePerSecond*float64(time.Second)) + time.Nanosecond
			result = Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter, ResetAfter: retryAfter}

			data, marshalErr := json.Marshal(state)
			if marshalErr != nil {
				return nil, 0, false
			}
			return data, cfg.Period, true
		}

		state.Tokens -= cost
		toFull := time.Duration((float64(cfg.Limit)-state.Tokens) / ratePerSecond * float64(time.Second))
		result = Result{Allowed: true, Remaining: int(state.Tokens), ResetAfter: toFull}

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
