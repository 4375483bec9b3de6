package clock

import (
	"testing"
	"time"
)

func TestOrDefault_NilFallsBackToDefault(t *testing.T) {
	t.Parallel()

	c := OrDefault(nil)
	before := time.Now()
	got := c()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("OrDefault(nil)() = %v, want between %v and %v", got, before, after)
	}
}

func TestOrDefault_PassesThroughNonNil(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := OrDefault(func() time.Time { return fixed })
	if got := c(); !got.Equal(fixed) {
		t.Errorf("OrDefault(custom)() = %v, want %v", got, fixed)
	}
}
