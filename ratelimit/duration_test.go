package ratelimit

import (
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"500ms", 500 * time.Millisecond},
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"2h", 2 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
	}

	for _, tc := range cases {
		got, err := ParsePeriod(tc.in)
		if err != nil {
			t.Errorf("ParsePeriod(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePeriod(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParsePeriod_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "1h30m", "-5s", "5", "0s"} {
		if _, err := ParsePeriod(in); err == nil {
			t.Errorf("ParsePeriod(%q) expected error, got nil", in)
		}
	}
}
