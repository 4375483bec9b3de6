package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParsePeriod parses a period string in the grammar N(ms|s|m|h|d), e.g.
// "500ms", "30s", "15m", "2h", "7d". This is a narrower, day-aware
// sibling of time.ParseDuration: it requires a single number and unit
// (no compound durations like "1h30m") and adds "d" for whole days,
// which the standard library's parser does not support.
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("ratelimit: empty period")
	}

	unitStart := len(s)
	for unitStart > 0 && !isDigit(s[unitStart-1]) {
		unitStart--
	}
	numPart, unitPart := s[:unitStart], s[unitStart:]
	if numPart == "" || unitPart == "" {
		return 0, fmt.Errorf("ratelimit: invalid period %q", s)
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: invalid period %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("ratelimit: period %q must be positive", s)
	}

	var unit time.Duration
	switch unitPart {
	case "ms":
		unit = time.Millisecond
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("ratelimit: unknown unit %q in period %q", unitPart, s)
	}

	return time.Duration(n) * unit, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
