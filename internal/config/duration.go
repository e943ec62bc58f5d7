package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationToken = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ms|d|h|m|s)?`)

var durationUnits = map[string]time.Duration{
	"":   time.Second,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// ParseDuration accepts a number of seconds or a human-readable string
// such as "500ms", "1m30s", "2h" or "1d".
func ParseDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid duration %v", v)
		}
		return time.Duration(v * float64(time.Second)), nil
	case string:
		return parseHumanDuration(v)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid duration type %T", value)
	}
}

func parseHumanDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return ParseDuration(secs)
	}

	matches := durationToken.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var total time.Duration
	pos := 0
	for _, m := range matches {
		if strings.TrimSpace(s[pos:m[0]]) != "" {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		amount, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		unit := ""
		if m[4] >= 0 {
			unit = s[m[4]:m[5]]
		}
		total += time.Duration(amount * float64(durationUnits[unit]))
		pos = m[1]
	}
	if strings.TrimSpace(s[pos:]) != "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}
