package models

import (
	"fmt"
	"strings"
)

// Interval is a fixed candle bucket width tracked per pool.
type Interval struct {
	Name    string
	WidthMS int64
}

// Supported intervals, finest first. Widths are unix milliseconds.
var Intervals = []Interval{
	{"1m", 60_000},
	{"5m", 300_000},
	{"15m", 900_000},
	{"30m", 1_800_000},
	{"1h", 3_600_000},
	{"6h", 21_600_000},
	{"12h", 43_200_000},
	{"24h", 86_400_000},
	{"1w", 604_800_000},
	{"1M", 2_592_000_000},
}

// minute-count aliases accepted by the query surface
var minuteAliases = map[string]string{
	"1":     "1m",
	"5":     "5m",
	"15":    "15m",
	"30":    "30m",
	"60":    "1h",
	"360":   "6h",
	"720":   "12h",
	"1440":  "24h",
	"10080": "1w",
	"43200": "1M",
}

// IntervalWidth returns the bucket width for a canonical interval name.
func IntervalWidth(name string) (int64, bool) {
	for _, iv := range Intervals {
		if iv.Name == name {
			return iv.WidthMS, true
		}
	}
	return 0, false
}

// NormalizeInterval maps an interval token to its canonical name.
// Canonical tokens are matched exactly ("1m" is one minute, "1M" one month);
// numeric tokens are minute counts; "week" and "month" are accepted as words.
func NormalizeInterval(token string) (string, error) {
	token = strings.TrimSpace(token)
	if _, ok := IntervalWidth(token); ok {
		return token, nil
	}
	if canonical, ok := minuteAliases[token]; ok {
		return canonical, nil
	}
	switch strings.ToLower(token) {
	case "week", "1week", "w":
		return "1w", nil
	case "month", "1month", "mo":
		return "1M", nil
	}
	return "", fmt.Errorf("unknown interval %q", token)
}
