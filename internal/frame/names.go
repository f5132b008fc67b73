package frame

import (
	"fmt"
	"strings"
)

// Join is the one place column names are composed: Join("m1", "rsi", 14) -> "m1_rsi_14".
// Empty parts are skipped so an empty prefix yields unprefixed names.
func Join(parts ...any) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := fmt.Sprint(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, "_")
}

// WindowLabel names a window given in minutes: 20 -> "20m", 120 -> "2h", 2880 -> "2d".
func WindowLabel(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}

// Filled returns a column of n copies of v.
func Filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Bool converts a flag to the 0/1 column encoding.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
