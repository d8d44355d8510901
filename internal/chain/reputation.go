package chain

import (
	"math"
	"strings"
)

// RepLog10 converts a raw reputation value into the human-facing score.
//
// The value can be far larger than 64 bits, so its magnitude is taken from
// the digit count plus the fractional log10 of its leading four digits.
// Magnitude 9 maps to 25 and every further order of magnitude adds 9.
// The arithmetic mirrors the legacy float computation bit for bit.
func RepLog10(raw string) int {
	rep := strings.TrimSpace(raw)
	if rep == "" {
		return 0
	}
	neg := rep[0] == '-'
	if neg {
		rep = rep[1:]
	}

	out := log10String(rep)
	if math.IsNaN(out) {
		out = 0
	}
	out = math.Max(out-9, 0)
	if neg {
		out = -out
	}
	out = out*9 + 25
	return int(out)
}

// log10String approximates log10 of a decimal digit string. It returns NaN
// when the leading digits do not form a positive number.
func log10String(digits string) float64 {
	lead := digits
	if len(lead) > 4 {
		lead = lead[:4]
	}
	leading, ok := leadingInt(lead)
	if !ok {
		return math.NaN()
	}
	log := math.Log(float64(leading)) / math.Log(10)
	if math.IsInf(log, 0) {
		return math.NaN()
	}
	n := float64(len(digits) - 1)
	return n + (log - math.Trunc(log))
}

// leadingInt parses the run of decimal digits at the start of s.
func leadingInt(s string) (int, bool) {
	value, seen := 0, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		value = value*10 + int(c-'0')
		seen = true
	}
	return value, seen
}
