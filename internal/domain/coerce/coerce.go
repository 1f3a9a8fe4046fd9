// Package coerce turns stored text columns into float64 values. Coercion never
// fails: anything that is not a finite numeral becomes the NaN sentinel.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Missing is the sentinel for absent or unparseable numeric values.
var Missing = math.NaN()

// IsMissing reports whether v is the missing-data sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Float parses s as a decimal number. Blank input, malformed input and
// values that overflow to ±Inf all yield the sentinel.
func Float(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return Missing
	}
	return v
}

// Column coerces a whole column.
func Column(values []string) []float64 {
	out := make([]float64, len(values))
	for i, s := range values {
		out[i] = Float(s)
	}
	return out
}

// Int parses s as an integral number, accepting "5" and "5.0". The boolean
// is false when s is missing or has a fractional part.
func Int(s string) (int, bool) {
	v := Float(s)
	if IsMissing(v) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// Policy decides what happens to rows with sentineled required values.
type Policy string

// Supported policies.
const (
	// Drop excludes a row when any required value is missing.
	Drop Policy = "drop"
	// FillZero replaces missing values with 0. Biases means toward zero.
	FillZero Policy = "fill_zero"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case Drop, "":
		return Drop, nil
	case FillZero:
		return FillZero, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Apply enforces the policy on one row's required values. It returns the
// values to use and whether the row participates in the computation.
// The input slice is not modified.
func (p Policy) Apply(values ...float64) ([]float64, bool) {
	out := make([]float64, len(values))
	for i, v := range values {
		if !IsMissing(v) {
			out[i] = v
			continue
		}
		if p == FillZero {
			out[i] = 0
			continue
		}
		return nil, false
	}
	return out, true
}
