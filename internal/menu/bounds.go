package menu

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBounds is returned when a NutrientBounds cannot be used.
var ErrInvalidBounds = errors.New("invalid nutrient bounds")

// Range is an optional closed interval. A nil end is unbounded.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Between returns [min, max].
func Between(min, max float64) Range { return Range{Min: &min, Max: &max} }

// AtLeast returns [min, +inf).
func AtLeast(min float64) Range { return Range{Min: &min} }

// AtMost returns [0, max].
func AtMost(max float64) Range { return Range{Max: &max} }

// IsSet reports whether either end is present.
func (r Range) IsSet() bool { return r.Min != nil || r.Max != nil }

// Contains reports whether v lies within r, allowing tol slack.
func (r Range) Contains(v, tol float64) bool {
	if r.Min != nil && v < *r.Min-tol {
		return false
	}
	if r.Max != nil && v > *r.Max+tol {
		return false
	}
	return true
}

// NutrientBounds holds the requested range for each nutrient.
// Calories must have both ends; the rest are optional.
type NutrientBounds map[Nutrient]Range

// Range returns the range for n (the zero Range when unset).
func (b NutrientBounds) Range(n Nutrient) Range { return b[n] }

// Validate checks every range for consistency.
func (b NutrientBounds) Validate() error {
	cal := b[Calories]
	if cal.Min == nil || cal.Max == nil {
		return fmt.Errorf("%w: calories min and max are required", ErrInvalidBounds)
	}
	for _, n := range AllNutrients {
		r, ok := b[n]
		if !ok {
			continue
		}
		for _, end := range []*float64{r.Min, r.Max} {
			if end == nil {
				continue
			}
			if math.IsNaN(*end) || math.IsInf(*end, 0) {
				return fmt.Errorf("%w: %s bound must be finite", ErrInvalidBounds, n)
			}
			if *end < 0 {
				return fmt.Errorf("%w: %s bound %g is negative", ErrInvalidBounds, n, *end)
			}
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("%w: %s min %g exceeds max %g", ErrInvalidBounds, n, *r.Min, *r.Max)
		}
	}
	for n := range b {
		if !knownNutrient(n) {
			return fmt.Errorf("%w: unknown nutrient %q", ErrInvalidBounds, n)
		}
	}
	return nil
}

func knownNutrient(n Nutrient) bool {
	for _, k := range AllNutrients {
		if k == n {
			return true
		}
	}
	return false
}
