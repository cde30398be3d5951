// Package random provides the randomness abstraction used by the combat core.
// Every roll (crit, variance, windup jitter, whisper choice) goes through a
// Source so tests can substitute a deterministic one.
package random

// Source is the randomness provider for combat rolls.
type Source interface {
	// Float64 returns a pseudo-random number in [0, 1).
	Float64() float64
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Uniform returns a value uniformly distributed in [lo, hi).
//
// Precondition: src must be non-nil.
// Postcondition: Returns lo when lo == hi.
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// Symmetric returns a value uniformly distributed in [-spread, spread).
//
// Precondition: src must be non-nil; spread >= 0.
func Symmetric(src Source, spread float64) float64 {
	return (src.Float64() - 0.5) * 2 * spread
}

// Pick returns a uniformly chosen element of items, or the zero value when items is empty.
func Pick[T any](src Source, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[src.Intn(len(items))]
}
