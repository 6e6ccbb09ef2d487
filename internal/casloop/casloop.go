// Package casloop provides the CAS-retry-with-fallback idiom used throughout
// streamly's lock-free data structures: read the current value, compute a new
// value, and attempt a compare-and-swap, retrying until an attempt succeeds.
// There is no separate coarse update path; every attempt is the same
// compare-and-swap.
package casloop

import "sync/atomic"

// maxRetries is the number of compare-and-swap attempts Modify makes in its
// first loop before it moves to its second, unbounded loop. Chosen the way the teacher
// package chooses its own tuning constants (CombinerPool.spawnDelay,
// CombinerPool.idleTimeout): empirically, not derived.
const maxRetries = 25

// Modify atomically transforms the value held by cell: it loads the current
// value, computes (next, result) = fn(current), and attempts to store next
// with a compare-and-swap. On contention it retries up to maxRetries times.
// If it still hasn't succeeded, it keeps repeating the same compare-and-swap
// attempt without a bound: the second loop is not a coarser update, and
// nothing bounds the number of attempts under sustained contention. fn may
// therefore run more than once per call.
func Modify[T, R any](cell *atomic.Pointer[T], fn func(T) (T, R)) R {
	for range maxRetries {
		old := cell.Load()
		var oldVal T
		if old != nil {
			oldVal = *old
		}
		next, result := fn(oldVal)
		if cell.CompareAndSwap(old, &next) {
			return result
		}
	}
	// Fallback: keep retrying the same compare-and-swap without a bound.
	for {
		old := cell.Load()
		var oldVal T
		if old != nil {
			oldVal = *old
		}
		next, result := fn(oldVal)
		if cell.CompareAndSwap(old, &next) {
			return result
		}
	}
}

// Load reads the current value of cell, returning the zero value of T if
// cell has never been stored to.
func Load[T any](cell *atomic.Pointer[T]) T {
	v := cell.Load()
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Store unconditionally replaces the value held by cell.
func Store[T any](cell *atomic.Pointer[T], v T) {
	cell.Store(&v)
}
