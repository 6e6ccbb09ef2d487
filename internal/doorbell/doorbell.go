// Package doorbell implements the lost-wakeup-free binary wakeup signal
// described in spec.md §4.4 and §4.1: a single consumer sets need-doorbell,
// then blocks; any producer that transitions the output queue (or reorder
// heap) from empty to non-empty checks need-doorbell and, if set, clears it
// and signals exactly once.
//
// The implementation is grounded on the teacher package's
// internal/waitq.Waiter/Queue lost-wakeup-free notification idiom (a
// buffered channel of size one, non-blocking send, "full means already
// signaled"), generalized from "one waiter per queue position" down to "one
// doorbell per SSV", since spec.md's ownership section guarantees an SSV has
// exactly one consumer at a time.
package doorbell

import (
	"sync/atomic"
)

// Doorbell is a single-slot, edge-triggered wakeup signal.
type Doorbell struct {
	needed atomic.Bool
	ring   chan struct{}
}

// New creates an unsignaled doorbell, matching spec.md §4.8's SSV
// construction rule ("doorbell unsignaled"). Unlike most of this package's
// sibling lock-free types, Doorbell is not safe to use at its zero value:
// the ring channel must exist before any worker goroutine can reach it, so
// construction happens once, single-threaded, before workers are forked.
func New() *Doorbell {
	return &Doorbell{ring: make(chan struct{}, 1)}
}

// Arm implements the first half of the consumer side of spec.md §4.4's
// blocking-read cycle: it sets need-doorbell and returns without blocking.
// The caller then re-checks its own conditions, such as whether the output
// queue filled between the flag set and the wait (the "tail-recursive
// re-check to handle the race" the spec calls out), before blocking on Wait
// or Chan, and loops back into Arm if nothing new arrived, which covers
// spurious wakeups.
func (d *Doorbell) Arm() {
	d.needed.Store(true)
	// Store-load barrier: this atomic store happens-before the atomic load a
	// producer performs in Ring below (Go's memory model gives every atomic
	// op sequential-consistency relative to other atomics on the same
	// variable), which is exactly the "did the consumer request a doorbell?"
	// check spec.md §4.1 requires between enqueue and signal.
}

// Wait blocks until Ring delivers a wakeup.
func (d *Doorbell) Wait() {
	<-d.ring
}

// Chan exposes the underlying signal channel so a caller can select on it
// alongside other wakeup sources (e.g. context cancellation), which spec.md
// §5 permits: "Consumer blocks on the doorbell semaphore exclusively. Any
// other wait is a bug" -- a select that includes the doorbell channel is
// still "blocking on the doorbell", just with an escape hatch for the one
// form of external cancellation the core supports.
func (d *Doorbell) Chan() <-chan struct{} {
	return d.ring
}

// TryWait returns immediately, reporting whether a pending wakeup was
// consumed.
func (d *Doorbell) TryWait() bool {
	select {
	case <-d.ring:
		return true
	default:
		return false
	}
}

// Ring implements the producer side: if need-doorbell is set, clear it first
// and then signal. Clearing before signaling (rather than the reverse) is
// the detail spec.md §4.2 calls out as load-bearing: "prevents the consumer
// from resetting the flag to false after receiving the signal, which would
// permanently lose future wakeups."
func (d *Doorbell) Ring() {
	if d.needed.CompareAndSwap(true, false) {
		select {
		case d.ring <- struct{}{}:
		default:
			// Already has a pending signal buffered; spurious extra wakeups
			// are permitted by spec.md invariant 5.
		}
	}
}
