// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"sync/atomic"

	"github.com/timbuckley/streamly/internal/casloop"
	"github.com/timbuckley/streamly/internal/doorbell"
)

// childEvent is the tagged union spec.md §3 calls ChildEvent: either a
// yielded value or a worker Stop notification. Exactly one of the two
// non-tid fields is meaningful per event, selected by kind.
type childEvent struct {
	kind  childEventKind
	value any
	tid   int64
	err   error
}

type childEventKind int

const (
	childEventYield childEventKind = iota
	childEventStop
)

func yieldEvent(v any) childEvent {
	return childEvent{kind: childEventYield, value: v}
}

func stopEvent(tid int64, err error) childEvent {
	return childEvent{kind: childEventStop, tid: tid, err: err}
}

// outputQueue is the `(list, len)` cell described in spec.md §4.4 and named
// in §5 as one of the cells that must be "independently atomic" with no
// mutex: an atomic pointer to an immutable event slice, updated through
// internal/casloop's CAS-retry-with-fallback loop rather than a lock.
// Pushing copies the slice rather than appending in place, since two
// concurrent pushes racing the same CAS must never share (and corrupt) one
// growable backing array.
type outputQueue struct {
	events   atomic.Pointer[[]childEvent]
	doorbell *doorbell.Doorbell
}

func newOutputQueue(db *doorbell.Doorbell) *outputQueue {
	return &outputQueue{doorbell: db}
}

// appendEvent returns a fresh slice holding cur's contents plus event,
// leaving cur itself untouched so a failed CAS attempt can safely retry
// against a newly-observed cur without any aliasing between attempts.
func appendEvent(cur []childEvent, event childEvent) []childEvent {
	next := make([]childEvent, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = event
	return next
}

// push appends event to the queue, satisfying invariant 1 (queue length
// stays in lockstep with the event list) by construction, and rings the
// doorbell exactly when the push transitions the queue from empty to
// non-empty (invariant 5). Stop events always call push directly regardless
// of doorbell state, matching spec.md §4.6's exit protocol note "no signal
// gating because the consumer must learn of stops" -- push still only
// signals on the empty transition, but a Stop is never dropped since it is
// always delivered through this same path.
func (q *outputQueue) push(event childEvent) {
	wasEmpty := casloop.Modify(&q.events, func(cur []childEvent) ([]childEvent, bool) {
		return appendEvent(cur, event), len(cur) == 0
	})
	if wasEmpty {
		q.doorbell.Ring()
	}
}

// drain swaps out the entire backing list, returning whatever had
// accumulated, matching spec.md §4.4's "Consumer drains by swapping with
// ([], 0)."
func (q *outputQueue) drain() []childEvent {
	return casloop.Modify(&q.events, func(cur []childEvent) ([]childEvent, []childEvent) {
		if len(cur) == 0 {
			return nil, nil
		}
		return nil, cur
	})
}

// len reports the current queue length without draining it. The consumer's
// read path (dispatchRead) does not call it: it drains the queue and
// returns whatever came back if that is non-empty.
func (q *outputQueue) len() int {
	return len(casloop.Load(&q.events))
}

// tryPushResult carries both outcomes tryPush's CAS body needs to report:
// whether the push was admitted, and whether it was the one that took the
// queue from empty to non-empty.
type tryPushResult struct {
	pushed   bool
	wasEmpty bool
}

// tryPush pushes a yielded value only if doing so keeps the queue within
// maxBuffer, reporting whether it succeeded. maxBuffer < 0 means
// unbounded (Parallel style, spec.md invariant 7). A worker that gets
// false back exits gracefully per spec.md §5, trusting the dispatcher to
// redispatch once the buffer drains; this is the "testable property"
// bounded-buffer slack of up to one push per concurrently-racing worker
// that spec.md §8 explicitly allows.
func (q *outputQueue) tryPush(event childEvent, maxBuffer int) bool {
	r := casloop.Modify(&q.events, func(cur []childEvent) ([]childEvent, tryPushResult) {
		if maxBuffer >= 0 && len(cur) >= maxBuffer {
			return cur, tryPushResult{}
		}
		return appendEvent(cur, event), tryPushResult{pushed: true, wasEmpty: len(cur) == 0}
	})
	if r.wasEmpty {
		q.doorbell.Ring()
	}
	return r.pushed
}
