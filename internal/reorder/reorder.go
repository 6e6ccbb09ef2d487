// Package reorder implements the Ahead-style reorder heap described in
// spec.md §4.3: a min-heap keyed by sequence number, plus the "current
// sequence" counter that gates which entry (if any) may be dequeued.
//
// It is built on github.com/addrummond/heap, the same generic ordered-heap
// dependency the teacher package's discrete-event simulation harness
// (internal/sim/estimate.go) uses for its time-ordered event queue — there,
// entries are ordered by simulated completion time via a Cmp method; here
// they're ordered by source sequence number the same way.
package reorder

import (
	"github.com/addrummond/heap"
)

// Entry is a single heap item: a sequence number and the payload that was
// deferred because its producing worker did not hold the token when it
// became available. Payload is either a Pure value or a StreamTail
// continuation, represented opaquely here as `any` — the scheduler package
// knows which case it put in and type-switches on read.
type Entry struct {
	Seq     int64
	Payload any
}

// Cmp orders entries by ascending sequence number, making the heap a min-heap
// over Seq as required by spec.md §4.3.
func (e *Entry) Cmp(other *Entry) int {
	switch {
	case e.Seq < other.Seq:
		return -1
	case e.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// Heap is the reorder heap for a single Ahead-style SSV. It is not
// thread-safe on its own; callers serialize access the same way the CAS-loop
// protocol in spec.md §4.3 implies (a worker either holds the token and owns
// the output queue, or doesn't and must synchronize heap access, which this
// package's caller does via the scheduler's own CAS-guarded entry point).
type Heap struct {
	impl       heap.Heap[Entry, heap.Min]
	currentSeq int64
}

// NewHeap creates an empty reorder heap with its current-sequence counter
// initialized to seq, matching spec.md §4.8's "reorder heap empty at seq=0"
// for Ahead-style construction (callers pass whatever starting sequence their
// SSV style requires).
func NewHeap(seq int64) *Heap {
	return &Heap{currentSeq: seq}
}

// CurrentSeq returns the sequence number that must be present at the top of
// the heap for Pop to succeed.
func (h *Heap) CurrentSeq() int64 {
	return h.currentSeq
}

// Push adds an entry to the heap. No two entries may share a sequence number
// (spec.md invariant 4).
func (h *Heap) Push(e Entry) {
	heap.PushOrderable(&h.impl, e)
}

// Pop returns the entry at the top of the heap only if its sequence number
// equals CurrentSeq, per spec.md §4.3 ("Dequeue returns an entry only if its
// seq equals current-seq; otherwise returns nothing."). It does not itself
// advance CurrentSeq: the caller now holds the token for that sequence and
// must call AdvanceCurrentSeq once it has actually exhausted it, since a
// resumed entry may still have more values to yield under the same seq.
func (h *Heap) Pop() (Entry, bool) {
	top, ok := heap.Peek(&h.impl)
	if !ok || top.Seq != h.currentSeq {
		return Entry{}, false
	}
	e, ok := heap.PopOrderable(&h.impl)
	if !ok {
		// Unreachable: Peek just succeeded.
		return Entry{}, false
	}
	return e, true
}

// AdvanceCurrentSeq moves CurrentSeq on to the next sequence number. Pop
// never advances it; the token holder calls this once it has exhausted its
// sequence, whether that sequence came from the heap or straight from the
// work queue, so the next sequence's entry can become current.
func (h *Heap) AdvanceCurrentSeq() {
	h.currentSeq++
}

// Len reports the number of entries currently buffered in the heap.
func (h *Heap) Len() int {
	return heap.Len(&h.impl)
}

// HasCurrent reports whether the heap exposes an entry whose sequence number
// equals CurrentSeq, without removing it. A non-token worker uses this before
// taking from the work queue, per §4.3's livelock-avoidance rule.
func (h *Heap) HasCurrent() bool {
	top, ok := heap.Peek(&h.impl)
	return ok && top.Seq == h.currentSeq
}
