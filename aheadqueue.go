// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"sync/atomic"

	"github.com/timbuckley/streamly/internal/doorbell"
)

// aheadSlot holds at most one pending task along with the sequence number
// it will run under once dequeued, per spec.md §4.2's Ordered-Ahead
// discipline: "A single-slot buffer ([task], seq)."
type aheadSlot struct {
	task taskFunc
	seq  int64
	full bool
}

// aheadQueue is the single-slot ordered work queue used by Ahead-style
// SSVs. Invariant 3 guarantees at most one task is ever queued at a time
// (always the right-associated tail of a composition); the slot is
// enforced rather than merely assumed, so a violation panics instead of
// silently overwriting a still-pending task (the resolution of Open
// Question 3 in spec.md §9).
type aheadQueue struct {
	slot     atomic.Pointer[aheadSlot]
	nextSeq  int64
	doorbell *doorbell.Doorbell
}

// newAheadQueue creates an empty ahead queue whose first enqueued task will
// be assigned seq+1, matching spec.md §4.8's "initializes the single-slot
// work queue at seq=-1" construction rule (callers pass -1 at SSV creation,
// since the first task dequeued should carry seq 0).
func newAheadQueue(seq int64, db *doorbell.Doorbell) *aheadQueue {
	return &aheadQueue{nextSeq: seq + 1, doorbell: db}
}

// push stores task in the slot, assigning it the next sequence number, and
// rings the doorbell since the slot transitioned from empty to occupied
// (spec.md §4.2's enqueue protocol: push, then clear-and-signal
// need-doorbell if set). It panics if the slot is already occupied, per
// invariant 3 and the ErrAheadSlotOccupied doc comment.
func (q *aheadQueue) push(task taskFunc) {
	seq := q.nextSeq
	q.nextSeq++
	next := &aheadSlot{task: task, seq: seq, full: true}
	if !q.slot.CompareAndSwap(nil, next) {
		panic(ErrAheadSlotOccupied)
	}
	q.doorbell.Ring()
}

// pop removes and returns the queued task and its sequence number, or
// reports false if the slot is empty (spec.md §4.2: "Dequeue returns
// (task, seq) or nothing.").
func (q *aheadQueue) pop() (taskFunc, int64, bool) {
	old := q.slot.Swap(nil)
	if old == nil || !old.full {
		return nil, 0, false
	}
	return old.task, old.seq, true
}

// isEmpty reports whether the slot currently holds no task.
func (q *aheadQueue) isEmpty() bool {
	return q.slot.Load() == nil
}
