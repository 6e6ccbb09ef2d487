// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import "github.com/timbuckley/streamly/internal/cerr"

// ErrWorkerPanic wraps a worker goroutine's recovered panic value into a
// Stop event's error, per spec.md §4.6 and §7.1.
const ErrWorkerPanic = cerr.Error("worker panicked")

// ErrAheadSlotOccupied is raised by the Ahead style's single-slot work
// queue when Enqueue is called while the slot already holds a task. Per
// spec.md invariant 3 and the resolution of Open Question 3 in §9, this
// package's own dispatcher never violates the precondition; the panic
// exists to surface a misuse (e.g. a left-associated composition sharing
// an Ahead SSV) loudly rather than silently corrupting the queue.
const ErrAheadSlotOccupied = cerr.Error("ahead queue: enqueue called while slot occupied")

// Yield-limit exhaustion (spec.md §7.4) is deliberately not a sentinel
// error here: reaching the limit is signaled with a plain false return
// from the yield callback, mirroring Job.GatherOne's (false, nil)
// "nothing left" convention rather than an error value.
