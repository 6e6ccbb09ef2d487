// Package workerset tracks the set of currently-running worker goroutines
// for an SSV and provides the toggle-register operation and force-kill
// cancellation described in spec.md §4.6 and §5.
//
// It is grounded on two teacher idioms: the Job's two-level
// context.WithCancel structure (Job.ctx/Job.cancelFunc for the whole job,
// per-task contexts derived from it) for force-kill, and the teacher's
// maps/slices use in job.go's makeTaskContext for cheap small-collection
// snapshotting. Membership itself is held in an internal/casloop-guarded
// atomic pointer to an immutable map, per spec.md §5's "worker-set ...
// independently atomic. No mutex." rule.
package workerset

import (
	"maps"
	"sync/atomic"

	"github.com/timbuckley/streamly/internal/casloop"
)

// Set tracks live worker IDs and their cancel functions.
type Set struct {
	members atomic.Pointer[map[int64]func()]
}

// New creates an empty worker set, matching spec.md §4.8's "worker-set
// empty" construction rule.
func New() *Set {
	return &Set{}
}

// ToggleRegister implements spec.md §4.6's toggle-register operation:
// atomically, if tid is a member then remove it, else insert it with the
// given cancel function. It reports whether the operation was a removal (the
// set shrank), in which case the caller must also ring the doorbell to wake
// a possibly-sleeping consumer, per the spec's registration-race note. Each
// attempt clones the current map rather than mutating it in place, so a
// losing CAS can safely retry against whatever map it next observes.
func (s *Set) ToggleRegister(tid int64, cancel func()) (wasRemoval bool) {
	return casloop.Modify(&s.members, func(cur map[int64]func()) (map[int64]func(), bool) {
		next := maps.Clone(cur)
		if next == nil {
			next = make(map[int64]func())
		}
		if _, ok := next[tid]; ok {
			delete(next, tid)
			return next, true
		}
		next[tid] = cancel
		return next, false
	})
}

// Len reports the current cardinality of the worker set (spec.md invariant
// 2: equal to worker-count only in steady state).
func (s *Set) Len() int {
	return len(casloop.Load(&s.members))
}

// CancelAll force-kills every currently registered worker by invoking its
// cancel function, implementing the consumer-side cancellation walk from
// spec.md §4.6 ("On any fatal error, the consumer walks worker-set and
// force-kills each task"). The map snapshot it reads is already immutable
// (every ToggleRegister publishes a fresh clone), so ranging over it here is
// safe even if a cancel function calls back into ToggleRegister as it
// unwinds.
func (s *Set) CancelAll() {
	for _, cancel := range casloop.Load(&s.members) {
		cancel()
	}
}

// IsEmpty reports whether the set currently has no registered workers.
func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}
