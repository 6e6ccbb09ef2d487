// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"sync/atomic"
	"time"

	"github.com/timbuckley/streamly/internal/casloop"
)

// window is a paired (yield-count, elapsed-work-time) accumulator, always
// updated as a unit via casloop.Modify so a reader never observes a torn
// read of the pair. It backs the "current" and "collected" counters spec.md
// §4.5 names.
type window struct {
	n  int64
	dt time.Duration
}

func (w window) add(other window) window {
	return window{n: w.n + other.n, dt: w.dt + other.dt}
}

// latencyMinDelay is spec.md §4.5's minDelay constant.
const latencyMinDelay = time.Millisecond

// latencyTracker holds the four per-SSV counters spec.md §4.5 names --
// current, collected, measured, and long-term -- and implements the
// collection rule and desired-worker-count formula built on top of them.
// It is shared by every worker of a single SSV and by the consumer's
// dispatch loop; every field is independently atomic, matching §5's "no
// mutex" rule.
//
// This formula has no direct analogue in the teacher package (CombinerPool
// sizes itself reactively via channel backpressure and idle timeouts rather
// than a measured-rate model), so it is implemented fresh here, but the
// state-holder style throughout -- CAS-guarded packed pairs behind a single
// atomic.Pointer, updated via casloop.Modify the same way
// state.DynamicValue's swap pattern updates its own boxed value -- follows
// the teacher's idiom for shared mutable counters.
type latencyTracker struct {
	current   atomic.Pointer[window]
	collected atomic.Pointer[window]

	// measured is nanoseconds per yield, the smoothed per-worker latency
	// estimate L. Zero means no measurement exists yet.
	measured atomic.Int64

	longTermYields atomic.Int64
	longTermStart  atomic.Int64 // UnixNano; zero until the first yield.

	maxBuffer int
}

// newLatencyTracker creates a tracker for an SSV with the given max buffer
// size, optionally seeded with a bootstrap latency hint (spec.md §6's
// workerLatency option), which shortens the bootstrap wait described in
// §4.5's "Bootstrap" paragraph.
func newLatencyTracker(maxBuffer int, hint time.Duration) *latencyTracker {
	t := &latencyTracker{maxBuffer: maxBuffer}
	t.current.Store(&window{})
	t.collected.Store(&window{})
	if hint > 0 {
		t.measured.Store(int64(hint))
	}
	return t
}

// measuredLatency returns L and whether any measurement (seeded or
// observed) exists yet. While it returns false, spec.md §4.5's bootstrap
// rule applies: the dispatcher must not attempt paced dispatch.
func (t *latencyTracker) measuredLatency() (time.Duration, bool) {
	v := t.measured.Load()
	return time.Duration(v), v > 0
}

// activeDuration returns the elapsed wall-clock time since the first yield
// was recorded, the `duration` term the desired-worker-count formula reads
// (spec.md §4.5's long-term counter), or zero if no yield has landed yet.
func (t *latencyTracker) activeDuration() time.Duration {
	start := t.longTermStart.Load()
	if start == 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() - start)
}

// period computes spec.md §4.5's "period = max(1, min(minDelay/L,
// maxBuffer))", the number of yields between a worker's self-reports. Until
// a measurement exists, workers report every yield (period 1) so the
// bootstrap measurement arrives as fast as possible.
func (t *latencyTracker) period() int64 {
	L, ok := t.measuredLatency()
	if !ok || L <= 0 {
		return 1
	}
	p := int64(latencyMinDelay / L)
	if int64(t.maxBuffer) < p {
		p = int64(t.maxBuffer)
	}
	if p < 1 {
		p = 1
	}
	return p
}

// recordWindow folds a worker's just-completed latency window into the
// shared current accumulator (spec.md §4.1's cas-modify) and updates the
// long-term yield count and the start timestamp (set once, by the first
// window) that activeDuration measures from. No caller reads the long-term
// yield count, and idle periods are not excluded from activeDuration.
func (t *latencyTracker) recordWindow(w window) {
	casloop.Modify(&t.current, func(old window) (window, struct{}) {
		return old.add(w), struct{}{}
	})
	t.longTermStart.CompareAndSwap(0, time.Now().UnixNano())
	t.longTermYields.Add(w.n)
}

// collect implements spec.md §4.5's consumer-side collection rule: fold
// `collected` and `current` together into `pending`; if `pending.n` exceeds
// maxBuffer, `pending.dt` exceeds minDelay, the implied new estimate would
// change the current one by more than 2x, or there is no prior measurement
// at all, commit a fresh `measured` value and zero `collected`; otherwise
// just accumulate `pending` back into `collected`. Called by the consumer
// before every dispatch decision in paced mode.
func (t *latencyTracker) collect() {
	cur := casloop.Modify(&t.current, func(old window) (window, window) {
		return window{}, old
	})

	prevMeasured, hadMeasurement := t.measuredLatency()
	pending := casloop.Load(&t.collected).add(cur)

	if pending.n == 0 {
		return
	}

	commit := !hadMeasurement || pending.n > int64(t.maxBuffer) || pending.dt > latencyMinDelay
	if !commit && hadMeasurement {
		newEstimate := pending.dt / time.Duration(pending.n)
		ratio := float64(newEstimate) / float64(prevMeasured)
		if ratio > 2 || ratio < 0.5 {
			commit = true
		}
	}

	if commit {
		t.measured.Store(int64(pending.dt / time.Duration(pending.n)))
		casloop.Store(&t.collected, window{})
		return
	}
	casloop.Store(&t.collected, pending)
}

// dispatchPlan is the result of spec.md §4.5's desired-worker-count
// formula: either dispatch up to `netWorkers` total workers now, or (when
// net <= 0) sleep for `sleepFor` and dispatch exactly one worker with a
// `yieldBudget` computed from the sleep.
type dispatchPlan struct {
	netWorkers  int
	sleepFor    time.Duration
	yieldBudget int64
}

// desiredWorkerCount implements spec.md §4.5's formula: nBase = L/E, extra
// = (duration/E) - count, gain n1 = max(1, 1000/L), net = min(maxWorkers,
// round(nBase + extra/n1)). If net <= 0, the consumer should sleep for
// count*E - duration (when that is >= minDelay) and dispatch a single
// worker with a computed yield budget; otherwise it should dispatch
// additional workers until the current count reaches net.
func (t *latencyTracker) desiredWorkerCount(count int, duration time.Duration, target time.Duration, maxWorkers int) dispatchPlan {
	L, ok := t.measuredLatency()
	if !ok || L <= 0 || target <= 0 {
		return dispatchPlan{netWorkers: max(count, 1)}
	}

	nBase := float64(L) / float64(target)
	extra := float64(duration)/float64(target) - float64(count)
	n1 := max(1000.0/float64(L), 1.0)
	net := int(round(nBase + extra/n1))
	if net > maxWorkers {
		net = maxWorkers
	}

	if net <= 0 {
		sleepFor := time.Duration(count)*target - duration
		if sleepFor < latencyMinDelay {
			sleepFor = 0
		}
		yieldBudget := int64(1)
		if sleepFor > 0 && L > 0 {
			yieldBudget = int64(sleepFor / L)
			if yieldBudget < 1 {
				yieldBudget = 1
			}
		}
		return dispatchPlan{sleepFor: sleepFor, yieldBudget: yieldBudget}
	}
	return dispatchPlan{netWorkers: net}
}

func round(f float64) float64 {
	if f < 0 {
		return -round(-f)
	}
	return float64(int64(f + 0.5))
}
