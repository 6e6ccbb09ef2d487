// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"context"
	"runtime"
	"time"

	"github.com/timbuckley/streamly/internal/timerp"
)

// boundedSpinDelay implements spec.md §4.7's "small fixed time (10-100us
// tuned by style and CPU count)" pre-doorbell spin for bounded mode: more
// CPUs means workers report back sooner, so the spin can shrink.
func boundedSpinDelay() time.Duration {
	n := runtime.GOMAXPROCS(0)
	d := 100 * time.Microsecond / time.Duration(max(n, 1))
	if d < 10*time.Microsecond {
		d = 10 * time.Microsecond
	}
	return d
}

// dispatchRead implements spec.md §6's `read-output(ssv)` and §4.4's
// blocking-read cycle: return buffered events immediately if any exist,
// otherwise report clean end-of-stream, otherwise run the mode-appropriate
// dispatcher and arm the doorbell, re-checking the output queue for the race
// window between the flag set and the wait (the "tail-recursive re-check"
// the spec calls out).
func dispatchRead(ctx context.Context, s *SSV) ([]childEvent, error) {
	for {
		if events := s.output.drain(); len(events) > 0 {
			return events, nil
		}
		if s.postProcess() {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if s.state.paced() {
			dispatchPaced(ctx, s)
		} else {
			dispatchBounded(ctx, s)
		}

		if events := s.output.drain(); len(events) > 0 {
			return events, nil
		}
		if s.postProcess() {
			return nil, nil
		}

		s.doorbell.Arm()
		if events := s.output.drain(); len(events) > 0 {
			return events, nil
		}
		select {
		case <-s.doorbell.Chan():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// dispatchBounded implements spec.md §4.7's bounded mode: fork a worker if
// isWorkDone = false AND worker-count < min(maxWorkers, maxYieldLimit?),
// after waiting the fixed pre-doorbell spin.
func dispatchBounded(ctx context.Context, s *SSV) bool {
	if s.loop == nil || s.cancelled.Load() || s.isWorkDone() {
		return false
	}

	limit := s.state.maxWorkers()
	if s.state.yieldLimit > 0 && int(s.state.yieldLimit) < limit {
		limit = int(s.state.yieldLimit)
	}
	if int(s.workerCount.Load()) >= limit {
		return false
	}

	t := timerp.Get()
	t.Reset(boundedSpinDelay())
	select {
	case <-t.C:
	case <-ctx.Done():
		timerp.Put(t)
		return false
	}
	timerp.Put(t)

	if s.isWorkDone() {
		return false
	}
	s.spawnWorker(s.loop)
	return true
}

// dispatchPaced implements spec.md §4.5's algorithm from the consumer side:
// collect pending latency measurements, compute the desired worker count,
// then either fork up to that count or sleep for the deficit and dispatch a
// single budgeted worker. Until a measurement exists, paced dispatch is
// refused per §4.5's Bootstrap rule -- the worker spawned at SSV
// construction is left to produce the seed measurement -- and the only
// forking done is topping the worker count up to the WithMinWorkers floor
// (capped by maxWorkers) while work is pending, so a seed worker that never
// yields does not hold the stream at one worker.
func dispatchPaced(ctx context.Context, s *SSV) bool {
	if s.loop == nil || s.latency == nil || s.cancelled.Load() {
		return false
	}
	s.latency.collect()
	if _, ok := s.latency.measuredLatency(); !ok {
		dispatched := false
		for i := int(s.workerCount.Load()); i < min(s.state.minWorkers, s.state.maxWorkers()); i++ {
			if s.isWorkDone() {
				break
			}
			s.spawnWorker(s.loop)
			dispatched = true
		}
		return dispatched
	}

	count := int(s.workerCount.Load())
	plan := s.latency.desiredWorkerCount(count, s.latency.activeDuration(), s.state.targetLatency(), s.state.maxWorkers())

	if plan.netWorkers > count {
		dispatched := false
		for i := count; i < plan.netWorkers; i++ {
			if s.isWorkDone() {
				break
			}
			s.spawnWorker(s.loop)
			dispatched = true
		}
		return dispatched
	}

	if plan.sleepFor > 0 {
		t := timerp.Get()
		t.Reset(plan.sleepFor)
		select {
		case <-t.C:
		case <-ctx.Done():
			timerp.Put(t)
			return false
		}
		timerp.Put(t)
	}

	if s.isWorkDone() {
		return false
	}
	s.spawnWorkerBudgeted(s.loop, plan.yieldBudget)
	return true
}
