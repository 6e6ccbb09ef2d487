// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// taskFunc is a single producer computation: it runs until it has no more
// values to yield or an error occurs, calling yield for each value it
// produces. This is the Go shape of spec.md §9's design note: "workers are
// callable objects that take a yield-fn callback; callbacks return a
// boolean 'keep going' flag derived from send's result."
type taskFunc func(ctx context.Context, yield yieldFunc) error

// yieldFunc is the callback a taskFunc calls once per produced value.
type yieldFunc func(v any) bool

// workerLoop is the per-style driving loop a worker goroutine runs. It is
// handed a bound workerHandle rather than the SSV itself, so it can pull
// work, yield values, and observe cancellation without reaching into
// fields it has no business touching (spec.md §5: "Workers never mutate
// each other's WorkerInfo").
type workerLoop func(ctx context.Context, w *workerHandle) error

// WorkerInfo is the per-worker bookkeeping spec.md §3 names: a yield cap
// (0 = unlimited), yields so far, and the worker's own latency-window
// bookkeeping (count and timestamp at the start of the current window),
// used to decide when to flush an accumulated window to the SSV's shared
// latencyTracker.
type WorkerInfo struct {
	tid              int64
	yieldMax         int64
	yieldsSoFar      int64
	windowStartCount int64
	windowStartTime  time.Time
}

func newWorkerInfo(tid int64, yieldMax int64) WorkerInfo {
	return WorkerInfo{
		tid:             tid,
		yieldMax:        yieldMax,
		windowStartTime: time.Now(),
	}
}

func (wi *WorkerInfo) capReached() bool {
	return wi.yieldMax > 0 && wi.yieldsSoFar >= wi.yieldMax
}

// workerHandle is what a workerLoop closure receives. It never exposes the
// SSV's full internals, only the handful of operations spec.md §6's
// external interface table names, plus a couple of Ahead-only fields the
// token protocol needs.
type workerHandle struct {
	info  WorkerInfo
	ssv   *SSV
	ctx   context.Context
	seq   int64 // Ahead style only: the sequence number the current task owns.
	token bool  // Ahead style only: whether this worker currently holds the token.
}

// yield pushes v directly to the SSV's output queue and updates latency
// bookkeeping, reporting whether the caller should keep producing. Ahead
// style calls this only while holding the token; a non-token Ahead worker
// never calls it, since it has nothing to push to directly (see
// aheadWorkerLoop in ssv.go).
func (w *workerHandle) yield(v any) bool {
	select {
	case <-w.ctx.Done():
		return false
	default:
	}

	w.info.yieldsSoFar++
	ok := w.ssv.output.tryPush(yieldEvent(v), w.ssv.state.maxBuffer())
	w.recordLatencyWindow()
	return ok && !w.info.capReached()
}

// recordLatencyWindow flushes the worker's own elapsed-time bookkeeping
// into the SSV's shared latencyTracker once every `period` yields, per
// spec.md §4.5: "Each worker updates its own current-latency block every
// period yields."
func (w *workerHandle) recordLatencyWindow() {
	if w.ssv.latency == nil {
		return
	}
	period := w.ssv.latency.period()
	n := w.info.yieldsSoFar - w.info.windowStartCount
	if n < period {
		return
	}
	now := time.Now()
	w.ssv.latency.recordWindow(window{n: n, dt: now.Sub(w.info.windowStartTime)})
	w.info.windowStartCount = w.info.yieldsSoFar
	w.info.windowStartTime = now
}

// runWorker is the mask/try wrapper every worker goroutine executes under,
// per spec.md §4.6: exceptions are caught and converted into a Stop event
// with an error; normal completion posts a Stop event with a nil error.
// Because the SSV owns its worker goroutines (unlike psg.TaskFunc, which is
// user code the caller is responsible for), a panicking worker must not be
// allowed to bring down the whole process, so recover() always runs here,
// wrapping the panic value into ErrWorkerPanic.
func runWorker(s *SSV, tid int64, loop workerLoop, ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	// Registration race: the worker registers itself before running so
	// that cancelAll can always find it, but toggle-register may discover
	// it was already removed (spec.md §4.6's "toggle-register" race note).
	if wasRemoval := s.workers.ToggleRegister(tid, cancel); wasRemoval {
		s.doorbell.Ring()
	}

	var stopErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				stopErr = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		yieldMax := s.state.yieldLimit
		if budget := s.pendingBudget.Swap(0); budget > 0 && (yieldMax == 0 || budget < yieldMax) {
			yieldMax = budget
		}
		w := &workerHandle{info: newWorkerInfo(tid, yieldMax), ssv: s, ctx: ctx}
		stopErr = loop(ctx, w)
	}()

	s.exitWorker(tid, cancel, stopErr)
}

// exitWorker implements spec.md §4.6's worker exit protocol: decrement the
// worker count, record the stop timestamp if this was the last active
// worker, and post a Stop event -- unconditionally, since "no signal
// gating because the consumer must learn of stops."
func (s *SSV) exitWorker(tid int64, cancel context.CancelFunc, err error) {
	if wasRemoval := s.workers.ToggleRegister(tid, cancel); wasRemoval {
		s.doorbell.Ring()
	}
	remaining := s.workerCount.Add(-1)
	if remaining == 0 {
		s.lastActiveAt.Store(time.Now().UnixNano())
	}
	if err != nil {
		s.logger.Debug("worker exit", zap.Int64("tid", tid), zap.Int32("workerCount", remaining), zap.Error(err))
	} else {
		s.logger.Debug("worker exit", zap.Int64("tid", tid), zap.Int32("workerCount", remaining))
	}
	s.output.push(stopEvent(tid, err))
}
