// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/timbuckley/streamly/internal/doorbell"
	"github.com/timbuckley/streamly/internal/lifoq"
	"github.com/timbuckley/streamly/internal/nbqueue"
	"github.com/timbuckley/streamly/internal/reorder"
	"github.com/timbuckley/streamly/internal/workerset"
)

// style selects one of the four scheduling disciplines spec.md's GLOSSARY
// names: Async-LIFO, WAsync-FIFO, Ahead-Ordered, Parallel-Unbounded.
type Style int

const (
	StyleLIFO Style = iota
	StyleFIFO
	StyleAhead
	StyleParallel
)

// dispatchStrategy is the strategy-polymorphism interface spec.md §9
// prescribes in place of the source's per-SSV closures, implemented once
// per style. Each implementation holds only the fields its style needs
// (its queue, the reorder heap, a pending-count) rather than a reference to
// the whole SSV, breaking the cyclic reference spec.md §9 calls out.
type dispatchStrategy interface {
	// enqueue accepts a new task for this style's queue, returning whether
	// it was accepted (always true except Ahead's "slot already full"
	// precondition violation, which panics per ErrAheadSlotOccupied rather
	// than returning false -- see aheadqueue.go).
	enqueue(task taskFunc) bool
	// isWorkDone reports whether there is no fetchable task available to
	// hand a newly-forked worker right now.
	isWorkDone() bool
	// postProcess reports whether the SSV has nothing left to do at all:
	// work queue empty, heap empty (Ahead only), and (checked by the
	// caller) worker-set empty, per spec.md §7.5.
	postProcess() bool
	// pushWorkerParallel forks a worker eagerly; meaningful for Parallel
	// style only, per spec.md §4.8.
	pushWorkerParallel(loop workerLoop)
}

// SSV is the Stream Scheduler Variable handle spec.md §3 defines: it owns
// the output queue, doorbell, worker set, worker count, work queue (via
// strategy), optional reorder heap, and optional latency tracker.
type SSV struct {
	style   Style
	state   State
	output  *outputQueue
	doorbell *doorbell.Doorbell
	workers *workerset.Set
	workerCount  atomic.Int32
	latency      *latencyTracker
	reorderHeap  *reorder.Heap // Ahead style only; nil otherwise.
	strategy     dispatchStrategy
	loop         workerLoop // nil for Parallel style, which never redispatches via the dispatcher
	pendingBudget atomic.Int64 // consumed once by the next spawned worker; see spawnWorkerBudgeted.
	logger       *zap.Logger
	lastActiveAt atomic.Int64
	nextTID      atomic.Int64
	cancelled    atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
}

func (s *SSV) newTID() int64 {
	return s.nextTID.Add(1)
}

// spawnWorker forks a new worker goroutine running loop. worker-count is
// incremented before the goroutine starts; the goroutine registers itself in
// worker-set when it begins (runWorker), so between fork and register
// worker-count runs one ahead of worker-set (spec.md invariant 2).
// postProcess reads both, so a not-yet-registered worker still keeps the
// stream open, and cancelAll's cancellation of the SSV's root context
// reaches it either way.
func (s *SSV) spawnWorker(loop workerLoop) {
	if s.state.maxWorkers() == 0 {
		// threadsHigh == 0: every task runs synchronously on the calling
		// goroutine (spec.md §6, scenario 6), so there is no forking to do.
		return
	}
	tid := s.newTID()
	ctx, cancel := context.WithCancel(s.ctx)
	s.workerCount.Add(1)
	s.logger.Debug("worker fork", zap.Int64("tid", tid), zap.Int32("workerCount", s.workerCount.Load()))
	go runWorker(s, tid, loop, ctx, cancel)
}

// spawnWorkerBudgeted is spawnWorker with a one-shot yield budget attached,
// used by paced mode's "dispatch a single worker with a computed yield
// budget" (spec.md §4.5). The budget is stashed on the SSV and consumed by
// runWorker when it builds the new worker's WorkerInfo, since the handle
// itself is constructed inside runWorker rather than by the caller.
func (s *SSV) spawnWorkerBudgeted(loop workerLoop, budget int64) {
	s.pendingBudget.Store(budget)
	s.spawnWorker(loop)
}

// enqueue implements spec.md §6's `enqueue(ssv, task)`: non-blocking,
// delegated to the active style's strategy.
func (s *SSV) enqueue(task taskFunc) {
	if s.state.maxWorkers() == 0 {
		s.runSynchronously(task)
		return
	}
	s.strategy.enqueue(task)
}

// runSynchronously executes task directly on the calling goroutine when
// threadsHigh == 0, preserving program order (spec.md §8 scenario 6).
func (s *SSV) runSynchronously(task taskFunc) {
	w := &workerHandle{info: newWorkerInfo(s.newTID(), s.state.yieldLimit), ssv: s, ctx: s.ctx, token: true}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		return task(s.ctx, w.yield)
	}()
	s.output.push(stopEvent(w.info.tid, err))
}

// isWorkDone reports whether the strategy has a fetchable task available.
func (s *SSV) isWorkDone() bool {
	return s.strategy.isWorkDone()
}

// postProcess implements spec.md §6's `post-process(ssv)`: true iff the
// stream is entirely done -- work queue empty, heap empty, worker-set
// empty, and worker-count zero, per §7.5. It is idempotent: once everything
// is empty it stays empty (spec.md §8's "Idempotence of post-process").
//
// Once cancelAll has run, the strategy's own queue/heap state is no longer
// meaningful: a token-holding Ahead task that errors out abandons the
// reorder heap mid-sequence, orphaning any later-seq entry a non-token
// sibling already parked there, since no worker will ever again become the
// token holder for it. Waiting on that residual state to empty would hang
// forever, so cancellation redefines "done" as "every worker has exited",
// matching spec.md §4.6's cancellation-completeness invariant.
func (s *SSV) postProcess() bool {
	idle := s.workers.IsEmpty() && s.workerCount.Load() == 0
	if s.cancelled.Load() {
		return idle
	}
	return s.strategy.postProcess() && idle
}

// pushWorkerParallel implements spec.md §6's `push-worker-par(ssv, loop)`:
// forks eagerly, registering the worker in worker-set; child exceptions are
// captured by runWorker's recover the same as any other style.
func (s *SSV) pushWorkerParallel(loop workerLoop) {
	s.strategy.pushWorkerParallel(loop)
}

// cancelAll implements spec.md §6's `cancel-all(ssv)`: force-kills every
// worker currently in worker-set via its context.CancelFunc, then cancels
// the SSV's own root context so any not-yet-registered worker (the
// registration-race window spec.md §4.6 describes) observes cancellation
// as soon as it starts.
func (s *SSV) cancelAll() {
	s.logger.Debug("cancel-all", zap.Int("workers", s.workers.Len()))
	s.cancelled.Store(true)
	s.workers.CancelAll()
	s.cancel()
}

// readOutput implements spec.md §6's `read-output(ssv)`, delegating to the
// dispatcher (dispatch.go) for the bounded/paced blocking-read protocol.
func (s *SSV) readOutput(ctx context.Context) ([]childEvent, error) {
	return dispatchRead(ctx, s)
}

// --- LIFO strategy -----------------------------------------------------

type lifoStrategy struct {
	queue    lifoq.Stack[taskFunc]
	doorbell *doorbell.Doorbell
	pending  atomic.Int64
}

func (s *lifoStrategy) enqueue(task taskFunc) bool {
	s.queue.Push(task)
	s.pending.Add(1)
	s.doorbell.Ring()
	return true
}

func (s *lifoStrategy) dequeue() (taskFunc, bool) {
	t, ok := s.queue.Pop()
	if ok {
		s.pending.Add(-1)
	}
	return t, ok
}

func (s *lifoStrategy) isWorkDone() bool    { return s.pending.Load() == 0 }
func (s *lifoStrategy) postProcess() bool   { return s.pending.Load() == 0 }
func (s *lifoStrategy) pushWorkerParallel(workerLoop) {
	panic("pushWorkerParallel is Parallel-style only")
}

func lifoWorkerLoop(s *lifoStrategy) workerLoop {
	return func(ctx context.Context, w *workerHandle) error {
		for {
			task, ok := s.dequeue()
			if !ok {
				return nil
			}
			if err := task(ctx, w.yield); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if w.shouldShed() {
				return nil
			}
		}
	}
}

// --- FIFO strategy -------------------------------------------------------

type fifoStrategy struct {
	queue    nbqueue.Queue[taskFunc]
	doorbell *doorbell.Doorbell
	pending  atomic.Int64
}

func (s *fifoStrategy) enqueue(task taskFunc) bool {
	s.queue.PushBack(task)
	s.pending.Add(1)
	s.doorbell.Ring()
	return true
}

func (s *fifoStrategy) dequeue() (taskFunc, bool) {
	t, ok := s.queue.PopFront()
	if ok {
		s.pending.Add(-1)
	}
	return t, ok
}

func (s *fifoStrategy) isWorkDone() bool  { return s.pending.Load() == 0 }
func (s *fifoStrategy) postProcess() bool { return s.pending.Load() == 0 }
func (s *fifoStrategy) pushWorkerParallel(workerLoop) {
	panic("pushWorkerParallel is Parallel-style only")
}

func fifoWorkerLoop(s *fifoStrategy) workerLoop {
	return func(ctx context.Context, w *workerHandle) error {
		for {
			task, ok := s.dequeue()
			if !ok {
				return nil
			}
			if err := task(ctx, w.yield); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if w.shouldShed() {
				return nil
			}
		}
	}
}

// --- Ahead strategy --------------------------------------------------

type aheadStrategy struct {
	queue *aheadQueue
	heap  *reorder.Heap
}

func (s *aheadStrategy) enqueue(task taskFunc) bool {
	s.queue.push(task)
	return true
}

func (s *aheadStrategy) isWorkDone() bool {
	return s.queue.isEmpty() && !s.heap.HasCurrent()
}

func (s *aheadStrategy) postProcess() bool {
	return s.queue.isEmpty() && s.heap.Len() == 0
}

func (s *aheadStrategy) pushWorkerParallel(workerLoop) {
	panic("pushWorkerParallel is Parallel-style only")
}

// taskGenerator turns a taskFunc into a resumable stream of values by
// running it on its own goroutine and feeding results through a channel.
// This is the Go-native realization of spec.md §4.3's "StreamTail(k)" heap
// entry: a worker that must abandon a task it doesn't hold the token for
// pushes the generator itself onto the heap, and whichever worker later
// becomes the token holder for that sequence resumes pulling from the same
// channel, rather than restarting the computation.
type taskGenerator struct {
	values chan any
	done   chan struct{}
	err    error
}

func newTaskGenerator(ctx context.Context, task taskFunc) *taskGenerator {
	g := &taskGenerator{values: make(chan any), done: make(chan struct{})}
	go func() {
		defer close(g.done)
		g.err = task(ctx, func(v any) bool {
			select {
			case g.values <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return g
}

// next blocks for the generator's next value, reporting false once the
// underlying task has finished.
func (g *taskGenerator) next(ctx context.Context) (any, bool) {
	select {
	case v, ok := <-g.values:
		return v, ok
	case <-g.done:
		select {
		case v, ok := <-g.values:
			return v, ok
		default:
			return nil, false
		}
	case <-ctx.Done():
		return nil, false
	}
}

// parkedGenerator is what a non-token worker pushes onto the reorder heap
// when it abandons a task it does not (yet) hold the token for. A worker
// computing ahead of its turn may already have pulled a value off gen
// before discovering it isn't the token holder; that value must ride along
// with the generator rather than be dropped, or the eventual token holder
// would resume one value short.
type parkedGenerator struct {
	gen        *taskGenerator
	pending    any
	hasPending bool
}

func aheadWorkerLoop(s *aheadStrategy) workerLoop {
	return func(ctx context.Context, w *workerHandle) error {
		for {
			var gen *taskGenerator
			var seq int64
			var pending any
			var hasPending bool

			if entry, ok := s.heap.Pop(); ok {
				parked := entry.Payload.(*parkedGenerator)
				gen, seq = parked.gen, entry.Seq
				pending, hasPending = parked.pending, parked.hasPending
			} else if task, qSeq, ok := s.queue.pop(); ok {
				gen = newTaskGenerator(ctx, task)
				seq = qSeq
			} else {
				return nil
			}

			w.seq = seq
			w.token = seq == s.heap.CurrentSeq()

			for {
				var v any
				var ok bool
				if hasPending {
					v, ok, hasPending = pending, true, false
				} else {
					v, ok = gen.next(ctx)
				}
				if !ok {
					break
				}
				if !w.token {
					// Not our turn: park the generator (and the value we
					// already pulled from it) for whoever becomes the
					// token holder for this sequence.
					s.heap.Push(reorder.Entry{Seq: w.seq, Payload: &parkedGenerator{gen: gen, pending: v, hasPending: true}})
					return nil
				}
				if !w.yield(v) {
					// Buffer full or yield cap reached: abandon and let a
					// later worker resume once the buffer drains.
					s.heap.Push(reorder.Entry{Seq: w.seq, Payload: &parkedGenerator{gen: gen}})
					return nil
				}
				w.token = w.seq == s.heap.CurrentSeq()
			}
			<-gen.done
			if gen.err != nil {
				return gen.err
			}
			if seq == s.heap.CurrentSeq() {
				// This sequence produced nothing further; advance so the
				// next sequence can become current.
				s.heap.AdvanceCurrentSeq()
			}
			if w.shouldShed() {
				return nil
			}
		}
	}
}

// --- Parallel strategy -------------------------------------------------

type parallelStrategy struct {
	spawn func(loop workerLoop)
}

func (s *parallelStrategy) enqueue(task taskFunc) bool {
	s.spawn(func(ctx context.Context, w *workerHandle) error {
		w.token = true
		return task(ctx, w.yield)
	})
	return true
}

func (s *parallelStrategy) isWorkDone() bool  { return true }
func (s *parallelStrategy) postProcess() bool { return true }
func (s *parallelStrategy) pushWorkerParallel(loop workerLoop) {
	s.spawn(loop)
}

// --- Construction --------------------------------------------------------

func newBaseSSV(ctx context.Context, st State, sty Style) *SSV {
	ctx, cancel := context.WithCancel(ctx)
	s := &SSV{
		style:   sty,
		state:   st,
		doorbell: doorbell.New(),
		workers: workerset.New(),
		logger:  st.logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.output = newOutputQueue(s.doorbell)
	if st.paced() {
		s.latency = newLatencyTracker(st.maxBuffer(), st.workerLatencyHint)
	}
	return s
}

// newAheadSSV implements spec.md §6's `new-ahead-ssv(state, first-task,
// work-loop)`: constructs an SSV already running its first worker, per
// spec.md §4.8's "Ahead style ... initializes the single-slot work queue at
// seq=-1, the reorder heap empty at seq=0 ... Paced mode allocates the four
// latency cells."
func newAheadSSV(ctx context.Context, st State, first taskFunc) *SSV {
	s := newBaseSSV(ctx, st, StyleAhead)
	s.reorderHeap = reorder.NewHeap(0)
	aq := newAheadQueue(-1, s.doorbell)
	strat := &aheadStrategy{queue: aq, heap: s.reorderHeap}
	s.strategy = strat
	loop := aheadWorkerLoop(strat)
	s.loop = loop
	if first != nil {
		s.enqueue(first)
	}
	s.spawnWorker(loop)
	return s
}

// newParallelSSV implements spec.md §6's `new-parallel-ssv()`: an SSV with
// no workers and no work queue, per spec.md §4.8: "the work queue is
// absent; producer threads are forked immediately on enqueue ...
// maxBuffer = -1."
func newParallelSSV(ctx context.Context, st State) *SSV {
	st.bufferHigh = -1
	s := newBaseSSV(ctx, st, StyleParallel)
	s.strategy = &parallelStrategy{spawn: s.spawnWorker}
	return s
}

// newLifoSSV and newFifoSSV are this module's equivalents of the Async and
// WAsync styles named in spec.md's GLOSSARY; spec.md §6 only names the
// Ahead and Parallel constructors explicitly, but invariants 1-2 and §4.2's
// LIFO/FIFO queue disciplines apply equally to these two.
func newLifoSSV(ctx context.Context, st State, first taskFunc) *SSV {
	s := newBaseSSV(ctx, st, StyleLIFO)
	strat := &lifoStrategy{doorbell: s.doorbell}
	s.strategy = strat
	loop := lifoWorkerLoop(strat)
	s.loop = loop
	if first != nil {
		s.enqueue(first)
	}
	s.spawnWorker(loop)
	return s
}

func newFifoSSV(ctx context.Context, st State, first taskFunc) *SSV {
	s := newBaseSSV(ctx, st, StyleFIFO)
	strat := &fifoStrategy{doorbell: s.doorbell}
	s.strategy = strat
	loop := fifoWorkerLoop(strat)
	s.loop = loop
	if first != nil {
		s.enqueue(first)
	}
	s.spawnWorker(loop)
	return s
}

// shouldShed implements spec.md §4.5's surplus-shedding rule: "A worker
// self-terminates when ... periodic inspection shows the current worker
// count exceeds the desired count."
func (w *workerHandle) shouldShed() bool {
	s := w.ssv
	if !s.state.paced() || s.latency == nil {
		return false
	}
	s.latency.collect()
	plan := s.latency.desiredWorkerCount(int(s.workerCount.Load()), 0, s.state.targetLatency(), s.state.maxWorkers())
	return int(s.workerCount.Load()) > max(plan.netWorkers, s.state.minWorkers)
}
