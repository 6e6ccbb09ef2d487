// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State is the configuration object threaded by value through a stream's
// composition, matching spec.md §3: one-shot fields (the active SSV handle
// and the remaining yield limit) reset at each composition boundary, while
// persistent fields (max workers, max buffer, stream rate, worker latency
// hint, minimum workers, logger) carry forward unchanged. Because State is a
// plain value rather than a pointer, an ordinary Go struct copy at a
// composition boundary is enough to give the new segment its own one-shot
// fields for free.
type State struct {
	// persistent
	threadsHigh       int
	bufferHigh        int
	streamRate        float64
	workerLatencyHint time.Duration
	minWorkers        int
	style             Style
	logger            *zap.Logger

	// one-shot
	ssv        *SSV
	yieldLimit int64 // 0 means unlimited
}

// Defaults matching spec.md §6's configuration table.
const (
	defaultThreadsHigh = 1500
	defaultBufferHigh  = 1500
	defaultStreamRate  = -1 // unbounded/bounded-mode
	defaultMinWorkers  = 1
)

// NewState builds a State with spec.md §6's defaults applied, then applies
// opts in order.
func NewState(opts ...Option) State {
	s := State{
		threadsHigh: defaultThreadsHigh,
		bufferHigh:  defaultBufferHigh,
		streamRate:  defaultStreamRate,
		minWorkers:  defaultMinWorkers,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option mutates a State under construction. Each With* function below
// returns one, matching the naming style of the teacher package's
// Pool.SetLimit/CombinerPool.SetIdleTimeout/SetSpawnDelay tunables, adapted
// to Go's functional-options idiom since State is a value passed at
// construction time rather than a long-lived pointer receiver.
type Option func(*State)

// WithMaxWorkers sets threadsHigh, the maximum number of concurrent workers
// (spec.md §6's "threadsHigh: maximum workers (default 1500, 0 = synchronous)").
// A value of 0 forces every task to run synchronously on the enqueuing
// goroutine (spec.md scenario 6).
func WithMaxWorkers(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("invalid max workers %d: must be >= 0", n))
	}
	return func(s *State) { s.threadsHigh = n }
}

// WithMaxBuffer sets bufferHigh, the maximum number of outstanding output
// events (spec.md §6's "bufferHigh: max outstanding output events (default
// 1500)").
func WithMaxBuffer(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("invalid max buffer %d: must be >= 0", n))
	}
	return func(s *State) { s.bufferHigh = n }
}

// WithStreamRate sets the target yields/s that switches the dispatcher into
// paced mode (spec.md §6's "streamRate: target yields/s (default -1 =
// unbounded/bounded-mode)", §4.7). A value <= 0 selects bounded mode.
func WithStreamRate(yieldsPerSecond float64) Option {
	return func(s *State) { s.streamRate = yieldsPerSecond }
}

// WithWorkerLatencyHint seeds the measured-latency counter before any
// worker has self-reported, shortening the bootstrap delay described in
// spec.md §4.5's "Bootstrap" paragraph and §6's "workerLatency: optional
// bootstrap latency hint".
func WithWorkerLatencyHint(d time.Duration) Option {
	return func(s *State) { s.workerLatencyHint = d }
}

// WithYieldLimit caps the total number of yields the SSV will produce
// before signaling clean end-of-stream (spec.md §6's "yieldLimit: optional
// cap on total yields", invariant 6, and §7.4). A value of 0 (the default)
// means unlimited.
func WithYieldLimit(n int64) Option {
	if n < 0 {
		panic(fmt.Sprintf("invalid yield limit %d: must be >= 0", n))
	}
	return func(s *State) { s.yieldLimit = n }
}

// WithMinWorkers sets a floor on the worker count in paced mode, even if
// the bootstrap seed measurement described in spec.md §4.5's "Bootstrap"
// paragraph never arrives: before the measurement the dispatcher forks
// workers up to the floor while work is pending, and afterwards workers do
// not shed below it — the resolution adopted for Open Question 1 in
// spec.md §9.
func WithMinWorkers(n int) Option {
	if n < 1 {
		panic(fmt.Sprintf("invalid min workers %d: must be >= 1", n))
	}
	return func(s *State) { s.minWorkers = n }
}

// WithLogger attaches a *zap.Logger that the SSV and driver use to record
// lifecycle transitions (worker fork/exit, style selection, cancellation).
// The core stays silent (zap.NewNop()) unless a caller opts in, keeping
// logging out of the core's own decision-making per spec.md §1's
// "logging/diagnostics ... out of scope" boundary.
func WithLogger(logger *zap.Logger) Option {
	if logger == nil {
		panic("logger is nil")
	}
	return func(s *State) { s.logger = logger }
}

// withoutOneShot returns a copy of s with the one-shot fields (ssv handle,
// remaining yield limit) cleared, as spec.md §3 requires at each
// composition boundary. Persistent fields are carried forward unchanged.
func (s State) withoutOneShot() State {
	s.ssv = nil
	s.yieldLimit = 0
	return s
}

func (s State) maxWorkers() int {
	return s.threadsHigh
}

func (s State) maxBuffer() int {
	return s.bufferHigh
}

func (s State) paced() bool {
	return s.streamRate > 0
}

func (s State) targetLatency() time.Duration {
	if s.streamRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.streamRate)
}
