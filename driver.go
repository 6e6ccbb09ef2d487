// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Producer is the caller-facing generator shape spec.md §4.9's `gather`/
// `wait` drive: it runs until it has nothing left to produce or an error
// occurs, calling yield once per value and stopping early once yield
// reports false (buffer full, cap reached, or the consumer cancelling).
type Producer[T any] func(ctx context.Context, yield func(T) bool) error

// WithStyle attaches the scheduling discipline Gather/Wait construct the
// root SSV with. The zero State selects StyleLIFO (Async, depth-first),
// matching the teacher's own default of running newly enqueued work before
// older work (Pool's worker goroutines pull from a LIFO-shaped local queue
// before falling back to the shared one).
func WithStyle(sty Style) Option {
	return func(s *State) { s.style = sty }
}

// Gather implements spec.md §4.9's `gather`: build a root SSV with an
// unbounded yield limit, run root as its first task, drain every Stop and
// yield event, and collect the yielded values into a slice. The first
// erroring Stop cancels every sibling worker and is returned; any error
// from a later Stop, or from context cancellation itself, is aggregated in
// rather than dropped, since a caller waiting on a cancelled Gather still
// wants to know a worker also panicked.
func Gather[T any](ctx context.Context, opts State, root Producer[T]) ([]T, error) {
	var out []T
	err := run(ctx, opts, root, func(v T) { out = append(out, v) })
	return out, err
}

// Wait implements spec.md §4.9's `wait`: identical to Gather but discards
// yielded values, for callers that only care about completion and errors.
func Wait[T any](ctx context.Context, opts State, root Producer[T]) error {
	return run[T](ctx, opts, root, func(T) {})
}

// run is the shared driver loop behind Gather and Wait: the direct
// Go-native descendant of the teacher's Job.gatherAll (drain-until-nothing-
// in-flight), generalized from a channel of *Result to the SSV's own
// batched (list, len) output queue.
func run[T any](ctx context.Context, opts State, root Producer[T], collect func(T)) error {
	opts = opts.withoutOneShot()
	opts.yieldLimit = 0 // maxYieldLimit = infinity at the root, per spec.md §4.9.

	task := func(ctx context.Context, yield yieldFunc) error {
		return root(ctx, func(v T) bool { return yield(v) })
	}

	s := newRootSSV(ctx, opts, task)
	defer s.cancelAll()

	var firstErr error
	for {
		events, err := s.readOutput(ctx)
		if err != nil {
			s.cancelAll()
			firstErr = multierr.Append(firstErr, err)
			drainStops(s, &firstErr)
			break
		}
		if events == nil {
			// Clean end-of-stream: dispatchRead only returns (nil, nil)
			// once postProcess reports the whole stream is done.
			break
		}
		for _, ev := range events {
			switch ev.kind {
			case childEventYield:
				collect(ev.value.(T))
			case childEventStop:
				if ev.err != nil {
					if firstErr == nil {
						s.cancelAll()
					}
					firstErr = multierr.Append(firstErr, ev.err)
				}
			}
		}
	}

	return firstErr
}

// drainStops reaps the remaining Stop events after cancelAll, using a
// background context since the caller's own ctx is already the reason
// cancellation started. cancelAll only requests cancellation; each worker
// still posts its own Stop once it observes it, per spec.md §4.6's exit
// protocol, so the driver must keep reading until worker-set is empty
// rather than returning the moment cancelAll is called.
func drainStops(s *SSV, firstErr *error) {
	bg := context.Background()
	for {
		events, err := s.readOutput(bg)
		if err != nil || events == nil {
			return
		}
		for _, ev := range events {
			if ev.kind == childEventStop && ev.err != nil {
				*firstErr = multierr.Append(*firstErr, ev.err)
			}
		}
	}
}

// newRootSSV picks the constructor matching opts.style, defaulting to
// StyleLIFO when unset (the zero Style value).
func newRootSSV(ctx context.Context, opts State, first taskFunc) *SSV {
	opts.logger.Debug("style selected", zap.Int("style", int(opts.style)))
	switch opts.style {
	case StyleFIFO:
		return newFifoSSV(ctx, opts, first)
	case StyleAhead:
		return newAheadSSV(ctx, opts, first)
	case StyleParallel:
		s := newParallelSSV(ctx, opts)
		s.enqueue(first)
		return s
	default:
		return newLifoSSV(ctx, opts, first)
	}
}
