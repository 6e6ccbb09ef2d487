// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package streamlyotel

import (
	"context"

	"go.opentelemetry.io/otel"

	streamly "github.com/timbuckley/streamly"
)

// TracedProducer wraps a Producer in a single span covering its entire run,
// adapted from otpsg.WithTaskTracing. Unlike the teacher's otpsg, which
// needed a PropagatedResult wrapper type to carry span context across the
// scatter/gather boundary (task results detach from ctx when they cross a
// result channel), a Producer's workers are forked with
// context.WithCancel(parentCtx) directly (ssv.go's spawnWorker), so the span
// started here is already the parent of every span a worker creates — no
// extra propagation plumbing is needed.
func TracedProducer[T any](operationName string, p streamly.Producer[T]) streamly.Producer[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		tracer := otel.Tracer("streamlyotel")
		ctx, span := tracer.Start(ctx, operationName)
		defer span.End()
		return p(ctx, yield)
	}
}
