// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package streamlyotel provides OpenTelemetry and zap integration for
// streamly's stream scheduler. It is a separate module (mirroring the
// teacher package's own otpsg submodule) so that the core scheduler never
// depends on the OpenTelemetry SDK; only callers that import streamlyotel
// pay for it.
package streamlyotel

import (
	"context"
	"time"

	"go.uber.org/zap"

	streamly "github.com/timbuckley/streamly"
)

// LoggedProducer wraps a Producer with structured start/yield/completion
// logging, adapted from the teacher package's otpsg.LoggedTask -- there the
// wrapper brackets a single task's execution; here it brackets a whole
// producer's run, plus one Debug line per yielded value, since a stream
// producer's interesting lifecycle events are its yields, not just its
// single return.
func LoggedProducer[T any](logger *zap.Logger, operationName string, p streamly.Producer[T]) streamly.Producer[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		logger.Debug("starting producer", zap.String("operation", operationName))
		start := time.Now()
		count := 0

		err := p(ctx, func(v T) bool {
			count++
			logger.Debug("producer yielded",
				zap.String("operation", operationName),
				zap.Int("count", count))
			return yield(v)
		})

		duration := time.Since(start)
		if err != nil {
			logger.Error("producer failed",
				zap.String("operation", operationName),
				zap.Duration("duration", duration),
				zap.Int("yields", count),
				zap.Error(err))
		} else {
			logger.Debug("producer completed",
				zap.String("operation", operationName),
				zap.Duration("duration", duration),
				zap.Int("yields", count))
		}
		return err
	}
}
