// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package streamlyotel

import (
	"go.uber.org/zap"

	streamly "github.com/timbuckley/streamly"
)

// InstrumentedProducer composes logging, metrics, and tracing around p in
// one call, adapted from otpsg.InstrumentedTask's inside-out wrapping order
// (logging innermost so it sees the raw yields, tracing outermost so the
// span covers the metrics and logging overhead too).
func InstrumentedProducer[T any](logger *zap.Logger, name string, p streamly.Producer[T]) streamly.Producer[T] {
	p = LoggedProducer(logger, name, p)
	p = MetricsProducer(name, p)
	p = TracedProducer(name, p)
	return p
}
