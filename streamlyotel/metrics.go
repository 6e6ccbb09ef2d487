// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package streamlyotel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	streamly "github.com/timbuckley/streamly"
)

// MetricsProducer wraps a Producer with count, duration, and error metrics,
// adapted from otpsg.MetricsTask: one counter for total yields, a histogram
// for the producer's total run duration, and an error counter incremented
// once if the producer ultimately fails.
func MetricsProducer[T any](metricName string, p streamly.Producer[T]) streamly.Producer[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		meter := otel.GetMeterProvider().Meter("streamlyotel")
		yieldCounter, _ := meter.Int64Counter(metricName + ".yields")
		duration, _ := meter.Float64Histogram(metricName + ".duration")
		errorCounter, _ := meter.Int64Counter(metricName + ".errors")

		start := time.Now()
		err := p(ctx, func(v T) bool {
			yieldCounter.Add(ctx, 1)
			return yield(v)
		})
		duration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			errorCounter.Add(ctx, 1)
		}
		return err
	}
}
