// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func countingProducer(n int) Producer[int] {
	return func(ctx context.Context, yield func(int) bool) error {
		for i := 0; i < n; i++ {
			if !yield(i) {
				return nil
			}
		}
		return nil
	}
}

func TestGatherLIFOCollectsAllValues(t *testing.T) {
	ctx := context.Background()
	out, err := Gather(ctx, NewState(WithMaxWorkers(4)), countingProducer(20))
	require.NoError(t, err)
	sort.Ints(out)
	require.Equal(t, 20, len(out))
	for i, v := range out {
		require.Equal(t, i, v)
	}
}

func TestGatherFIFOCollectsAllValues(t *testing.T) {
	ctx := context.Background()
	out, err := Gather(ctx, NewState(WithMaxWorkers(4), WithStyle(StyleFIFO)), countingProducer(20))
	require.NoError(t, err)
	sort.Ints(out)
	require.Equal(t, 20, len(out))
}

func TestGatherAheadPreservesSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	out, err := Gather(ctx, NewState(WithMaxWorkers(4), WithStyle(StyleAhead)), countingProducer(20))
	require.NoError(t, err)
	require.Equal(t, 20, len(out))
	for i, v := range out {
		require.Equal(t, i, v, "Ahead style must preserve producer order")
	}
}

func TestGatherParallelCollectsAllValues(t *testing.T) {
	ctx := context.Background()
	out, err := Gather(ctx, NewState(WithStyle(StyleParallel)), countingProducer(1))
	require.NoError(t, err)
	require.Equal(t, []int{0}, out)
}

func TestGatherSynchronousModeRunsInline(t *testing.T) {
	ctx := context.Background()
	out, err := Gather(ctx, NewState(WithMaxWorkers(0)), countingProducer(5))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4}, out)
}

func TestGatherPropagatesProducerError(t *testing.T) {
	boom := errors.New("boom")
	producer := Producer[int](func(ctx context.Context, yield func(int) bool) error {
		yield(1)
		return boom
	})

	ctx := context.Background()
	_, err := Gather(ctx, NewState(WithMaxWorkers(2)), producer)
	require.ErrorIs(t, err, boom)
}

func TestGatherRecoversWorkerPanic(t *testing.T) {
	producer := Producer[int](func(ctx context.Context, yield func(int) bool) error {
		panic("kaboom")
	})

	ctx := context.Background()
	_, err := Gather(ctx, NewState(WithMaxWorkers(2)), producer)
	require.ErrorIs(t, err, ErrWorkerPanic)
}

func TestWaitDiscardsValues(t *testing.T) {
	ctx := context.Background()
	err := Wait(ctx, NewState(WithMaxWorkers(4)), countingProducer(20))
	require.NoError(t, err)
}

func TestGatherRespectsContextCancellation(t *testing.T) {
	blocked := Producer[int](func(ctx context.Context, yield func(int) bool) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Gather(ctx, NewState(WithMaxWorkers(2)), blocked)
	require.Error(t, err)
}

func TestGatherRespectsYieldLimit(t *testing.T) {
	ctx := context.Background()
	out, err := Gather(ctx, NewState(WithMaxWorkers(2), WithYieldLimit(3)), countingProducer(100))
	require.NoError(t, err)
	require.LessOrEqual(t, len(out), 3)
}
