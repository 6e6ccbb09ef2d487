// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLatencyTrackerBootstrapsFromHint(t *testing.T) {
	tr := newLatencyTracker(100, 5*time.Millisecond)
	L, ok := tr.measuredLatency()
	require.True(t, ok)
	require.Equal(t, 5*time.Millisecond, L)
}

func TestNewLatencyTrackerWithoutHintHasNoMeasurement(t *testing.T) {
	tr := newLatencyTracker(100, 0)
	_, ok := tr.measuredLatency()
	require.False(t, ok)
}

func TestPeriodIsOneUntilMeasured(t *testing.T) {
	tr := newLatencyTracker(100, 0)
	require.Equal(t, int64(1), tr.period())
}

func TestPeriodClampedByMaxBuffer(t *testing.T) {
	tr := newLatencyTracker(5, time.Nanosecond)
	require.Equal(t, int64(5), tr.period(), "minDelay/L is huge here, so maxBuffer should win")
}

func TestCollectCommitsFirstMeasurement(t *testing.T) {
	tr := newLatencyTracker(1000, 0)
	tr.recordWindow(window{n: 10, dt: 100 * time.Microsecond})
	tr.collect()

	L, ok := tr.measuredLatency()
	require.True(t, ok)
	require.Equal(t, 10*time.Microsecond, L)
}

func TestCollectAccumulatesSmallWindowsBeforeCommitting(t *testing.T) {
	tr := newLatencyTracker(1000, 10*time.Microsecond)
	// A tiny window close to the existing estimate should just accumulate
	// into `collected` rather than immediately overwriting `measured`.
	tr.recordWindow(window{n: 1, dt: 10 * time.Microsecond})
	tr.collect()

	L, ok := tr.measuredLatency()
	require.True(t, ok)
	require.Equal(t, 10*time.Microsecond, L, "small in-band window shouldn't move the estimate yet")
}

func TestCollectRecommitsOnLargeRatioChange(t *testing.T) {
	tr := newLatencyTracker(1000, 10*time.Microsecond)
	// New latency more than double the existing estimate forces a recommit.
	tr.recordWindow(window{n: 1, dt: 100 * time.Microsecond})
	tr.collect()

	L, ok := tr.measuredLatency()
	require.True(t, ok)
	require.Equal(t, 100*time.Microsecond, L)
}

func TestDesiredWorkerCountBeforeBootstrapKeepsCurrentCount(t *testing.T) {
	tr := newLatencyTracker(1000, 0)
	plan := tr.desiredWorkerCount(3, time.Second, time.Millisecond, 10)
	require.Equal(t, 3, plan.netWorkers)
}

func TestDesiredWorkerCountScalesUpUnderDeficit(t *testing.T) {
	tr := newLatencyTracker(1000, 10*time.Millisecond)
	// Target latency far tighter than measured latency implies more workers
	// are needed to hit the target rate.
	plan := tr.desiredWorkerCount(1, 0, time.Millisecond, 100)
	require.Greater(t, plan.netWorkers, 1)
}

func TestDesiredWorkerCountCapsAtMaxWorkers(t *testing.T) {
	tr := newLatencyTracker(1000, 10*time.Millisecond)
	plan := tr.desiredWorkerCount(1, 0, time.Microsecond, 5)
	require.LessOrEqual(t, plan.netWorkers, 5)
}

func TestDesiredWorkerCountSleepsWhenSurplus(t *testing.T) {
	tr := newLatencyTracker(1000, time.Millisecond)
	// Long target latency (slow rate) with many workers already running
	// should produce net <= 0 and a positive sleep.
	plan := tr.desiredWorkerCount(50, 0, time.Second, 100)
	require.LessOrEqual(t, plan.netWorkers, 0)
	require.Positive(t, plan.sleepFor)
	require.Positive(t, plan.yieldBudget)
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	require.Equal(t, 2.0, round(1.5))
	require.Equal(t, -2.0, round(-1.5))
	require.Equal(t, 0.0, round(0.4))
}
