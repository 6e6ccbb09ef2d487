// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ssv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewStateDefaults(t *testing.T) {
	st := NewState()
	require.Equal(t, defaultThreadsHigh, st.maxWorkers())
	require.Equal(t, defaultBufferHigh, st.maxBuffer())
	require.False(t, st.paced())
	require.Equal(t, time.Duration(0), st.targetLatency())
}

func TestWithMaxWorkersRejectsNegative(t *testing.T) {
	require.PanicsWithValue(t, "invalid max workers -1: must be >= 0", func() {
		WithMaxWorkers(-1)
	})
}

func TestWithMaxBufferRejectsNegative(t *testing.T) {
	require.PanicsWithValue(t, "invalid max buffer -1: must be >= 0", func() {
		WithMaxBuffer(-1)
	})
}

func TestWithYieldLimitRejectsNegative(t *testing.T) {
	require.PanicsWithValue(t, "invalid yield limit -5: must be >= 0", func() {
		WithYieldLimit(-5)
	})
}

func TestWithMinWorkersRejectsZero(t *testing.T) {
	require.PanicsWithValue(t, "invalid min workers 0: must be >= 1", func() {
		WithMinWorkers(0)
	})
}

func TestWithLoggerRejectsNil(t *testing.T) {
	require.PanicsWithValue(t, "logger is nil", func() {
		WithLogger(nil)
	})
}

func TestStreamRatePacesAndSetsTargetLatency(t *testing.T) {
	st := NewState(WithStreamRate(1000))
	require.True(t, st.paced())
	require.Equal(t, time.Millisecond, st.targetLatency())
}

func TestWithoutOneShotClearsSSVAndYieldLimit(t *testing.T) {
	st := NewState(WithYieldLimit(5), WithMaxWorkers(3))
	st.ssv = &SSV{}
	cleared := st.withoutOneShot()
	require.Nil(t, cleared.ssv)
	require.Zero(t, cleared.yieldLimit)
	require.Equal(t, 3, cleared.maxWorkers(), "persistent fields survive withoutOneShot")
}
