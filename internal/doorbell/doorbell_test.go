// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package doorbell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoorbellRingWithoutArmDoesNotSignal(t *testing.T) {
	d := New()
	d.Ring()
	require.False(t, d.TryWait())
}

func TestDoorbellArmThenRingSignals(t *testing.T) {
	d := New()
	d.Arm()
	d.Ring()

	select {
	case <-d.Chan():
	case <-time.After(time.Second):
		t.Fatal("Ring after Arm did not deliver a wakeup")
	}
}

func TestDoorbellRingIsIdempotentUntilReArmed(t *testing.T) {
	d := New()
	d.Arm()
	d.Ring()
	d.Ring() // second Ring before the first is consumed must not block or panic

	require.True(t, d.TryWait())
	require.False(t, d.TryWait(), "only one wakeup should have been buffered")
}

func TestDoorbellWaitBlocksUntilRung(t *testing.T) {
	d := New()
	done := make(chan struct{})

	go func() {
		d.Arm()
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Ring was called")
	case <-time.After(20 * time.Millisecond):
	}

	d.Ring()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Ring")
	}
}
