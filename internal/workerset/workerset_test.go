// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package workerset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToggleRegisterInsertsThenRemoves(t *testing.T) {
	s := New()
	require.True(t, s.IsEmpty())

	wasRemoval := s.ToggleRegister(1, func() {})
	require.False(t, wasRemoval, "first toggle on a tid inserts")
	require.Equal(t, 1, s.Len())

	wasRemoval = s.ToggleRegister(1, func() {})
	require.True(t, wasRemoval, "second toggle on the same tid removes")
	require.True(t, s.IsEmpty())
}

func TestCancelAllInvokesEveryCancelFunc(t *testing.T) {
	s := New()
	cancelled := make(map[int64]bool)

	for tid := int64(1); tid <= 3; tid++ {
		tid := tid
		s.ToggleRegister(tid, func() { cancelled[tid] = true })
	}

	s.CancelAll()
	require.Len(t, cancelled, 3)
	for tid := int64(1); tid <= 3; tid++ {
		require.True(t, cancelled[tid])
	}
}
