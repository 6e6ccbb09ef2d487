// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package reorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeapPopOnlyReturnsCurrentSeq(t *testing.T) {
	h := NewHeap(0)
	h.Push(Entry{Seq: 2, Payload: "two"})
	h.Push(Entry{Seq: 1, Payload: "one"})

	require.False(t, h.HasCurrent())
	_, ok := h.Pop()
	require.False(t, ok, "Pop must refuse entries that aren't current-seq")

	h.Push(Entry{Seq: 0, Payload: "zero"})
	require.True(t, h.HasCurrent())

	e, ok := h.Pop()
	require.True(t, ok)
	require.Equal(t, int64(0), e.Seq)
	require.Equal(t, "zero", e.Payload)
	require.Equal(t, int64(0), h.CurrentSeq(), "Pop must not itself advance CurrentSeq")

	// A second Pop before AdvanceCurrentSeq is called finds nothing left at
	// seq 0 (it was just removed) and refuses to hand out seq 1's entry.
	_, ok = h.Pop()
	require.False(t, ok, "seq 0's entry is gone and seq 1 isn't current yet")

	h.AdvanceCurrentSeq()
	require.Equal(t, int64(1), h.CurrentSeq())

	e, ok = h.Pop()
	require.True(t, ok)
	require.Equal(t, int64(1), e.Seq)
	require.Equal(t, int64(1), h.CurrentSeq(), "Pop still must not advance CurrentSeq")

	h.AdvanceCurrentSeq()
	e, ok = h.Pop()
	require.True(t, ok)
	require.Equal(t, int64(2), e.Seq)
}

func TestHeapAdvanceCurrentSeqWithoutPop(t *testing.T) {
	h := NewHeap(5)
	require.Equal(t, int64(5), h.CurrentSeq())
	h.AdvanceCurrentSeq()
	require.Equal(t, int64(6), h.CurrentSeq())
	require.Equal(t, 0, h.Len())
}

func TestHeapLenReflectsBufferedEntries(t *testing.T) {
	h := NewHeap(0)
	require.Equal(t, 0, h.Len())
	h.Push(Entry{Seq: 3})
	h.Push(Entry{Seq: 1})
	require.Equal(t, 2, h.Len())
}
