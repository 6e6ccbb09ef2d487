// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package lifoq

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStackBasicFunctionality(t *testing.T) {
	var s Stack[int]

	_, ok := s.Pop()
	require.False(t, ok)

	s.Push(1)
	s.Push(2)
	s.Push(3)

	val, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, 3, val)

	val, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, 2, val)

	val, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, 1, val)

	_, ok = s.Pop()
	require.False(t, ok)
}

// TestStackWithRapid checks LIFO ordering against a plain slice model.
func TestStackWithRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var s Stack[int]
		var model []int

		t.Repeat(map[string]func(*rapid.T){
			"push": func(t *rapid.T) {
				val := rapid.Int().Draw(t, "value")
				s.Push(val)
				model = append(model, val)
			},
			"pop": func(t *rapid.T) {
				if len(model) == 0 {
					t.Skip("stack is empty, nothing to pop")
				}
				expected := model[len(model)-1]
				model = model[:len(model)-1]

				val, ok := s.Pop()
				require.True(t, ok, "Pop failed on non-empty stack")
				require.Equal(t, expected, val, "Pop returned wrong value")
			},
			"": func(t *rapid.T) {
				if len(model) == 0 {
					_, ok := s.Pop()
					require.False(t, ok, "Pop should fail on empty stack")
				}
			},
		})
	})
}
