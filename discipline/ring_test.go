/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package discipline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntRingPartialFill(t *testing.T) {
	r := NewIntRing(3)
	require.False(t, r.Full())
	require.Equal(t, int64(1), r.Push(1))
	require.Equal(t, int64(3), r.Push(2))
	require.Equal(t, 2, r.Len())
	require.False(t, r.Full())
	require.Equal(t, []int{1, 2}, r.Values())
}

func TestIntRingEvictsOldest(t *testing.T) {
	r := NewIntRing(3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	require.True(t, r.Full())
	require.Equal(t, int64(6), r.Sum())

	sum := r.Push(4)
	require.Equal(t, int64(9), sum)
	require.Equal(t, []int{2, 3, 4}, r.Values())
	require.True(t, r.Full())
	require.Equal(t, 3, r.Len())
}

func TestIntRingSumInvariant(t *testing.T) {
	r := NewIntRing(5)
	want := int64(0)
	for i, v := range []int{3, -7, 12, 4, -2, 9, 0, -11} {
		want += int64(v)
		if i >= 5 {
			want -= int64([]int{3, -7, 12, 4, -2, 9, 0, -11}[i-5])
		}
		got := r.Push(v)
		require.Equal(t, want, got)
		require.Equal(t, want, r.Sum())
	}
}

func TestIntRingReset(t *testing.T) {
	r := NewIntRing(3)
	r.Push(10)
	r.Push(20)
	r.Reset()
	require.Equal(t, 0, r.Len())
	require.False(t, r.Full())
	require.Equal(t, int64(0), r.Sum())
	require.Empty(t, r.Values())

	require.Equal(t, int64(5), r.Push(5))
}
