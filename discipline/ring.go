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

import "container/ring"

// IntRing is a fixed-capacity circular buffer of ints that maintains its
// own running sum, so the sum-of-elements invariant never needs to be
// re-derived by a caller.
type IntRing struct {
	r      *ring.Ring
	cap    int
	filled int
	sum    int64
}

// NewIntRing creates a ring of the given capacity.
func NewIntRing(capacity int) *IntRing {
	return &IntRing{r: ring.New(capacity), cap: capacity}
}

// Push appends a value, evicting the oldest once the ring is full, and
// returns the running sum after the push.
func (b *IntRing) Push(v int) int64 {
	if b.filled == b.cap {
		evicted := b.r.Value.(int)
		b.sum -= int64(evicted)
	} else {
		b.filled++
	}
	b.r.Value = v
	b.sum += int64(v)
	b.r = b.r.Next()
	return b.sum
}

// Sum returns the current running sum over all filled slots.
func (b *IntRing) Sum() int64 {
	return b.sum
}

// Len returns the number of filled slots (≤ capacity).
func (b *IntRing) Len() int {
	return b.filled
}

// Full reports whether the ring has accumulated `cap` samples.
func (b *IntRing) Full() bool {
	return b.filled == b.cap
}

// Values returns the filled values oldest-first.
func (b *IntRing) Values() []int {
	out := make([]int, 0, b.filled)
	r := b.r
	for i := 0; i < b.cap-b.filled; i++ {
		r = r.Next()
	}
	for i := 0; i < b.filled; i++ {
		out = append(out, r.Value.(int))
		r = r.Next()
	}
	return out
}

// Reset empties the ring and zeroes the running sum.
func (b *IntRing) Reset() {
	b.r = ring.New(b.cap)
	b.filled = 0
	b.sum = 0
}
