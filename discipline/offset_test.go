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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeTimeCorrectionTruncates(t *testing.T) {
	require.Equal(t, -2, computeTimeCorrection(9, 4))
	require.Equal(t, 2, computeTimeCorrection(-9, 4))
	require.Equal(t, 0, computeTimeCorrection(3, 4))
	require.Equal(t, -100, computeTimeCorrection(100, InvGain1))
	require.Equal(t, -25, computeTimeCorrection(100, 4*InvGain1))
}

type fakeAdjuster struct {
	offsetCalls []int
	freqCalls   []float64
	stepCalls   []int
	offsetErr   error
}

func (f *fakeAdjuster) AdjustOffset(usec int) error {
	f.offsetCalls = append(f.offsetCalls, usec)
	return f.offsetErr
}

func (f *fakeAdjuster) AdjustFrequency(ppm float64) error {
	f.freqCalls = append(f.freqCalls, ppm)
	return nil
}

func (f *fakeAdjuster) StepSeconds(seconds int) error {
	f.stepCalls = append(f.stepCalls, seconds)
	return nil
}

func TestApplyOffsetNoOpOnZero(t *testing.T) {
	c := NewController()
	adj := &fakeAdjuster{}

	require.NoError(t, c.applyOffset(adj, 0))
	require.Empty(t, adj.offsetCalls, "a zero correction must never reach the clock adjuster")
}

func TestApplyOffsetSubmitsNonZero(t *testing.T) {
	c := NewController()
	adj := &fakeAdjuster{}

	require.NoError(t, c.applyOffset(adj, -42))
	require.Equal(t, []int{-42}, adj.offsetCalls)
}

func TestApplyOffsetPropagatesError(t *testing.T) {
	c := NewController()
	wantErr := errors.New("adjtimex failed")
	adj := &fakeAdjuster{offsetErr: wantErr}

	require.ErrorIs(t, c.applyOffset(adj, 7), wantErr)
}
