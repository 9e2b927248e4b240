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

type stepErrAdjuster struct{ err error }

func (a stepErrAdjuster) AdjustOffset(int) error        { return nil }
func (a stepErrAdjuster) AdjustFrequency(float64) error { return nil }
func (a stepErrAdjuster) StepSeconds(int) error         { return a.err }

// TestConsensusClockTakeClearsThePendingValue verifies take() is a
// read-and-clear, not a read-only peek.
func TestConsensusClockTakeClearsThePendingValue(t *testing.T) {
	var c ConsensusClock
	c.Report(3)

	require.Equal(t, 3, c.take())
	require.Zero(t, c.take(), "a second take with nothing newly reported must observe zero")
}

// TestConsensusClockReportLastWriteWins verifies a later Report
// overwrites an unconsumed earlier one rather than accumulating.
func TestConsensusClockReportLastWriteWins(t *testing.T) {
	var c ConsensusClock
	c.Report(1)
	c.Report(-2)

	require.Equal(t, -2, c.take())
}

// TestApplyWholeSecondsNoOpWhenNothingPending verifies a zero (or
// never-reported) consensus value never reaches the clock adjuster.
func TestApplyWholeSecondsNoOpWhenNothingPending(t *testing.T) {
	var consensus ConsensusClock
	adj := &fakeAdjuster{}

	require.NoError(t, applyWholeSeconds(adj, &consensus))
	require.Empty(t, adj.stepCalls)
}

// TestApplyWholeSecondsStepsAndClears verifies a pending nonzero
// consensus value is applied via StepSeconds exactly once and then
// cleared.
func TestApplyWholeSecondsStepsAndClears(t *testing.T) {
	var consensus ConsensusClock
	consensus.Report(-1)
	adj := &fakeAdjuster{}

	require.NoError(t, applyWholeSeconds(adj, &consensus))
	require.Equal(t, []int{-1}, adj.stepCalls)

	require.NoError(t, applyWholeSeconds(adj, &consensus))
	require.Equal(t, []int{-1}, adj.stepCalls, "a second call without a fresh report must not step again")
}

// TestApplyWholeSecondsPropagatesError verifies a clock-adjust failure
// surfaces to the caller.
func TestApplyWholeSecondsPropagatesError(t *testing.T) {
	var consensus ConsensusClock
	consensus.Report(2)
	wantErr := errors.New("adjtimex step failed")

	require.ErrorIs(t, applyWholeSeconds(stepErrAdjuster{err: wantErr}, &consensus), wantErr)
}
