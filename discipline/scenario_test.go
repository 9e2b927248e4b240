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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pps-clientd/ppsd/pps"
)

// simEdgeSource adapts a pps.Driver to EdgeSource, the same seam
// ppsd.edgeSource cuts in the daemon: pps.ErrTimeout becomes
// ErrEdgeTimeout, everything else passes through.
type simEdgeSource struct{ driver pps.Driver }

func (e simEdgeSource) AwaitEdge() (int, error) {
	usec, err := e.driver.AwaitEdge()
	if err == pps.ErrTimeout {
		return 0, ErrEdgeTimeout
	}
	return usec, err
}

// noSleepClock lets scenario tests run Step() thousands of times
// without waiting on the Loop Pacer or the Calibrator's spin delay.
type noSleepClock struct{ t time.Time }

func (c *noSleepClock) Now() time.Time    { return c.t }
func (c *noSleepClock) Sleep(time.Duration) {}

// feedbackAdjuster wraps fakeAdjuster so S1's scenario can model a
// real clock actually being slewed: every applied offset nudges the
// driver's scripted edge by that same amount, the way an applied
// AdjustOffset call would shift where the next PPS edge falls
// relative to the (now-moved) host clock's second boundary.
type feedbackAdjuster struct {
	*fakeAdjuster
	driver    *pps.Simulated
	driftUsec float64
}

func (f *feedbackAdjuster) AdjustOffset(usec int) error {
	f.driftUsec += float64(usec)
	f.driver.ConstantEdge(int(f.driftUsec + 0.5))
	return f.fakeAdjuster.AdjustOffset(usec)
}

// TestScenarioS1ColdStartLargeOffset is S1: a synthetic edge source
// starting 300µs off with system_delay=6 converges to Locked
// (hard_limit==1) with avg_correction within ±1µs of 0, and acquires
// (is_acquiring latches) no earlier than seq_num 60.
func TestScenarioS1ColdStartLargeOffset(t *testing.T) {
	c := NewController()
	driver := pps.NewSimulated()
	driver.ConstantEdge(300)
	adj := &feedbackAdjuster{fakeAdjuster: &fakeAdjuster{}, driver: driver, driftUsec: 300}
	clk := &noSleepClock{}

	it := Iteration{
		Edges:     simEdgeSource{driver: driver},
		Adjuster:  adj,
		Consensus: &ConsensusClock{},
		Clock:     clk,
	}

	var last SecondResult
	acquiredAt := int64(-1)
	for i := 0; i < 20*SecsPerMinute; i++ {
		res, err := c.Step(it)
		require.NoError(t, err)
		require.False(t, res.EdgeLost)
		if acquiredAt < 0 && res.State != StateStartup {
			acquiredAt = res.SeqNum
		}
		last = res
	}

	require.GreaterOrEqual(t, acquiredAt, int64(activeCountAcquireThreshold),
		"acquisition must not latch before seq_num reaches the threshold")
	require.Equal(t, StateLocked, last.State)
	require.Equal(t, HardLimit1, last.HardLimit)
	require.InDelta(t, 0, last.AvgCorrection, 1.0)
}

// TestScenarioS4RestartOnDivergence is S4: once acquiring, a forced
// large avgSlew with hard_limit driven past HardLimit1024 triggers a
// full restart on the next Step — is_acquiring drops, hard_limit
// returns to HardLimitNone, and seq_num keeps incrementing rather than
// resetting to zero.
func TestScenarioS4RestartOnDivergence(t *testing.T) {
	c := NewController()
	c.isAcquiring = true
	c.seqNum = 1000
	c.activeCount = 1000
	c.hardLimit = 2048
	c.avgSlew = 100
	c.invProportionalGain = InvGain1

	driver := pps.NewSimulated()
	driver.ConstantEdge(0)
	adj := &fakeAdjuster{}
	clk := &noSleepClock{}

	it := Iteration{
		Edges:     simEdgeSource{driver: driver},
		Adjuster:  adj,
		Consensus: &ConsensusClock{},
		Clock:     clk,
	}

	res, err := c.Step(it)
	require.NoError(t, err)
	require.True(t, res.Restarted)
	require.False(t, c.isAcquiring)
	require.Equal(t, HardLimitNone, c.hardLimit)
	require.Equal(t, int64(1001), c.seqNum, "seq_num must keep incrementing across a restart")
	require.Contains(t, adj.freqCalls, 0.0, "a restart must zero the frequency offset via the clock adjuster")
}

// TestScenarioS5WholeSecondJump is S5: a pending consensus_time_error
// of 1 produces exactly one StepSeconds(1) call before that second's
// normal offset processing, and is cleared afterward.
func TestScenarioS5WholeSecondJump(t *testing.T) {
	c := NewController()
	driver := pps.NewSimulated()
	driver.ConstantEdge(0)
	adj := &fakeAdjuster{}
	consensus := &ConsensusClock{}
	consensus.Report(1)
	clk := &noSleepClock{}

	it := Iteration{
		Edges:     simEdgeSource{driver: driver},
		Adjuster:  adj,
		Consensus: consensus,
		Clock:     clk,
	}

	_, err := c.Step(it)
	require.NoError(t, err)
	require.Equal(t, []int{1}, adj.stepCalls)
	require.Zero(t, consensus.take(), "the consensus flag must be cleared after being applied")

	_, err = c.Step(it)
	require.NoError(t, err)
	require.Equal(t, []int{1}, adj.stepCalls, "no further whole-second jump without a fresh report")
}

// TestScenarioS6CalibrationConvergence is S6: with loopback
// intrpt_delay held at 20µs and system_delay initialized to 6, the
// resulting intrpt_error (14) exceeds noise_level (4) from the very
// first call, so the one-sided spike filter suppresses the snap for
// MaxSpikes consecutive calls before giving up and letting it through;
// only then does delay_median snap straight to 20, after which
// system_delay tracks 20 and noise_level tracks round(20*0.354)+1==8.
func TestScenarioS6CalibrationConvergence(t *testing.T) {
	c := NewController()
	c.hardLimit = HardLimit4
	require.Equal(t, InterruptLatencyDefault, c.systemDelay)

	driver := pps.NewSimulated()
	driver.SetLoopback(0, 20)

	for i := 0; i < MaxSpikes; i++ {
		res, err := c.calibrate(driver, nil)
		require.NoError(t, err)
		require.True(t, res.Skipped, "call %d must still be suppressed as a delay spike", i+1)
		require.False(t, c.delayMedianSnapped)
	}

	res, err := c.calibrate(driver, nil)
	require.NoError(t, err)
	require.False(t, res.Skipped, "the spike filter gives up after MaxSpikes consecutive calls")
	require.Equal(t, 20, c.systemDelay)
	require.Equal(t, float64(20), c.delayMedian)
	require.True(t, c.delayMedianSnapped)
	require.Equal(t, 8, c.noiseLevel)

	// A further calibration at the same delay leaves system_delay at
	// its converged value; the snap only ever fires once.
	_, err = c.calibrate(driver, nil)
	require.NoError(t, err)
	require.Equal(t, 20, c.systemDelay)
}
