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

// getAverageCorrection folds timeCorrection into the 60-second FIFO and
// returns the resulting rolling average (§4.4 step 1). Only called for
// seconds that reach the Frequency Controller at all, i.e. acquiring
// and not a suppressed spike.
func (c *Controller) getAverageCorrection(timeCorrection int) float64 {
	sum := c.correctionFIFO.Push(timeCorrection)
	return float64(sum) / SecsPerMinute
}

// makeAverageIntegral folds avgCorrection into the running, cross-minute
// integral accumulator at the current minute phase (§4.4 step 2, see
// DESIGN.md Open Question #2 for the exact semantics this replicates).
// Only the last NumIntegrals seconds of every 60-second minute
// contribute; integral[i] itself is never reset except by a full
// controller reinitialization. avgIntegral/integralCount, which track
// the running average of integral[i] across this minute's window, are
// reset at the start of that window (phase index 0).
func (c *Controller) makeAverageIntegral(avgCorrection float64) {
	indexOffset := SecsPerMinute - NumIntegrals
	if c.correctionFifoIdx < indexOffset {
		return
	}
	i := c.correctionFifoIdx - indexOffset
	if i == 0 {
		c.avgIntegral = 0.0
		c.integralCount = 0
	}
	c.integral[i] += avgCorrection
	if c.hardLimit == HardLimit1 {
		c.avgIntegral += c.integral[i]
		c.integralCount++
	}
	if c.correctionFifoIdx == SecsPerMinute-1 && c.integralCount == NumIntegrals {
		c.avgIntegral /= NumIntegrals
	}
}

// integralIsReady advances the minute-phase counter and reports whether
// it just wrapped back to 0 (§4.4 step 3): true exactly once every 60
// seconds, on the 60th call of each window, never on the very first
// call (there is no integral to submit before a full minute has been
// accumulated).
func (c *Controller) integralIsReady() bool {
	c.correctionFifoIdx++
	if c.correctionFifoIdx >= SecsPerMinute {
		c.correctionFifoIdx = 0
		return true
	}
	return false
}

// getIntegral selects the value the Frequency Controller submits this
// minute (§4.4 step 4): the freshly normalized cross-minute average when
// a full complement of 10 locked-state samples was collected this
// window, else the lifetime accumulator at phase 9.
func (c *Controller) getIntegral() float64 {
	if c.hardLimit == HardLimit1 && c.integralCount == NumIntegrals {
		return c.avgIntegral
	}
	return c.integral[NumIntegrals-1]
}

// FrequencyResult is the outcome of one second's Frequency Controller
// pass. Submitted is false on every second that isn't a minute boundary.
type FrequencyResult struct {
	Submitted     bool
	FreqOffsetPPM float64
}

// processFrequency runs the Frequency Controller for one second (§4.4).
// The caller must only invoke this while acquiring and on a
// non-suppressed second; it pushes timeCorrection into the rolling
// average, folds it into the integral accumulator, and — once every 60
// seconds — derives and submits a new frequency offset.
func (c *Controller) processFrequency(adj ClockAdjuster, timeCorrection int) (FrequencyResult, error) {
	avgCorrection := c.getAverageCorrection(timeCorrection)
	c.lastAvgCorrection = avgCorrection

	c.makeAverageIntegral(avgCorrection)

	if !c.integralIsReady() {
		return FrequencyResult{}, nil
	}

	integral := c.getIntegral()
	freqOffset := integral * IntegralGain
	c.lastFreqOffsetPPM = freqOffset

	if err := adj.AdjustFrequency(freqOffset); err != nil {
		return FrequencyResult{}, err
	}
	return FrequencyResult{Submitted: true, FreqOffsetPPM: freqOffset}, nil
}
