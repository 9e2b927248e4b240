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

import "time"

// InvDelaySamplesPerMin is the exponential-smoothing weight applied to
// one calibration sample's contribution to delay_median (§4.6 step 5):
// 1/60, so delay_median converges with roughly one minute's time
// constant.
const InvDelaySamplesPerMin = 1.0 / SecsPerMinute

// LoopbackDriver is the subset of the pps driver contract the
// Calibrator needs: drive the output line and report how long the
// resulting edge took to be recognized (§4.1, §4.6).
type LoopbackDriver interface {
	// Loopback asserts the output line and returns the host-clock
	// write and recognize timestamps, both in microseconds within
	// the current second.
	Loopback() (tWriteUsec, tRecognizeUsec int, err error)
}

// detectDelaySpike is the Calibrator's own spike filter (§4.6 step 4).
// It mirrors suppressSpike's hysteresis but keeps an independent
// counter and, per the source, is one-sided: only a delay that reads
// high (never low) is ever treated as a spike.
func (c *Controller) detectDelaySpike(intrptError int) bool {
	if c.hardLimit > HardLimit4 || intrptError < c.noiseLevel {
		c.calSpikeCount = 0
		return false
	}
	if c.calSpikeCount < MaxSpikes {
		c.calSpikeCount++
		return true
	}
	return false
}

// CalibrationResult is the outcome of one second's loopback calibration.
type CalibrationResult struct {
	IntrptDelay int
	SystemDelay int
	Skipped     bool
}

// calibrate runs the Calibrator for one second (§4.6). It is only
// meaningful while hard_limit == 1; the caller gates on that (and on
// whether calibration is enabled at all).
func (c *Controller) calibrate(driver LoopbackDriver, sleep func(time.Duration)) (CalibrationResult, error) {
	if sleep != nil {
		sleep(calibratorSpinDelay)
	}

	tWrite, tRecognize, err := driver.Loopback()
	if err != nil {
		return CalibrationResult{}, err
	}

	intrptDelay := tRecognize - tWrite
	intrptError := intrptDelay - c.systemDelay

	if c.detectDelaySpike(intrptError) {
		return CalibrationResult{IntrptDelay: intrptDelay, SystemDelay: c.systemDelay, Skipped: true}, nil
	}

	zeroError := clamp(intrptError, c.hardLimit)

	if c.hardLimit <= HardLimit4 && !c.delayMedianSnapped {
		c.delayMedian = float64(intrptDelay)
		c.delayMedianSnapped = true
	} else {
		c.delayMedian += float64(zeroError) * InvDelaySamplesPerMin
	}
	c.systemDelay = int(roundHalfAwayFromZero(c.delayMedian))
	c.noiseLevel = computeNoiseLevel(c.systemDelay)

	return CalibrationResult{IntrptDelay: intrptDelay, SystemDelay: c.systemDelay}, nil
}
