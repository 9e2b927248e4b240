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

// ClockAdjuster is the clock-adjustment interface contract from spec §6:
// a one-shot offset slewed in over the next second, and a fractional
// frequency offset in ppm. Implemented outside this package (see
// clock.Adjuster) so the discipline engine never talks to the OS
// directly.
type ClockAdjuster interface {
	// AdjustOffset injects a signed offset, in microseconds, to be
	// slewed in over the next second.
	AdjustOffset(usec int) error
	// AdjustFrequency sets a fractional frequency offset, in parts
	// per million.
	AdjustFrequency(ppm float64) error
	// StepSeconds applies a whole-second jump.
	StepSeconds(seconds int) error
}

// computeTimeCorrection implements the Offset Controller's proportional
// term (§4.3): time_correction := -zero_error / inv_proportional_gain,
// using truncating integer division as the source does.
func computeTimeCorrection(zeroError, invProportionalGain int) int {
	return -zeroError / invProportionalGain
}

// applyOffset submits the single-shot offset adjustment for this second.
func (c *Controller) applyOffset(adj ClockAdjuster, timeCorrection int) error {
	if timeCorrection == 0 {
		return nil
	}
	return adj.AdjustOffset(timeCorrection)
}
