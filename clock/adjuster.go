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

package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// AdjOffsetSingleshot is ADJ_OFFSET_SINGLESHOT from usr/include/linux/timex.h:
// a one-shot offset slew, rather than the continuous ADJ_OFFSET PLL input.
// adjtimex() internally caps the correction applied in any one second to
// about 500 microseconds (§6: "implementation-capped per second").
const AdjOffsetSingleshot uint32 = 0x8001

// Adjuster implements discipline.ClockAdjuster against a single
// clock ID via clock_adjtime(2). It is the only component in the
// daemon that talks to the OS clock.
type Adjuster struct {
	ClockID int32
}

// NewAdjuster returns an Adjuster bound to the given clock (normally
// unix.CLOCK_REALTIME).
func NewAdjuster(clockID int32) *Adjuster {
	return &Adjuster{ClockID: clockID}
}

// AdjustOffset injects a signed offset, in microseconds, to be slewed
// in over the next second (§6's clock-adjust contract, mode a).
func (a *Adjuster) AdjustOffset(usec int) error {
	tx := &unix.Timex{
		Modes:  AdjOffsetSingleshot,
		Offset: int64(usec),
	}
	_, err := Adjtime(a.ClockID, tx)
	return err
}

// AdjustFrequency sets a fractional frequency offset, in parts per
// million (§6's clock-adjust contract, mode b: ppm × 65536, 0 ==
// nominal).
func (a *Adjuster) AdjustFrequency(ppm float64) error {
	_, err := AdjFreqPPB(a.ClockID, ppm*1000)
	return err
}

// StepSeconds applies a whole-second jump (§4.7).
func (a *Adjuster) StepSeconds(seconds int) error {
	_, err := Step(a.ClockID, time.Duration(seconds)*time.Second)
	return err
}
