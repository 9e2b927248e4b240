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

import "sync/atomic"

// ConsensusClock is the single word shared between the auxiliary
// reference tasks (SNTP poller, serial poller) and the Whole-Second
// Corrector (§4.7, §4.10, §9): a signed integer-second offset, set by
// whichever poller observes a discrepancy last, consumed and cleared
// by the control loop at most once per second.
type ConsensusClock struct {
	timeError atomic.Int64
}

// Report publishes a newly observed whole-second discrepancy. Last
// write wins; see DESIGN.md Open Question #3.
func (r *ConsensusClock) Report(seconds int) {
	r.timeError.Store(int64(seconds))
}

// take atomically reads and clears the pending correction.
func (r *ConsensusClock) take() int {
	return int(r.timeError.Swap(0))
}

// applyWholeSeconds runs the Whole-Second Corrector (§4.7). It must be
// called strictly before the Offset Controller each second.
func applyWholeSeconds(adj ClockAdjuster, consensus *ConsensusClock) error {
	seconds := consensus.take()
	if seconds == 0 {
		return nil
	}
	return adj.StepSeconds(seconds)
}
