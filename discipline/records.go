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

import "math"

const (
	// secsPer10Min is the length of the per-second offset/frequency
	// record buffers (§3: offset_rec, freq_offset_rec2, seq_num_rec).
	secsPer10Min = 600
	// num5MinIntervals is the length of the per-5-minute summary
	// buffers (§3: freq_offset_rec, freq_allan_dev, timestamp_rec),
	// sized to span 24 hours.
	num5MinIntervals = 288
	// fiveMinutes is the number of seconds between successive
	// 5-minute summary samples.
	fiveMinutes = 300
	// freqDiffLen is the width of the freq_offset_diff window used
	// as the Allan-deviation input (§3: freq_offset_diff[5]).
	freqDiffLen = 5
)

// Records holds the offline-diagnostic ring buffers of §3. They are
// pure bookkeeping: nothing here feeds back into the control loop.
type Records struct {
	// per-second buffers, indexed mod secsPer10Min
	seqNumRec      [secsPer10Min]int64
	offsetRec      [secsPer10Min]int
	freqOffsetRec2 [secsPer10Min]float64
	recIndex2      int

	// per-5-minute summary buffers, indexed mod num5MinIntervals
	freqOffsetRec [num5MinIntervals]float64
	freqAllanDev  [num5MinIntervals]float64
	timestampRec  [num5MinIntervals]int64
	recIndex      int

	// 5-minute accumulation state
	freqOffsetDiff [freqDiffLen]float64
	freqOffsetSum  float64
	lastFreqOffset float64
	intervalCount  int
}

func newRecords() Records {
	return Records{}
}

// recordOffsets appends one second's applied time correction and most
// recent frequency offset, per recordOffsets() in the source.
func (r *Records) recordOffsets(seqNum int64, timeCorrection int, freqOffsetPPM float64) {
	r.seqNumRec[r.recIndex2] = seqNum
	r.offsetRec[r.recIndex2] = timeCorrection
	r.freqOffsetRec2[r.recIndex2] = freqOffsetPPM

	r.recIndex2++
	if r.recIndex2 >= secsPer10Min {
		r.recIndex2 = 0
	}
}

// recordFrequencyVars folds one minute's frequency offset into the
// 5-minute Allan-deviation window, emitting a new 5-minute summary
// sample every fiveMinutes/60 == 5 minutes' worth of calls (one call
// per minute, per getIntegral() in the source).
func (r *Records) recordFrequencyVars(freqOffsetPPM float64, nowUnix int64) {
	r.freqOffsetSum += freqOffsetPPM

	r.freqOffsetDiff[r.intervalCount] = freqOffsetPPM - r.lastFreqOffset
	r.lastFreqOffset = freqOffsetPPM
	r.intervalCount++

	if r.intervalCount*SecsPerMinute >= fiveMinutes {
		norm := 1.0 / float64(freqDiffLen)

		var diffSum float64
		for _, d := range r.freqOffsetDiff {
			diffSum += d * d
		}
		r.freqAllanDev[r.recIndex] = math.Sqrt(diffSum * norm * 0.5)
		r.timestampRec[r.recIndex] = nowUnix
		r.freqOffsetRec[r.recIndex] = r.freqOffsetSum * norm

		r.recIndex++
		if r.recIndex >= num5MinIntervals {
			r.recIndex = 0
		}

		r.intervalCount = 0
		r.freqOffsetSum = 0.0
	}
}

// OffsetSnapshot is one 10-minute window's worth of per-second offset
// records, oldest first, for the `dump` CLI surface.
type OffsetSnapshot struct {
	SeqNum        []int64
	Offset        []int
	FreqOffsetPPM []float64
}

// Offsets returns the per-second offset record buffer, unrolled in
// write order starting from the oldest live slot.
func (r *Records) Offsets() OffsetSnapshot {
	out := OffsetSnapshot{
		SeqNum:        make([]int64, secsPer10Min),
		Offset:        make([]int, secsPer10Min),
		FreqOffsetPPM: make([]float64, secsPer10Min),
	}
	for i := 0; i < secsPer10Min; i++ {
		idx := (r.recIndex2 + i) % secsPer10Min
		out.SeqNum[i] = r.seqNumRec[idx]
		out.Offset[i] = r.offsetRec[idx]
		out.FreqOffsetPPM[i] = r.freqOffsetRec2[idx]
	}
	return out
}

// FrequencySnapshot is one 24-hour window's worth of per-5-minute
// frequency summary records, oldest first.
type FrequencySnapshot struct {
	Timestamp     []int64
	FreqOffsetPPM []float64
	AllanDevPPM   []float64
}

// Frequency returns the per-5-minute frequency record buffer, unrolled
// in write order starting from the oldest live slot.
func (r *Records) Frequency() FrequencySnapshot {
	out := FrequencySnapshot{
		Timestamp:     make([]int64, num5MinIntervals),
		FreqOffsetPPM: make([]float64, num5MinIntervals),
		AllanDevPPM:   make([]float64, num5MinIntervals),
	}
	for i := 0; i < num5MinIntervals; i++ {
		idx := (r.recIndex + i) % num5MinIntervals
		out.Timestamp[i] = r.timestampRec[idx]
		out.FreqOffsetPPM[i] = r.freqOffsetRec[idx]
		out.AllanDevPPM[i] = r.freqAllanDev[idx]
	}
	return out
}
