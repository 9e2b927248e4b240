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

// EdgeSource is the Edge-Reader contract (§4.1): block for up to the
// driver's internal timeout and report the host-clock time the PPS
// edge was captured, normalized to signed microseconds relative to the
// second boundary. ErrEdgeTimeout (no edge within the window) is
// distinguished from other errors because it drives the loss counter
// rather than being treated as a plain I/O failure.
type EdgeSource interface {
	AwaitEdge() (interruptTimeUsec int, err error)
}

// ErrEdgeTimeout is returned by an EdgeSource when no edge arrived
// within its internal window (§4.1: "interrupt lost").
var ErrEdgeTimeout = edgeTimeoutError{}

type edgeTimeoutError struct{}

func (edgeTimeoutError) Error() string { return "pps edge timed out" }

// Clock abstracts time.Sleep/time.Now so tests can drive the loop
// without wall-clock waits.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SecondResult summarizes one iteration for the Status/Record Emitter
// and for tests asserting the invariants of §8.
type SecondResult struct {
	SeqNum           int64
	RawError         int
	ZeroError        int
	IsSpike          bool
	TimeCorrection   int
	AvgCorrection    float64
	HardLimit        int
	State            State
	FreqSubmitted    bool
	FreqOffsetPPM    float64
	SystemDelay      int
	EdgeLost         bool
	Restarted        bool
	CalibrationError error
}

// Iteration is the shared dependency set for one pass through the
// control loop (§5's ordering guarantees): whole-second correction,
// then offset, then frequency (if due), then calibration, then
// (by the caller) status publication.
type Iteration struct {
	Edges      EdgeSource
	Adjuster   ClockAdjuster
	Consensus  *ConsensusClock
	Loopback   LoopbackDriver
	Calibrate  bool
	Clock      Clock
}

// pacerWait implements the Loop Pacer (§4.8, component 9): sleep so the
// next blocking AwaitEdge call is already pending ~150µs before the
// expected edge, absorbing wake-from-sleep and interrupt-recognition
// latency. now's fractional microsecond-of-second is used to compute
// how long is left until that point; if it has already passed this
// second, wait for next second's instead.
func pacerWait(clk Clock) {
	if clk == nil {
		return
	}
	usec := clk.Now().Nanosecond() / 1000
	wake := UsecPerSec - pacerGuardBand - usec
	if wake < 0 {
		wake += UsecPerSec
	}
	clk.Sleep(time.Duration(wake) * time.Microsecond)
}

// Step runs exactly one second's worth of the control loop. It returns
// a result with EdgeLost set and a nil error when the edge read timed
// out; the
// caller is responsible for loss-counter bookkeeping and the
// one-hour-exit policy of §4.1/§7, which lives above this package
// since it concerns process lifecycle, not control-loop math.
func (c *Controller) Step(it Iteration) (SecondResult, error) {
	if err := applyWholeSeconds(it.Adjuster, it.Consensus); err != nil {
		return SecondResult{}, err
	}

	pacerWait(it.Clock)

	interruptTime, err := it.Edges.AwaitEdge()
	if err != nil {
		if err == ErrEdgeTimeout {
			return SecondResult{EdgeLost: true}, nil
		}
		return SecondResult{}, err
	}

	c.seqNum++

	rawError := interruptTime - c.systemDelay
	noise := c.processNoise(rawError)

	res := SecondResult{
		SeqNum:    c.seqNum,
		RawError:  rawError,
		ZeroError: noise.ZeroError,
		IsSpike:   noise.IsSpike,
		HardLimit: c.hardLimit,
	}

	if noise.IsSpike {
		res.State = c.State()
		res.SystemDelay = c.systemDelay
		return res, nil
	}

	timeCorrection := computeTimeCorrection(noise.ZeroError, c.invProportionalGain)
	c.lastTimeCorrection = timeCorrection
	if err := c.applyOffset(it.Adjuster, timeCorrection); err != nil {
		return SecondResult{}, err
	}

	c.isAcquiring = c.updateAcquireState()

	if c.isAcquiring {
		freqRes, err := c.processFrequency(it.Adjuster, timeCorrection)
		if err != nil {
			return SecondResult{}, err
		}
		res.FreqSubmitted = freqRes.Submitted
		res.FreqOffsetPPM = freqRes.FreqOffsetPPM
		if freqRes.Submitted {
			c.records.recordFrequencyVars(freqRes.FreqOffsetPPM, it.Clock.Now().Unix())
		}
		c.records.recordOffsets(c.seqNum, timeCorrection, c.lastFreqOffsetPPM)
		c.activeCount++
	}

	res.TimeCorrection = timeCorrection
	res.AvgCorrection = c.lastAvgCorrection

	if it.Calibrate && c.hardLimit == HardLimit1 && it.Loopback != nil {
		sleep := time.Sleep
		if it.Clock != nil {
			sleep = it.Clock.Sleep
		}
		if _, calErr := c.calibrate(it.Loopback, sleep); calErr != nil {
			res.CalibrationError = calErr
		}
	}
	res.SystemDelay = c.systemDelay

	if c.needsRestart() {
		c.restart()
		if err := it.Adjuster.AdjustFrequency(0); err != nil {
			return SecondResult{}, err
		}
		res.Restarted = true
	}

	res.State = c.State()
	return res, nil
}
