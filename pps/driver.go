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

// Package pps implements the capture-driver contract of spec §6: a PPS
// char device that blocks readers until an edge arrives, supports a
// loopback self-test pulse, and accepts whole-second step requests.
package pps

import (
	"errors"
	"time"
)

// ErrTimeout is returned by AwaitEdge when no edge arrives within the
// driver's internal window (§4.1, §6: "read of 2 words: blocks up to
// 200ms").
var ErrTimeout = errors.New("pps: no edge within timeout")

// ErrBusy is returned by OpenCharDevice when the device is already held open by
// another process (§6: "second opener observes busy").
var ErrBusy = errors.New("pps: device busy")

// DefaultCharDevicePath is the kernel char device the daemon opens
// when no override is given.
const DefaultCharDevicePath = "/dev/pps-client"

// defaultEdgeTimeout is the capture read's internal timeout (§5, §6).
const defaultEdgeTimeout = 200 * time.Millisecond

// Driver is the capture-driver contract consumed by the discipline
// engine: block for the next PPS edge, drive a loopback self-test
// pulse, and apply a whole-second step. Implemented by CharDevice
// (real hardware, Linux-only) and Simulated (tests, §8 scenarios).
type Driver interface {
	// AwaitEdge blocks for up to the driver's internal timeout and
	// returns the host-clock time of the captured edge, normalized to
	// signed microseconds relative to the second boundary (§4.1).
	// Returns ErrTimeout if no edge arrived in time.
	AwaitEdge() (interruptTimeUsec int, err error)

	// Loopback drives the output line and returns the write and
	// recognize timestamps of the resulting self-test pulse, in
	// microseconds within the current second (§4.6, §6).
	Loopback() (tWriteUsec, tRecognizeUsec int, err error)

	// StepSeconds injects a whole-second offset via the driver
	// (§4.7, §6: "write of two words with first > 1").
	StepSeconds(seconds int) error

	// Close releases the device.
	Close() error
}

// normalizeFractionalUsec converts a captured microsecond-of-second
// value into a signed offset relative to the nearest second boundary
// (§4.1): values past the half-second wrap negative.
func normalizeFractionalUsec(capturedUsec int) int {
	if capturedUsec <= 500_000 {
		return capturedUsec
	}
	return capturedUsec - 1_000_000
}
