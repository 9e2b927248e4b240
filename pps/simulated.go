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

package pps

import "sync"

// Simulated is an in-memory Driver for tests and the end-to-end
// scenarios of spec §8: edges and loopback timestamps are scripted by
// the caller rather than read from hardware.
type Simulated struct {
	mu sync.Mutex

	// constantMode, when set, makes every AwaitEdge call return the
	// same captured microsecond value (pre-normalization) rather than
	// consuming the scripted queue (matching S1's "fractional µs is
	// constant 300" setup).
	constantMode bool
	constantUsec int

	edges   []int
	edgeErr []error
	edgeIdx int

	loopbackWrite     int
	loopbackRecognize int
	loopbackErr       error

	steps []int
}

// NewSimulated returns a Simulated driver with no scripted edges;
// callers populate it with ConstantEdge/PushEdge before use.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// ConstantEdge scripts every subsequent AwaitEdge call to return the
// same captured microsecond value (pre-normalization), matching S1's
// "fractional µs is constant 300" setup.
func (s *Simulated) ConstantEdge(capturedUsec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constantMode = true
	s.constantUsec = capturedUsec
}

// PushEdge appends one scripted edge to the queue consumed by AwaitEdge.
func (s *Simulated) PushEdge(capturedUsec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, capturedUsec)
	s.edgeErr = append(s.edgeErr, nil)
}

// PushEdgeErr appends a scripted failure (e.g. ErrTimeout) consumed by
// the next AwaitEdge call.
func (s *Simulated) PushEdgeErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, 0)
	s.edgeErr = append(s.edgeErr, err)
}

// SetLoopback scripts the write/recognize timestamps every subsequent
// Loopback call returns.
func (s *Simulated) SetLoopback(tWriteUsec, tRecognizeUsec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopbackWrite = tWriteUsec
	s.loopbackRecognize = tRecognizeUsec
}

// Steps returns every whole-second offset applied via StepSeconds, in
// call order.
func (s *Simulated) Steps() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s *Simulated) AwaitEdge() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.constantMode {
		return normalizeFractionalUsec(s.constantUsec), nil
	}

	if s.edgeIdx >= len(s.edges) {
		return 0, ErrTimeout
	}
	idx := s.edgeIdx
	s.edgeIdx++
	if err := s.edgeErr[idx]; err != nil {
		return 0, err
	}
	return normalizeFractionalUsec(s.edges[idx]), nil
}

func (s *Simulated) Loopback() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopbackErr != nil {
		return 0, 0, s.loopbackErr
	}
	return s.loopbackWrite, s.loopbackRecognize, nil
}

func (s *Simulated) StepSeconds(seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, seconds)
	return nil
}

func (s *Simulated) Close() error { return nil }
