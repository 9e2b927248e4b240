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

package ppsd

import "sync"

// StatsServer is a stats server interface.
type StatsServer interface {
	Reset()
	SetCounter(key string, val int64)
	UpdateCounterBy(key string, count int64)
}

// Stats counters for the daemon: edge losses, spikes, restarts,
// calibration samples, and so on, keyed by name so the set can grow
// without touching the HTTP/Prometheus surface.
type Stats struct {
	mux      sync.Mutex
	counters map[string]int64
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{counters: map[string]int64{}}
}

// UpdateCounterBy increments a counter.
func (s *Stats) UpdateCounterBy(key string, count int64) {
	s.mux.Lock()
	s.counters[key] += count
	s.mux.Unlock()
}

// SetCounter sets a counter to an absolute value.
func (s *Stats) SetCounter(key string, val int64) {
	s.mux.Lock()
	s.counters[key] = val
	s.mux.Unlock()
}

// Get returns a snapshot of all counters.
func (s *Stats) Get() map[string]int64 {
	ret := make(map[string]int64)
	s.mux.Lock()
	for k, v := range s.counters {
		ret[k] = v
	}
	s.mux.Unlock()
	return ret
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.mux.Lock()
	for k := range s.counters {
		s.counters[k] = 0
	}
	s.mux.Unlock()
}

// Counter names published by the control loop.
const (
	CounterEdgesLost       = "edges_lost"
	CounterSpikesSuppressed = "spikes_suppressed"
	CounterRestarts        = "restarts"
	CounterCalibrations    = "calibrations"
	CounterFreqSubmissions = "freq_submissions"
)
