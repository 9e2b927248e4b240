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

import (
	"fmt"
	"os"
	"time"

	"github.com/pps-clientd/ppsd/discipline"
)

// StatusWriter rewrites the status file every second with a single
// line (§4.9, §6): truncate-then-write, no memory mapping or cgo — we
// don't carry the C client's shared-struct ABI contract that
// fbclock.Shm exists to serve, so plain file I/O is enough here.
type StatusWriter struct {
	path string
}

// NewStatusWriter returns a StatusWriter targeting path.
func NewStatusWriter(path string) *StatusWriter {
	return &StatusWriter{path: path}
}

// Write rewrites the status file with one line describing res.
// Format (§6): "YYYY-MM-DD HH:MM:SS.ffffff  <seq>  [*]jitter: <µs>
// freqOffset: <ppm>  avgCorrection: <µs>  clamp: <pow2>". The leading
// "*" marks a suppressed-spike second.
func (w *StatusWriter) Write(now time.Time, res discipline.SecondResult) error {
	marker := ""
	if res.IsSpike {
		marker = "*"
	}
	line := fmt.Sprintf(
		"%s  %d  %sjitter: %d  freqOffset: %f  avgCorrection: %f  clamp: %d\n",
		now.Format("2006-01-02 15:04:05.000000"), res.SeqNum, marker,
		res.RawError, res.FreqOffsetPPM, res.AvgCorrection, res.HardLimit,
	)
	return writeTruncated(w.path, []byte(line))
}

// writeTruncated rewrites path's full contents atomically enough for
// a single-writer, many-reader status file: truncate then write,
// matching §5's "truncate-then-write each second" policy.
func writeTruncated(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("ppsd: write status %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("ppsd: write status %s: %w", path, err)
	}
	return nil
}

// TimestampWriter rewrites the timestamp file each second (§6:
// "<unix_seconds_with_microseconds>#<seq>").
type TimestampWriter struct {
	path string
}

func NewTimestampWriter(path string) *TimestampWriter {
	return &TimestampWriter{path: path}
}

func (w *TimestampWriter) Write(now time.Time, seqNum int64) error {
	line := fmt.Sprintf("%d.%06d#%d", now.Unix(), now.Nanosecond()/1000, seqNum)
	return writeTruncated(w.path, []byte(line))
}

// SysDelayWriter rewrites the system-delay file each second (§6:
// "<µs>#<seq>").
type SysDelayWriter struct {
	path string
}

func NewSysDelayWriter(path string) *SysDelayWriter {
	return &SysDelayWriter{path: path}
}

func (w *SysDelayWriter) Write(systemDelayUsec int, seqNum int64) error {
	line := fmt.Sprintf("%d#%d", systemDelayUsec, seqNum)
	return writeTruncated(w.path, []byte(line))
}

// WritePIDFile writes the current process's PID to path, truncate-then-write.
func WritePIDFile(path string) error {
	return writeTruncated(path, []byte(fmt.Sprintf("%d\n", os.Getpid())))
}
