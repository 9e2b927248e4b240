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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// LogSample is one second's worth of control-loop state, the unit the
// per-second sample log (§6) and the CSV logger record.
type LogSample struct {
	Timestamp      time.Time
	SeqNum         int64
	RawError       int
	ZeroError      int
	TimeCorrection int
	AvgCorrection  float64
	FreqOffsetPPM  float64
	HardLimit      int
	SystemDelay    int
	State          string
}

var header = []string{
	"timestamp", "seq_num", "raw_error", "zero_error", "time_correction",
	"avg_correction", "freq_offset_ppm", "hard_limit", "system_delay", "state",
}

// CSVRecords returns all data from this sample as CSV. Must stay in
// sync with header.
func (s *LogSample) CSVRecords() []string {
	return []string{
		s.Timestamp.Format("2006-01-02 15:04:05.000000"),
		strconv.FormatInt(s.SeqNum, 10),
		strconv.Itoa(s.RawError),
		strconv.Itoa(s.ZeroError),
		strconv.Itoa(s.TimeCorrection),
		strconv.FormatFloat(s.AvgCorrection, 'f', -1, 64),
		strconv.FormatFloat(s.FreqOffsetPPM, 'f', -1, 64),
		strconv.Itoa(s.HardLimit),
		strconv.Itoa(s.SystemDelay),
		s.State,
	}
}

// Logger is something that can store a LogSample somewhere.
type Logger interface {
	Log(*LogSample) error
}

// CSVLogger logs samples as CSV into a size-capped, rotated file
// (§6: "rotated at ~100 KiB with a single .old backup").
type CSVLogger struct {
	path          string
	maxBytes      int64
	f             *os.File
	csvwriter     *csv.Writer
	printedHeader bool
	written       int64
}

// NewCSVLogger opens (or creates) path for append and wraps it with
// rotation at maxBytes.
func NewCSVLogger(path string, maxBytes int64) (*CSVLogger, error) {
	l := &CSVLogger{path: path, maxBytes: maxBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *CSVLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ppsd: open log %s: %w", l.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("ppsd: stat log %s: %w", l.path, err)
	}
	l.f = f
	l.written = fi.Size()
	l.printedHeader = l.written > 0
	l.csvwriter = csv.NewWriter(f)
	return nil
}

func (l *CSVLogger) rotate() error {
	if err := l.f.Close(); err != nil {
		return err
	}
	oldPath := l.path + ".old"
	if err := os.Rename(l.path, oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ppsd: rotate log %s: %w", l.path, err)
	}
	l.written = 0
	l.printedHeader = false
	return l.open()
}

// Log implements Logger.
func (l *CSVLogger) Log(s *LogSample) error {
	if l.written >= l.maxBytes {
		if err := l.rotate(); err != nil {
			return err
		}
	}
	if !l.printedHeader {
		if err := l.csvwriter.Write(header); err != nil {
			return err
		}
		l.printedHeader = true
	}
	row := s.CSVRecords()
	if err := l.csvwriter.Write(row); err != nil {
		return err
	}
	l.csvwriter.Flush()
	n := 0
	for _, f := range row {
		n += len(f) + 1
	}
	l.written += int64(n)
	return l.csvwriter.Error()
}

func (l *CSVLogger) Close() error {
	l.csvwriter.Flush()
	return l.f.Close()
}

// DummyLogger discards samples except for a short human-readable line,
// used when no file logging is configured.
type DummyLogger struct {
	w io.Writer
}

func NewDummyLogger(w io.Writer) *DummyLogger {
	return &DummyLogger{w: w}
}

func (l *DummyLogger) Log(s *LogSample) error {
	_, err := fmt.Fprintf(l.w, "seq=%d zero_error=%dus clamp=%d state=%s\n", s.SeqNum, s.ZeroError, s.HardLimit, s.State)
	return err
}
