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

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// CharDevice drives the real pps-client kernel char device (§6): a
// word-oriented protocol where reads block for an edge or a loopback
// timestamp pair, and writes toggle loopback mode or inject a
// whole-second step.
type CharDevice struct {
	path string
	f    *os.File
	fd   int
}

// OpenCharDevice opens the capture driver exclusively. A second opener
// observes ErrBusy (§6), surfaced here as EBUSY from the open(2) call.
func OpenCharDevice(path string) (*CharDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, syscall.EBUSY) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("pps: open %s: %w", path, err)
	}
	return &CharDevice{path: path, f: f, fd: int(f.Fd())}, nil
}

func (d *CharDevice) Close() error {
	return d.f.Close()
}

// pollRead polls the device for readability within the capture read's
// internal 200ms timeout (§5, §6), swallowing EINTR the way
// phc.PPSSink.pollFd does.
func (d *CharDevice) pollRead() error {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(defaultEdgeTimeout.Milliseconds()))
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("pps: poll %s: %w", d.path, err)
		}
		if n == 0 {
			return ErrTimeout
		}
		if fds[0].Revents&unix.POLLERR != 0 {
			return fmt.Errorf("pps: poll %s: POLLERR", d.path)
		}
		return nil
	}
}

func (d *CharDevice) readWords(n int) ([]int32, error) {
	buf := make([]byte, 4*n)
	if _, err := d.f.Read(buf); err != nil {
		return nil, fmt.Errorf("pps: read %s: %w", d.path, err)
	}
	words := make([]int32, n)
	for i := range words {
		words[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return words, nil
}

func (d *CharDevice) writeWords(words ...int32) error {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(w))
	}
	_, err := d.f.Write(buf)
	if err != nil {
		return fmt.Errorf("pps: write %s: %w", d.path, err)
	}
	return nil
}

// AwaitEdge implements Driver.AwaitEdge: a 2-word blocking read
// returning [tv_sec, tv_usec] at the PPS edge (§6).
func (d *CharDevice) AwaitEdge() (int, error) {
	if err := d.pollRead(); err != nil {
		return 0, err
	}
	words, err := d.readWords(2)
	if err != nil {
		return 0, err
	}
	return normalizeFractionalUsec(int(words[1])), nil
}

// Loopback implements Driver.Loopback: write 1 to begin loopback
// (assert output, disable PPS-edge reads), block for the 6-word
// result, then write 0 to end loopback (§6).
func (d *CharDevice) Loopback() (tWriteUsec, tRecognizeUsec int, err error) {
	if err := d.writeWords(1); err != nil {
		return 0, 0, err
	}
	if err := d.pollRead(); err != nil {
		return 0, 0, err
	}
	words, err := d.readWords(6)
	if err != nil {
		return 0, 0, err
	}
	if err := d.writeWords(0); err != nil {
		return 0, 0, err
	}
	return int(words[3]), int(words[5]), nil
}

// StepSeconds implements Driver.StepSeconds: a 2-word write with the
// first word > 1 carrying a whole-second offset in the second word
// (§6). 3 is used as the command word, matching the driver's own
// convention for "apply whole-second correction".
func (d *CharDevice) StepSeconds(seconds int) error {
	return d.writeWords(3, int32(seconds))
}
