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
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	log "github.com/sirupsen/logrus"

	"github.com/pps-clientd/ppsd/discipline"
)

// serialBaudRate matches the GPS receivers this poller was written
// against (NMEA 0183 over a USB-serial adapter).
const serialBaudRate = 4800

// SerialPoller reads GPRMC sentences off a GPS receiver and reports
// the whole-second discrepancy against the system clock to a
// ConsensusClock, re-checking with a second sentence before
// committing (§4.10).
type SerialPoller struct {
	Port      string
	Consensus *discipline.ConsensusClock

	open func(port string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialPoller returns a SerialPoller reading from port.
func NewSerialPoller(port string, consensus *discipline.ConsensusClock) *SerialPoller {
	return &SerialPoller{Port: port, Consensus: consensus, open: serial.Open}
}

// Run reads sentences until ctx is cancelled, reporting a whole-second
// offset to Consensus only once the same nonzero discrepancy is
// observed on two consecutive GPRMC fixes.
func (p *SerialPoller) Run(ctx context.Context) error {
	opener := p.open
	if opener == nil {
		opener = serial.Open
	}
	port, err := opener(p.Port, &serial.Mode{BaudRate: serialBaudRate})
	if err != nil {
		return fmt.Errorf("ppsd: open serial port %s: %w", p.Port, err)
	}
	defer port.Close()

	scanner := bufio.NewScanner(bufio.NewReader(port))
	var pending int
	var havePending bool

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Text()
		offset, ok, err := gprmcOffsetSeconds(line, time.Now())
		if err != nil {
			log.Warnf("ppsd: serial GPRMC parse failed: %v", err)
			continue
		}
		if !ok {
			continue
		}
		if offset == 0 {
			havePending = false
			continue
		}

		if havePending && pending == offset {
			p.Consensus.Report(offset)
			havePending = false
			continue
		}
		pending = offset
		havePending = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ppsd: read serial port %s: %w", p.Port, err)
	}
	return nil
}

// gprmcOffsetSeconds parses a single NMEA line, returning the rounded
// whole-second difference between the sentence's UTC fix time and
// now. ok is false for any sentence other than $GPRMC/$GNRMC, or for a
// fix without an active ("A") status.
func gprmcOffsetSeconds(line string, now time.Time) (int, bool, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "$GPRMC") && !strings.HasPrefix(line, "$GNRMC") {
		return 0, false, nil
	}
	fields := strings.Split(line, ",")
	if len(fields) < 10 {
		return 0, false, fmt.Errorf("short GPRMC sentence: %q", line)
	}
	if fields[2] != "A" {
		return 0, false, nil
	}

	fixTime, err := parseNMEATime(fields[1])
	if err != nil {
		return 0, false, fmt.Errorf("GPRMC time field: %w", err)
	}
	fixDate, err := parseNMEADate(fields[9])
	if err != nil {
		return 0, false, fmt.Errorf("GPRMC date field: %w", err)
	}

	fix := time.Date(fixDate.Year(), fixDate.Month(), fixDate.Day(),
		fixTime.hour, fixTime.min, fixTime.sec, 0, time.UTC)
	offset := now.UTC().Sub(fix)
	return int(offset.Round(time.Second).Seconds()), true, nil
}

type nmeaTime struct {
	hour, min, sec int
}

// parseNMEATime parses the hhmmss(.ss) field of a GPRMC sentence.
func parseNMEATime(field string) (nmeaTime, error) {
	if len(field) < 6 {
		return nmeaTime{}, fmt.Errorf("too short: %q", field)
	}
	hour, err := strconv.Atoi(field[0:2])
	if err != nil {
		return nmeaTime{}, err
	}
	min, err := strconv.Atoi(field[2:4])
	if err != nil {
		return nmeaTime{}, err
	}
	sec, err := strconv.Atoi(field[4:6])
	if err != nil {
		return nmeaTime{}, err
	}
	return nmeaTime{hour: hour, min: min, sec: sec}, nil
}

// parseNMEADate parses the ddmmyy field of a GPRMC sentence.
func parseNMEADate(field string) (time.Time, error) {
	if len(field) != 6 {
		return time.Time{}, fmt.Errorf("too short: %q", field)
	}
	day, err := strconv.Atoi(field[0:2])
	if err != nil {
		return time.Time{}, err
	}
	month, err := strconv.Atoi(field[2:4])
	if err != nil {
		return time.Time{}, err
	}
	yy, err := strconv.Atoi(field[4:6])
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(2000+yy, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
