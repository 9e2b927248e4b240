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
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pps-clientd/ppsd/discipline"
	"github.com/pps-clientd/ppsd/ntp/protocol"
)

// sntpPollInterval is "~once per ~17 minutes" (§4.10).
const sntpPollInterval = 17 * time.Minute

// sntpQueryTimeout bounds a single server round trip (§5: "~1 s").
const sntpQueryTimeout = time.Second

// SNTPPoller queries up to four SNTP servers periodically and reports
// the mode of their rounded integer-second offsets to a
// ConsensusClock (§4.10).
type SNTPPoller struct {
	Servers   []string
	Consensus *discipline.ConsensusClock
}

// Run polls until ctx is cancelled. Grounded on ntpcheck/cmd's
// ntpDate round trip, reduced to "how many whole seconds off are we".
func (p *SNTPPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(sntpPollInterval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *SNTPPoller) pollOnce(ctx context.Context) {
	var offsets []int
	for _, addr := range p.Servers {
		offset, err := sntpOffsetSeconds(ctx, addr)
		if err != nil {
			log.Warnf("ppsd: sntp query to %s failed: %v", addr, err)
			continue
		}
		offsets = append(offsets, offset)
	}
	if len(offsets) == 0 {
		return
	}
	mode := modeOf(offsets)
	if mode != 0 {
		p.Consensus.Report(mode)
	}
}

// sntpOffsetSeconds sends a single NTPv3 client request and rounds the
// resulting offset to the nearest whole second; the core only needs a
// whole-second reference (§4.10), not sub-second precision.
func sntpOffsetSeconds(ctx context.Context, addr string) (int, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(addr, "123"))
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(sntpQueryTimeout)); err != nil {
		return 0, err
	}

	clientTransmit := time.Now()
	sec, frac := protocol.Time(clientTransmit)
	req := &protocol.Packet{Settings: 0x1B, TxTimeSec: sec, TxTimeFrac: frac}
	if err := binary.Write(conn, binary.BigEndian, req); err != nil {
		return 0, fmt.Errorf("send request to %s: %w", addr, err)
	}

	var resp protocol.Packet
	if err := binary.Read(conn, binary.BigEndian, &resp); err != nil {
		return 0, fmt.Errorf("read response from %s: %w", addr, err)
	}
	clientReceive := time.Now()

	serverReceive := protocol.Unix(resp.RxTimeSec, resp.RxTimeFrac)
	serverTransmit := protocol.Unix(resp.TxTimeSec, resp.TxTimeFrac)
	avgDelay := protocol.AvgNetworkDelay(clientTransmit, serverReceive, serverTransmit, clientReceive)
	serverNow := protocol.CurrentRealTime(serverTransmit, avgDelay)

	offset := serverNow.Sub(clientReceive)
	return int(offset.Round(time.Second).Seconds()), nil
}

// modeOf returns the most frequent value in vs, breaking ties toward
// the smallest magnitude.
func modeOf(vs []int) int {
	counts := make(map[int]int, len(vs))
	for _, v := range vs {
		counts[v]++
	}
	best := vs[0]
	bestCount := 0
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ai, aj := abs(keys[i]), abs(keys[j])
		if ai != aj {
			return ai < aj
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
