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
	"encoding/json"
	"fmt"
	"os"

	"github.com/pps-clientd/ppsd/discipline"
)

// DefaultDumpFile is where DumpSnapshot is periodically persisted, the
// ambient replacement for the source's `/var/local/*-distrib*` files:
// one JSON document instead of four separate flat files, since the
// `dump` CLI subcommand is this daemon's only reader.
const DefaultDumpFile = "/var/local/pps-client-dump.json"

// dumpIntervalSeconds is how often, in seconds of seq_num, the running
// daemon refreshes the dump file; the underlying buffers only change once a second (offsets) or
// once a minute (histogram decay, frequency summaries), so refreshing
// more often than this buys nothing.
const dumpIntervalSeconds = 60

// DumpSnapshot is the offline-diagnostic state rendered by the `dump`
// CLI subcommand (§3, §6).
type DumpSnapshot struct {
	RawErrorHistogram [discipline.ErrorDistribLen]float64 `json:"raw_error_histogram"`
	Offsets           discipline.OffsetSnapshot           `json:"offsets"`
	Frequency         discipline.FrequencySnapshot        `json:"frequency"`
}

// WriteDumpFile truncate-writes snapshot as JSON to path.
func WriteDumpFile(path string, snapshot DumpSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("ppsd: marshal dump snapshot: %w", err)
	}
	return writeTruncated(path, data)
}

// ReadDumpFile reads and parses a DumpSnapshot previously written by
// WriteDumpFile.
func ReadDumpFile(path string) (*DumpSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ppsd: read dump file %s: %w", path, err)
	}
	var snapshot DumpSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("ppsd: parse dump file %s: %w", path, err)
	}
	return &snapshot, nil
}
