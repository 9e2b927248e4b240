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

package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pps-clientd/ppsd/ppsd"
)

var dumpOutFlag string

func init() {
	RootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVarP(&dumpOutFlag, "file", "f", "", "write CSV to this path instead of printing a table")
}

var dumpCmd = &cobra.Command{
	Use:       "dump <rawError|intrptError|frequency-vars|pps-offsets>",
	Short:     "render one of the offline diagnostic record buffers",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"rawError", "intrptError", "frequency-vars", "pps-offsets"},
	RunE:      runDump,
}

func runDump(_ *cobra.Command, args []string) error {
	ConfigureVerbosity()

	snapshot, err := ppsd.ReadDumpFile(ppsd.DefaultDumpFile)
	if err != nil {
		return fmt.Errorf("reading dump file (is a distribution flag enabled in the config?): %w", err)
	}

	header, rows := dumpRows(snapshot, args[0])

	if dumpOutFlag != "" {
		return writeDumpCSV(dumpOutFlag, header, rows)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(20)
	table.SetHeader(header)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return nil
}

func dumpRows(snapshot *ppsd.DumpSnapshot, label string) ([]string, [][]string) {
	switch label {
	case "rawError", "intrptError":
		header := []string{"bin", "count"}
		rows := make([][]string, 0, len(snapshot.RawErrorHistogram))
		for bin, count := range snapshot.RawErrorHistogram {
			rows = append(rows, []string{strconv.Itoa(bin), strconv.FormatFloat(count, 'f', 2, 64)})
		}
		return header, rows
	case "frequency-vars":
		header := []string{"timestamp", "freq_offset_ppm", "allan_dev_ppm"}
		freq := snapshot.Frequency
		rows := make([][]string, 0, len(freq.Timestamp))
		for i := range freq.Timestamp {
			rows = append(rows, []string{
				strconv.FormatInt(freq.Timestamp[i], 10),
				strconv.FormatFloat(freq.FreqOffsetPPM[i], 'f', 6, 64),
				strconv.FormatFloat(freq.AllanDevPPM[i], 'f', 6, 64),
			})
		}
		return header, rows
	default: // "pps-offsets"
		header := []string{"seq_num", "offset_usec", "freq_offset_ppm"}
		off := snapshot.Offsets
		rows := make([][]string, 0, len(off.SeqNum))
		for i := range off.SeqNum {
			rows = append(rows, []string{
				strconv.FormatInt(off.SeqNum[i], 10),
				strconv.Itoa(off.Offset[i]),
				strconv.FormatFloat(off.FreqOffsetPPM[i], 'f', 6, 64),
			})
		}
		return header, rows
	}
}

func writeDumpCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
