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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pps-clientd/ppsd/ppsd"
)

var statusFollowFlag bool

func init() {
	RootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusFollowFlag, "follow", "f", false, "keep printing the status line as it updates, like tail -f")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print the daemon's current status line",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	ConfigureVerbosity()

	print := func() error {
		data, err := os.ReadFile(ppsd.DefaultStatusFile)
		if err != nil {
			return fmt.Errorf("reading status file: %w", err)
		}
		fmt.Print(string(data))
		return nil
	}

	if !statusFollowFlag {
		return print()
	}

	var last string
	for {
		data, err := os.ReadFile(ppsd.DefaultStatusFile)
		if err != nil {
			return fmt.Errorf("reading status file: %w", err)
		}
		if string(data) != last {
			fmt.Print(string(data))
			last = string(data)
		}
		time.Sleep(time.Second)
	}
}
