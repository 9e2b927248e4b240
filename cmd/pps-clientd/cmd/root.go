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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pps-clientd/ppsd/ppsd"
)

// RootCmd is the main entry point; with no subcommand it starts the
// daemon. Exported so pps-clientd can be extended without touching
// core functionality, matching cmd/ptpcheck/cmd's convention.
var RootCmd = &cobra.Command{
	Use:   "pps-clientd",
	Short: "PPS pulse-per-second clock discipline daemon",
	RunE:  runDaemon,
}

var (
	rootVerboseFlag bool
	rootConfigFlag  string
	rootCSVLogFlag  string
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
	RootCmd.Flags().StringVarP(&rootConfigFlag, "config", "c", "/etc/pps-client.conf", "path to config file")
	RootCmd.Flags().StringVarP(&rootCSVLogFlag, "logfile", "l", ppsd.DefaultLogFile, "path to per-second CSV sample log")
}

// ConfigureVerbosity sets log verbosity from the parsed flags. Called
// by any subcommand that wants it, matching cmd/ptpcheck/cmd.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if rootVerboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute runs the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runDaemon(_ *cobra.Command, _ []string) error {
	ConfigureVerbosity()

	cfg, err := ppsd.LoadConfig(rootConfigFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := ppsd.NewCSVLogger(rootCSVLogFlag, 100*1024)
	if err != nil {
		return fmt.Errorf("opening sample log: %w", err)
	}
	defer logger.Close()

	stats := ppsd.NewJSONStats()

	d, err := ppsd.New(cfg, stats, logger)
	if err != nil {
		return fmt.Errorf("initializing daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	return d.Run(ctx)
}
