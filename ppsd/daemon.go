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

// Package ppsd wires the discipline engine, capture driver and clock
// adjuster together into a runnable daemon, plus the ambient stack
// (config, logging, stats, status files) surrounding it.
package ppsd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/pps-clientd/ppsd/clock"
	"github.com/pps-clientd/ppsd/discipline"
	"github.com/pps-clientd/ppsd/pps"
)

// Default persisted-state paths, matching the source's compiled-in
// constants (installer/pps-files.cpp).
const (
	DefaultStatusFile    = "/run/shm/pps-assert"
	DefaultTimestampFile = "/run/shm/display-params"
	DefaultSysDelayFile  = "/run/shm/pps-sysDelay"
	DefaultLogFile       = "/var/log/pps-client.log"
	DefaultPIDFile       = "/var/run/pps-client.pid"

	logRotateBytes = 100 * 1024

	// consecutiveLossWarning and consecutiveLossExit are the §4.1/§7
	// edge-loss thresholds: a warning at 15 straight losses, and (if
	// ExitLostPPS is set) an orderly exit at one hour's worth (3600).
	consecutiveLossWarning = 15
	consecutiveLossExit    = 3600

	clockIDRealtime = int32(unix.CLOCK_REALTIME)
)

// Daemon is the assembled pps-clientd process: the discipline
// Controller plus every goroutine driving it and its auxiliaries.
type Daemon struct {
	cfg    *Config
	driver pps.Driver
	adj    *clock.Adjuster

	controller *discipline.Controller
	consensus  *discipline.ConsensusClock

	stats  *JSONStats
	logger Logger
	status *StatusWriter
	ts     *TimestampWriter
	sysDly *SysDelayWriter

	consecutiveLoss int
}

// New assembles a Daemon from an already-loaded Config. The capture
// driver is opened eagerly so a bad/missing device fails startup
// immediately, matching the source's behavior of exiting if the char
// device cannot be opened.
func New(cfg *Config, stats *JSONStats, logger Logger) (*Daemon, error) {
	dev, err := pps.OpenCharDevice(pps.DefaultCharDevicePath)
	if err != nil {
		return nil, fmt.Errorf("ppsd: open capture driver: %w", err)
	}
	return &Daemon{
		cfg:        cfg,
		driver:     dev,
		adj:        clock.NewAdjuster(clockIDRealtime),
		controller: discipline.NewController(),
		consensus:  &discipline.ConsensusClock{},
		stats:      stats,
		logger:     logger,
		status:     NewStatusWriter(DefaultStatusFile),
		ts:         NewTimestampWriter(DefaultTimestampFile),
		sysDly:     NewSysDelayWriter(DefaultSysDelayFile),
	}, nil
}

// edgeSource adapts a pps.Driver to discipline.EdgeSource, translating
// the driver's own timeout sentinel to the discipline package's —
// the two packages are deliberately independent of one another, so
// the seam that joins them lives here.
type edgeSource struct{ driver pps.Driver }

func (e edgeSource) AwaitEdge() (int, error) {
	usec, err := e.driver.AwaitEdge()
	if err == pps.ErrTimeout {
		return 0, discipline.ErrEdgeTimeout
	}
	return usec, err
}

type wallClock struct{}

func (wallClock) Now() time.Time        { return time.Now() }
func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Run locks the core loop to its OS thread, locks process memory, and
// runs the control loop plus every configured auxiliary task until ctx
// is cancelled or a fatal error occurs.
func (d *Daemon) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		log.Warnf("ppsd: mlockall failed (continuing without it): %v", err)
	}

	if err := WritePIDFile(DefaultPIDFile); err != nil {
		log.Warnf("ppsd: write pid file: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if d.cfg.SNTP {
		poller := &SNTPPoller{Servers: defaultSNTPServers, Consensus: d.consensus}
		g.Go(func() error { return poller.Run(ctx) })
	}
	if d.cfg.Serial {
		poller := NewSerialPoller(d.cfg.SerialPort, d.consensus)
		g.Go(func() error { return poller.Run(ctx) })
	}
	g.Go(func() error { return d.stats.Serve(ctx, statsListenAddr) })
	g.Go(func() error { return d.runCore(ctx) })

	return g.Wait()
}

// defaultSNTPServers is the reference server set used when sntp is
// enabled; spec.md leaves server selection to deployment, so this is
// the same small, well-known public pool the source's ntp.conf
// generator (build/pps-files.cpp's writeNtpConfFile) points at.
var defaultSNTPServers = []string{
	"0.pool.ntp.org",
	"1.pool.ntp.org",
	"2.pool.ntp.org",
	"3.pool.ntp.org",
}

const statsListenAddr = ":8080"

// runCore runs the per-second control loop, handling edge loss
// bookkeeping, config hot-reload, status publication, and signals.
func (d *Daemon) runCore(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.driver.Close()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	notifyReady := true

	it := discipline.Iteration{
		Edges:     edgeSource{driver: d.driver},
		Adjuster:  d.adj,
		Consensus: d.consensus,
		Loopback:  d.driver,
		Clock:     wallClock{},
	}

	for {
		select {
		case <-ctx.Done():
			log.Infof("ppsd: shutting down")
			return nil
		case <-hupCh:
			if err := d.reloadConfig(); err != nil {
				log.Warnf("ppsd: config reload failed, keeping previous settings: %v", err)
			}
			continue
		default:
		}

		it.Calibrate = d.cfg.Calibrate
		res, err := d.controller.Step(it)
		if err != nil {
			return fmt.Errorf("ppsd: control loop step: %w", err)
		}

		if res.EdgeLost {
			d.consecutiveLoss++
			d.stats.UpdateCounterBy(CounterEdgesLost, 1)
			if d.consecutiveLoss == consecutiveLossWarning {
				log.Warnf("ppsd: %d consecutive lost PPS interrupts", d.consecutiveLoss)
			}
			if d.consecutiveLoss >= consecutiveLossExit && d.cfg.ExitLostPPS {
				return fmt.Errorf("ppsd: %d consecutive lost PPS interrupts, exiting", d.consecutiveLoss)
			}
			continue
		}
		d.consecutiveLoss = 0

		if res.IsSpike {
			d.stats.UpdateCounterBy(CounterSpikesSuppressed, 1)
		}
		if res.Restarted {
			d.stats.UpdateCounterBy(CounterRestarts, 1)
			if err := d.reloadConfig(); err != nil {
				log.Warnf("ppsd: config reload failed, keeping previous settings: %v", err)
			}
		}
		if res.FreqSubmitted {
			d.stats.UpdateCounterBy(CounterFreqSubmissions, 1)
		}
		if d.cfg.Calibrate && res.CalibrationError == nil && res.HardLimit == discipline.HardLimit1 {
			d.stats.UpdateCounterBy(CounterCalibrations, 1)
		}

		now := time.Now()
		if err := d.status.Write(now, res); err != nil {
			log.Warnf("ppsd: write status file: %v", err)
		}
		if err := d.ts.Write(now, res.SeqNum); err != nil {
			log.Warnf("ppsd: write timestamp file: %v", err)
		}
		if err := d.sysDly.Write(res.SystemDelay, res.SeqNum); err != nil {
			log.Warnf("ppsd: write sysdelay file: %v", err)
		}
		if err := d.logger.Log(&LogSample{
			Timestamp:      now,
			SeqNum:         res.SeqNum,
			RawError:       res.RawError,
			ZeroError:      res.ZeroError,
			TimeCorrection: res.TimeCorrection,
			AvgCorrection:  res.AvgCorrection,
			FreqOffsetPPM:  res.FreqOffsetPPM,
			HardLimit:      res.HardLimit,
			SystemDelay:    res.SystemDelay,
			State:          res.State.String(),
		}); err != nil {
			log.Warnf("ppsd: write sample log: %v", err)
		}

		if d.anyDistribEnabled() && res.SeqNum%dumpIntervalSeconds == 0 {
			snapshot := DumpSnapshot{
				RawErrorHistogram: d.controller.Histogram(),
				Offsets:           d.controller.Records().Offsets(),
				Frequency:         d.controller.Records().Frequency(),
			}
			if err := WriteDumpFile(DefaultDumpFile, snapshot); err != nil {
				log.Warnf("ppsd: write dump file: %v", err)
			}
		}

		if notifyReady && res.State == discipline.StateLocked {
			sdNotify(daemon.SdNotifyReady)
			notifyReady = false
		}
		sdNotify(daemon.SdNotifyWatchdog)
	}
}

// anyDistribEnabled reports whether any of the four distribution
// config flags request the dump file to be kept current.
func (d *Daemon) anyDistribEnabled() bool {
	return d.cfg.ErrorDistrib || d.cfg.JitterDistrib || d.cfg.InterruptDistrib || d.cfg.SysdelayDistrib
}

func (d *Daemon) reloadConfig() error {
	next, changed, err := d.cfg.ReloadIfChanged()
	if err != nil {
		return err
	}
	if changed {
		d.cfg = next
		log.Infof("ppsd: configuration reloaded")
	}
	return nil
}

// sdNotify best-effort notifies systemd; absence of a notify socket
// (not running under systemd) is not an error.
func sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debugf("ppsd: sd_notify failed: %v", err)
	}
}
