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

	"github.com/go-ini/ini"
)

// Config is the recognized key set of §6's flat key=value file
// (lines starting with # ignored, bare-boolean keys allowed).
type Config struct {
	ErrorDistrib    bool
	JitterDistrib   bool
	InterruptDistrib bool
	SysdelayDistrib bool
	AlertPPSLost    bool
	ExitLostPPS     bool
	Calibrate       bool
	SNTP            bool
	Serial          bool
	SerialPort      string
	PPSGPIO         int
	OutputGPIO      int
	IntrptGPIO      int

	path    string
	modTime int64
}

// defaultConfig matches the source's compiled-in defaults: every
// distribution/diagnostic feature off, calibration on.
func defaultConfig() Config {
	return Config{
		Calibrate:  true,
		SerialPort: "/dev/ttyUSB0",
	}
}

// LoadConfig reads path with go-ini, tolerating bare-boolean keys
// (§6). A missing or malformed file on the very first read is fatal to
// startup; callers performing a later re-read (triggered by an mtime
// change) should keep the previous Config on error instead of calling
// this on the hot path — see ReloadIfChanged.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.path = path

	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("ppsd: load config %s: %w", path, err)
	}
	sec := f.Section("")

	cfg.ErrorDistrib = sec.HasKey("error-distrib")
	cfg.JitterDistrib = sec.HasKey("jitter-distrib")
	cfg.InterruptDistrib = sec.HasKey("interrupt-distrib")
	cfg.SysdelayDistrib = sec.HasKey("sysdelay-distrib")
	cfg.AlertPPSLost = sec.HasKey("alert-pps-lost")
	cfg.ExitLostPPS = sec.HasKey("exit-lost-pps")
	cfg.SNTP = sec.HasKey("sntp")
	cfg.Serial = sec.HasKey("serial")

	if sec.HasKey("calibrate") {
		cfg.Calibrate = sec.Key("calibrate").MustBool(true)
	}
	if sec.HasKey("serialPort") {
		cfg.SerialPort = sec.Key("serialPort").String()
	}
	cfg.PPSGPIO = sec.Key("pps-gpio").MustInt(0)
	cfg.OutputGPIO = sec.Key("output-gpio").MustInt(0)
	cfg.IntrptGPIO = sec.Key("intrpt-gpio").MustInt(0)

	if fi, statErr := os.Stat(path); statErr == nil {
		cfg.modTime = fi.ModTime().UnixNano()
	}
	return &cfg, nil
}

// ReloadIfChanged re-reads the config file only if its mtime has
// advanced since the last successful load (§7: "subsequent reads
// triggered by mtime change; leave previous settings intact on parse
// failure and log a warning"). Returns the same Config unchanged if
// nothing needs reloading.
func (c *Config) ReloadIfChanged() (*Config, bool, error) {
	fi, err := os.Stat(c.path)
	if err != nil {
		return c, false, fmt.Errorf("ppsd: stat config %s: %w", c.path, err)
	}
	if fi.ModTime().UnixNano() == c.modTime {
		return c, false, nil
	}
	next, err := LoadConfig(c.path)
	if err != nil {
		return c, false, err
	}
	return next, true, nil
}
