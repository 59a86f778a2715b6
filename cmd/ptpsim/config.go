/*
Copyright (c) The ptpcore Authors.

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

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/ptpengine/ptpcore/wire"
)

// Config specifies ptpsim's run options: a synthetic master feeding a
// single simulated ordinary-clock port, so the core engine's state
// machine, BMCA bookkeeping, and sync qualification can be observed
// without real network I/O.
//
// Grounded on facebook/time's ptp/sptp/client/config.go: the
// Default/Validate/ReadConfig trio and the yaml.v2 struct-tag
// convention are carried over verbatim; the fields themselves describe
// this package's synthetic master instead of a real unicast session.
type Config struct {
	ClockIdentityHex  string        `yaml:"clock_identity"`
	Domain            uint8         `yaml:"domain"`
	SyncIntervalMs    int           `yaml:"sync_interval_ms"`
	MonitoringPort    int           `yaml:"monitoring_port"`
	SimulatedOffset   time.Duration `yaml:"simulated_offset"`
	SimulatedJitter   time.Duration `yaml:"simulated_jitter"`
	SimulatedDelay    time.Duration `yaml:"simulated_delay"`
	LogLevel          string        `yaml:"log_level"`
}

// DefaultConfig returns the values ptpsim runs with absent a config
// file or CLI override: a clean 200us offset with 20us of jitter on a
// 1ms simulated path delay, sampled once a second.
func DefaultConfig() *Config {
	return &Config{
		ClockIdentityHex: "001122fffe334455",
		Domain:           0,
		SyncIntervalMs:   1000,
		MonitoringPort:   9110,
		SimulatedOffset:  200 * time.Microsecond,
		SimulatedJitter:  20 * time.Microsecond,
		SimulatedDelay:   time.Millisecond,
		LogLevel:         "info",
	}
}

// Validate reports a plain error (not errkind: this is CLI input, not
// a core-engine operation) for a nonsensical config, the same
// ambient-layer distinction facebook/time's own Config.Validate draws
// between CLI/config errors and the wire-level errors its protocol
// package returns.
func (c *Config) Validate() error {
	if c.SyncIntervalMs <= 0 {
		return fmt.Errorf("sync_interval_ms must be greater than zero")
	}
	if c.MonitoringPort < 0 {
		return fmt.Errorf("monitoring_port must be 0 or positive")
	}
	if c.SimulatedDelay < 0 {
		return fmt.Errorf("simulated_delay must be 0 or positive")
	}
	if c.SimulatedJitter < 0 {
		return fmt.Errorf("simulated_jitter must be 0 or positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return fmt.Errorf("unrecognized log_level: %v", c.LogLevel)
	}
	if _, err := c.clockIdentity(); err != nil {
		return fmt.Errorf("invalid clock_identity: %w", err)
	}
	return nil
}

func (c *Config) clockIdentity() (wire.ClockIdentity, error) {
	v, err := strconv.ParseUint(c.ClockIdentityHex, 16, 64)
	if err != nil {
		return 0, err
	}
	return wire.ClockIdentity(v), nil
}

// ReadConfig loads defaults, then overlays path's YAML contents.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
