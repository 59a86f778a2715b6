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

// Package coordinator implements the three tick-driven integration
// coordinators of C9 (§4.9): the BMCA coordinator, the sync
// coordinator, and the message-flow coordinator. Each glues one or
// more engine components (C5/C6/C2) to a host-driven clock without
// owning any I/O itself, the same shape facebook/time's
// ptp/sptp/client.SPTP.RunOnce tick loop and
// ptp/sptp/stats.JSONStats.Snapshot/Reset cadence use: a struct with
// Start/Stop/Reset and a periodic entry point the host calls with the
// current time.
package coordinator

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ptpengine/ptpcore/errkind"
)

// BmcaConfig controls the BMCA coordinator's execution cadence and
// oscillation detection.
type BmcaConfig struct {
	ExecutionIntervalMs   int
	OscillationWindow     time.Duration
	OscillationThreshold  int
}

// DefaultBmcaConfig returns a coordinator config running BMCA once a
// second with oscillation flagged at more than 3 decision changes in
// a 10 second trailing window.
func DefaultBmcaConfig() BmcaConfig {
	return BmcaConfig{
		ExecutionIntervalMs:  1000,
		OscillationWindow:    10 * time.Second,
		OscillationThreshold: 3,
	}
}

// Validate reports errkind.ErrInvalidParameter for a nonsensical config.
func (c BmcaConfig) Validate() error {
	if c.ExecutionIntervalMs <= 0 {
		return errkind.ErrInvalidParameter
	}
	if c.OscillationWindow <= 0 || c.OscillationThreshold < 0 {
		return errkind.ErrInvalidParameter
	}
	return nil
}

// BmcaOutcome is what one BMCA execution reports back to the
// coordinator, supplied by the caller's BmcaExecutor (the coordinator
// itself holds no port or foreign-master state; that lives in bmca/
// and boundary/).
type BmcaOutcome struct {
	RoleChanged      bool
	ParentChanged    bool
	Oscillating      bool
	NoForeignMasters bool
}

// BmcaExecutor runs one BMCA pass (prune, compare, decide, apply) at
// now and reports what changed. Implemented by whatever wires bmca.Decide
// and boundary.Router.ApplyBmcaDecision together for a concrete clock.
type BmcaExecutor func(now time.Time) (BmcaOutcome, error)

// BmcaStats are the counters §4.9 names for the BMCA coordinator.
type BmcaStats struct {
	TotalExecutions  uint64
	RoleChanges      uint64
	ParentChanges    uint64
	OscillationCount uint64
	NoForeignMasters uint64
}

// BmcaCoordinator runs a BmcaExecutor on a fixed cadence (Tick) or on
// demand (ExecuteNow, e.g. right after an Announce is accepted) and
// accumulates BmcaStats.
type BmcaCoordinator struct {
	cfg      BmcaConfig
	running  bool
	lastRun  time.Time
	haveLast bool
	stats    BmcaStats
}

// NewBmcaCoordinator validates cfg and returns a stopped coordinator.
func NewBmcaCoordinator(cfg BmcaConfig) (*BmcaCoordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BmcaCoordinator{cfg: cfg}, nil
}

// Start marks the coordinator as running; Tick is a no-op while stopped.
func (c *BmcaCoordinator) Start() { c.running = true }

// Stop marks the coordinator as stopped.
func (c *BmcaCoordinator) Stop() { c.running = false }

// Reset clears accumulated statistics and the execution cadence timer,
// without changing the running/stopped flag.
func (c *BmcaCoordinator) Reset() {
	c.stats = BmcaStats{}
	c.haveLast = false
}

// Tick runs exec if ExecutionIntervalMs has elapsed since the last
// run and the coordinator is running.
func (c *BmcaCoordinator) Tick(now time.Time, exec BmcaExecutor) error {
	if !c.running {
		return nil
	}
	interval := time.Duration(c.cfg.ExecutionIntervalMs) * time.Millisecond
	if c.haveLast && now.Sub(c.lastRun) < interval {
		return nil
	}
	return c.run(now, exec)
}

// ExecuteNow runs exec unconditionally, regardless of cadence —
// used right after an Announce is accepted, per §4.9.
func (c *BmcaCoordinator) ExecuteNow(now time.Time, exec BmcaExecutor) error {
	return c.run(now, exec)
}

func (c *BmcaCoordinator) run(now time.Time, exec BmcaExecutor) error {
	outcome, err := exec(now)
	c.lastRun = now
	c.haveLast = true
	c.stats.TotalExecutions++
	if err != nil {
		log.Warningf("bmca coordinator: execution at %s failed: %v", now, err)
		return err
	}
	if outcome.RoleChanged {
		c.stats.RoleChanges++
	}
	if outcome.ParentChanged {
		c.stats.ParentChanges++
	}
	if outcome.Oscillating {
		c.stats.OscillationCount++
	}
	if outcome.NoForeignMasters {
		c.stats.NoForeignMasters++
	}
	return nil
}

// GetStatistics returns a copy of the accumulated counters.
func (c *BmcaCoordinator) GetStatistics() BmcaStats { return c.stats }

// HealthStatus is the closed set of coordinator health classifications.
type HealthStatus uint8

const (
	HealthSynchronized HealthStatus = iota
	HealthConverging
	HealthDegraded
	HealthCritical
)

func (h HealthStatus) String() string {
	switch h {
	case HealthSynchronized:
		return "SYNCHRONIZED"
	case HealthConverging:
		return "CONVERGING"
	case HealthDegraded:
		return "DEGRADED"
	default:
		return "CRITICAL"
	}
}

// GetHealthStatus reports HealthDegraded once a port is oscillating
// more than the configured threshold would suggest (tracked by the
// caller's BmcaExecutor via Oscillating), otherwise HealthSynchronized
// once at least one execution has completed, and HealthConverging
// before the first execution.
func (c *BmcaCoordinator) GetHealthStatus() HealthStatus {
	if c.stats.OscillationCount > 0 {
		return HealthDegraded
	}
	if c.stats.TotalExecutions == 0 {
		return HealthConverging
	}
	return HealthSynchronized
}
