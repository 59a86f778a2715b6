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

package coordinator

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ptpengine/ptpcore/errkind"
	"github.com/ptpengine/ptpcore/syncengine"
	"github.com/ptpengine/ptpcore/wire"
)

// SyncConfig controls the sync coordinator's sampling cadence and the
// offset thresholds that classify health.
type SyncConfig struct {
	SamplingIntervalMs      int
	SynchronizedThresholdNs int64
	ConvergingThresholdNs   int64
	DegradedThresholdNs     int64
}

// DefaultSyncConfig samples once a second and classifies health on the
// same rough bands ptpcheck reports offsets in: under 1us is
// Synchronized, under 100us is Converging, under 1ms is Degraded, and
// anything beyond (or a run of rejected samples) is Critical.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		SamplingIntervalMs:      1000,
		SynchronizedThresholdNs: int64(time.Microsecond),
		ConvergingThresholdNs:   int64(100 * time.Microsecond),
		DegradedThresholdNs:     int64(time.Millisecond),
	}
}

// Validate reports errkind.ErrInvalidParameter if the interval is
// nonpositive or the thresholds are not strictly ascending.
func (c SyncConfig) Validate() error {
	if c.SamplingIntervalMs <= 0 {
		return errkind.ErrInvalidParameter
	}
	if c.SynchronizedThresholdNs < 0 || c.ConvergingThresholdNs < 0 || c.DegradedThresholdNs < 0 {
		return errkind.ErrInvalidParameter
	}
	if !(c.SynchronizedThresholdNs < c.ConvergingThresholdNs && c.ConvergingThresholdNs < c.DegradedThresholdNs) {
		return errkind.ErrInvalidParameter
	}
	return nil
}

// SyncStats are the counters and last-observed values the sync
// coordinator exposes for diagnostics and stats export.
type SyncStats struct {
	TotalSamples    uint64
	RejectedSamples uint64
	LastOffset      time.Duration
	LastDelay       time.Duration
	OffsetStddev    time.Duration
	ClockAccuracy   wire.ClockAccuracy
}

// SyncCoordinator drives a syncengine.Engine on a fixed cadence,
// classifying the resulting offsets into a HealthStatus the way
// facebook/time's sptp client reports step/warning/critical
// thresholds off measured offset, per §4.9's supplemented use of
// wire.ClockAccuracyFromOffset.
type SyncCoordinator struct {
	cfg      SyncConfig
	running  bool
	lastRun  time.Time
	haveLast bool
	stats    SyncStats
	health   HealthStatus

	consecutiveRejections int
}

// NewSyncCoordinator validates cfg and returns a stopped coordinator
// whose initial health is HealthConverging.
func NewSyncCoordinator(cfg SyncConfig) (*SyncCoordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SyncCoordinator{cfg: cfg, health: HealthConverging}, nil
}

func (c *SyncCoordinator) Start() { c.running = true }
func (c *SyncCoordinator) Stop()  { c.running = false }

// Reset clears accumulated statistics, the sampling cadence timer, and
// returns health to HealthConverging.
func (c *SyncCoordinator) Reset() {
	c.stats = SyncStats{}
	c.haveLast = false
	c.health = HealthConverging
	c.consecutiveRejections = 0
}

// Tick samples eng.Compute() if SamplingIntervalMs has elapsed since
// the last sample and the coordinator is running. ErrNoSample (no
// complete t1-t4 set yet) is not an error worth reporting back to the
// caller and does not affect health; ErrNegativeDelay counts as a
// rejected sample and degrades health after repeated occurrences.
func (c *SyncCoordinator) Tick(now time.Time, eng *syncengine.Engine) error {
	if !c.running {
		return nil
	}
	interval := time.Duration(c.cfg.SamplingIntervalMs) * time.Millisecond
	if c.haveLast && now.Sub(c.lastRun) < interval {
		return nil
	}
	c.lastRun = now
	c.haveLast = true

	sample, err := eng.Compute()
	if err == syncengine.ErrNoSample {
		return nil
	}
	if err != nil {
		c.stats.RejectedSamples++
		c.consecutiveRejections++
		log.Warningf("sync coordinator: sample at %s rejected: %v", now, err)
		c.recomputeHealth(eng)
		return err
	}

	c.consecutiveRejections = 0
	c.stats.TotalSamples++
	c.stats.LastOffset = sample.Offset
	c.stats.LastDelay = sample.Delay
	c.stats.OffsetStddev = eng.OffsetStddev()
	c.stats.ClockAccuracy = wire.ClockAccuracyFromOffset(sample.Offset)
	c.recomputeHealth(eng)
	return nil
}

func (c *SyncCoordinator) recomputeHealth(eng *syncengine.Engine) {
	if c.consecutiveRejections >= 3 {
		c.health = HealthCritical
		return
	}
	if c.stats.TotalSamples == 0 {
		c.health = HealthConverging
		return
	}

	abs := c.stats.LastOffset
	if abs < 0 {
		abs = -abs
	}
	switch {
	case int64(abs) <= c.cfg.SynchronizedThresholdNs && eng.Qualified():
		c.health = HealthSynchronized
	case int64(abs) <= c.cfg.ConvergingThresholdNs:
		c.health = HealthConverging
	case int64(abs) <= c.cfg.DegradedThresholdNs:
		c.health = HealthDegraded
	default:
		c.health = HealthCritical
	}
}

// GetStatistics returns a copy of the accumulated counters.
func (c *SyncCoordinator) GetStatistics() SyncStats { return c.stats }

// GetHealthStatus returns the current classification.
func (c *SyncCoordinator) GetHealthStatus() HealthStatus { return c.health }
