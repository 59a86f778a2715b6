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

// Package syncengine computes offset-from-master and mean-path-delay
// from the four PTP event timestamps and decides when a port has
// collected enough stable samples to leave Uncalibrated for Slave.
//
// Grounded on facebook/time's sptp/client measurements.go: the t1-t4
// cache keyed by sequence ID, the Complete() gate, and the
// offset/delay formula are carried over near verbatim. The stability
// judgement replaces that package's ad hoc sliding window with direct
// use of github.com/eclesh/welford, the same variance estimator
// fbclock/daemon/math.go builds its M/W clock-quality formulas on top
// of — used here without the govaluate expression layer, since no
// per-deployment formula customization is in scope.
package syncengine

import (
	"errors"
	"sync"
	"time"

	"github.com/eclesh/welford"

	"github.com/ptpengine/ptpcore/dataset"
)

// ErrNoSample reports that no complete t1-t4 sample has been recorded yet.
var ErrNoSample = errors.New("syncengine: no complete timestamp sample")

// ErrNegativeDelay reports that a computed mean path delay came out
// negative (§3 invariant: mean_path_delay >= 0). The sample is
// discarded and counted rather than returned.
var ErrNegativeDelay = errors.New("syncengine: negative mean path delay")

// Sample is one computed offset/delay measurement.
type Sample struct {
	SequenceID uint16
	Offset     time.Duration
	Delay      time.Duration
	T2         time.Time
}

// Engine accumulates t1-t4 timestamps per sequence ID, computes
// offset and mean path delay from the most recently completed
// sample, and tracks whether recent samples are stable enough to
// qualify a port for the Slave state.
type Engine struct {
	mu sync.Mutex

	cache map[uint16]*dataset.TimestampCache

	offsetVar *welford.Stats
	delayVar  *welford.Stats

	stableSamples    int
	stableRequired   int
	varianceLimit    time.Duration
	lastOffset       time.Duration
	haveLastOffset   bool

	negativeDelayCount uint64

	peerCache   map[uint16]*peerDelayCache
	peerDelay   time.Duration
	havePeerDelay bool
}

// Config controls qualification thresholds. StableSamplesRequired is
// the minimum number of consecutive samples within VarianceLimit of
// one another before Qualified reports true. A zero VarianceLimit
// disables the variance check (StableSamplesRequired alone gates
// qualification).
type Config struct {
	StableSamplesRequired int
	VarianceLimit         time.Duration
}

// DefaultConfig returns the thresholds used when a port's config does
// not override them: three consecutive samples with a standard
// deviation under 1 microsecond.
func DefaultConfig() Config {
	return Config{
		StableSamplesRequired: 3,
		VarianceLimit:         time.Microsecond,
	}
}

// New returns an Engine applying the given qualification config.
func New(cfg Config) *Engine {
	if cfg.StableSamplesRequired <= 0 {
		cfg.StableSamplesRequired = 1
	}
	return &Engine{
		cache:          map[uint16]*dataset.TimestampCache{},
		offsetVar:      welford.New(),
		delayVar:       welford.New(),
		stableRequired: cfg.StableSamplesRequired,
		varianceLimit:  cfg.VarianceLimit,
		peerCache:      map[uint16]*peerDelayCache{},
	}
}

func (e *Engine) entry(seq uint16) *dataset.TimestampCache {
	v, ok := e.cache[seq]
	if !ok {
		v = &dataset.TimestampCache{SequenceID: seq}
		e.cache[seq] = v
	}
	return v
}

// AddT1 records the Sync departure time reported by the master (only
// meaningful for a two-step Sync's FollowUp; a one-step Sync carries
// t1 in its own origin timestamp and should call AddT1 directly with
// that value).
func (e *Engine) AddT1(seq uint16, t1 time.Time, correction time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.entry(seq)
	v.T1 = t1
	v.C1 = correction
}

// AddT2 records the Sync arrival time on the local port.
func (e *Engine) AddT2(seq uint16, t2 time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entry(seq).T2 = t2
}

// AddT3 records the DelayReq departure time from the local port.
func (e *Engine) AddT3(seq uint16, t3 time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entry(seq).T3 = t3
}

// AddT4 records the DelayReq arrival time reported by the master in
// DelayResp, along with DelayResp's correction field.
func (e *Engine) AddT4(seq uint16, t4 time.Time, correction time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.entry(seq)
	v.T4 = t4
	v.C2 = correction
}

// Compute finds the most recently completed t1-t4 sample (by T2,
// matching the master's Sync-transmission order), clears the cache,
// and returns its offset and mean path delay:
//
//	offset = ((t2 − t1 − c1) − (t4 − t3 − c2)) / 2
//	delay  = ((t2 − t1 − c1) + (t4 − t3 − c2)) / 2
//
// It also feeds the result into the stability trackers used by
// Qualified.
//
// Compute clears the whole cache on every call that finds a complete
// sample (a call returning ErrNoSample leaves it as is), including entries for
// sequence IDs other than the one resolved. That is correct for the
// single-exchange-in-flight model this engine assumes (one Sync/FollowUp
// or peer-delay exchange completes before the next begins); a caller
// that pipelines overlapping exchanges would have their still-incomplete
// partials silently dropped here rather than resolved on a later call.
func (e *Engine) Compute() (Sample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var latest *dataset.TimestampCache
	for _, v := range e.cache {
		if !v.Complete() {
			continue
		}
		if latest == nil || v.T2.After(latest.T2) {
			latest = v
		}
	}
	if latest == nil {
		return Sample{}, ErrNoSample
	}

	s2c := latest.T2.Sub(latest.T1) - latest.C1
	c2s := latest.T4.Sub(latest.T3) - latest.C2
	delay := (s2c + c2s) / 2
	offset := s2c - delay

	e.cache = map[uint16]*dataset.TimestampCache{}

	if delay < 0 {
		e.negativeDelayCount++
		return Sample{}, ErrNegativeDelay
	}

	e.observeStability(offset, delay)

	return Sample{
		SequenceID: latest.SequenceID,
		Offset:     offset,
		Delay:      delay,
		T2:         latest.T2,
	}, nil
}

// observeStability feeds a new offset/delay pair into the running
// variance estimators and updates the consecutive-stable-sample
// counter: a sample counts toward qualification when it sits within
// varianceLimit of the previous one.
func (e *Engine) observeStability(offset, delay time.Duration) {
	e.offsetVar.Add(float64(offset))
	e.delayVar.Add(float64(delay))

	if e.varianceLimit <= 0 {
		e.stableSamples++
		return
	}

	if !e.haveLastOffset {
		// the first sample is trivially stable with itself.
		e.stableSamples = 1
	} else {
		delta := offset - e.lastOffset
		if delta < 0 {
			delta = -delta
		}
		if delta <= e.varianceLimit {
			e.stableSamples++
		} else {
			e.stableSamples = 0
		}
	}
	e.lastOffset = offset
	e.haveLastOffset = true
}

// Qualified reports whether the engine has seen enough consecutive
// stable samples, and (when a variance limit is configured) whether
// the running offset standard deviation is within it, to recommend a
// port move from Uncalibrated to Slave. Both conditions are required
// when a variance limit is set; a zero limit disables that leg of the
// check.
func (e *Engine) Qualified() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stableSamples < e.stableRequired {
		return false
	}
	if e.varianceLimit <= 0 {
		return true
	}
	if e.offsetVar.Count() < int64(e.stableRequired) {
		return false
	}
	return time.Duration(e.offsetVar.Stddev()) <= e.varianceLimit
}

// Reset clears accumulated samples and stability state, used when a
// port re-enters Uncalibrated after losing sync with its master.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = map[uint16]*dataset.TimestampCache{}
	e.offsetVar = welford.New()
	e.delayVar = welford.New()
	e.stableSamples = 0
	e.haveLastOffset = false
}

// OffsetStddev returns the running standard deviation of observed
// offsets, for diagnostics and stats export.
func (e *Engine) OffsetStddev() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.offsetVar.Stddev())
}

// NegativeDelayCount returns how many completed samples were
// discarded for producing a negative mean path delay.
func (e *Engine) NegativeDelayCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.negativeDelayCount
}
