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

package servo

import (
	"container/ring"
	"math"
)

// FilterConfig tunes the ring-buffer outlier filter, adapted from
// facebook/time's PiServoFilter: it tracks a running mean/stddev of
// recent offsets and flags a new sample as a spike when it falls too
// far outside that window.
type FilterConfig struct {
	MaxSkipCount      int     // consecutive spikes to tolerate before forcing a reset
	OffsetStdevFactor float64 // multiple of offset stddev treated as in-band
	RingSize          int     // samples kept to compute the running mean/stddev
}

// DefaultFilterConfig mirrors facebook/time's PiServoFilter defaults.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		MaxSkipCount:      15,
		OffsetStdevFactor: 3.0,
		RingSize:          30,
	}
}

// spikeFilter is the running-statistics ring buffer used to flag
// offset outliers as reference-invalid samples.
type spikeFilter struct {
	cfg *FilterConfig

	offsetMean    int64
	offsetStdev   int64
	samples       *ring.Ring
	samplesCount  int
	skippedCount  int
}

func newSpikeFilter(cfg *FilterConfig) *spikeFilter {
	f := &spikeFilter{cfg: cfg}
	f.reset()
	return f
}

func (f *spikeFilter) reset() {
	f.samples = ring.New(f.cfg.RingSize)
	f.samplesCount = 0
	f.offsetMean = 0
	f.offsetStdev = 0
	f.skippedCount = 0
}

// isSpike reports whether offset is an outlier against the current
// window, and whether the filter has seen too many consecutive
// spikes and should be force-reset by the caller.
func (f *spikeFilter) isSpike(offset int64) (spike, forceReset bool) {
	if f.skippedCount >= f.cfg.MaxSkipCount {
		return false, true
	}
	if f.samplesCount == f.cfg.RingSize {
		bound := int64(f.cfg.OffsetStdevFactor * float64(f.offsetStdev))
		abs := offset
		if abs < 0 {
			abs = -abs
		}
		if bound > 0 && abs > bound {
			f.skippedCount++
			return true, false
		}
	}
	f.skippedCount = 0
	f.observe(offset)
	return false, false
}

func (f *spikeFilter) observe(offset int64) {
	if f.samples.Value != nil {
		v := f.samples.Value.(int64)
		f.offsetMean -= v / int64(f.samplesCount)
	}
	f.samples.Value = offset
	f.samples = f.samples.Next()
	if f.samplesCount != f.cfg.RingSize {
		f.samplesCount++
	}
	f.offsetMean += offset / int64(f.samplesCount)

	var sigmaSq int64
	f.samples.Do(func(val any) {
		if val == nil {
			return
		}
		v := val.(int64)
		sigmaSq += (v - f.offsetMean) * (v - f.offsetMean)
	})
	f.offsetStdev = int64(math.Sqrt(float64(sigmaSq) / float64(f.samplesCount)))
}
