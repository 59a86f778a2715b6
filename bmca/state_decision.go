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

package bmca

import (
	"time"

	"github.com/ptpengine/ptpcore/wire"
)

// RecommendedState is the outcome of the state decision algorithm
// (9.3.3, Figure 26): which of the Figure 26 decision states (M1-M3,
// P1-P2, S1) this port should transition towards. It is an input to the
// port state machine, not a PortState itself — M1/M2/M3 all resolve to
// PortStateMaster, P1/P2 to PortStatePassive, and S1 to PortStateSlave.
type RecommendedState uint8

const (
	DecisionM1 RecommendedState = iota // this clock is the grandmaster
	DecisionM2                         // this port is master, we are not grandmaster
	DecisionM3                         // this port is master, BMCA ran on another port
	DecisionP1                         // this port is passive, we are grandmaster
	DecisionP2                         // this port is passive, BMCA ran on another port
	DecisionS1                         // this port should be slave to erbest
)

// PortState maps a RecommendedState to the corresponding port state
// machine target, per Figure 26's correspondence to Table 20.
func (r RecommendedState) PortState() wire.PortState {
	switch r {
	case DecisionM1, DecisionM2, DecisionM3:
		return wire.PortStateMaster
	case DecisionP1, DecisionP2:
		return wire.PortStatePassive
	case DecisionS1:
		return wire.PortStateSlave
	default:
		return wire.PortStateFaulty
	}
}

// Decide implements the Figure 26 state decision algorithm: given the
// best candidate received on this port (erbest, nil if none qualified)
// and the best candidate across all ports of the local clock (ebest),
// decide what this port's recommended state is. isGrandmaster reports
// whether the local clock's own defaultDS currently wins against every
// candidate it has seen anywhere (i.e. ebest is the local clock itself).
func Decide(erbest *candidate, ebest *candidate, isGrandmaster bool) RecommendedState {
	if isGrandmaster {
		if erbest == nil {
			return DecisionM1
		}
		return DecisionP1
	}
	if erbest == nil {
		// no candidate on this port at all: this port stays master
		// relative to whatever ebest was decided on another port.
		return DecisionM3
	}
	if ebest != nil && Dscmp(*erbest, *ebest) == Unknown {
		// erbest on this port IS ebest: this is the port we sync from.
		return DecisionS1
	}
	cmp := Dscmp(*erbest, *ebest)
	if cmp == ABetter || cmp == ABetterTopo {
		return DecisionM2
	}
	return DecisionP2
}

// OscillationTracker counts how many times a port's recommended state
// has changed within a trailing window, surfacing ports whose BMCA
// decision is flapping between masters (a symptom of marginal Announce
// comparisons or a noisy network) rather than settling. Grounded on the
// windowed-comparison idiom of TelcoDscmp, generalized into an explicit
// stability counter since the teacher has no direct analogue for it.
type OscillationTracker struct {
	window   time.Duration
	changes  []time.Time
	lastSeen RecommendedState
	hasLast  bool
}

// NewOscillationTracker returns a tracker counting decision changes
// within the given trailing window.
func NewOscillationTracker(window time.Duration) *OscillationTracker {
	return &OscillationTracker{window: window}
}

// Observe records a new recommended-state decision at time now.
func (o *OscillationTracker) Observe(now time.Time, decision RecommendedState) {
	if o.hasLast && decision != o.lastSeen {
		o.changes = append(o.changes, now)
	}
	o.lastSeen = decision
	o.hasLast = true
	cutoff := now.Add(-o.window)
	kept := o.changes[:0]
	for _, t := range o.changes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	o.changes = kept
}

// Oscillating reports whether the port has changed its recommended
// state more than threshold times within the trailing window.
func (o *OscillationTracker) Oscillating(threshold int) bool {
	return len(o.changes) > threshold
}
