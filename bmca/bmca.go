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

// Package bmca implements the Best Master Clock Algorithm's data-set
// comparison (9.3.4), state decision (9.3.3), and IEEE 1588-2019's
// Figure 26 state decision event derivation.
//
// Grounded on facebook/time's sptp/bmc package (Dscmp/Dscmp2/TelcoDscmp,
// ComparePortIdentity), ported to operate on dataset.AnnounceRecord
// instead of a raw wire Announce so the comparison has no dependency on
// the message encoding.
package bmca

import (
	"github.com/ptpengine/ptpcore/dataset"
	"github.com/ptpengine/ptpcore/wire"
)

// ComparisonResult reports which of two candidates BMCA prefers, and
// whether the preference comes from data-set comparison or from
// network topology (steps-removed / port-identity tiebreak).
type ComparisonResult int8

const (
	ABetterTopo ComparisonResult = 2
	ABetter     ComparisonResult = 1
	Unknown     ComparisonResult = 0
	BBetter     ComparisonResult = -1
	BBetterTopo ComparisonResult = -2
)

// ComparePortIdentity orders two port identities, clock identity first.
func ComparePortIdentity(a, b wire.PortIdentity) int64 {
	diff := int64(a.ClockIdentity) - int64(b.ClockIdentity)
	if diff == 0 {
		diff = int64(a.PortNumber) - int64(b.PortNumber)
	}
	return diff
}

// candidate pairs an AnnounceRecord with the port identity it arrived
// on, since dataset.AnnounceRecord itself carries no sender identity
// (that lives in the ForeignMasterEntry it was stored under).
type candidate struct {
	Source wire.PortIdentity
	Rec    dataset.AnnounceRecord
}

// Candidate constructs a BMCA candidate from a source port and record.
func Candidate(source wire.PortIdentity, rec dataset.AnnounceRecord) candidate {
	return candidate{Source: source, Rec: rec}
}

// dscmp2 breaks a tie in dataset comparison using topology: the path
// with fewer steps removed wins; equal steps-removed falls back to
// comparing the sender port identities (9.3.4, Figure 28).
func dscmp2(a, b candidate) ComparisonResult {
	if a.Rec.StepsRemoved < b.Rec.StepsRemoved {
		return ABetter
	}
	if b.Rec.StepsRemoved < a.Rec.StepsRemoved {
		return BBetter
	}
	diff := ComparePortIdentity(a.Source, b.Source)
	switch {
	case diff < 0:
		return ABetterTopo
	case diff > 0:
		return BBetterTopo
	default:
		return Unknown
	}
}

// Dscmp implements the full IEEE 1588-2019 data set comparison algorithm
// (9.3.4, Figure 27): compare grandmaster identity, then priority1,
// clockClass, clockAccuracy, offsetScaledLogVariance, priority2, and
// finally the grandmaster identity itself as the last tiebreak before
// falling through to topology.
func Dscmp(a, b candidate) ComparisonResult {
	if a.Rec == b.Rec {
		return Unknown
	}
	diff := int64(a.Rec.GrandmasterIdentity) - int64(b.Rec.GrandmasterIdentity)
	if diff == 0 {
		return dscmp2(a, b)
	}
	if a.Rec.GrandmasterPriority1 != b.Rec.GrandmasterPriority1 {
		return better(a.Rec.GrandmasterPriority1 < b.Rec.GrandmasterPriority1)
	}
	if a.Rec.GrandmasterClockQuality.ClockClass != b.Rec.GrandmasterClockQuality.ClockClass {
		return better(a.Rec.GrandmasterClockQuality.ClockClass < b.Rec.GrandmasterClockQuality.ClockClass)
	}
	if a.Rec.GrandmasterClockQuality.ClockAccuracy != b.Rec.GrandmasterClockQuality.ClockAccuracy {
		return better(a.Rec.GrandmasterClockQuality.ClockAccuracy < b.Rec.GrandmasterClockQuality.ClockAccuracy)
	}
	if a.Rec.GrandmasterClockQuality.OffsetScaledLogVariance != b.Rec.GrandmasterClockQuality.OffsetScaledLogVariance {
		return better(a.Rec.GrandmasterClockQuality.OffsetScaledLogVariance < b.Rec.GrandmasterClockQuality.OffsetScaledLogVariance)
	}
	if a.Rec.GrandmasterPriority2 != b.Rec.GrandmasterPriority2 {
		return better(a.Rec.GrandmasterPriority2 < b.Rec.GrandmasterPriority2)
	}
	return better(diff < 0)
}

func better(aWins bool) ComparisonResult {
	if aWins {
		return ABetter
	}
	return BBetter
}

// TelcoDscmp is the local-priority data-set comparison variant used by
// telecom profiles (ITU-T G.8275.1-style): clockClass/clockAccuracy/
// offsetScaledLogVariance/priority2 are compared first, then a
// caller-supplied local priority breaks ties before falling back to
// grandmaster identity and topology. A lower localPriority wins.
func TelcoDscmp(a, b candidate, localPriorityA, localPriorityB int) ComparisonResult {
	if a.Rec == b.Rec && localPriorityA == localPriorityB {
		return Unknown
	}
	if a.Rec.GrandmasterClockQuality.ClockClass != b.Rec.GrandmasterClockQuality.ClockClass {
		return better(a.Rec.GrandmasterClockQuality.ClockClass < b.Rec.GrandmasterClockQuality.ClockClass)
	}
	if a.Rec.GrandmasterClockQuality.ClockAccuracy != b.Rec.GrandmasterClockQuality.ClockAccuracy {
		return better(a.Rec.GrandmasterClockQuality.ClockAccuracy < b.Rec.GrandmasterClockQuality.ClockAccuracy)
	}
	if a.Rec.GrandmasterClockQuality.OffsetScaledLogVariance != b.Rec.GrandmasterClockQuality.OffsetScaledLogVariance {
		return better(a.Rec.GrandmasterClockQuality.OffsetScaledLogVariance < b.Rec.GrandmasterClockQuality.OffsetScaledLogVariance)
	}
	if a.Rec.GrandmasterPriority2 != b.Rec.GrandmasterPriority2 {
		return better(a.Rec.GrandmasterPriority2 < b.Rec.GrandmasterPriority2)
	}
	if localPriorityA != localPriorityB {
		return better(localPriorityA < localPriorityB)
	}
	if a.Rec.GrandmasterClockQuality.ClockClass <= 127 {
		return dscmp2(a, b)
	}
	diff := int64(a.Rec.GrandmasterIdentity) - int64(b.Rec.GrandmasterIdentity)
	if diff == 0 {
		return dscmp2(a, b)
	}
	return better(diff < 0)
}

// BestOf scans candidates with Dscmp and returns the index of the
// overall winner, or -1 if candidates is empty.
func BestOf(candidates []candidate) int {
	best := -1
	for i, c := range candidates {
		if best == -1 {
			best = i
			continue
		}
		if Dscmp(c, candidates[best]) == ABetter || Dscmp(c, candidates[best]) == ABetterTopo {
			best = i
		}
	}
	return best
}
