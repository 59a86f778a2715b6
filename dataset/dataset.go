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

// Package dataset assembles the IEEE 1588-2019 data sets — defaultDS,
// currentDS, parentDS, timePropertiesDS and portDS — into the structs the
// rest of the engine reads and mutates. The wire protocol only carries
// fragments of these (inside Announce/Sync messages); this package is
// where a full clock or boundary-clock instance keeps its state between
// ticks, grounded on the field layout facebook/time's sptp client keeps
// ad hoc across Config/Announce/measurements rather than as one struct.
package dataset

import (
	"time"

	"github.com/ptpengine/ptpcore/wire"
)

// DefaultDS is the defaultDS data set (8.2.1): identity and capability
// of the local PTP instance, independent of any particular port.
type DefaultDS struct {
	ClockIdentity       wire.ClockIdentity
	NumberPorts         uint16
	ClockQuality        wire.ClockQuality
	Priority1           uint8
	Priority2           uint8
	DomainNumber        uint8
	SlaveOnly           bool
	TwoStepFlag         bool
	InstanceType        uint8 // ordinary (0), boundary (1), per Table 17 derivation
}

// CurrentDS is the currentDS data set (8.2.2): state relative to the
// clock the instance currently syncs to.
type CurrentDS struct {
	StepsRemoved     uint16
	OffsetFromMaster wire.TimeInterval
	MeanPathDelay    wire.TimeInterval
}

// ParentDS is the parentDS data set (8.2.3): identity and quality of the
// parent (master) clock currently selected.
type ParentDS struct {
	ParentPortIdentity                    wire.PortIdentity
	ParentStats                           bool
	ObservedParentOffsetScaledLogVariance uint16
	ObservedParentClockPhaseChangeRate     uint32
	GrandmasterIdentity                   wire.ClockIdentity
	GrandmasterClockQuality               wire.ClockQuality
	GrandmasterPriority1                  uint8
	GrandmasterPriority2                  uint8
}

// TimePropertiesDS is the timePropertiesDS data set (8.2.4), carried
// verbatim from the grandmaster down through every boundary clock.
type TimePropertiesDS struct {
	CurrentUTCOffset     int16
	CurrentUTCOffsetValid bool
	Leap59               bool
	Leap61               bool
	TimeTraceable        bool
	FrequencyTraceable   bool
	PTPTimescale         bool
	TimeSource           wire.TimeSource
}

// PortDS is the portDS data set (8.2.5), one instance per port.
type PortDS struct {
	PortIdentity            wire.PortIdentity
	PortState               wire.PortState
	LogMinDelayReqInterval  wire.LogInterval
	PeerMeanPathDelay       wire.TimeInterval
	LogAnnounceInterval     wire.LogInterval
	AnnounceReceiptTimeout  uint8
	LogSyncInterval         wire.LogInterval
	DelayMechanism          wire.DelayMechanism
	LogMinPDelayReqInterval wire.LogInterval
	VersionNumber           uint8
}

// ForeignMasterEntry tracks Announce observations from one candidate
// master on a port, used by the BMCA to decide whether it is
// "qualified" (received enough recent Announce messages to be a
// candidate at all) before data-set comparison ever runs.
type ForeignMasterEntry struct {
	SenderPortIdentity wire.PortIdentity
	Announces         []AnnounceRecord
	LastUpdate        time.Time
}

// AnnounceRecord is the subset of an Announce message BMCA needs,
// decoupled from the wire protocol package so dataset has no import
// cycle with protocol.
type AnnounceRecord struct {
	GrandmasterIdentity     wire.ClockIdentity
	GrandmasterClockQuality wire.ClockQuality
	GrandmasterPriority1    uint8
	GrandmasterPriority2    uint8
	StepsRemoved            uint16
	TimeSource              wire.TimeSource
	ReceivedAt              time.Time
}

// MaxForeignMasters bounds the foreign master data set per port (9.3.2.4.4):
// an implementation shall not need to store more than this many records.
const MaxForeignMasters = 16

// QualificationThreshold is FOREIGN_MASTER_THRESHOLD (9.3.2.4.4): the
// number of Announce records an entry must hold before it becomes a
// BMCA candidate.
const QualificationThreshold = 2

// ForeignMasterTimeWindow is the number of most recent Announce records
// an entry keeps toward QualificationThreshold (9.3.2.4.4
// FOREIGN_MASTER_TIME_WINDOW, counted in messages). Record arrival
// times are not compared against a time window.
const ForeignMasterTimeWindow = 4

// ForeignMasterSet tracks up to MaxForeignMasters candidate masters for
// one port, pruning entries that have gone quiet.
type ForeignMasterSet struct {
	entries map[wire.PortIdentity]*ForeignMasterEntry
	order   []wire.PortIdentity // insertion order, for deterministic eviction
}

// NewForeignMasterSet returns an empty set.
func NewForeignMasterSet() *ForeignMasterSet {
	return &ForeignMasterSet{entries: make(map[wire.PortIdentity]*ForeignMasterEntry)}
}

// Update records a newly received Announce from sender, evicting the
// oldest entry if the set is full and sender is not already tracked.
func (s *ForeignMasterSet) Update(sender wire.PortIdentity, rec AnnounceRecord) {
	e, ok := s.entries[sender]
	if !ok {
		if len(s.order) >= MaxForeignMasters {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.entries, oldest)
		}
		e = &ForeignMasterEntry{SenderPortIdentity: sender}
		s.entries[sender] = e
		s.order = append(s.order, sender)
	}
	e.Announces = append(e.Announces, rec)
	e.LastUpdate = rec.ReceivedAt
	// keep only the records that still count toward qualification
	cutoff := len(e.Announces) - ForeignMasterTimeWindow
	if cutoff > 0 {
		e.Announces = e.Announces[cutoff:]
	}
}

// Prune removes entries that have not announced within timeout of now.
func (s *ForeignMasterSet) Prune(now time.Time, timeout time.Duration) {
	kept := s.order[:0]
	for _, id := range s.order {
		e := s.entries[id]
		if now.Sub(e.LastUpdate) > timeout {
			delete(s.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Qualified reports whether sender's entry holds at least
// QualificationThreshold Announce records; when they arrived is not
// checked here (only Prune removes entries by age).
func (s *ForeignMasterSet) Qualified(sender wire.PortIdentity) bool {
	e, ok := s.entries[sender]
	return ok && len(e.Announces) >= QualificationThreshold
}

// Best returns the most recent AnnounceRecord for each qualified
// foreign master, in insertion order, for the BMCA to compare.
func (s *ForeignMasterSet) Best() []AnnounceRecord {
	var out []AnnounceRecord
	for _, id := range s.order {
		e := s.entries[id]
		if len(e.Announces) < QualificationThreshold {
			continue
		}
		out = append(out, e.Announces[len(e.Announces)-1])
	}
	return out
}

// Len reports how many foreign masters are currently tracked.
func (s *ForeignMasterSet) Len() int { return len(s.order) }

// TimestampCache holds the four timestamps (t1-t4) used by the E2E/P2P
// delay mechanisms to compute offset and mean path delay for one
// exchange, identified by sequence number.
type TimestampCache struct {
	SequenceID uint16
	T1         time.Time // Sync departure from master
	T2         time.Time // Sync arrival at slave
	T3         time.Time // Delay_Req departure from slave
	T4         time.Time // Delay_Req arrival at master
	C1         time.Duration // Sync correctionField
	C2         time.Duration // Delay_Resp correctionField
}

// Complete reports whether all four timestamps have been filled in.
func (c *TimestampCache) Complete() bool {
	return !c.T1.IsZero() && !c.T2.IsZero() && !c.T3.IsZero() && !c.T4.IsZero()
}
