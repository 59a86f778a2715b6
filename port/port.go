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

// Package port implements the per-port PTP state machine (9.2, Table
// 20 and the Figure 24/25 event model): the closed set of states
// (Initializing, Faulty, Disabled, Listening, PreMaster, Master,
// Passive, Uncalibrated, Slave), its external/timed/internal events,
// and the per-tick duties each state runs.
//
// The teacher's example repos implement PTP clients and stateless
// unicast responders, never a full multi-state port; this package is
// new code, structured the way facebook/time's sptp/client.Client
// structures its own tick-driven loop (a struct, here without a mutex, with an
// explicit Tick/event entry point and logrus for transition logging)
// since there is no closer teacher analogue for a state machine of
// this shape.
package port

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ptpengine/ptpcore/bmca"
	"github.com/ptpengine/ptpcore/errkind"
	"github.com/ptpengine/ptpcore/syncengine"
	"github.com/ptpengine/ptpcore/wire"
)

// minLogInterval and maxLogInterval bound every logMessageInterval
// field portDS carries (§6.3): log_announce_interval, log_sync_interval,
// log_min_delay_req_interval, and the peer-delay analogue share the
// same -7..+4 range (annex table 27 of IEEE 1588-2019).
const (
	minLogInterval = wire.LogInterval(-7)
	maxLogInterval = wire.LogInterval(4)
)

// BmcaDecision is the internal decision event the BMCA coordinator
// delivers to a port (9.3.3): which role the port should take.
// Listening has no corresponding bmca.RecommendedState (it means "no
// qualified foreign master"), so it is modeled separately here.
type BmcaDecision uint8

const (
	BmcaListening BmcaDecision = iota
	BmcaMaster
	BmcaSlave
	BmcaPassive
)

// FromRecommendedState maps a bmca.RecommendedState onto the BMCA
// decision a port's state machine consumes.
func FromRecommendedState(r bmca.RecommendedState) BmcaDecision {
	switch r.PortState() {
	case wire.PortStateMaster:
		return BmcaMaster
	case wire.PortStatePassive:
		return BmcaPassive
	case wire.PortStateSlave:
		return BmcaSlave
	default:
		return BmcaListening
	}
}

// Config holds the per-port intervals and qualification behavior
// referenced by the transition table and per-state tick duties.
type Config struct {
	LogAnnounceInterval      wire.LogInterval
	LogSyncInterval          wire.LogInterval
	LogMinDelayReqInterval   wire.LogInterval
	LogMinPDelayReqInterval  wire.LogInterval
	AnnounceReceiptTimeout   int // multiplier applied to 2^LogAnnounceInterval
	DelayMechanism           wire.DelayMechanism
	Disabled                 bool
	SyncEngineConfig         syncengine.Config
}

// DefaultConfig returns the IEEE 1588-2019 default port intervals:
// 2s Announce, 1s Sync, AnnounceReceiptTimeout of 3.
func DefaultConfig() Config {
	return Config{
		LogAnnounceInterval:     1,
		LogSyncInterval:         0,
		LogMinDelayReqInterval:  0,
		LogMinPDelayReqInterval: 0,
		AnnounceReceiptTimeout:  3,
		DelayMechanism:          wire.DelayMechanismE2E,
		SyncEngineConfig:        syncengine.DefaultConfig(),
	}
}

// validLogInterval reports whether i falls within the §6.3 portDS
// range (-7..+4) every logMessageInterval field is bound by.
func validLogInterval(i wire.LogInterval) bool {
	return i >= minLogInterval && i <= maxLogInterval
}

// Validate reports errkind.ErrInvalidParameter for a portDS config
// outside the ranges §6.3 enumerates: the four log-interval fields
// must fall within -7..+4, DelayMechanism must be one of the three
// defined mechanisms, and AnnounceReceiptTimeout must be a positive
// multiplier (a zero or negative multiplier collapses or inverts the
// announce-receipt timeout §3 invariant relies on for foreign-master
// pruning).
func (c Config) Validate() error {
	if !validLogInterval(c.LogAnnounceInterval) {
		return errkind.ErrInvalidParameter
	}
	if !validLogInterval(c.LogSyncInterval) {
		return errkind.ErrInvalidParameter
	}
	if !validLogInterval(c.LogMinDelayReqInterval) {
		return errkind.ErrInvalidParameter
	}
	if !validLogInterval(c.LogMinPDelayReqInterval) {
		return errkind.ErrInvalidParameter
	}
	switch c.DelayMechanism {
	case wire.DelayMechanismE2E, wire.DelayMechanismP2P, wire.DelayMechanismDisabled:
	default:
		return errkind.ErrInvalidParameter
	}
	if c.AnnounceReceiptTimeout <= 0 {
		return errkind.ErrInvalidParameter
	}
	return nil
}

// Stats are the per-port counters supplementing the core state
// machine: timeouts by kind and mismatched message pairs, surfaced
// for diagnostics. The stats package does not export them.
type Stats struct {
	AnnounceReceiptTimeouts   uint64
	SyncReceiptTimeouts       uint64
	DelayReqTimeouts          uint64
	QualificationTimeouts     uint64
	SyncFollowUpMismatches    uint64
	DelayReqRespMismatches    uint64
	FaultCount                uint64
	StateChanges              uint64
}

// OnStateChange is invoked whenever the port transitions states.
type OnStateChange func(from, to wire.PortState)

// OnFault is invoked when the port enters Faulty, carrying the reason.
type OnFault func(reason error)

// Port is one per-port PTP state machine instance. It holds no
// network or clock I/O itself (those are external collaborators per
// the port interface contract); callers drive it with Initialize,
// Rx* event methods, and Tick.
type Port struct {
	Identity wire.PortIdentity

	cfg   Config
	state wire.PortState

	announceDeadline     time.Time
	qualificationDeadline time.Time
	syncReceiptDeadline  time.Time

	engine *syncengine.Engine
	stats  Stats

	OnStateChange OnStateChange
	OnFault       OnFault
}

// New returns a port in PortStateInitializing, or
// errkind.ErrInvalidParameter if cfg fails Validate.
func New(id wire.PortIdentity, cfg Config) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Port{
		Identity: id,
		cfg:      cfg,
		state:    wire.PortStateInitializing,
		engine:   syncengine.New(cfg.SyncEngineConfig),
	}, nil
}

// State returns the port's current state.
func (p *Port) State() wire.PortState { return p.state }

// Stats returns a copy of the port's counters.
func (p *Port) Stats() Stats { return p.stats }

// Initialize runs the Initializing -> Listening|Disabled transition.
func (p *Port) Initialize(now time.Time) {
	if p.cfg.Disabled {
		p.transition(wire.PortStateDisabled, now)
		return
	}
	p.enterListening(now)
}

func (p *Port) enterListening(now time.Time) {
	p.transition(wire.PortStateListening, now)
	p.armAnnounceTimeout(now)
}

func (p *Port) armAnnounceTimeout(now time.Time) {
	timeout := time.Duration(p.cfg.AnnounceReceiptTimeout) * p.cfg.LogAnnounceInterval.Duration()
	p.announceDeadline = now.Add(timeout)
}

// RxAnnounce resets the announce-receipt timeout. The caller is
// responsible for feeding the Announce itself into the BMCA
// foreign-master tracking; this method only services the per-port
// liveness timer (9.2.6.12).
func (p *Port) RxAnnounce(now time.Time) {
	if p.state == wire.PortStateFaulty || p.state == wire.PortStateDisabled {
		return
	}
	p.armAnnounceTimeout(now)
}

// ApplyBmcaDecision runs the BmcaDecision-driven transitions of the
// table in 4.4: Listening/Master/Passive -> Uncalibrated on Slave;
// Listening -> PreMaster on Master.
func (p *Port) ApplyBmcaDecision(d BmcaDecision, now time.Time) {
	switch p.state {
	case wire.PortStateFaulty, wire.PortStateDisabled, wire.PortStateInitializing:
		return
	}

	switch d {
	case BmcaSlave:
		switch p.state {
		case wire.PortStateListening, wire.PortStateMaster, wire.PortStatePassive, wire.PortStateUncalibrated:
			p.enterUncalibrated(now)
		}
	case BmcaMaster:
		switch p.state {
		case wire.PortStateListening:
			p.enterPreMaster(now)
		case wire.PortStatePassive, wire.PortStateUncalibrated, wire.PortStateSlave:
			p.transition(wire.PortStateListening, now)
			p.armAnnounceTimeout(now)
		}
	case BmcaPassive:
		switch p.state {
		case wire.PortStateListening, wire.PortStateMaster, wire.PortStatePreMaster:
			p.transition(wire.PortStatePassive, now)
		}
	case BmcaListening:
		switch p.state {
		case wire.PortStateMaster, wire.PortStatePassive, wire.PortStatePreMaster, wire.PortStateUncalibrated, wire.PortStateSlave:
			p.enterListening(now)
		}
	}
}

func (p *Port) enterPreMaster(now time.Time) {
	p.transition(wire.PortStatePreMaster, now)
	p.qualificationDeadline = now.Add(p.cfg.LogAnnounceInterval.Duration())
}

func (p *Port) enterUncalibrated(now time.Time) {
	p.engine.Reset()
	p.transition(wire.PortStateUncalibrated, now)
	p.armSyncReceiptTimeout(now)
}

func (p *Port) armSyncReceiptTimeout(now time.Time) {
	timeout := time.Duration(p.cfg.AnnounceReceiptTimeout) * p.cfg.LogAnnounceInterval.Duration()
	p.syncReceiptDeadline = now.Add(timeout)
}

// RxSyncSample feeds a completed offset/delay computation (typically
// produced by the caller invoking (*syncengine.Engine).Compute on
// this port's own engine) into the Uncalibrated -> Slave
// qualification check; it also services the sync-receipt timer.
func (p *Port) RxSyncSample(now time.Time) {
	if p.state != wire.PortStateUncalibrated && p.state != wire.PortStateSlave {
		return
	}
	p.armSyncReceiptTimeout(now)
	if p.state == wire.PortStateUncalibrated && p.engine.Qualified() {
		p.transition(wire.PortStateSlave, now)
	}
}

// Engine returns the port's sync/delay engine, so callers can feed it
// t1-t4 timestamps and call Compute before RxSyncSample.
func (p *Port) Engine() *syncengine.Engine { return p.engine }

// Tick runs the per-state duties and timeout checks for TickInterval
// (4.4): Master emits Announce/Sync per its intervals (left to the
// caller, which owns message construction and transmission — Tick
// only reports which messages are due); all non-Faulty states check
// timeouts.
type TickDue struct {
	Announce bool
	Sync     bool
	FollowUp bool
	DelayReq bool
	PdelayReq bool
}

// Tick advances timers and reports which periodic sends are due,
// transitioning the port on any expired timeout.
func (p *Port) Tick(now time.Time) TickDue {
	var due TickDue
	switch p.state {
	case wire.PortStateFaulty, wire.PortStateDisabled, wire.PortStateInitializing:
		return due
	}

	switch p.state {
	case wire.PortStatePreMaster:
		if !p.qualificationDeadline.IsZero() && !now.Before(p.qualificationDeadline) {
			p.stats.QualificationTimeouts++
			p.transition(wire.PortStateMaster, now)
		}
	case wire.PortStateListening, wire.PortStateUncalibrated, wire.PortStateSlave:
		// AnnounceReceiptTimeout applies to Listening directly, and to
		// Uncalibrated/Slave via the same parent-liveness check.
		if !p.announceDeadline.IsZero() && !now.Before(p.announceDeadline) {
			if p.state == wire.PortStateListening {
				p.armAnnounceTimeout(now)
			} else {
				p.stats.AnnounceReceiptTimeouts++
				p.enterListening(now)
				return due
			}
		}
	}

	switch p.state {
	case wire.PortStateMaster:
		due.Announce = true
		due.Sync = true
		due.FollowUp = true
	case wire.PortStateUncalibrated, wire.PortStateSlave:
		if !p.syncReceiptDeadline.IsZero() && now.After(p.syncReceiptDeadline) {
			p.stats.SyncReceiptTimeouts++
		}
		switch p.cfg.DelayMechanism {
		case wire.DelayMechanismP2P:
			due.PdelayReq = true
		default:
			due.DelayReq = true
		}
	}
	return due
}

// Fault transitions the port to Faulty from any state and invokes
// OnFault with the given reason.
func (p *Port) Fault(reason error, now time.Time) {
	p.stats.FaultCount++
	p.transition(wire.PortStateFaulty, now)
	if p.OnFault != nil {
		p.OnFault(reason)
	}
}

func (p *Port) transition(to wire.PortState, _ time.Time) {
	if p.state == to {
		return
	}
	from := p.state
	p.state = to
	p.stats.StateChanges++
	log.Debugf("port %s: %s -> %s", p.Identity, from, to)
	if p.OnStateChange != nil {
		p.OnStateChange(from, to)
	}
}
