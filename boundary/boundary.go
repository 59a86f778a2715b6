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

// Package boundary implements the multi-port boundary-clock router
// (C8, §4.8): a composition of up to MaxPorts port state machines
// sharing one local clock, dispatching decoded messages to the right
// port and re-originating Sync/Follow_Up out of every Master port
// whenever one arrives on the Slave port.
//
// Grounded on facebook/time's ptp/ptp4u/server.Server, whose Start
// fans work out across N goroutines guarded by a sync.WaitGroup
// (server.go) — the boundary router adapts that fan-out shape to
// golang.org/x/sync/errgroup for the per-tick forward step, since each
// master port's forward can fail independently and the router wants
// the first error without tearing down the others mid-loop.
package boundary

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ptpengine/ptpcore/dataset"
	"github.com/ptpengine/ptpcore/errkind"
	"github.com/ptpengine/ptpcore/port"
	"github.com/ptpengine/ptpcore/protocol"
	"github.com/ptpengine/ptpcore/wire"
)

// MaxPorts bounds the number of ports a single boundary clock composes.
const MaxPorts = 32

// PortIO is the host capability a boundary router sends through: one
// send method per forwarded message type, keyed by destination port
// number. It is the boundary-level analogue of the per-port callback
// interface in §6.1 (send_sync/send_follow_up), scoped to the subset
// the router itself drives (forwarding), not the full per-port send
// surface a message-flow coordinator would use.
type PortIO interface {
	SendSync(portNumber uint16, msg *protocol.SyncDelayReq) error
	SendFollowUp(portNumber uint16, msg *protocol.FollowUp) error
}

// ForwardedSync records one re-originated Sync+Follow_Up pair, for
// callers (tests, statistics) that want to observe what a tick
// produced without re-decoding what PortIO received.
type ForwardedSync struct {
	PortNumber   uint16
	Sync         *protocol.SyncDelayReq
	FollowUp     *protocol.FollowUp
	StepsRemoved uint16
	Correction   wire.CorrectionField
}

// Router composes multiple port.Port instances into one boundary
// clock. It owns no network I/O; ProcessMessage and Tick are driven
// by a host that owns the transport and the PortIO implementation.
type Router struct {
	mu sync.Mutex

	identity wire.ClockIdentity
	domain   uint8

	ports          map[uint16]*port.Port
	foreignMasters map[uint16]*dataset.ForeignMasterSet

	slavePort uint16 // 0 means "no slave port selected"

	// stepsRemoved is this clock's own currentDS.stepsRemoved, set by
	// whatever BMCA coordinator drives this router's parent selection.
	// It is not carried on the wire by Sync/Follow_Up (only Announce
	// carries stepsRemoved); the router tracks it so it can label a
	// forwarded Sync with stepsRemoved+1 the way a re-originated
	// downstream Announce would be, per §4.8's forwarding contract.
	stepsRemoved uint16

	io PortIO

	forwardFailures uint64
}

// New returns a Router with one port.Port per entry in cfgs, all in
// PortStateInitializing. identity and domain are the local clock's
// defaultDS.clockIdentity/domainNumber, used to originate forwarded
// messages' source port identity. New returns the first
// errkind.ErrInvalidParameter encountered validating cfgs.
func New(identity wire.ClockIdentity, domain uint8, cfgs map[uint16]port.Config, io PortIO) (*Router, error) {
	if len(cfgs) > MaxPorts {
		return nil, errkind.ErrInvalidParameter
	}
	r := &Router{
		identity:       identity,
		domain:         domain,
		ports:          make(map[uint16]*port.Port, len(cfgs)),
		foreignMasters: make(map[uint16]*dataset.ForeignMasterSet, len(cfgs)),
		io:             io,
	}
	for num, cfg := range cfgs {
		p, err := port.New(wire.PortIdentity{ClockIdentity: identity, PortNumber: num}, cfg)
		if err != nil {
			return nil, err
		}
		r.ports[num] = p
		r.foreignMasters[num] = dataset.NewForeignMasterSet()
	}
	return r, nil
}

// Initialize runs Initialize on every port.
func (r *Router) Initialize(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.ports {
		p.Initialize(now)
	}
}

// GetPort returns the port with the given number, or ok=false if
// portNumber is not one this router composes (§4.8: invalid port
// number yields null/none).
func (r *Router) GetPort(portNumber uint16) (*port.Port, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.ports[portNumber]
	return p, ok
}

// ForeignMasters returns the foreign-master set tracked for portNumber.
func (r *Router) ForeignMasters(portNumber uint16) (*dataset.ForeignMasterSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fm, ok := r.foreignMasters[portNumber]
	return fm, ok
}

// HasMasterPort reports whether any port is currently Master.
func (r *Router) HasMasterPort() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.ports {
		if p.State() == wire.PortStateMaster {
			return true
		}
	}
	return false
}

// HasSlavePort reports whether a port is currently Slave.
func (r *Router) HasSlavePort() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slavePort != 0
}

// IsSynchronized reports whether the selected Slave port has reached
// PortStateSlave (i.e. past qualification, not just Uncalibrated).
func (r *Router) IsSynchronized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slavePort == 0 {
		return false
	}
	p, ok := r.ports[r.slavePort]
	return ok && p.State() == wire.PortStateSlave
}

// SetStepsRemoved updates the local clock's currentDS.stepsRemoved,
// normally driven by the BMCA coordinator whenever the parent changes.
func (r *Router) SetStepsRemoved(n uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepsRemoved = n
}

// ApplyBmcaDecision forwards a per-port BMCA decision to the named
// port and updates which port (if any) is tracked as the Slave, so
// ProcessMessage knows which port's Sync/Follow_Up to forward.
func (r *Router) ApplyBmcaDecision(portNumber uint16, d port.BmcaDecision, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.ports[portNumber]
	if !ok {
		return
	}
	p.ApplyBmcaDecision(d, now)
	switch d {
	case port.BmcaSlave:
		r.slavePort = portNumber
	case port.BmcaMaster, port.BmcaPassive, port.BmcaListening:
		if r.slavePort == portNumber {
			r.slavePort = 0
		}
	}
}

// Tick advances every port's timers and returns the set of ports with
// due periodic sends, keyed by port number. BMCA execution itself is
// the C9 BMCA coordinator's job (it needs the cross-port Ebest view
// the coordinator, not the router, holds); Tick only services the
// per-port state machines this router composes.
func (r *Router) Tick(now time.Time) map[uint16]port.TickDue {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make(map[uint16]port.TickDue, len(r.ports))
	for num, p := range r.ports {
		due[num] = p.Tick(now)
	}
	return due
}

// ProcessMessage decodes raw, validates it, and dispatches it to the
// port it arrived on. portNumber must be a port this router composes.
// When the decoded message is a Sync or Follow_Up received on the
// currently selected Slave port, it is re-originated out of every
// Master port with stepsRemoved+1 and an accumulated correction field
// (§4.8); residence is the time this message was held by the local
// clock before being forwarded, supplied by the host since the core
// does not measure its own processing latency.
func (r *Router) ProcessMessage(ctx context.Context, portNumber uint16, raw []byte, rx time.Time, residence time.Duration) ([]ForwardedSync, error) {
	r.mu.Lock()
	p, ok := r.ports[portNumber]
	r.mu.Unlock()
	if !ok {
		return nil, errkind.ErrInvalidPortNumber
	}

	pkt, err := protocol.DecodePacket(raw)
	if err != nil {
		log.Warningf("boundary: port %d: dropping undecodable message: %v", portNumber, err)
		return nil, nil
	}

	switch m := pkt.(type) {
	case *protocol.Announce:
		if err := m.Validate(); err != nil {
			log.Warningf("boundary: port %d: invalid Announce: %v", portNumber, err)
			return nil, nil
		}
		if m.DomainNumber != r.domain {
			return nil, nil
		}
		p.RxAnnounce(rx)
		r.mu.Lock()
		r.foreignMasters[portNumber].Update(m.SourcePortIdentity, dataset.AnnounceRecord{
			GrandmasterIdentity:     m.GrandmasterIdentity,
			GrandmasterClockQuality: m.GrandmasterClockQuality,
			GrandmasterPriority1:    m.GrandmasterPriority1,
			GrandmasterPriority2:    m.GrandmasterPriority2,
			StepsRemoved:            m.StepsRemoved,
			TimeSource:              m.TimeSource,
			ReceivedAt:              rx,
		})
		r.mu.Unlock()
		return nil, nil

	case *protocol.SyncDelayReq:
		if err := m.Validate(); err != nil {
			log.Warningf("boundary: port %d: invalid message: %v", portNumber, err)
			return nil, nil
		}
		if m.MessageType() == protocol.MessageSync {
			p.Engine().AddT2(m.SequenceID, rx)
			if m.FlagField&protocol.FlagTwoStep == 0 {
				p.Engine().AddT1(m.SequenceID, m.OriginTimestamp.Time(), m.CorrectionField.Duration())
			}
			if portNumber == r.currentSlavePort() {
				return r.forward(portNumber, m, rx, residence), nil
			}
		} else {
			p.Engine().AddT3(m.SequenceID, rx)
		}
		return nil, nil

	case *protocol.FollowUp:
		if err := m.Validate(); err != nil {
			log.Warningf("boundary: port %d: invalid Follow_Up: %v", portNumber, err)
			return nil, nil
		}
		p.Engine().AddT1(m.SequenceID, m.PreciseOriginTimestamp.Time(), m.CorrectionField.Duration())
		return nil, nil

	case *protocol.DelayResp:
		if err := m.Validate(); err != nil {
			log.Warningf("boundary: port %d: invalid Delay_Resp: %v", portNumber, err)
			return nil, nil
		}
		if m.RequestingPortIdentity != p.Identity {
			log.Debugf("boundary: port %d: Delay_Resp for %s, not us", portNumber, m.RequestingPortIdentity)
			return nil, nil
		}
		p.Engine().AddT4(m.SequenceID, m.ReceiveTimestamp.Time(), m.CorrectionField.Duration())
		return nil, nil

	case *protocol.PDelayReq:
		if err := m.Validate(); err != nil {
			log.Warningf("boundary: port %d: invalid Pdelay_Req: %v", portNumber, err)
			return nil, nil
		}
		return nil, nil

	case *protocol.PDelayResp:
		if err := m.Validate(); err != nil {
			return nil, nil
		}
		p.Engine().AddPdelayResp(m.SequenceID, m.RequestReceiptTimestamp.Time(), m.CorrectionField.Duration())
		p.Engine().AddPdelayRespRx(m.SequenceID, rx)
		return nil, nil

	case *protocol.PDelayRespFollowUp:
		if err := m.Validate(); err != nil {
			return nil, nil
		}
		p.Engine().AddPdelayRespFollowUp(m.SequenceID, m.ResponseOriginTimestamp.Time(), m.CorrectionField.Duration())
		return nil, nil

	default:
		return nil, nil
	}
}

func (r *Router) currentSlavePort() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slavePort
}

// forward re-originates the Sync (and synthesizes a matching
// Follow_Up) out of every Master port, accumulating residence into
// the correction field, and fans the per-port sends out through
// PortIO with errgroup so one send failure doesn't block the others.
func (r *Router) forward(sourcePort uint16, sync *protocol.SyncDelayReq, rx time.Time, residence time.Duration) []ForwardedSync {
	r.mu.Lock()
	steps := r.stepsRemoved + 1
	masters := make([]uint16, 0, len(r.ports))
	for num, p := range r.ports {
		if num != sourcePort && p.State() == wire.PortStateMaster {
			masters = append(masters, num)
		}
	}
	identity := r.identity
	r.mu.Unlock()

	if len(masters) == 0 {
		return nil
	}

	correction := sync.CorrectionField.Add(wire.NewCorrectionField(float64(residence.Nanoseconds())))

	out := make([]ForwardedSync, len(masters))
	var g errgroup.Group
	for i, num := range masters {
		i, num := i, num
		fwd := ForwardedSync{
			PortNumber:   num,
			StepsRemoved: steps,
			Correction:   correction,
		}
		fwd.Sync = &protocol.SyncDelayReq{
			Header: protocol.Header{
				SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(protocol.MessageSync, 0),
				Version:         protocol.Version,
				DomainNumber:    r.domain,
				FlagField:       protocol.FlagTwoStep,
				CorrectionField: correction,
				SourcePortIdentity: wire.PortIdentity{
					ClockIdentity: identity,
					PortNumber:    num,
				},
				SequenceID: sync.SequenceID,
			},
			SyncDelayReqBody: protocol.SyncDelayReqBody{
				OriginTimestamp: wire.NewTimestamp(rx),
			},
		}
		fwd.FollowUp = &protocol.FollowUp{
			Header: protocol.Header{
				SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(protocol.MessageFollowUp, 0),
				Version:         protocol.Version,
				DomainNumber:    r.domain,
				CorrectionField: correction,
				SourcePortIdentity: wire.PortIdentity{
					ClockIdentity: identity,
					PortNumber:    num,
				},
				SequenceID: sync.SequenceID,
			},
			FollowUpBody: protocol.FollowUpBody{
				PreciseOriginTimestamp: sync.OriginTimestamp,
			},
		}
		out[i] = fwd

		if r.io == nil {
			continue
		}
		g.Go(func() error {
			if err := r.io.SendSync(num, fwd.Sync); err != nil {
				r.noteForwardFailure()
				return err
			}
			if err := r.io.SendFollowUp(num, fwd.FollowUp); err != nil {
				r.noteForwardFailure()
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warningf("boundary: forwarding Sync from port %d: %v", sourcePort, err)
	}
	return out
}

func (r *Router) noteForwardFailure() {
	r.mu.Lock()
	r.forwardFailures++
	r.mu.Unlock()
}

// ForwardFailures returns the count of failed forwarded sends.
func (r *Router) ForwardFailures() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forwardFailures
}
