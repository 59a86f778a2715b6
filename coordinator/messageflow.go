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
	log "github.com/sirupsen/logrus"

	"github.com/ptpengine/ptpcore/protocol"
)

// validator is implemented by every protocol message's Validate method
// (protocol/validate.go). Declared locally since protocol.Packet
// itself doesn't carry it — not every caller of DecodePacket wants
// validation forced on it.
type validator interface {
	Validate() error
}

// MessageFlowConfig fixes the domain this clock instance serves;
// messages addressed to any other domain are dropped per §4.2's
// per-domain filtering.
type MessageFlowConfig struct {
	Domain uint8
}

// Handlers are the sinks a message-flow coordinator dispatches decoded,
// validated, in-domain messages to. A nil handler silently drops
// messages of that kind rather than erroring, so a caller only wires
// the subset it cares about (e.g. an ordinary clock has no PDelay
// handlers under the E2E delay mechanism).
type Handlers struct {
	OnAnnounce           func(*protocol.Announce)
	OnSync               func(*protocol.SyncDelayReq)
	OnDelayReq           func(*protocol.SyncDelayReq)
	OnFollowUp           func(*protocol.FollowUp)
	OnDelayResp          func(*protocol.DelayResp)
	OnPDelayReq          func(*protocol.PDelayReq)
	OnPDelayResp         func(*protocol.PDelayResp)
	OnPDelayRespFollowUp func(*protocol.PDelayRespFollowUp)
	OnSignaling          func(*protocol.Signaling)
}

// FlowStats counts what a message-flow coordinator has seen.
type FlowStats struct {
	Decoded          uint64
	DecodeErrors     uint64
	ValidationErrors uint64
	DomainMismatches uint64
	Dispatched       uint64
}

// MessageFlowCoordinator is the single entry point a host feeds raw
// received bytes through: it decodes, validates, filters by domain,
// and routes the result to the matching Handlers callback — the
// dispatch switch boundary.Router.ProcessMessage also performs,
// factored out here as a standalone coordinator for hosts (an
// ordinary clock with one port) that don't need a Router's multi-port
// forwarding.
type MessageFlowCoordinator struct {
	cfg      MessageFlowConfig
	handlers Handlers
	running  bool
	stats    FlowStats
}

// NewMessageFlowCoordinator returns a stopped coordinator bound to cfg
// and handlers.
func NewMessageFlowCoordinator(cfg MessageFlowConfig, handlers Handlers) *MessageFlowCoordinator {
	return &MessageFlowCoordinator{cfg: cfg, handlers: handlers}
}

func (c *MessageFlowCoordinator) Start() { c.running = true }
func (c *MessageFlowCoordinator) Stop()  { c.running = false }

// Reset clears accumulated statistics.
func (c *MessageFlowCoordinator) Reset() { c.stats = FlowStats{} }

// Dispatch decodes raw and routes it to the matching Handlers
// callback. It is a no-op while stopped. A decode or validation
// failure is counted and logged, not returned, since a dropped
// malformed or off-domain message is normal PTP traffic, not a host
// error.
func (c *MessageFlowCoordinator) Dispatch(raw []byte) {
	if !c.running {
		return
	}

	pkt, err := protocol.DecodePacket(raw)
	if err != nil {
		c.stats.DecodeErrors++
		log.Debugf("message flow: undecodable message: %v", err)
		return
	}
	c.stats.Decoded++

	if v, ok := pkt.(validator); ok {
		if err := v.Validate(); err != nil {
			c.stats.ValidationErrors++
			log.Debugf("message flow: invalid %s: %v", pkt.MessageType(), err)
			return
		}
	}

	if domain, ok := domainOf(pkt); ok && domain != c.cfg.Domain {
		c.stats.DomainMismatches++
		return
	}

	switch m := pkt.(type) {
	case *protocol.Announce:
		c.dispatch(c.handlers.OnAnnounce != nil, func() { c.handlers.OnAnnounce(m) })
	case *protocol.SyncDelayReq:
		if m.MessageType() == protocol.MessageSync {
			c.dispatch(c.handlers.OnSync != nil, func() { c.handlers.OnSync(m) })
		} else {
			c.dispatch(c.handlers.OnDelayReq != nil, func() { c.handlers.OnDelayReq(m) })
		}
	case *protocol.FollowUp:
		c.dispatch(c.handlers.OnFollowUp != nil, func() { c.handlers.OnFollowUp(m) })
	case *protocol.DelayResp:
		c.dispatch(c.handlers.OnDelayResp != nil, func() { c.handlers.OnDelayResp(m) })
	case *protocol.PDelayReq:
		c.dispatch(c.handlers.OnPDelayReq != nil, func() { c.handlers.OnPDelayReq(m) })
	case *protocol.PDelayResp:
		c.dispatch(c.handlers.OnPDelayResp != nil, func() { c.handlers.OnPDelayResp(m) })
	case *protocol.PDelayRespFollowUp:
		c.dispatch(c.handlers.OnPDelayRespFollowUp != nil, func() { c.handlers.OnPDelayRespFollowUp(m) })
	case *protocol.Signaling:
		c.dispatch(c.handlers.OnSignaling != nil, func() { c.handlers.OnSignaling(m) })
	}
}

func (c *MessageFlowCoordinator) dispatch(ready bool, call func()) {
	if !ready {
		return
	}
	c.stats.Dispatched++
	call()
}

// domainOf extracts the embedded Header's DomainNumber. Every concrete
// message type embeds Header directly, but protocol.Packet doesn't
// expose it, so this is a type switch rather than an interface method.
func domainOf(pkt protocol.Packet) (uint8, bool) {
	switch m := pkt.(type) {
	case *protocol.Announce:
		return m.DomainNumber, true
	case *protocol.SyncDelayReq:
		return m.DomainNumber, true
	case *protocol.FollowUp:
		return m.DomainNumber, true
	case *protocol.DelayResp:
		return m.DomainNumber, true
	case *protocol.PDelayReq:
		return m.DomainNumber, true
	case *protocol.PDelayResp:
		return m.DomainNumber, true
	case *protocol.PDelayRespFollowUp:
		return m.DomainNumber, true
	case *protocol.Signaling:
		return m.DomainNumber, true
	default:
		return 0, false
	}
}

// GetStatistics returns a copy of the accumulated counters.
func (c *MessageFlowCoordinator) GetStatistics() FlowStats { return c.stats }

// GetHealthStatus reports HealthConverging before any message has been
// seen, HealthDegraded once validation/decode failures exceed a fifth
// of traffic seen, HealthCritical once they are the majority, and
// HealthSynchronized otherwise. Unlike the BMCA
// and sync coordinators this isn't a clock-quality signal, only a
// traffic-quality one — a caller composing all three health statuses
// should weight it accordingly.
func (c *MessageFlowCoordinator) GetHealthStatus() HealthStatus {
	total := c.stats.Decoded + c.stats.DecodeErrors
	if total == 0 {
		return HealthConverging
	}
	bad := c.stats.DecodeErrors + c.stats.ValidationErrors
	switch {
	case bad*2 > total:
		return HealthCritical
	case bad*5 > total:
		return HealthDegraded
	default:
		return HealthSynchronized
	}
}
