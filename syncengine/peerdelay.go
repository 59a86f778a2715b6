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

package syncengine

import "time"

// peerDelayCache holds the four Pdelay timestamps (11.4) keyed by the
// Pdelay_Req sequence ID: t1 (local Pdelay_Req departure), t2 (peer's
// Pdelay_Req arrival, carried in Pdelay_Resp), t3 (peer's Pdelay_Resp
// departure, carried in Pdelay_Resp_Follow_Up for a two-step peer),
// t4 (local Pdelay_Resp arrival).
type peerDelayCache struct {
	t1, t2, t3, t4       time.Time
	cResp, cFollowUp     time.Duration
}

func (c *peerDelayCache) complete() bool {
	return !c.t1.IsZero() && !c.t2.IsZero() && !c.t3.IsZero() && !c.t4.IsZero()
}

func (e *Engine) peerEntry(seq uint16) *peerDelayCache {
	v, ok := e.peerCache[seq]
	if !ok {
		v = &peerDelayCache{}
		e.peerCache[seq] = v
	}
	return v
}

// AddPdelayReqTx records the local departure time (t1) of a Pdelay_Req.
func (e *Engine) AddPdelayReqTx(seq uint16, t1 time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peerEntry(seq).t1 = t1
}

// AddPdelayResp records the peer's Pdelay_Req receipt time (t2, from
// Pdelay_Resp.requestReceiptTimestamp) and Pdelay_Resp's correction
// field.
func (e *Engine) AddPdelayResp(seq uint16, t2 time.Time, correction time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.peerEntry(seq)
	v.t2 = t2
	v.cResp = correction
}

// AddPdelayRespFollowUp records the peer's Pdelay_Resp departure time
// (t3, from Pdelay_Resp_Follow_Up.responseOriginTimestamp) for a
// two-step peer, plus that message's correction field. A one-step
// peer carries t3 in Pdelay_Resp itself; callers of a one-step peer
// should call this directly with Pdelay_Resp's own origin timestamp
// and a zero correction.
func (e *Engine) AddPdelayRespFollowUp(seq uint16, t3 time.Time, correction time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.peerEntry(seq)
	v.t3 = t3
	v.cFollowUp = correction
}

// AddPdelayRespRx records the local arrival time (t4) of Pdelay_Resp.
func (e *Engine) AddPdelayRespRx(seq uint16, t4 time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peerEntry(seq).t4 = t4
}

// ComputePeerDelay finds the peer cache entry for seq, and if all four
// Pdelay timestamps are present, computes the P2P mean path delay
// (§4.6):
//
//	mean_path_delay = ((t4 - t1) - (t3 - t2 - c_resp - c_followup)) / 2
//
// A negative result is a validation failure per the §3 invariant: it
// is discarded, counted, and does not update the engine's established
// peer delay (used by OffsetP2P). The cache entry for seq is cleared
// whether or not the result is accepted.
func (e *Engine) ComputePeerDelay(seq uint16) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.peerCache[seq]
	if !ok || !v.complete() {
		return 0, ErrNoSample
	}
	delete(e.peerCache, seq)

	turnaround := v.t3.Sub(v.t2) - v.cResp - v.cFollowUp
	delay := (v.t4.Sub(v.t1) - turnaround) / 2
	if delay < 0 {
		e.negativeDelayCount++
		return 0, ErrNegativeDelay
	}

	e.peerDelay = delay
	e.havePeerDelay = true
	return delay, nil
}

// PeerDelay returns the most recently established P2P mean path
// delay and whether one has been computed yet.
func (e *Engine) PeerDelay() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerDelay, e.havePeerDelay
}

// OffsetP2P computes offset-from-master in P2P mode (§4.6) from the
// t1/t2 of a Sync/Follow_Up pair already recorded via AddT1/AddT2
// (the same E2E cache; P2P mode never populates t3/t4 on it) and the
// engine's established peer delay:
//
//	offset = t2 - t1 - c_sync - mean_path_delay
//
// It feeds the result into the same stability trackers Compute uses,
// so Qualified works identically under either delay mechanism. Returns
// ErrNoSample if t1/t2 for seq are incomplete, or if no peer delay has
// been established yet.
func (e *Engine) OffsetP2P(seq uint16) (Sample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.cache[seq]
	if !ok || v.T1.IsZero() || v.T2.IsZero() {
		return Sample{}, ErrNoSample
	}
	if !e.havePeerDelay {
		return Sample{}, ErrNoSample
	}
	delete(e.cache, seq)

	offset := v.T2.Sub(v.T1) - v.C1 - e.peerDelay
	e.observeStability(offset, e.peerDelay)

	return Sample{SequenceID: seq, Offset: offset, Delay: e.peerDelay, T2: v.T2}, nil
}
