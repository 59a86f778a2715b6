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

package protocol

import (
	"github.com/ptpengine/ptpcore/errkind"
)

// Validate checks the invariants §4.2 lists for every message on top
// of what UnmarshalBinary already enforces structurally (buffer
// bounds): protocol version, reserved fields, timestamp sanity and
// stepsRemoved range. It never returns a bare error — always an
// *errkind.Error of KindValidation, so callers can count validation
// failures without string matching, per §7's propagation policy
// (validation errors are dropped and counted, never escalated).
func (h *Header) Validate() error {
	if h.Version&MajorVersionMask != MajorVersion {
		return errkind.ErrInvalidVersion
	}
	if int(h.MessageLength) < headerSize {
		return errkind.ErrInvalidLength
	}
	return nil
}

// Validate checks an Announce beyond header validation: origin
// timestamp sanity and the stepsRemoved <= 255 invariant. StepsRemoved
// is already a uint16 field on the wire (Table 43 widens it from the
// logical u8 count), so the u8-cast-overflow case from §8's boundary
// behavior ("256 is InvalidStepsRemoved") is checked explicitly here
// rather than relying on Go's type system to reject it.
func (p *Announce) Validate() error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	if err := p.OriginTimestamp.Validate(); err != nil {
		return err
	}
	if p.StepsRemoved > 255 {
		return errkind.ErrInvalidStepsRemoved
	}
	return nil
}

// Validate checks a Sync/Delay_Req: header plus origin timestamp.
func (p *SyncDelayReq) Validate() error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	return p.OriginTimestamp.Validate()
}

// Validate checks a Follow_Up: header plus precise origin timestamp.
func (p *FollowUp) Validate() error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	return p.PreciseOriginTimestamp.Validate()
}

// Validate checks a Delay_Resp: header plus receive timestamp.
func (p *DelayResp) Validate() error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	return p.ReceiveTimestamp.Validate()
}

// Validate checks a Pdelay_Req: header, origin timestamp, and the
// zero-reserved-field invariant §4.2 calls out specifically for this
// message (the Reserved bytes padding it to DelayResp's size must be
// all-zero).
func (p *PDelayReq) Validate() error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	if err := p.OriginTimestamp.Validate(); err != nil {
		return err
	}
	for _, b := range p.Reserved {
		if b != 0 {
			return errkind.ErrInvalidReservedField
		}
	}
	return nil
}

// Validate checks a Pdelay_Resp: header plus request-receipt timestamp.
func (p *PDelayResp) Validate() error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	return p.RequestReceiptTimestamp.Validate()
}

// Validate checks a Pdelay_Resp_Follow_Up: header plus response origin
// timestamp.
func (p *PDelayRespFollowUp) Validate() error {
	if err := p.Header.Validate(); err != nil {
		return err
	}
	return p.ResponseOriginTimestamp.Validate()
}

// Validate checks a Signaling message: header only (the TLV sequence
// tolerates unknown types by construction, per readTLVs).
func (p *Signaling) Validate() error {
	return p.Header.Validate()
}
