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
	"encoding/binary"
	"fmt"

	"github.com/ptpengine/ptpcore/wire"
)

// TLVType is the tlvType field of a TLV (Table 52).
type TLVType uint16

const (
	TLVManagement                           TLVType = 0x0001
	TLVManagementErrorStatus                TLVType = 0x0002
	TLVOrganizationExtension                TLVType = 0x0003
	TLVRequestUnicastTransmission           TLVType = 0x0004
	TLVGrantUnicastTransmission             TLVType = 0x0005
	TLVCancelUnicastTransmission            TLVType = 0x0006
	TLVAcknowledgeCancelUnicastTransmission TLVType = 0x0007
	TLVPathTrace                            TLVType = 0x0008
	TLVAlternateTimeOffsetIndicator         TLVType = 0x0009
)

var tlvTypeNames = map[TLVType]string{
	TLVManagement:                           "MANAGEMENT",
	TLVManagementErrorStatus:                "MANAGEMENT_ERROR_STATUS",
	TLVOrganizationExtension:                "ORGANIZATION_EXTENSION",
	TLVRequestUnicastTransmission:           "REQUEST_UNICAST_TRANSMISSION",
	TLVGrantUnicastTransmission:             "GRANT_UNICAST_TRANSMISSION",
	TLVCancelUnicastTransmission:            "CANCEL_UNICAST_TRANSMISSION",
	TLVAcknowledgeCancelUnicastTransmission: "ACKNOWLEDGE_CANCEL_UNICAST_TRANSMISSION",
	TLVPathTrace:                            "PATH_TRACE",
	TLVAlternateTimeOffsetIndicator:         "ALTERNATE_TIME_OFFSET_INDICATOR",
}

func (t TLVType) String() string { return tlvTypeNames[t] }

// TLV abstracts any TLV appended to a message's TLVs slice.
type TLV interface {
	Type() TLVType
}

const tlvHeadSize = 4

// TLVHead is the tlvType/lengthField pair common to every TLV.
type TLVHead struct {
	TLVType     TLVType
	LengthField uint16
}

// Type implements the TLV interface.
func (t TLVHead) Type() TLVType { return t.TLVType }

func tlvHeadMarshalBinaryTo(t *TLVHead, b []byte) {
	binary.BigEndian.PutUint16(b, uint16(t.TLVType))
	binary.BigEndian.PutUint16(b[2:], t.LengthField)
}

func unmarshalTLVHeader(t *TLVHead, b []byte) error {
	if len(b) < tlvHeadSize {
		return fmt.Errorf("not enough data to decode TLV header")
	}
	t.TLVType = TLVType(binary.BigEndian.Uint16(b[0:]))
	t.LengthField = binary.BigEndian.Uint16(b[2:])
	return nil
}

func checkTLVLength(t *TLVHead, l, want int, strict bool) error {
	if strict && int(t.LengthField) != want {
		return fmt.Errorf("TLV %s: expected length %d, header says %d", t.TLVType, want, t.LengthField)
	}
	if int(t.LengthField) < want {
		return fmt.Errorf("TLV %s: expected length of at least %d, header says %d", t.TLVType, want, t.LengthField)
	}
	if tlvHeadSize+int(t.LengthField) > l {
		return fmt.Errorf("cannot decode TLV of length %d from %d bytes", tlvHeadSize+int(t.LengthField), l)
	}
	return nil
}

func writeTLVs(tlvs []TLV, b []byte) (int, error) {
	pos := 0
	for _, tlv := range tlvs {
		ttlv, ok := tlv.(BinaryMarshalerTo)
		if !ok {
			return 0, fmt.Errorf("TLV %s does not support MarshalBinaryTo", tlv.Type())
		}
		n, err := ttlv.MarshalBinaryTo(b[pos:])
		if err != nil {
			return 0, err
		}
		pos += n
	}
	return pos, nil
}

// readTLVs decodes TLVs from b up to maxLength bytes, appending to tlvs.
// A TLV type not in the implemented set is preserved as an UnknownTLV
// carrying its raw bytes, so re-serializing a message round-trips even
// through fields this engine doesn't interpret (management TLVs beyond
// the unicast-negotiation/path-trace set are not decoded further).
func readTLVs(tlvs []TLV, maxLength int, b []byte) ([]TLV, error) {
	pos := 0
	for pos+tlvHeadSize <= maxLength {
		tlvType := TLVType(binary.BigEndian.Uint16(b[pos:]))
		var tlv TLV
		switch tlvType {
		case TLVAcknowledgeCancelUnicastTransmission:
			t := &AcknowledgeCancelUnicastTransmissionTLV{}
			if err := t.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv = t
		case TLVGrantUnicastTransmission:
			t := &GrantUnicastTransmissionTLV{}
			if err := t.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv = t
		case TLVRequestUnicastTransmission:
			t := &RequestUnicastTransmissionTLV{}
			if err := t.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv = t
		case TLVCancelUnicastTransmission:
			t := &CancelUnicastTransmissionTLV{}
			if err := t.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv = t
		case TLVPathTrace:
			t := &PathTraceTLV{}
			if err := t.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv = t
		case TLVAlternateTimeOffsetIndicator:
			t := &AlternateTimeOffsetIndicatorTLV{}
			if err := t.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv = t
		default:
			t := &UnknownTLV{}
			if err := t.UnmarshalBinary(b[pos:]); err != nil {
				return tlvs, err
			}
			tlv = t
		}
		head := tlvHeadOf(tlv)
		tlvs = append(tlvs, tlv)
		pos += tlvHeadSize + int(head.LengthField)
	}
	return tlvs, nil
}

func tlvHeadOf(t TLV) TLVHead {
	switch v := t.(type) {
	case *AcknowledgeCancelUnicastTransmissionTLV:
		return v.TLVHead
	case *GrantUnicastTransmissionTLV:
		return v.TLVHead
	case *RequestUnicastTransmissionTLV:
		return v.TLVHead
	case *CancelUnicastTransmissionTLV:
		return v.TLVHead
	case *PathTraceTLV:
		return v.TLVHead
	case *AlternateTimeOffsetIndicatorTLV:
		return v.TLVHead
	case *UnknownTLV:
		return v.TLVHead
	default:
		return TLVHead{}
	}
}

// UnicastMsgTypeAndFlags packs a MessageType nibble with unicast
// negotiation flags (R and G) in the remaining bits of one byte.
type UnicastMsgTypeAndFlags uint8

// MsgType extracts the MessageType (low nibble).
func (u UnicastMsgTypeAndFlags) MsgType() MessageType { return MessageType(u & 0xf) }

// NewUnicastMsgTypeAndFlags packs a MessageType into the low nibble.
func NewUnicastMsgTypeAndFlags(msgType MessageType) UnicastMsgTypeAndFlags {
	return UnicastMsgTypeAndFlags(msgType)
}

// RequestUnicastTransmissionTLV is Table 110.
type RequestUnicastTransmissionTLV struct {
	TLVHead
	MsgTypeAndReserved    UnicastMsgTypeAndFlags
	LogInterMessagePeriod wire.LogInterval
	DurationField         uint32
}

// MarshalBinaryTo encodes the TLV into b.
func (t *RequestUnicastTransmissionTLV) MarshalBinaryTo(b []byte) (int, error) {
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	b[tlvHeadSize] = byte(t.MsgTypeAndReserved)
	b[tlvHeadSize+1] = byte(t.LogInterMessagePeriod)
	binary.BigEndian.PutUint32(b[tlvHeadSize+2:], t.DurationField)
	return tlvHeadSize + 6, nil
}

// UnmarshalBinary decodes the TLV from b.
func (t *RequestUnicastTransmissionTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 6, true); err != nil {
		return err
	}
	t.MsgTypeAndReserved = UnicastMsgTypeAndFlags(b[4])
	t.LogInterMessagePeriod = wire.LogInterval(b[5])
	t.DurationField = binary.BigEndian.Uint32(b[6:])
	return nil
}

// GrantUnicastTransmissionTLV is Table 111.
type GrantUnicastTransmissionTLV struct {
	TLVHead
	MsgTypeAndReserved    UnicastMsgTypeAndFlags
	LogInterMessagePeriod wire.LogInterval
	DurationField         uint32
	Reserved              uint8
	Renewal               uint8
}

// MarshalBinaryTo encodes the TLV into b.
func (t *GrantUnicastTransmissionTLV) MarshalBinaryTo(b []byte) (int, error) {
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	b[tlvHeadSize] = byte(t.MsgTypeAndReserved)
	b[tlvHeadSize+1] = byte(t.LogInterMessagePeriod)
	binary.BigEndian.PutUint32(b[tlvHeadSize+2:], t.DurationField)
	b[tlvHeadSize+6] = t.Reserved
	b[tlvHeadSize+7] = t.Renewal
	return tlvHeadSize + 8, nil
}

// UnmarshalBinary decodes the TLV from b.
func (t *GrantUnicastTransmissionTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 8, true); err != nil {
		return err
	}
	t.MsgTypeAndReserved = UnicastMsgTypeAndFlags(b[4])
	t.LogInterMessagePeriod = wire.LogInterval(b[5])
	t.DurationField = binary.BigEndian.Uint32(b[6:])
	t.Reserved = b[10]
	t.Renewal = b[11]
	return nil
}

// CancelUnicastTransmissionTLV is Table 112.
type CancelUnicastTransmissionTLV struct {
	TLVHead
	MsgTypeAndFlags UnicastMsgTypeAndFlags
	Reserved        uint8
}

// MarshalBinaryTo encodes the TLV into b.
func (t *CancelUnicastTransmissionTLV) MarshalBinaryTo(b []byte) (int, error) {
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	b[tlvHeadSize] = byte(t.MsgTypeAndFlags)
	b[tlvHeadSize+1] = t.Reserved
	return tlvHeadSize + 2, nil
}

// UnmarshalBinary decodes the TLV from b.
func (t *CancelUnicastTransmissionTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 2, true); err != nil {
		return err
	}
	t.MsgTypeAndFlags = UnicastMsgTypeAndFlags(b[4])
	t.Reserved = b[5]
	return nil
}

// AcknowledgeCancelUnicastTransmissionTLV is Table 113.
type AcknowledgeCancelUnicastTransmissionTLV struct {
	TLVHead
	MsgTypeAndFlags UnicastMsgTypeAndFlags
	Reserved        uint8
}

// MarshalBinaryTo encodes the TLV into b.
func (t *AcknowledgeCancelUnicastTransmissionTLV) MarshalBinaryTo(b []byte) (int, error) {
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	b[tlvHeadSize] = byte(t.MsgTypeAndFlags)
	b[tlvHeadSize+1] = t.Reserved
	return tlvHeadSize + 2, nil
}

// UnmarshalBinary decodes the TLV from b.
func (t *AcknowledgeCancelUnicastTransmissionTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 2, true); err != nil {
		return err
	}
	t.MsgTypeAndFlags = UnicastMsgTypeAndFlags(b[4])
	t.Reserved = b[5]
	return nil
}

// PathTraceTLV is Table 115: an accumulating list of the ClockIdentity
// of every instance an Announce message has passed through.
type PathTraceTLV struct {
	TLVHead
	PathSequence []wire.ClockIdentity
}

// MarshalBinaryTo encodes the TLV into b.
func (t *PathTraceTLV) MarshalBinaryTo(b []byte) (int, error) {
	t.LengthField = uint16(8 * len(t.PathSequence))
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	pos := tlvHeadSize
	for _, id := range t.PathSequence {
		binary.BigEndian.PutUint64(b[pos:pos+8], uint64(id))
		pos += 8
	}
	return pos, nil
}

// UnmarshalBinary decodes the TLV from b.
func (t *PathTraceTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 0, false); err != nil {
		return err
	}
	n := int(t.TLVHead.LengthField) / 8
	t.PathSequence = make([]wire.ClockIdentity, 0, n)
	for i := 0; i < n; i++ {
		pos := tlvHeadSize + i*8
		if pos+8 > len(b) {
			break
		}
		t.PathSequence = append(t.PathSequence, wire.ClockIdentity(binary.BigEndian.Uint64(b[pos:])))
	}
	return nil
}

// AlternateTimeOffsetIndicatorTLV is Table 116.
type AlternateTimeOffsetIndicatorTLV struct {
	TLVHead
	KeyField       uint8
	CurrentOffset  int32
	JumpSeconds    int32
	TimeOfNextJump [6]uint8 // uint48 seconds
	DisplayName    wire.PTPText
}

// MarshalBinaryTo encodes the TLV into b.
func (t *AlternateTimeOffsetIndicatorTLV) MarshalBinaryTo(b []byte) (int, error) {
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	b[tlvHeadSize] = t.KeyField
	binary.BigEndian.PutUint32(b[tlvHeadSize+1:], uint32(t.CurrentOffset))
	binary.BigEndian.PutUint32(b[tlvHeadSize+5:], uint32(t.JumpSeconds))
	copy(b[tlvHeadSize+9:], t.TimeOfNextJump[:])
	size := tlvHeadSize + 15
	if t.DisplayName != "" {
		dd, err := t.DisplayName.MarshalBinary()
		if err != nil {
			return 0, fmt.Errorf("writing AlternateTimeOffsetIndicatorTLV DisplayName: %w", err)
		}
		copy(b[tlvHeadSize+15:], dd)
		size += len(dd)
	}
	return size, nil
}

// UnmarshalBinary decodes the TLV from b.
func (t *AlternateTimeOffsetIndicatorTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 15, false); err != nil {
		return err
	}
	t.KeyField = b[tlvHeadSize]
	t.CurrentOffset = int32(binary.BigEndian.Uint32(b[tlvHeadSize+1:]))
	t.JumpSeconds = int32(binary.BigEndian.Uint32(b[tlvHeadSize+5:]))
	copy(t.TimeOfNextJump[:], b[tlvHeadSize+9:])
	if len(b) > tlvHeadSize+15 {
		if err := t.DisplayName.UnmarshalBinary(b[tlvHeadSize+15:]); err != nil {
			return fmt.Errorf("reading AlternateTimeOffsetIndicatorTLV DisplayName: %w", err)
		}
	}
	return nil
}

// UnknownTLV preserves the raw bytes of any TLV type this engine does
// not interpret, so decode-then-re-encode round-trips a message even
// through content beyond the implemented management/signalling skeleton.
type UnknownTLV struct {
	TLVHead
	Raw []byte
}

// MarshalBinaryTo encodes the TLV into b, replaying its raw bytes.
func (t *UnknownTLV) MarshalBinaryTo(b []byte) (int, error) {
	tlvHeadMarshalBinaryTo(&t.TLVHead, b)
	copy(b[tlvHeadSize:], t.Raw)
	return tlvHeadSize + len(t.Raw), nil
}

// UnmarshalBinary decodes the TLV header and stashes its body verbatim.
func (t *UnknownTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), 0, false); err != nil {
		return err
	}
	t.Raw = append([]byte(nil), b[tlvHeadSize:tlvHeadSize+int(t.LengthField)]...)
	return nil
}

// Signaling is a full SIGNALING message: a header, target port
// identity and a list of TLVs (used here for unicast negotiation and
// path trace, per spec's signalling/TLV-skeleton scope).
type Signaling struct {
	Header
	TargetPortIdentity wire.PortIdentity
	TLVs               []TLV
}

const signalingBodySize = 10

// MarshalBinaryTo encodes the Signaling message into b.
func (p *Signaling) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize+signalingBodySize {
		return 0, fmt.Errorf("not enough buffer to write Signaling")
	}
	n := headerMarshalBinaryTo(&p.Header, b)
	binary.BigEndian.PutUint64(b[n:], uint64(p.TargetPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[n+8:], p.TargetPortIdentity.PortNumber)
	pos := n + signalingBodySize
	tlvLen, err := writeTLVs(p.TLVs, b[pos:])
	return pos + tlvLen, err
}

// MarshalBinary converts the Signaling message to a freshly allocated []byte.
func (p *Signaling) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 256)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary decodes a Signaling message from b.
func (p *Signaling) UnmarshalBinary(b []byte) error {
	if len(b) < headerSize+signalingBodySize {
		return fmt.Errorf("not enough data to decode Signaling")
	}
	unmarshalHeader(&p.Header, b)
	if err := checkPacketLength(&p.Header, len(b)); err != nil {
		return err
	}
	n := headerSize
	p.TargetPortIdentity.ClockIdentity = wire.ClockIdentity(binary.BigEndian.Uint64(b[n:]))
	p.TargetPortIdentity.PortNumber = binary.BigEndian.Uint16(b[n+8:])
	pos := n + signalingBodySize
	var err error
	p.TLVs, err = readTLVs(p.TLVs, int(p.MessageLength)-pos, b[pos:])
	return err
}
