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

// Package protocol implements the IEEE 1588-2019 message catalog: the
// common header, the eight event/general message bodies, and the
// encoding.BinaryMarshaler/BinaryUnmarshaler pair each message needs to
// round-trip through the wire. All references are to IEEE 1588-2019
// table numbers. Grounded on facebook/time's ptp/protocol package, whose
// "interface smuggling" (Bytes/FromBytes falling back to reflection-based
// binary.Read/Write only when a type doesn't implement
// encoding.BinaryMarshaler) is kept verbatim here.
package protocol

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"

	"github.com/ptpengine/ptpcore/wire"
)

// MajorVersion/MinorVersion are the PTP protocol version this package speaks.
const (
	MajorVersion     uint8 = 2
	MinorVersion     uint8 = 1
	Version          uint8 = MinorVersion<<4 | MajorVersion
	MajorVersionMask uint8 = 0x0f
)

// Well-known UDP ports, per Annex E.
const (
	PortEvent   = 319
	PortGeneral = 320
)

// TrailingBytes accounts for the two reserved bytes PTP-over-UDPv6
// requires after every message so the UDP checksum is never compromised
// by an intermediate instance editing PTP fields in place.
const TrailingBytes = 2

var twoZeros = []byte{0, 0}

// MessageType is the messageType field of the common header (Table 36).
type MessageType uint8

const (
	MessageSync               MessageType = 0x0
	MessageDelayReq           MessageType = 0x1
	MessagePDelayReq          MessageType = 0x2
	MessagePDelayResp         MessageType = 0x3
	MessageFollowUp           MessageType = 0x8
	MessageDelayResp          MessageType = 0x9
	MessagePDelayRespFollowUp MessageType = 0xA
	MessageAnnounce           MessageType = 0xB
	MessageSignaling          MessageType = 0xC
	MessageManagement         MessageType = 0xD
)

var messageTypeNames = map[MessageType]string{
	MessageSync:               "SYNC",
	MessageDelayReq:           "DELAY_REQ",
	MessagePDelayReq:          "PDELAY_REQ",
	MessagePDelayResp:         "PDELAY_RESP",
	MessageFollowUp:           "FOLLOW_UP",
	MessageDelayResp:          "DELAY_RESP",
	MessagePDelayRespFollowUp: "PDELAY_RESP_FOLLOW_UP",
	MessageAnnounce:           "ANNOUNCE",
	MessageSignaling:          "SIGNALING",
	MessageManagement:         "MANAGEMENT",
}

func (m MessageType) String() string { return messageTypeNames[m] }

// SdoIDAndMsgType packs the transportSpecific/sdoId nibble with messageType.
type SdoIDAndMsgType uint8

// MsgType extracts the MessageType (low nibble).
func (m SdoIDAndMsgType) MsgType() MessageType { return MessageType(m & 0xf) }

// NewSdoIDAndMsgType packs a MessageType and an sdoId nibble together.
func NewSdoIDAndMsgType(msgType MessageType, sdoID uint8) SdoIDAndMsgType {
	return SdoIDAndMsgType(sdoID<<4 | uint8(msgType))
}

// ProbeMsgType peeks at the first byte of a datagram to find its MessageType
// without a full decode, useful for demultiplexing before allocating.
func ProbeMsgType(data []byte) (MessageType, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("not enough data to probe message type")
	}
	return SdoIDAndMsgType(data[0]).MsgType(), nil
}

// DefaultTargetPortIdentity is the PortIdentity value meaning "any port",
// used as the destination of multicast-equivalent unicast messages.
var DefaultTargetPortIdentity = wire.PortIdentity{
	ClockIdentity: 0xffffffffffffffff,
	PortNumber:    0xffff,
}

// flagField bits, Table 37.
const (
	FlagAlternateMaster  uint16 = 1 << (8 + 0)
	FlagTwoStep          uint16 = 1 << (8 + 1)
	FlagUnicast          uint16 = 1 << (8 + 2)
	FlagProfileSpecific1 uint16 = 1 << (8 + 5)
	FlagProfileSpecific2 uint16 = 1 << (8 + 6)

	FlagLeap61                   uint16 = 1 << 0
	FlagLeap59                   uint16 = 1 << 1
	FlagCurrentUTCOffsetValid    uint16 = 1 << 2
	FlagPTPTimescale             uint16 = 1 << 3
	FlagTimeTraceable            uint16 = 1 << 4
	FlagFrequencyTraceable       uint16 = 1 << 5
	FlagSynchronizationUncertain uint16 = 1 << 6
)

// Header is the common PTP message header (Table 35).
type Header struct {
	SdoIDAndMsgType     SdoIDAndMsgType
	Version             uint8
	MessageLength       uint16
	DomainNumber        uint8
	MinorSdoID          uint8
	FlagField           uint16
	CorrectionField     wire.CorrectionField
	MessageTypeSpecific uint32
	SourcePortIdentity  wire.PortIdentity
	SequenceID          uint16
	ControlField        uint8
	LogMessageInterval  wire.LogInterval
}

const headerSize = 34

// unmarshalHeader is a free function, not Header.UnmarshalBinary, so
// embedding Header in a message body doesn't give that body a (wrong,
// header-only) UnmarshalBinary implementation for free.
func unmarshalHeader(h *Header, b []byte) {
	h.SdoIDAndMsgType = SdoIDAndMsgType(b[0])
	h.Version = b[1]
	h.MessageLength = binary.BigEndian.Uint16(b[2:])
	h.DomainNumber = b[4]
	h.MinorSdoID = b[5]
	h.FlagField = binary.BigEndian.Uint16(b[6:])
	h.CorrectionField = wire.CorrectionField(binary.BigEndian.Uint64(b[8:]))
	h.MessageTypeSpecific = binary.BigEndian.Uint32(b[16:])
	h.SourcePortIdentity.ClockIdentity = wire.ClockIdentity(binary.BigEndian.Uint64(b[20:]))
	h.SourcePortIdentity.PortNumber = binary.BigEndian.Uint16(b[28:])
	h.SequenceID = binary.BigEndian.Uint16(b[30:])
	h.ControlField = b[32]
	h.LogMessageInterval = wire.LogInterval(b[33])
}

func headerMarshalBinaryTo(h *Header, b []byte) int {
	b[0] = byte(h.SdoIDAndMsgType)
	b[1] = h.Version
	binary.BigEndian.PutUint16(b[2:], h.MessageLength)
	b[4] = h.DomainNumber
	b[5] = h.MinorSdoID
	binary.BigEndian.PutUint16(b[6:], h.FlagField)
	binary.BigEndian.PutUint64(b[8:], uint64(h.CorrectionField))
	binary.BigEndian.PutUint32(b[16:], h.MessageTypeSpecific)
	binary.BigEndian.PutUint64(b[20:], uint64(h.SourcePortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[28:], h.SourcePortIdentity.PortNumber)
	binary.BigEndian.PutUint16(b[30:], h.SequenceID)
	b[32] = h.ControlField
	b[33] = byte(h.LogMessageInterval)
	return headerSize
}

func checkPacketLength(h *Header, l int) error {
	if int(h.MessageLength) > l {
		return fmt.Errorf("cannot decode message of length %d from %d bytes", h.MessageLength, l)
	}
	return nil
}

// MessageType returns the header's MessageType.
func (h *Header) MessageType() MessageType { return h.SdoIDAndMsgType.MsgType() }

// SetSequence sets the sequenceId field.
func (h *Header) SetSequence(seq uint16) { h.SequenceID = seq }

// AnnounceBody is the Announce message's message-specific fields (Table 43).
type AnnounceBody struct {
	OriginTimestamp         wire.Timestamp
	CurrentUTCOffset        int16
	Reserved                uint8
	GrandmasterPriority1    uint8
	GrandmasterClockQuality wire.ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     wire.ClockIdentity
	StepsRemoved            uint16
	TimeSource              wire.TimeSource
}

// Announce is a full ANNOUNCE message.
type Announce struct {
	Header
	AnnounceBody
	TLVs []TLV
}

// MarshalBinaryTo encodes the Announce into b, returning bytes written.
func (p *Announce) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize+30 {
		return 0, fmt.Errorf("not enough buffer to write Announce")
	}
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.OriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.OriginTimestamp.Nanoseconds)
	binary.BigEndian.PutUint16(b[n+10:], uint16(p.CurrentUTCOffset))
	b[n+12] = p.Reserved
	b[n+13] = p.GrandmasterPriority1
	b[n+14] = byte(p.GrandmasterClockQuality.ClockClass)
	b[n+15] = byte(p.GrandmasterClockQuality.ClockAccuracy)
	binary.BigEndian.PutUint16(b[n+16:], p.GrandmasterClockQuality.OffsetScaledLogVariance)
	b[n+18] = p.GrandmasterPriority2
	binary.BigEndian.PutUint64(b[n+19:], uint64(p.GrandmasterIdentity))
	binary.BigEndian.PutUint16(b[n+27:], p.StepsRemoved)
	b[n+29] = byte(p.TimeSource)
	pos := n + 30
	tlvLen, err := writeTLVs(p.TLVs, b[pos:])
	return pos + tlvLen, err
}

// UnmarshalBinary decodes an Announce from b.
func (p *Announce) UnmarshalBinary(b []byte) error {
	if len(b) < headerSize+30 {
		return fmt.Errorf("not enough data to decode Announce")
	}
	unmarshalHeader(&p.Header, b)
	if err := checkPacketLength(&p.Header, len(b)); err != nil {
		return err
	}
	n := headerSize
	copy(p.OriginTimestamp.Seconds[:], b[n:])
	p.OriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[n+6:])
	p.CurrentUTCOffset = int16(binary.BigEndian.Uint16(b[n+10:]))
	p.Reserved = b[n+12]
	p.GrandmasterPriority1 = b[n+13]
	p.GrandmasterClockQuality.ClockClass = wire.ClockClass(b[n+14])
	p.GrandmasterClockQuality.ClockAccuracy = wire.ClockAccuracy(b[n+15])
	p.GrandmasterClockQuality.OffsetScaledLogVariance = binary.BigEndian.Uint16(b[n+16:])
	p.GrandmasterPriority2 = b[n+18]
	p.GrandmasterIdentity = wire.ClockIdentity(binary.BigEndian.Uint64(b[n+19:]))
	p.StepsRemoved = binary.BigEndian.Uint16(b[n+27:])
	p.TimeSource = wire.TimeSource(b[n+29])
	pos := n + 30
	var err error
	p.TLVs, err = readTLVs(p.TLVs, int(p.MessageLength)-pos, b[pos:])
	return err
}

// MarshalBinary converts the Announce to a freshly allocated []byte.
func (p *Announce) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 508)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// SyncDelayReqBody is shared by Sync and Delay_Req (Table 44).
type SyncDelayReqBody struct {
	OriginTimestamp wire.Timestamp
}

// SyncDelayReq is a full SYNC or DELAY_REQ message (they share a body).
type SyncDelayReq struct {
	Header
	SyncDelayReqBody
	TLVs []TLV
}

// MarshalBinaryTo encodes the message into b.
func (p *SyncDelayReq) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize+10 {
		return 0, fmt.Errorf("not enough buffer to write SyncDelayReq")
	}
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.OriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.OriginTimestamp.Nanoseconds)
	pos := n + 10
	tlvLen, err := writeTLVs(p.TLVs, b[pos:])
	return pos + tlvLen, err
}

// MarshalBinary converts the message to a freshly allocated []byte.
func (p *SyncDelayReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 50)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary decodes a Sync/Delay_Req message from b.
func (p *SyncDelayReq) UnmarshalBinary(b []byte) error {
	if len(b) < headerSize+10 {
		return fmt.Errorf("not enough data to decode SyncDelayReq")
	}
	unmarshalHeader(&p.Header, b)
	if err := checkPacketLength(&p.Header, len(b)); err != nil {
		return err
	}
	copy(p.OriginTimestamp.Seconds[:], b[headerSize:])
	p.OriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	pos := headerSize + 10
	var err error
	p.TLVs, err = readTLVs(p.TLVs, int(p.MessageLength)-pos, b[pos:])
	return err
}

// FollowUpBody is the Follow_Up message-specific field (Table 45).
type FollowUpBody struct {
	PreciseOriginTimestamp wire.Timestamp
}

// FollowUp is a full FOLLOW_UP message.
type FollowUp struct {
	Header
	FollowUpBody
}

// MarshalBinaryTo encodes the FollowUp into b.
func (p *FollowUp) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize+10 {
		return 0, fmt.Errorf("not enough buffer to write FollowUp")
	}
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.PreciseOriginTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.PreciseOriginTimestamp.Nanoseconds)
	return n + 10, nil
}

// MarshalBinary converts the FollowUp to a freshly allocated []byte.
func (p *FollowUp) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 44)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary decodes a FollowUp from b.
func (p *FollowUp) UnmarshalBinary(b []byte) error {
	if len(b) < headerSize+10 {
		return fmt.Errorf("not enough data to decode FollowUp")
	}
	unmarshalHeader(&p.Header, b)
	if err := checkPacketLength(&p.Header, len(b)); err != nil {
		return err
	}
	copy(p.PreciseOriginTimestamp.Seconds[:], b[headerSize:])
	p.PreciseOriginTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	return nil
}

// DelayRespBody is the Delay_Resp message-specific fields (Table 46).
type DelayRespBody struct {
	ReceiveTimestamp       wire.Timestamp
	RequestingPortIdentity wire.PortIdentity
}

// DelayResp is a full DELAY_RESP message.
type DelayResp struct {
	Header
	DelayRespBody
}

// MarshalBinaryTo encodes the DelayResp into b.
func (p *DelayResp) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize+20 {
		return 0, fmt.Errorf("not enough buffer to write DelayResp")
	}
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.ReceiveTimestamp.Seconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.ReceiveTimestamp.Nanoseconds)
	binary.BigEndian.PutUint64(b[n+10:], uint64(p.RequestingPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[n+18:], p.RequestingPortIdentity.PortNumber)
	return n + 20, nil
}

// MarshalBinary converts the DelayResp to a freshly allocated []byte.
func (p *DelayResp) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 54)
	n, err := p.MarshalBinaryTo(buf)
	return buf[:n], err
}

// UnmarshalBinary decodes a DelayResp from b.
func (p *DelayResp) UnmarshalBinary(b []byte) error {
	if len(b) < headerSize+20 {
		return fmt.Errorf("not enough data to decode DelayResp")
	}
	unmarshalHeader(&p.Header, b)
	if err := checkPacketLength(&p.Header, len(b)); err != nil {
		return err
	}
	copy(p.ReceiveTimestamp.Seconds[:], b[headerSize:])
	p.ReceiveTimestamp.Nanoseconds = binary.BigEndian.Uint32(b[headerSize+6:])
	p.RequestingPortIdentity.ClockIdentity = wire.ClockIdentity(binary.BigEndian.Uint64(b[headerSize+10:]))
	p.RequestingPortIdentity.PortNumber = binary.BigEndian.Uint16(b[headerSize+18:])
	return nil
}

// PDelayReqBody is the Pdelay_Req message-specific fields (Table 47).
type PDelayReqBody struct {
	OriginTimestamp wire.Timestamp
	Reserved        [10]uint8
}

// PDelayReq is a full PDELAY_REQ message.
type PDelayReq struct {
	Header
	PDelayReqBody
}

// PDelayRespBody is the Pdelay_Resp message-specific fields (Table 48).
type PDelayRespBody struct {
	RequestReceiptTimestamp wire.Timestamp
	RequestingPortIdentity  wire.PortIdentity
}

// PDelayResp is a full PDELAY_RESP message.
type PDelayResp struct {
	Header
	PDelayRespBody
}

// PDelayRespFollowUpBody is the Pdelay_Resp_Follow_Up fields (Table 49).
type PDelayRespFollowUpBody struct {
	ResponseOriginTimestamp wire.Timestamp
	RequestingPortIdentity  wire.PortIdentity
}

// PDelayRespFollowUp is a full PDELAY_RESP_FOLLOW_UP message.
type PDelayRespFollowUp struct {
	Header
	PDelayRespFollowUpBody
}

// Packet abstracts every message type the catalog defines.
type Packet interface {
	MessageType() MessageType
	SetSequence(uint16)
}

// BinaryMarshalerTo is implemented by messages that can marshal directly
// into a caller-supplied buffer, avoiding an allocation per send.
type BinaryMarshalerTo interface {
	MarshalBinaryTo([]byte) (int, error)
}

// BytesTo marshals p into buf using its optimized path, appending the
// two reserved UDPv6-checksum-safety bytes.
func BytesTo(p BinaryMarshalerTo, buf []byte) (int, error) {
	n, err := p.MarshalBinaryTo(buf)
	if err != nil {
		return 0, err
	}
	buf[n] = 0
	buf[n+1] = 0
	return n + 2, nil
}

// Bytes converts any Packet to a freshly allocated []byte. Messages that
// implement encoding.BinaryMarshaler (variable-length bodies, TLVs) use
// that; everything else falls back to a reflection-based binary.Write
// over its fixed-size struct layout.
func Bytes(p Packet) ([]byte, error) {
	if pp, ok := p.(encoding.BinaryMarshaler); ok {
		b, err := pp.MarshalBinary()
		return append(b, twoZeros...), err
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, p); err != nil {
		return nil, err
	}
	err := binary.Write(&buf, binary.BigEndian, twoZeros)
	return buf.Bytes(), err
}

// FromBytes decodes raw into p, preferring p's encoding.BinaryUnmarshaler
// implementation when present.
func FromBytes(raw []byte, p Packet) error {
	if pp, ok := p.(encoding.BinaryUnmarshaler); ok {
		return pp.UnmarshalBinary(raw)
	}
	return binary.Read(bytes.NewReader(raw), binary.BigEndian, p)
}

// DecodePacket is the single entry point for turning raw UDP payload
// bytes into a typed Packet, switching on the common header's messageType.
func DecodePacket(b []byte) (Packet, error) {
	head := &Header{}
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, head); err != nil {
		return nil, err
	}
	var p Packet
	switch head.MessageType() {
	case MessageSync, MessageDelayReq:
		p = &SyncDelayReq{}
	case MessagePDelayReq:
		p = &PDelayReq{}
	case MessagePDelayResp:
		p = &PDelayResp{}
	case MessageFollowUp:
		p = &FollowUp{}
	case MessageDelayResp:
		p = &DelayResp{}
	case MessagePDelayRespFollowUp:
		p = &PDelayRespFollowUp{}
	case MessageAnnounce:
		p = &Announce{}
	case MessageSignaling:
		p = &Signaling{}
	default:
		return nil, fmt.Errorf("unsupported message type %s", head.MessageType())
	}
	if err := FromBytes(b, p); err != nil {
		return nil, err
	}
	return p, nil
}
