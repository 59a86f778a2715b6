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

// Package wire implements the fixed-size binary encodings for the IEEE
// 1588-2019 data types that PTP messages and data sets are built from:
// clock and port identities, timestamps, time intervals, correction
// fields and the small enumerations (clock class/accuracy, port state,
// time source, transport type).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"
)

const twoPow16 = 65536

// ClockIdentity uniquely identifies a PTP instance (clock) network-wide.
type ClockIdentity uint64

func (c ClockIdentity) String() string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(c))
	return fmt.Sprintf("%02x%02x%02x.%02x%02x.%02x%02x%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}

// MAC recovers the EUI-48 MAC address a ClockIdentity was derived from.
func (c ClockIdentity) MAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	mac[0] = byte(c >> 56)
	mac[1] = byte(c >> 48)
	mac[2] = byte(c >> 40)
	mac[3] = byte(c >> 16)
	mac[4] = byte(c >> 8)
	mac[5] = byte(c)
	return mac
}

// NewClockIdentity builds a ClockIdentity from an EUI-48 or EUI-64 MAC.
func NewClockIdentity(mac net.HardwareAddr) (ClockIdentity, error) {
	var b [8]byte
	switch len(mac) {
	case 6:
		b[0], b[1], b[2] = mac[0], mac[1], mac[2]
		b[3], b[4] = 0xFF, 0xFE
		b[5], b[6], b[7] = mac[3], mac[4], mac[5]
	case 8:
		copy(b[:], mac)
	default:
		return 0, fmt.Errorf("unsupported MAC %v, must be EUI-48 or EUI-64", mac)
	}
	return ClockIdentity(binary.BigEndian.Uint64(b[:])), nil
}

// PortIdentity identifies one port of a PTP instance.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

func (p PortIdentity) String() string {
	return fmt.Sprintf("%s-%d", p.ClockIdentity, p.PortNumber)
}

// Compare returns -1/0/1 the way sort.Interface-adjacent APIs expect:
// by ClockIdentity first, then by PortNumber.
func (p PortIdentity) Compare(q PortIdentity) int {
	switch {
	case p.ClockIdentity < q.ClockIdentity:
		return -1
	case p.ClockIdentity > q.ClockIdentity:
		return 1
	}
	switch {
	case p.PortNumber < q.PortNumber:
		return -1
	case p.PortNumber > q.PortNumber:
		return 1
	}
	return 0
}

// Less reports whether p sorts before q.
func (p PortIdentity) Less(q PortIdentity) bool { return p.Compare(q) == -1 }

// seconds48 is the 48-bit big-endian seconds-since-epoch wire encoding.
type seconds48 [6]uint8

func (s seconds48) empty() bool { return s == seconds48{} }

func (s seconds48) seconds() uint64 {
	return uint64(s[5]) | uint64(s[4])<<8 | uint64(s[3])<<16 |
		uint64(s[2])<<24 | uint64(s[1])<<32 | uint64(s[0])<<40
}

func newSeconds48(v uint64) seconds48 {
	return seconds48{
		byte(v >> 40), byte(v >> 32), byte(v >> 24),
		byte(v >> 16), byte(v >> 8), byte(v),
	}
}

// Timestamp is a positive time since epoch, per 5.3.3 of IEEE 1588-2019:
// a 48-bit seconds field plus a nanoseconds field always below 1e9.
type Timestamp struct {
	Seconds     seconds48
	Nanoseconds uint32
}

// Time converts a Timestamp to time.Time. A zero Timestamp is the zero time.
func (t Timestamp) Time() time.Time {
	if t.Empty() {
		return time.Time{}
	}
	return time.Unix(int64(t.Seconds.seconds()), int64(t.Nanoseconds))
}

// Empty reports whether the timestamp carries no value.
func (t Timestamp) Empty() bool { return t.Nanoseconds == 0 && t.Seconds.empty() }

func (t Timestamp) String() string {
	if t.Empty() {
		return "Timestamp(empty)"
	}
	return fmt.Sprintf("Timestamp(%s)", t.Time())
}

// NewTimestamp converts a time.Time to the wire Timestamp encoding.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{
		Seconds:     newSeconds48(uint64(t.Unix())),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

// intFloat is the common representation backing TimeInterval and
// CorrectionField: a float64 scaled by 2**16 and stored in an int64.
type intFloat int64

func (t intFloat) value() float64 { return float64(t) / twoPow16 }

// TimeInterval is a signed time interval in nanoseconds, scaled by 2**16.
type TimeInterval intFloat

// Nanoseconds decodes the interval to a plain float64 of nanoseconds.
func (t TimeInterval) Nanoseconds() float64 { return intFloat(t).value() }

func (t TimeInterval) String() string {
	return fmt.Sprintf("TimeInterval(%.3fns)", t.Nanoseconds())
}

// NewTimeInterval builds a TimeInterval from a nanosecond float64.
func NewTimeInterval(ns float64) TimeInterval { return TimeInterval(ns * twoPow16) }

// CorrectionField accumulates residence-time and asymmetry corrections
// along a PTP message's path, in nanoseconds scaled by 2**16. A value of
// all-ones-but-the-sign-bit marks "too big to represent" (5.3.4).
type CorrectionField intFloat

const correctionTooBig CorrectionField = 0x7fffffffffffffff

// TooBig reports whether the correction overflowed its representable range.
func (c CorrectionField) TooBig() bool { return c == correctionTooBig }

// Nanoseconds decodes the correction, returning +Inf when TooBig.
func (c CorrectionField) Nanoseconds() float64 {
	if c.TooBig() {
		return math.Inf(1)
	}
	return intFloat(c).value()
}

// Duration converts the correction to a time.Duration, truncating
// fractional nanoseconds and treating TooBig as zero (callers that care
// about overflow should check TooBig explicitly).
func (c CorrectionField) Duration() time.Duration {
	if c.TooBig() {
		return 0
	}
	return time.Duration(c.Nanoseconds())
}

func (c CorrectionField) String() string {
	if c.TooBig() {
		return "CorrectionField(too big)"
	}
	return fmt.Sprintf("CorrectionField(%.3fns)", c.Nanoseconds())
}

// NewCorrectionField builds a CorrectionField from a nanosecond float64,
// saturating to TooBig on overflow.
func NewCorrectionField(ns float64) CorrectionField {
	v := ns * twoPow16
	if v > float64(correctionTooBig) {
		return correctionTooBig
	}
	return CorrectionField(v)
}

// Add combines two correction fields, saturating to TooBig if either
// operand already is (residence time accumulates additively per 11.4.3).
func (c CorrectionField) Add(other CorrectionField) CorrectionField {
	if c.TooBig() || other.TooBig() {
		return correctionTooBig
	}
	return c + other
}

// ClockClass is the defaultDS.clockQuality.clockClass field (7.6.2.4).
type ClockClass uint8

const (
	ClockClass6         ClockClass = 6
	ClockClass7         ClockClass = 7
	ClockClass13        ClockClass = 13
	ClockClass14        ClockClass = 14
	ClockClass52        ClockClass = 52
	ClockClass58        ClockClass = 58
	ClockClassSlaveOnly ClockClass = 255
)

// ClockAccuracy is the defaultDS.clockQuality.clockAccuracy field (7.6.2.5).
type ClockAccuracy uint8

const (
	ClockAccuracyNanosecond25       ClockAccuracy = 0x20
	ClockAccuracyNanosecond100      ClockAccuracy = 0x21
	ClockAccuracyNanosecond250      ClockAccuracy = 0x22
	ClockAccuracyMicrosecond1       ClockAccuracy = 0x23
	ClockAccuracyMicrosecond2point5 ClockAccuracy = 0x24
	ClockAccuracyMicrosecond10      ClockAccuracy = 0x25
	ClockAccuracyMicrosecond25      ClockAccuracy = 0x26
	ClockAccuracyMicrosecond100     ClockAccuracy = 0x27
	ClockAccuracyMicrosecond250     ClockAccuracy = 0x28
	ClockAccuracyMillisecond1       ClockAccuracy = 0x29
	ClockAccuracyMillisecond2point5 ClockAccuracy = 0x2A
	ClockAccuracyMillisecond10      ClockAccuracy = 0x2B
	ClockAccuracyMillisecond25      ClockAccuracy = 0x2C
	ClockAccuracyMillisecond100     ClockAccuracy = 0x2D
	ClockAccuracyMillisecond250     ClockAccuracy = 0x2E
	ClockAccuracySecond1            ClockAccuracy = 0x2F
	ClockAccuracySecond10           ClockAccuracy = 0x30
	ClockAccuracySecondGreater10    ClockAccuracy = 0x31
	ClockAccuracyUnknown            ClockAccuracy = 0xFE
)

// ClockAccuracyFromOffset returns the tightest ClockAccuracy enumeration
// value whose bound still covers offset, used by the sync coordinator to
// record the accuracy class of each measured offset in its statistics.
func ClockAccuracyFromOffset(offset time.Duration) ClockAccuracy {
	if offset < 0 {
		offset = -offset
	}
	switch {
	case offset <= 25*time.Nanosecond:
		return ClockAccuracyNanosecond25
	case offset <= 100*time.Nanosecond:
		return ClockAccuracyNanosecond100
	case offset <= 250*time.Nanosecond:
		return ClockAccuracyNanosecond250
	case offset <= time.Microsecond:
		return ClockAccuracyMicrosecond1
	case offset <= 2500*time.Nanosecond:
		return ClockAccuracyMicrosecond2point5
	case offset <= 10*time.Microsecond:
		return ClockAccuracyMicrosecond10
	case offset <= 25*time.Microsecond:
		return ClockAccuracyMicrosecond25
	case offset <= 100*time.Microsecond:
		return ClockAccuracyMicrosecond100
	case offset <= 250*time.Microsecond:
		return ClockAccuracyMicrosecond250
	case offset <= time.Millisecond:
		return ClockAccuracyMillisecond1
	case offset <= 2500*time.Microsecond:
		return ClockAccuracyMillisecond2point5
	case offset <= 10*time.Millisecond:
		return ClockAccuracyMillisecond10
	case offset <= 25*time.Millisecond:
		return ClockAccuracyMillisecond25
	case offset <= 100*time.Millisecond:
		return ClockAccuracyMillisecond100
	case offset <= 250*time.Millisecond:
		return ClockAccuracyMillisecond250
	case offset <= time.Second:
		return ClockAccuracySecond1
	case offset <= 10*time.Second:
		return ClockAccuracySecond10
	default:
		return ClockAccuracySecondGreater10
	}
}

// Duration returns the upper bound time.Duration for a ClockAccuracy.
func (c ClockAccuracy) Duration() time.Duration {
	switch c {
	case ClockAccuracyNanosecond25:
		return 25 * time.Nanosecond
	case ClockAccuracyNanosecond100:
		return 100 * time.Nanosecond
	case ClockAccuracyNanosecond250:
		return 250 * time.Nanosecond
	case ClockAccuracyMicrosecond1:
		return time.Microsecond
	case ClockAccuracyMicrosecond2point5:
		return 2500 * time.Nanosecond
	case ClockAccuracyMicrosecond10:
		return 10 * time.Microsecond
	case ClockAccuracyMicrosecond25:
		return 25 * time.Microsecond
	case ClockAccuracyMicrosecond100:
		return 100 * time.Microsecond
	case ClockAccuracyMicrosecond250:
		return 250 * time.Microsecond
	case ClockAccuracyMillisecond1:
		return time.Millisecond
	case ClockAccuracyMillisecond2point5:
		return 2500 * time.Microsecond
	case ClockAccuracyMillisecond10:
		return 10 * time.Millisecond
	case ClockAccuracyMillisecond25:
		return 25 * time.Millisecond
	case ClockAccuracyMillisecond100:
		return 100 * time.Millisecond
	case ClockAccuracyMillisecond250:
		return 250 * time.Millisecond
	case ClockAccuracySecond1:
		return time.Second
	case ClockAccuracySecond10:
		return 10 * time.Second
	default:
		return 25 * time.Second
	}
}

// ClockQuality is the clockQuality data type, 5.3.7.
type ClockQuality struct {
	ClockClass              ClockClass
	ClockAccuracy           ClockAccuracy
	OffsetScaledLogVariance uint16
}

// TimeSource is the timePropertiesDS.timeSource field (Table 6).
type TimeSource uint8

const (
	TimeSourceAtomicClock        TimeSource = 0x10
	TimeSourceGNSS               TimeSource = 0x20
	TimeSourceTerrestrialRadio   TimeSource = 0x30
	TimeSourceSerialTimeCode     TimeSource = 0x39
	TimeSourcePTP                TimeSource = 0x40
	TimeSourceNTP                TimeSource = 0x50
	TimeSourceHandSet            TimeSource = 0x60
	TimeSourceOther              TimeSource = 0x90
	TimeSourceInternalOscillator TimeSource = 0xA0
)

// LogInterval is log2 of a period in seconds, as used throughout portDS.
type LogInterval int8

// Duration converts a LogInterval to time.Duration.
func (i LogInterval) Duration() time.Duration {
	return time.Duration(math.Pow(2, float64(i)) * float64(time.Second))
}

// NewLogInterval converts a time.Duration to a LogInterval by truncating
// its log2 in seconds toward zero (3s yields 1),
// erroring if the value falls outside the representable int8 range.
func NewLogInterval(d time.Duration) (LogInterval, error) {
	li := int(math.Log2(d.Seconds()))
	if li > 127 || li < -128 {
		return 0, fmt.Errorf("logInterval %d out of int8 range", li)
	}
	return LogInterval(li), nil
}

// PortState enumerates the states of the port state machine (Table 20).
type PortState uint8

const (
	PortStateInitializing PortState = iota + 1
	PortStateFaulty
	PortStateDisabled
	PortStateListening
	PortStatePreMaster
	PortStateMaster
	PortStatePassive
	PortStateUncalibrated
	PortStateSlave
)

var portStateNames = map[PortState]string{
	PortStateInitializing: "INITIALIZING",
	PortStateFaulty:       "FAULTY",
	PortStateDisabled:     "DISABLED",
	PortStateListening:    "LISTENING",
	PortStatePreMaster:    "PRE_MASTER",
	PortStateMaster:       "MASTER",
	PortStatePassive:      "PASSIVE",
	PortStateUncalibrated: "UNCALIBRATED",
	PortStateSlave:        "SLAVE",
}

func (s PortState) String() string { return portStateNames[s] }

// DelayMechanism selects the path-delay measurement scheme for a port.
type DelayMechanism uint8

const (
	DelayMechanismE2E DelayMechanism = iota
	DelayMechanismP2P
	DelayMechanismDisabled
)

// TransportType is the networkProtocol enumeration (Table 3).
type TransportType uint16

const (
	TransportTypeUDS TransportType = iota
	TransportTypeUDPIPv4
	TransportTypeUDPIPv6
	TransportTypeIEEE8023
)

// PTPText is a UTF-8 string with a one-byte length prefix (5.3.8).
type PTPText string

// UnmarshalBinary decodes a PTPText from its wire representation.
func (p *PTPText) UnmarshalBinary(raw []byte) error {
	if len(raw) < 1 {
		return fmt.Errorf("ptptext: no length byte")
	}
	length := int(raw[0])
	if length == 0 {
		*p = ""
		return nil
	}
	if len(raw) < 1+length {
		return fmt.Errorf("ptptext: need %d bytes, got %d", 1+length, len(raw))
	}
	*p = PTPText(raw[1 : 1+length])
	return nil
}

// MarshalBinary encodes a PTPText, padding to an even length.
func (p *PTPText) MarshalBinary() ([]byte, error) {
	raw := []byte(*p)
	if len(raw) > 255 {
		return nil, fmt.Errorf("ptptext: %d bytes exceeds 255-byte limit", len(raw))
	}
	var buf bytes.Buffer
	buf.WriteByte(uint8(len(raw)))
	buf.Write(raw)
	if len(raw)%2 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}
