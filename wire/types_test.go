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

package wire

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ptpengine/ptpcore/errkind"
)

func TestTimestampRoundTripsThroughTime(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	ts := NewTimestamp(now)
	require.False(t, ts.Empty())
	require.Equal(t, now.Unix(), ts.Time().Unix())
	require.EqualValues(t, now.Nanosecond(), ts.Nanoseconds)
}

func TestTimestampZeroIsEmpty(t *testing.T) {
	var ts Timestamp
	require.True(t, ts.Empty())
	require.True(t, ts.Time().IsZero())
}

func TestTimestampValidateBoundary(t *testing.T) {
	valid := Timestamp{Nanoseconds: 999_999_999}
	require.NoError(t, valid.Validate())

	invalid := Timestamp{Nanoseconds: 1_000_000_000}
	require.ErrorIs(t, invalid.Validate(), errkind.ErrInvalidTimestamp)
}

func TestTimeIntervalRoundTrip(t *testing.T) {
	ti := NewTimeInterval(-500_000.25)
	require.InDelta(t, -500_000.25, ti.Nanoseconds(), 1e-3)
}

func TestCorrectionFieldAddAccumulatesResidence(t *testing.T) {
	a := NewCorrectionField(1000)
	b := NewCorrectionField(2500)
	sum := a.Add(b)
	require.InDelta(t, 3500, sum.Nanoseconds(), 1e-6)
}

func TestCorrectionFieldAddSaturatesWhenEitherOperandTooBig(t *testing.T) {
	sum := correctionTooBig.Add(NewCorrectionField(1))
	require.True(t, sum.TooBig())
	require.True(t, math.IsInf(sum.Nanoseconds(), 1))
}

func TestCorrectionFieldTooBigDurationIsZero(t *testing.T) {
	require.Equal(t, time.Duration(0), correctionTooBig.Duration())
}

func TestClockIdentityFromEUI48MAC(t *testing.T) {
	mac := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	id, err := NewClockIdentity(mac)
	require.NoError(t, err)
	require.Equal(t, "001122.fffe.334455", id.String())
	require.Equal(t, mac, []byte(id.MAC()))
}

func TestClockIdentityRejectsUnsupportedMACLength(t *testing.T) {
	_, err := NewClockIdentity([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestPortIdentityCompareOrdersByClockThenPort(t *testing.T) {
	a := PortIdentity{ClockIdentity: 1, PortNumber: 2}
	b := PortIdentity{ClockIdentity: 1, PortNumber: 3}
	c := PortIdentity{ClockIdentity: 2, PortNumber: 1}

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.Equal(t, 0, a.Compare(a))
}

func TestClockAccuracyFromOffsetPicksTightestCoveringBound(t *testing.T) {
	require.Equal(t, ClockAccuracyNanosecond25, ClockAccuracyFromOffset(10*time.Nanosecond))
	require.Equal(t, ClockAccuracyMicrosecond1, ClockAccuracyFromOffset(time.Microsecond))
	require.Equal(t, ClockAccuracySecondGreater10, ClockAccuracyFromOffset(time.Minute))
}

func TestClockAccuracyDurationRoundTripsUpperBound(t *testing.T) {
	require.Equal(t, 100*time.Microsecond, ClockAccuracyMicrosecond100.Duration())
}

func TestLogIntervalDurationAndRoundTrip(t *testing.T) {
	li := LogInterval(0)
	require.Equal(t, time.Second, li.Duration())

	back, err := NewLogInterval(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, LogInterval(1), back)
}

func TestPTPTextRoundTrip(t *testing.T) {
	text := PTPText("grandmaster-01")
	raw, err := text.MarshalBinary()
	require.NoError(t, err)

	var out PTPText
	require.NoError(t, out.UnmarshalBinary(raw))
	require.Equal(t, text, out)
}

func TestPTPTextRejectsTruncatedBuffer(t *testing.T) {
	var out PTPText
	require.Error(t, out.UnmarshalBinary([]byte{5, 'a', 'b'}))
}
