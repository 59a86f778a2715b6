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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ptpengine/ptpcore/wire"
)

func TestAnnounceRoundTrip(t *testing.T) {
	a := &Announce{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageAnnounce, 0),
			Version:         Version,
			DomainNumber:    0,
			SourcePortIdentity: wire.PortIdentity{
				ClockIdentity: 0x001122fffe334455,
				PortNumber:    1,
			},
			SequenceID: 42,
		},
		AnnounceBody: AnnounceBody{
			OriginTimestamp:         wire.NewTimestamp(time.Now().Truncate(time.Second)),
			GrandmasterPriority1:    128,
			GrandmasterClockQuality: wire.ClockQuality{ClockClass: wire.ClockClass6, ClockAccuracy: wire.ClockAccuracyNanosecond100},
			GrandmasterPriority2:    128,
			GrandmasterIdentity:     0x001122fffe334455,
			StepsRemoved:            0,
			TimeSource:              wire.TimeSourceGNSS,
		},
		TLVs: []TLV{
			&PathTraceTLV{
				TLVHead:      TLVHead{TLVType: TLVPathTrace},
				PathSequence: []wire.ClockIdentity{0x001122fffe334455},
			},
		},
	}
	a.MessageLength = headerSize + 30 + 12

	raw, err := a.MarshalBinary()
	require.NoError(t, err)

	got := &Announce{}
	require.NoError(t, got.UnmarshalBinary(raw))
	require.Equal(t, a.GrandmasterIdentity, got.GrandmasterIdentity)
	require.Equal(t, a.SequenceID, got.SequenceID)
	require.Len(t, got.TLVs, 1)
	pt, ok := got.TLVs[0].(*PathTraceTLV)
	require.True(t, ok)
	require.Equal(t, a.TLVs[0].(*PathTraceTLV).PathSequence, pt.PathSequence)
}

func TestDecodePacketDispatchesOnMessageType(t *testing.T) {
	s := &SyncDelayReq{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageSync, 0),
			Version:         Version,
		},
	}
	s.MessageLength = headerSize + 10
	raw, err := s.MarshalBinary()
	require.NoError(t, err)

	p, err := DecodePacket(raw)
	require.NoError(t, err)
	require.Equal(t, MessageSync, p.MessageType())
}

func TestSignalingRoundTripWithUnicastTLV(t *testing.T) {
	sig := &Signaling{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageSignaling, 0),
			Version:         Version,
		},
		TargetPortIdentity: wire.PortIdentity{ClockIdentity: 0xaabbccddeeff0011, PortNumber: 2},
		TLVs: []TLV{
			&RequestUnicastTransmissionTLV{
				TLVHead:               TLVHead{TLVType: TLVRequestUnicastTransmission, LengthField: 6},
				MsgTypeAndReserved:    NewUnicastMsgTypeAndFlags(MessageAnnounce),
				LogInterMessagePeriod: 0,
				DurationField:         300,
			},
		},
	}
	sig.MessageLength = headerSize + signalingBodySize + tlvHeadSize + 6

	raw, err := sig.MarshalBinary()
	require.NoError(t, err)

	got := &Signaling{}
	require.NoError(t, got.UnmarshalBinary(raw))
	require.Equal(t, sig.TargetPortIdentity, got.TargetPortIdentity)
	require.Len(t, got.TLVs, 1)
	req, ok := got.TLVs[0].(*RequestUnicastTransmissionTLV)
	require.True(t, ok)
	require.Equal(t, MessageAnnounce, req.MsgTypeAndReserved.MsgType())
	require.EqualValues(t, 300, req.DurationField)
}

func TestUnknownTLVPreservesRawBytes(t *testing.T) {
	raw := []byte{0x00, 0x03, 0x00, 0x04, 0xde, 0xad, 0xbe, 0xef}
	tlv := &UnknownTLV{}
	require.NoError(t, tlv.UnmarshalBinary(raw))
	require.Equal(t, TLVOrganizationExtension, tlv.Type())
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, tlv.Raw)

	out := make([]byte, len(raw))
	n, err := tlv.MarshalBinaryTo(out)
	require.NoError(t, err)
	require.Equal(t, raw, out[:n])
}
