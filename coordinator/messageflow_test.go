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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ptpengine/ptpcore/protocol"
	"github.com/ptpengine/ptpcore/wire"
)

func marshalAnnounce(t *testing.T, domain uint8) []byte {
	t.Helper()
	a := &protocol.Announce{
		Header: protocol.Header{
			SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(protocol.MessageAnnounce, 0),
			Version:         protocol.Version,
			DomainNumber:    domain,
			SequenceID:      42,
		},
		AnnounceBody: protocol.AnnounceBody{
			OriginTimestamp:         wire.NewTimestamp(time.Unix(1000, 0)),
			GrandmasterPriority1:    128,
			GrandmasterClockQuality: wire.ClockQuality{ClockClass: 6, ClockAccuracy: wire.ClockAccuracyNanosecond100},
			GrandmasterPriority2:    128,
			GrandmasterIdentity:     0x001122fffe334455,
			StepsRemoved:            0,
			TimeSource:              wire.TimeSourceGNSS,
		},
	}
	a.MessageLength = 64
	raw, err := a.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestMessageFlowDispatchesInDomainAnnounce(t *testing.T) {
	var got *protocol.Announce
	c := NewMessageFlowCoordinator(MessageFlowConfig{Domain: 0}, Handlers{
		OnAnnounce: func(a *protocol.Announce) { got = a },
	})
	c.Start()

	c.Dispatch(marshalAnnounce(t, 0))

	require.NotNil(t, got)
	require.EqualValues(t, 42, got.SequenceID)
	stats := c.GetStatistics()
	require.EqualValues(t, 1, stats.Decoded)
	require.EqualValues(t, 1, stats.Dispatched)
	require.Equal(t, HealthSynchronized, c.GetHealthStatus())
}

func TestMessageFlowDropsOffDomainMessage(t *testing.T) {
	called := false
	c := NewMessageFlowCoordinator(MessageFlowConfig{Domain: 0}, Handlers{
		OnAnnounce: func(a *protocol.Announce) { called = true },
	})
	c.Start()

	c.Dispatch(marshalAnnounce(t, 5))

	require.False(t, called)
	require.EqualValues(t, 1, c.GetStatistics().DomainMismatches)
}

func TestMessageFlowStoppedDropsEverything(t *testing.T) {
	called := false
	c := NewMessageFlowCoordinator(MessageFlowConfig{Domain: 0}, Handlers{
		OnAnnounce: func(a *protocol.Announce) { called = true },
	})
	c.Dispatch(marshalAnnounce(t, 0))
	require.False(t, called)
	require.EqualValues(t, FlowStats{}, c.GetStatistics())
}

func TestMessageFlowCountsDecodeErrors(t *testing.T) {
	c := NewMessageFlowCoordinator(MessageFlowConfig{Domain: 0}, Handlers{})
	c.Start()
	c.Dispatch([]byte{0x01, 0x02})
	require.EqualValues(t, 1, c.GetStatistics().DecodeErrors)
	require.Equal(t, HealthCritical, c.GetHealthStatus())
}

func TestMessageFlowNilHandlerDropsWithoutDispatchCount(t *testing.T) {
	c := NewMessageFlowCoordinator(MessageFlowConfig{Domain: 0}, Handlers{})
	c.Start()
	c.Dispatch(marshalAnnounce(t, 0))
	stats := c.GetStatistics()
	require.EqualValues(t, 1, stats.Decoded)
	require.EqualValues(t, 0, stats.Dispatched)
}
