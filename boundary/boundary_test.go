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

package boundary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ptpengine/ptpcore/port"
	"github.com/ptpengine/ptpcore/protocol"
	"github.com/ptpengine/ptpcore/wire"
)

type fakeIO struct {
	syncs     []uint16
	followUps []uint16
}

func (f *fakeIO) SendSync(portNumber uint16, msg *protocol.SyncDelayReq) error {
	f.syncs = append(f.syncs, portNumber)
	return nil
}

func (f *fakeIO) SendFollowUp(portNumber uint16, msg *protocol.FollowUp) error {
	f.followUps = append(f.followUps, portNumber)
	return nil
}

func threePortRouter(t *testing.T, io PortIO) *Router {
	t.Helper()
	cfgs := map[uint16]port.Config{
		1: port.DefaultConfig(),
		2: port.DefaultConfig(),
		3: port.DefaultConfig(),
	}
	r, err := New(0x001122fffe334455, 0, cfgs, io)
	require.NoError(t, err)
	return r
}

func TestForwardSyncToAllMasterPortsWithIncrementedStepsRemoved(t *testing.T) {
	now := time.Unix(1000, 0)
	io := &fakeIO{}
	r := threePortRouter(t, io)
	r.Initialize(now)

	r.ApplyBmcaDecision(1, port.BmcaSlave, now)
	r.ApplyBmcaDecision(2, port.BmcaMaster, now)
	r.Tick(now.Add(3 * time.Second)) // PreMaster -> Master on qualification timeout
	r.ApplyBmcaDecision(3, port.BmcaMaster, now)
	r.Tick(now.Add(3 * time.Second))

	require.True(t, r.HasSlavePort())
	require.True(t, r.HasMasterPort())

	r.SetStepsRemoved(2)

	sync := &protocol.SyncDelayReq{
		Header: protocol.Header{
			SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(protocol.MessageSync, 0),
			Version:         protocol.Version,
			SequenceID:      7,
		},
		SyncDelayReqBody: protocol.SyncDelayReqBody{
			OriginTimestamp: wire.NewTimestamp(now),
		},
	}
	sync.MessageLength = 44
	raw, err := sync.MarshalBinary()
	require.NoError(t, err)

	forwarded, err := r.ProcessMessage(context.Background(), 1, raw, now.Add(10*time.Microsecond), 5*time.Microsecond)
	require.NoError(t, err)
	require.Len(t, forwarded, 2)

	seen := map[uint16]bool{}
	for _, f := range forwarded {
		seen[f.PortNumber] = true
		require.EqualValues(t, 3, f.StepsRemoved)
		require.Equal(t, uint16(7), f.Sync.SequenceID)
		require.Equal(t, uint16(7), f.FollowUp.SequenceID)
	}
	require.True(t, seen[2])
	require.True(t, seen[3])
	require.ElementsMatch(t, []uint16{2, 3}, io.syncs)
	require.ElementsMatch(t, []uint16{2, 3}, io.followUps)
}

func TestProcessMessageInvalidPortNumber(t *testing.T) {
	r := threePortRouter(t, &fakeIO{})
	_, err := r.ProcessMessage(context.Background(), 9, []byte{0}, time.Now(), 0)
	require.Error(t, err)
}

func TestGetPortUnknownReturnsFalse(t *testing.T) {
	r := threePortRouter(t, &fakeIO{})
	_, ok := r.GetPort(99)
	require.False(t, ok)
}

// TestForwardSyncCountsFailureButStillReportsBothPorts uses a
// gomock-generated MockPortIO (rather than fakeIO) to verify that one
// Master port's failed send is counted in ForwardFailures without
// blocking the other port's send, per forward's errgroup fan-out
// contract.
func TestForwardSyncCountsFailureButStillReportsBothPorts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	io := NewMockPortIO(ctrl)
	io.EXPECT().SendSync(uint16(2), gomock.Any()).Return(nil)
	io.EXPECT().SendFollowUp(uint16(2), gomock.Any()).Return(nil)
	io.EXPECT().SendSync(uint16(3), gomock.Any()).Return(errors.New("link down"))

	now := time.Unix(2000, 0)
	r := threePortRouter(t, io)
	r.Initialize(now)

	r.ApplyBmcaDecision(1, port.BmcaSlave, now)
	r.ApplyBmcaDecision(2, port.BmcaMaster, now)
	r.ApplyBmcaDecision(3, port.BmcaMaster, now)
	r.Tick(now.Add(3 * time.Second))

	sync := &protocol.SyncDelayReq{
		Header: protocol.Header{
			SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(protocol.MessageSync, 0),
			Version:         protocol.Version,
			SequenceID:      11,
		},
		SyncDelayReqBody: protocol.SyncDelayReqBody{
			OriginTimestamp: wire.NewTimestamp(now),
		},
	}
	sync.MessageLength = 44
	raw, err := sync.MarshalBinary()
	require.NoError(t, err)

	forwarded, err := r.ProcessMessage(context.Background(), 1, raw, now.Add(10*time.Microsecond), 5*time.Microsecond)
	require.NoError(t, err)
	require.Len(t, forwarded, 2)
	require.EqualValues(t, 1, r.ForwardFailures())
}
