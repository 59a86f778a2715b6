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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputePeerDelayRecoversMeanPathDelay(t *testing.T) {
	e := New(DefaultConfig())
	base := time.Unix(5000, 0)

	// turnaround = t3-t2 = 1ms, round trip t4-t1 = 6ms -> delay = 2.5ms
	t1 := base
	t2 := t1.Add(2500 * time.Microsecond)
	t3 := t2.Add(time.Millisecond)
	t4 := t1.Add(6 * time.Millisecond)

	e.AddPdelayReqTx(1, t1)
	e.AddPdelayResp(1, t2, 0)
	e.AddPdelayRespFollowUp(1, t3, 0)
	e.AddPdelayRespRx(1, t4)

	delay, err := e.ComputePeerDelay(1)
	require.NoError(t, err)
	require.Equal(t, 2500*time.Microsecond, delay)

	got, ok := e.PeerDelay()
	require.True(t, ok)
	require.Equal(t, delay, got)
}

func TestComputePeerDelayRejectsNegativeResult(t *testing.T) {
	e := New(DefaultConfig())
	base := time.Unix(6000, 0)

	t1 := base
	t4 := t1.Add(time.Millisecond)
	t2 := t1.Add(100 * time.Microsecond)
	t3 := t2.Add(10 * time.Millisecond) // turnaround far exceeds round trip

	e.AddPdelayReqTx(1, t1)
	e.AddPdelayResp(1, t2, 0)
	e.AddPdelayRespFollowUp(1, t3, 0)
	e.AddPdelayRespRx(1, t4)

	_, err := e.ComputePeerDelay(1)
	require.ErrorIs(t, err, ErrNegativeDelay)
	require.EqualValues(t, 1, e.NegativeDelayCount())

	_, ok := e.PeerDelay()
	require.False(t, ok)
}

func TestOffsetP2PUsesEstablishedPeerDelay(t *testing.T) {
	e := New(DefaultConfig())
	base := time.Unix(7000, 0)

	e.AddPdelayReqTx(1, base)
	e.AddPdelayResp(1, base.Add(2500*time.Microsecond), 0)
	e.AddPdelayRespFollowUp(1, base.Add(3500*time.Microsecond), 0)
	e.AddPdelayRespRx(1, base.Add(6*time.Millisecond))
	_, err := e.ComputePeerDelay(1)
	require.NoError(t, err)

	syncT1 := base.Add(time.Second)
	syncT2 := syncT1.Add(2600 * time.Microsecond)
	e.AddT1(2, syncT1, 0)
	e.AddT2(2, syncT2)

	s, err := e.OffsetP2P(2)
	require.NoError(t, err)
	require.Equal(t, 100*time.Microsecond, s.Offset)
}

func TestOffsetP2PErrorsWithoutPeerDelay(t *testing.T) {
	e := New(DefaultConfig())
	e.AddT1(1, time.Unix(8000, 0), 0)
	e.AddT2(1, time.Unix(8000, 0).Add(time.Millisecond))
	_, err := e.OffsetP2P(1)
	require.ErrorIs(t, err, ErrNoSample)
}
