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

package servo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResetThenZeroOffsetKeepsUnlocked(t *testing.T) {
	d := NewDiscipline(DefaultConfig())
	d.Reset()
	r := d.Sample(0, true, true)
	require.Zero(t, r.CorrectionPPB)
	require.False(t, d.IsLocked())
}

func TestRecoveryToLockedAfterRecoverySamples(t *testing.T) {
	cfg := DefaultConfig()
	d := NewDiscipline(cfg)
	for i := 0; i < cfg.RecoverySamples-1; i++ {
		r := d.Sample(5, true, true)
		require.Equal(t, StateRecoveryGps, r.State)
	}
	r := d.Sample(5, true, true)
	require.Equal(t, StateLockedGps, r.State)
}

func TestLockStability15SamplesOf5ns(t *testing.T) {
	d := NewDiscipline(DefaultConfig())
	var r Result
	for i := 1; i <= 15; i++ {
		r = d.Sample(5, true, true)
		if i >= 11 {
			require.Truef(t, d.IsLocked(), "sample %d should be locked", i)
		}
	}
	require.Equal(t, StateLockedGps, r.State)

	r = d.Sample(10000, true, true)
	require.False(t, d.IsLocked())
}

func TestLockedToHoldoverOnInvalidSample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecoverySamples = 2
	d := NewDiscipline(cfg)
	d.Sample(1, true, true)
	r := d.Sample(1, true, true)
	require.Equal(t, StateLockedGps, r.State)

	r = d.Sample(1, false, true)
	require.Equal(t, StateHoldoverRtc, r.State)
	require.False(t, d.IsLocked())
}

func TestHoldoverToRecoveryWhenReferenceRestored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecoverySamples = 1
	d := NewDiscipline(cfg)
	d.Sample(1, true, true)
	r := d.Sample(1, false, true)
	require.Equal(t, StateHoldoverRtc, r.State)

	r = d.Sample(1, true, true)
	require.Equal(t, StateRecoveryGps, r.State)
}

func TestStepThresholdZeroesIntegratorAndReenterRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecoverySamples = 1
	d := NewDiscipline(cfg)
	d.Sample(1, true, true) // Locked

	r := d.Sample(cfg.StepThresholdNs+1, true, true)
	require.True(t, r.Stepped)
	require.Zero(t, r.CorrectionPPB)
	require.Equal(t, StateRecoveryGps, r.State)
	require.False(t, d.IsLocked())
}

func TestIntegralAntiWindupClamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntegralMaxNs = 10
	cfg.Ki = 1.0
	cfg.Kp = 0
	cfg.FreqMaxPPB = 0 // disable freq clamp to observe integral clamp alone
	d := NewDiscipline(cfg)
	for i := 0; i < 5; i++ {
		d.Sample(1000, true, true)
	}
	require.InDelta(t, 10, d.integral, 0.0001)
}
