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

	"github.com/ptpengine/ptpcore/syncengine"
)

func TestNewSyncCoordinatorRejectsUnorderedThresholds(t *testing.T) {
	cfg := DefaultSyncConfig()
	cfg.ConvergingThresholdNs = cfg.SynchronizedThresholdNs
	_, err := NewSyncCoordinator(cfg)
	require.Error(t, err)
}

func feedCompleteSample(eng *syncengine.Engine, seq uint16, base time.Time, offset time.Duration) {
	// two-step E2E: s2c = t2-t1, c2s = t4-t3, chosen so offset≈`offset`
	// and delay is a small positive constant.
	delay := 50 * time.Microsecond
	t1 := base
	t2 := t1.Add(offset + delay)
	t3 := t2.Add(time.Millisecond)
	t4 := t3.Add(delay - offset)

	eng.AddT1(seq, t1, 0)
	eng.AddT2(seq, t2)
	eng.AddT3(seq, t3)
	eng.AddT4(seq, t4, 0)
}

func TestSyncCoordinatorTracksSynchronizedHealth(t *testing.T) {
	eng := syncengine.New(syncengine.Config{StableSamplesRequired: 1})
	c, err := NewSyncCoordinator(DefaultSyncConfig())
	require.NoError(t, err)
	c.Start()

	now := time.Unix(9000, 0)
	feedCompleteSample(eng, 1, now, 100*time.Nanosecond)
	require.NoError(t, c.Tick(now, eng))

	stats := c.GetStatistics()
	require.EqualValues(t, 1, stats.TotalSamples)
	require.Equal(t, HealthSynchronized, c.GetHealthStatus())
}

func TestSyncCoordinatorRespectsCadence(t *testing.T) {
	eng := syncengine.New(syncengine.Config{StableSamplesRequired: 1})
	c, err := NewSyncCoordinator(DefaultSyncConfig())
	require.NoError(t, err)
	c.Start()

	now := time.Unix(9000, 0)
	feedCompleteSample(eng, 1, now, 100*time.Nanosecond)
	require.NoError(t, c.Tick(now, eng))

	feedCompleteSample(eng, 2, now, 100*time.Nanosecond)
	require.NoError(t, c.Tick(now.Add(100*time.Millisecond), eng))

	require.EqualValues(t, 1, c.GetStatistics().TotalSamples)
}

func TestSyncCoordinatorDegradesOnRepeatedRejection(t *testing.T) {
	eng := syncengine.New(syncengine.DefaultConfig())
	c, err := NewSyncCoordinator(DefaultSyncConfig())
	require.NoError(t, err)
	c.Start()

	now := time.Unix(9500, 0)
	for i := uint16(1); i <= 3; i++ {
		// t4 before t3 forces a negative delay.
		t1 := now.Add(time.Duration(i) * time.Second)
		t2 := t1.Add(time.Millisecond)
		t3 := t2.Add(time.Millisecond)
		t4 := t3.Add(-10 * time.Millisecond)
		eng.AddT1(i, t1, 0)
		eng.AddT2(i, t2)
		eng.AddT3(i, t3)
		eng.AddT4(i, t4, 0)

		err := c.Tick(t1.Add(2*time.Second), eng)
		require.Error(t, err)
	}

	require.Equal(t, HealthCritical, c.GetHealthStatus())
	require.EqualValues(t, 3, c.GetStatistics().RejectedSamples)
}

func TestSyncCoordinatorNoSampleIsNotAnError(t *testing.T) {
	eng := syncengine.New(syncengine.DefaultConfig())
	c, err := NewSyncCoordinator(DefaultSyncConfig())
	require.NoError(t, err)
	c.Start()

	require.NoError(t, c.Tick(time.Unix(0, 0), eng))
	require.Equal(t, HealthConverging, c.GetHealthStatus())
}
