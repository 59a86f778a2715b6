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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBmcaCoordinatorRejectsZeroInterval(t *testing.T) {
	cfg := DefaultBmcaConfig()
	cfg.ExecutionIntervalMs = 0
	_, err := NewBmcaCoordinator(cfg)
	require.Error(t, err)
}

func TestBmcaCoordinatorTicksOnCadence(t *testing.T) {
	c, err := NewBmcaCoordinator(DefaultBmcaConfig())
	require.NoError(t, err)
	c.Start()

	now := time.Unix(1000, 0)
	calls := 0
	exec := func(now time.Time) (BmcaOutcome, error) {
		calls++
		return BmcaOutcome{RoleChanged: true}, nil
	}

	require.NoError(t, c.Tick(now, exec))
	require.Equal(t, 1, calls)

	// within the interval: no-op
	require.NoError(t, c.Tick(now.Add(200*time.Millisecond), exec))
	require.Equal(t, 1, calls)

	// past the interval: runs again
	require.NoError(t, c.Tick(now.Add(1100*time.Millisecond), exec))
	require.Equal(t, 2, calls)

	stats := c.GetStatistics()
	require.EqualValues(t, 2, stats.TotalExecutions)
	require.EqualValues(t, 2, stats.RoleChanges)
}

func TestBmcaCoordinatorStoppedDoesNotTick(t *testing.T) {
	c, err := NewBmcaCoordinator(DefaultBmcaConfig())
	require.NoError(t, err)

	calls := 0
	exec := func(now time.Time) (BmcaOutcome, error) {
		calls++
		return BmcaOutcome{}, nil
	}
	require.NoError(t, c.Tick(time.Unix(0, 0), exec))
	require.Equal(t, 0, calls)
}

func TestBmcaCoordinatorExecuteNowIgnoresCadence(t *testing.T) {
	c, err := NewBmcaCoordinator(DefaultBmcaConfig())
	require.NoError(t, err)
	c.Start()

	now := time.Unix(2000, 0)
	calls := 0
	exec := func(now time.Time) (BmcaOutcome, error) {
		calls++
		return BmcaOutcome{}, nil
	}
	require.NoError(t, c.ExecuteNow(now, exec))
	require.NoError(t, c.ExecuteNow(now.Add(time.Millisecond), exec))
	require.Equal(t, 2, calls)
}

func TestBmcaCoordinatorOscillationDegradesHealth(t *testing.T) {
	c, err := NewBmcaCoordinator(DefaultBmcaConfig())
	require.NoError(t, err)
	c.Start()

	require.Equal(t, HealthConverging, c.GetHealthStatus())

	exec := func(now time.Time) (BmcaOutcome, error) {
		return BmcaOutcome{Oscillating: true}, nil
	}
	require.NoError(t, c.ExecuteNow(time.Unix(0, 0), exec))
	require.Equal(t, HealthDegraded, c.GetHealthStatus())

	c.Reset()
	require.Equal(t, HealthConverging, c.GetHealthStatus())
	require.EqualValues(t, BmcaStats{}, c.GetStatistics())
}

func TestBmcaCoordinatorPropagatesExecutorError(t *testing.T) {
	c, err := NewBmcaCoordinator(DefaultBmcaConfig())
	require.NoError(t, err)
	c.Start()

	boom := errors.New("boom")
	exec := func(now time.Time) (BmcaOutcome, error) { return BmcaOutcome{}, boom }
	err = c.ExecuteNow(time.Unix(0, 0), exec)
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, c.GetStatistics().TotalExecutions)
}
