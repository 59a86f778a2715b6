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

package stats

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ptpengine/ptpcore/coordinator"
	"github.com/ptpengine/ptpcore/wire"
)

func TestUpdateExposesCountersOverHTTP(t *testing.T) {
	e := NewExporter()
	e.Update(
		coordinator.BmcaStats{TotalExecutions: 5, RoleChanges: 2},
		coordinator.SyncStats{
			TotalSamples:  10,
			LastOffset:    250 * time.Nanosecond,
			LastDelay:     50 * time.Microsecond,
			ClockAccuracy: wire.ClockAccuracyNanosecond250,
		},
		coordinator.FlowStats{Decoded: 100, Dispatched: 90},
	)
	e.SetHealth("sync", coordinator.HealthSynchronized)

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])

	require.True(t, strings.Contains(body, "ptpcore_bmca_executions_total 5"))
	require.True(t, strings.Contains(body, "ptpcore_sync_samples_total 10"))
	require.True(t, strings.Contains(body, "ptpcore_flow_decoded_total 100"))
	require.True(t, strings.Contains(body, `ptpcore_coordinator_health{coordinator="sync"} 0`))
}
