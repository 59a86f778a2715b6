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

// Package stats exports coordinator.BmcaStats, coordinator.SyncStats,
// and coordinator.FlowStats as Prometheus gauges.
//
// Grounded on facebook/time's ptp/sptp/stats/prom_exporter.go: the
// same prometheus.NewRegistry + promhttp.HandlerFor(EnableOpenMetrics)
// shape is kept. The teacher's exporter runs in a separate process
// from the sptp client it monitors, so it scrapes the client's own
// JSON stats endpoint over HTTP and republishes each counter as a
// dynamically registered prometheus.Gauge (flattenKey/FetchCounters).
// A core library has no such process boundary — the host embeds both
// the coordinators and the exporter in one process — so Update is
// called directly with the coordinators' exported stat structs
// instead of scraping an HTTP endpoint, and the gauges are registered
// once up front rather than discovered per scrape.
package stats

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ptpengine/ptpcore/coordinator"
)

// Exporter holds the Prometheus registry and gauges for one clock
// instance's coordinator statistics.
type Exporter struct {
	registry *prometheus.Registry

	bmcaExecutions       prometheus.Gauge
	bmcaRoleChanges      prometheus.Gauge
	bmcaParentChanges    prometheus.Gauge
	bmcaOscillations     prometheus.Gauge
	bmcaNoForeignMasters prometheus.Gauge

	syncSamples     prometheus.Gauge
	syncRejected    prometheus.Gauge
	syncOffsetNs    prometheus.Gauge
	syncDelayNs     prometheus.Gauge
	syncStddevNs    prometheus.Gauge
	syncAccuracyNs  prometheus.Gauge

	flowDecoded          prometheus.Gauge
	flowDecodeErrors     prometheus.Gauge
	flowValidationErrors prometheus.Gauge
	flowDomainMismatches prometheus.Gauge
	flowDispatched       prometheus.Gauge

	health *prometheus.GaugeVec
}

// NewExporter builds and registers every gauge against a fresh
// registry. Use Handler to expose it, or Start to both expose it and
// block serving HTTP the way the teacher's exporter does.
func NewExporter() *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.bmcaExecutions = e.gauge("ptpcore_bmca_executions_total", "Total BMCA executions run")
	e.bmcaRoleChanges = e.gauge("ptpcore_bmca_role_changes_total", "BMCA executions that changed a port's recommended state")
	e.bmcaParentChanges = e.gauge("ptpcore_bmca_parent_changes_total", "BMCA executions that changed the selected parent")
	e.bmcaOscillations = e.gauge("ptpcore_bmca_oscillations_total", "BMCA executions flagged as oscillating")
	e.bmcaNoForeignMasters = e.gauge("ptpcore_bmca_no_foreign_masters_total", "BMCA executions with an empty foreign-master set")

	e.syncSamples = e.gauge("ptpcore_sync_samples_total", "Completed offset/delay samples")
	e.syncRejected = e.gauge("ptpcore_sync_rejected_total", "Samples rejected for a negative mean path delay")
	e.syncOffsetNs = e.gauge("ptpcore_sync_offset_ns", "Most recently computed offset from master, in nanoseconds")
	e.syncDelayNs = e.gauge("ptpcore_sync_delay_ns", "Most recently computed mean path delay, in nanoseconds")
	e.syncStddevNs = e.gauge("ptpcore_sync_offset_stddev_ns", "Running standard deviation of observed offsets, in nanoseconds")
	e.syncAccuracyNs = e.gauge("ptpcore_sync_clock_accuracy_ns", "Upper bound implied by the current ClockAccuracy enumeration, in nanoseconds")

	e.flowDecoded = e.gauge("ptpcore_flow_decoded_total", "Messages successfully decoded")
	e.flowDecodeErrors = e.gauge("ptpcore_flow_decode_errors_total", "Messages that failed to decode")
	e.flowValidationErrors = e.gauge("ptpcore_flow_validation_errors_total", "Decoded messages that failed validation")
	e.flowDomainMismatches = e.gauge("ptpcore_flow_domain_mismatches_total", "Messages dropped for an off-domain domainNumber")
	e.flowDispatched = e.gauge("ptpcore_flow_dispatched_total", "Messages routed to a handler")

	e.health = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ptpcore_coordinator_health",
		Help: "Coordinator health classification (0=Synchronized,1=Converging,2=Degraded,3=Critical)",
	}, []string{"coordinator"})
	e.registry.MustRegister(e.health)

	return e
}

func (e *Exporter) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	e.registry.MustRegister(g)
	return g
}

// Update sets every gauge from the coordinators' current statistics.
func (e *Exporter) Update(bmca coordinator.BmcaStats, sync coordinator.SyncStats, flow coordinator.FlowStats) {
	e.bmcaExecutions.Set(float64(bmca.TotalExecutions))
	e.bmcaRoleChanges.Set(float64(bmca.RoleChanges))
	e.bmcaParentChanges.Set(float64(bmca.ParentChanges))
	e.bmcaOscillations.Set(float64(bmca.OscillationCount))
	e.bmcaNoForeignMasters.Set(float64(bmca.NoForeignMasters))

	e.syncSamples.Set(float64(sync.TotalSamples))
	e.syncRejected.Set(float64(sync.RejectedSamples))
	e.syncOffsetNs.Set(float64(sync.LastOffset.Nanoseconds()))
	e.syncDelayNs.Set(float64(sync.LastDelay.Nanoseconds()))
	e.syncStddevNs.Set(float64(sync.OffsetStddev.Nanoseconds()))
	e.syncAccuracyNs.Set(float64(sync.ClockAccuracy.Duration().Nanoseconds()))

	e.flowDecoded.Set(float64(flow.Decoded))
	e.flowDecodeErrors.Set(float64(flow.DecodeErrors))
	e.flowValidationErrors.Set(float64(flow.ValidationErrors))
	e.flowDomainMismatches.Set(float64(flow.DomainMismatches))
	e.flowDispatched.Set(float64(flow.Dispatched))
}

// SetHealth records one coordinator's current HealthStatus under name
// (e.g. "bmca", "sync", "flow").
func (e *Exporter) SetHealth(name string, h coordinator.HealthStatus) {
	e.health.WithLabelValues(name).Set(float64(h))
}

// Handler returns the http.Handler serving this exporter's registry
// at /metrics, for a host that already runs its own HTTP server.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves the registry on addr (e.g. ":9110") until ctx is
// canceled, the same single-endpoint shape as the teacher's
// PrometheusExporter.Start, adapted to take a context instead of
// blocking forever on log.Fatal.
func (e *Exporter) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("stats: exporter on %s: %w", addr, err)
	}
}
