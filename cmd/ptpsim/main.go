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

// Command ptpsim demonstrates the core PTP engine end to end: a
// single simulated ordinary-clock port fed synthetic Sync/Follow_Up/
// Delay_Req/Delay_Resp timestamps on a fixed cadence, driving the
// port state machine (port), the sync/delay engine (syncengine), and
// the BMCA and sync coordinators (coordinator) the way a real NIC
// receive loop would, with its statistics exported over Prometheus
// (stats).
//
// Grounded on facebook/time's cmd/ptpcheck, the one teacher CLI built
// on cobra (cmd/ptpcheck/cmd/root.go's RootCmd + ConfigureVerbosity
// pattern) rather than cmd/ptp4u/cmd/sptp's flag-package CLIs, since
// SPEC_FULL.md's ambient stack calls for cobra here. There is no
// traffic-generation analogue in the corpus (every teacher CLI drives
// or inspects a real NIC), so the simulation loop itself is new code.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ptpengine/ptpcore/coordinator"
	"github.com/ptpengine/ptpcore/port"
	"github.com/ptpengine/ptpcore/stats"
	"github.com/ptpengine/ptpcore/wire"
)

var (
	cfgFile        string
	flagDomain     int
	flagIntervalMs int
	flagMonPort    int
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ptpsim",
	Short: "Simulated PTP ordinary-clock port driving the core engine",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulated port until interrupted",
	RunE:  runSimulation,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ptpsim build identifier",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("ptpsim (github.com/ptpengine/ptpcore demo)")
	},
}

func init() {
	runCmd.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config overriding the defaults")
	runCmd.Flags().IntVar(&flagDomain, "domain", -1, "PTP domainNumber to simulate (overrides config)")
	runCmd.Flags().IntVar(&flagIntervalMs, "sync-interval-ms", -1, "simulated Sync cadence in milliseconds (overrides config)")
	runCmd.Flags().IntVar(&flagMonPort, "monitoring-port", -1, "Prometheus /metrics listen port (overrides config)")
	runCmd.Flags().StringVar(&flagLogLevel, "loglevel", "", "debug, info, warning, or error (overrides config)")
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	var cfg *Config
	var err error
	if cfgFile != "" {
		cfg, err = ReadConfig(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}

	if flagDomain >= 0 {
		cfg.Domain = uint8(flagDomain)
	}
	if flagIntervalMs > 0 {
		cfg.SyncIntervalMs = flagIntervalMs
	}
	if flagMonPort >= 0 {
		cfg.MonitoringPort = flagMonPort
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}
}

func runSimulation(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogLevel(cfg.LogLevel)

	identity, err := cfg.clockIdentity()
	if err != nil {
		return err
	}

	p, err := port.New(wire.PortIdentity{ClockIdentity: identity, PortNumber: 1}, port.DefaultConfig())
	if err != nil {
		return err
	}
	p.OnStateChange = func(from, to wire.PortState) {
		log.Infof("port %s: %s -> %s", p.Identity, from, to)
	}
	p.OnFault = func(reason error) {
		log.Errorf("port %s: fault: %v", p.Identity, reason)
	}

	now := time.Now()
	p.Initialize(now)
	// ptpsim has no real Announce traffic, so it seeds foreign-master
	// qualification directly: one synthetic Announce receipt followed
	// by a forced BMCA decision, just as a real port would reach Slave
	// only after bmca.Decide recommends it.
	p.RxAnnounce(now)
	p.ApplyBmcaDecision(port.BmcaSlave, now)

	bmcaCoord, err := coordinator.NewBmcaCoordinator(coordinator.DefaultBmcaConfig())
	if err != nil {
		return err
	}
	syncCoord, err := coordinator.NewSyncCoordinator(coordinator.DefaultSyncConfig())
	if err != nil {
		return err
	}
	bmcaCoord.Start()
	syncCoord.Start()

	exporter := stats.NewExporter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.MonitoringPort)
		if err := exporter.Start(ctx, addr); err != nil {
			log.Warningf("stats exporter on %s stopped: %v", addr, err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(cfg.SyncIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(1))
	noExecute := func(time.Time) (coordinator.BmcaOutcome, error) { return coordinator.BmcaOutcome{}, nil }

	var seq uint16
	for {
		select {
		case <-sigCh:
			log.Info("ptpsim: shutting down")
			return nil
		case tick := <-ticker.C:
			seq++
			jitterRange := int64(cfg.SimulatedJitter) * 2
			var jitter time.Duration
			if jitterRange > 0 {
				jitter = time.Duration(rng.Int63n(jitterRange+1)) - cfg.SimulatedJitter
			}
			feedSyntheticSample(p, seq, tick, cfg.SimulatedOffset+jitter, cfg.SimulatedDelay)
			p.RxSyncSample(tick)
			p.Tick(tick)

			if err := bmcaCoord.Tick(tick, noExecute); err != nil {
				log.Debugf("bmca coordinator: %v", err)
			}
			if err := syncCoord.Tick(tick, p.Engine()); err != nil {
				log.Debugf("sync coordinator: rejected sample: %v", err)
			}

			exporter.Update(bmcaCoord.GetStatistics(), syncCoord.GetStatistics(), coordinator.FlowStats{})
			exporter.SetHealth("bmca", bmcaCoord.GetHealthStatus())
			exporter.SetHealth("sync", syncCoord.GetHealthStatus())

			st := syncCoord.GetStatistics()
			log.Infof("port=%s state=%s seq=%d offset=%s delay=%s health=%s",
				p.Identity, p.State(), seq, st.LastOffset, st.LastDelay, syncCoord.GetHealthStatus())
		}
	}
}

// feedSyntheticSample records a complete t1-t4 set on p's engine that
// resolves to exactly the requested offset and delay:
//
//	s2c = t2-t1 = offset+delay
//	c2s = t4-t3 = delay-offset
//
// matching the two-step E2E formula in syncengine.Engine.Compute.
func feedSyntheticSample(p *port.Port, seq uint16, now time.Time, offset, delay time.Duration) {
	eng := p.Engine()
	t1 := now
	t2 := t1.Add(offset + delay)
	t3 := t2.Add(time.Millisecond)
	t4 := t3.Add(delay - offset)

	eng.AddT1(seq, t1, 0)
	eng.AddT2(seq, t2)
	eng.AddT3(seq, t3)
	eng.AddT4(seq, t4, 0)
}
