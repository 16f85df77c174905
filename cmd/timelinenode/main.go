// Command timelinenode runs the long-running decentralized
// microblogging node: its local server (C7), its public peer-facing
// server (C8), and the background cache refresher (C9), wired the way
// the teacher's cmd/single/main.go wires its server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/config"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/dht"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/localserver"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/logging"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/metrics"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/node"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/publicserver"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	startupLogger := log.New(os.Stdout, "[TIMELINE] ", log.LstdFlags)

	maxProcs := runtime.GOMAXPROCS(0)
	startupLogger.Printf("GOMAXPROCS: %d (via automaxprocs)", maxProcs)

	cfg, err := config.Load(nil)
	if err != nil {
		startupLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: logging.Format(cfg.LogFormat)})
	cfg.Print(logger)

	self, err := identity.Parse(cfg.PublicAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("public_addr", cfg.PublicAddr).Msg("invalid TL_PUBLIC_ADDR")
	}

	if bootstrap := cfg.BootstrapNodes(); len(bootstrap) > 0 {
		logger.Info().Strs("bootstrap_nodes", bootstrap).Msg("bootstrap nodes configured (DHT transport is an external collaborator; see DESIGN.md)")
	}

	store, err := storage.Open(cfg.DataDir, self)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}

	reconciler := dht.NewReconciler(dht.NewMemoryKV(), logger.With().Str("component", "dht").Logger(), dht.ReconcileConfig{
		MaxBackoff: time.Duration(cfg.ReconcileMaxBackoffSeconds * float64(time.Second)),
		JitterMin:  time.Duration(cfg.ReconcileJitterMinSeconds * float64(time.Second)),
		JitterMax:  time.Duration(cfg.ReconcileJitterMaxSeconds * float64(time.Second)),
	}, cfg.DHTPutLimiter())

	var nodeMetrics *metrics.Collector
	var metricsIface node.Metrics
	if cfg.MetricsAddr != "" {
		nodeMetrics = metrics.New()
		metricsIface = nodeMetrics
	}

	n, err := node.New(self, cfg, store, reconciler, logger.With().Str("component", "node").Logger(), metricsIface)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load node state")
	}

	localAddr := fmt.Sprintf("127.0.0.1:%d", cfg.LocalPort)
	local := localserver.New(localAddr, n, logger.With().Str("component", "localserver").Logger())
	if err := local.Start(); err != nil {
		logger.Fatal().Err(err).Str("addr", localAddr).Msg("failed to start local server")
	}

	public := publicserver.New(self, n, logger.With().Str("component", "publicserver").Logger())
	if err := public.Start(); err != nil {
		logger.Fatal().Err(err).Str("addr", self.String()).Msg("failed to start public server")
	}

	if nodeMetrics != nil {
		nodeMetrics.StartSampling(2 * time.Second)
		if err := nodeMetrics.Serve(cfg.MetricsAddr); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.MetricsAddr).Msg("failed to start metrics server")
		}
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go n.RunRefresher(ctx)

	logger.Info().Str("self", self.String()).Msg("node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	if err := local.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error shutting down local server")
	}
	if err := public.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error shutting down public server")
	}
	if nodeMetrics != nil {
		if err := nodeMetrics.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("error shutting down metrics server")
		}
	}
}
