package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trandh/pulse/config"
	"github.com/trandh/pulse/internal/console"
	"github.com/trandh/pulse/internal/dashboard"
	"github.com/trandh/pulse/internal/handler"
	"github.com/trandh/pulse/internal/httpserver"
	"github.com/trandh/pulse/internal/metrics"
	"github.com/trandh/pulse/internal/monitor"
	"github.com/trandh/pulse/internal/proxy"
	"github.com/trandh/pulse/internal/registry"
	"github.com/trandh/pulse/internal/stream"
	"github.com/trandh/pulse/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		log.Error("invalid health check interval", slog.Any("err", err))
		os.Exit(1)
	}
	probeTimeout, err := time.ParseDuration(cfg.HealthCheck.ProbeTimeout)
	if err != nil {
		log.Error("invalid probe timeout", slog.Any("err", err))
		os.Exit(1)
	}

	if len(cfg.Backends) == 0 {
		log.Warn("no backends configured, every request will be answered 503")
	}

	hub := stream.NewHub(cfg.Stream.Buffer)
	reg := registry.New(backendSeeds(cfg), hub, log)

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	forwarder := proxy.New(backendURLs(cfg), log)
	proxyHandler := handler.NewProxyHandler(log, reg, forwarder, collector)
	dash := dashboard.NewHandler(reg, hub, log)

	mon := monitor.New(reg, collector, interval, probeTimeout, log)
	go mon.Run(ctx)

	if cfg.Console.Enabled {
		renderer := console.NewRenderer(hub, os.Stdout, cfg.Server.Address, log)
		go renderer.Run(ctx)
	}

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(proxyHandler, dash, collector))
	if err != nil {
		log.Error("failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("load balancer listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("backends", len(cfg.Backends)))

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("error starting load balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func backendSeeds(cfg *config.Config) []registry.Seed {
	seeds := make([]registry.Seed, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		seeds = append(seeds, registry.Seed{URL: b.URL, Region: b.Region})
	}
	return seeds
}

func backendURLs(cfg *config.Config) []string {
	urls := make([]string, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		urls = append(urls, b.URL)
	}
	return urls
}
