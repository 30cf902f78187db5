// Command gateway runs the edge gateway: a reverse proxy with health
// checking, load balancing, rate limiting and response caching.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/gateway"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", configPathFromEnv(), "path to the gateway configuration file")
	flag.Parse()

	if *configPath == "" {
		return fmt.Errorf("no configuration file: pass -config or set EDGEGW_CONFIG")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	observability.SetGlobalLogger(logger)

	srv, err := gateway.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(*configPath,
		func(reloaded *config.GatewayConfig) {
			if applyErr := srv.ApplyConfig(reloaded); applyErr != nil {
				logger.Error("reloaded configuration rejected", observability.Error(applyErr))
			}
		},
		config.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	return srv.Run(ctx)
}

func newLogger(cfg *config.GatewayConfig) (observability.Logger, error) {
	logCfg := observability.DefaultLogConfig()
	if cfg.Logging != nil {
		if cfg.Logging.Level != "" {
			logCfg.Level = cfg.Logging.Level
		}
		if cfg.Logging.Format != "" {
			logCfg.Format = cfg.Logging.Format
		}
		if cfg.Logging.Output != "" {
			logCfg.Output = cfg.Logging.Output
		}
	}
	return observability.NewLogger(logCfg)
}

func configPathFromEnv() string {
	return os.Getenv("EDGEGW_CONFIG")
}
