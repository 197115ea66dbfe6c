package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orderly-mm-bot/internal/app"
	"orderly-mm-bot/internal/config"
	"orderly-mm-bot/internal/logging"
	"orderly-mm-bot/internal/metrics"
	"orderly-mm-bot/internal/timescale"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log decisions without sending orders")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *dryRun {
		cfg.Trading.DryRun = true
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded",
		zap.String("path", *configPath),
		zap.String("symbol", cfg.Trading.Symbol),
		zap.Bool("dry_run", cfg.Trading.DryRun))

	creds, err := config.LoadCredentials()
	if err != nil {
		if !cfg.Trading.DryRun {
			log.Error("credentials required", zap.Error(err))
			os.Exit(1)
		}
		log.Warn("running without credentials, position reads will degrade", zap.Error(err))
	}

	opts := app.Options{}
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		opts.Metrics = prom.Metrics
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", prom.Handler())
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.ListenAddr))
	}
	if cfg.Timescale.Enabled {
		writer, err := timescale.New(cfg.Timescale, log)
		if err != nil {
			log.Error("timescale init failed", zap.Error(err))
			os.Exit(1)
		}
		opts.Timescale = writer
		defer writer.Close()
	}

	application, err := app.New(cfg, creds, log, opts)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && err != context.Canceled {
		log.Error("app terminated", zap.Error(err))
		os.Exit(1)
	}
}
