package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Armin-kho/deal-gate-bot/internal/bot"
	"github.com/Armin-kho/deal-gate-bot/internal/config"
	"github.com/Armin-kho/deal-gate-bot/internal/health"
	"github.com/Armin-kho/deal-gate-bot/internal/logging"
)

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "path to config.json")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// No config, no debug flag: report once with a production logger.
		if logger, lerr := logging.New(false); lerr == nil {
			logger.Error("config error", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint: errcheck

	app, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal("unable to initialise bot", zap.Error(err))
	}
	defer app.Close()

	httpServer := health.NewServer(cfg.HTTPPort, logger.With(zap.String("feature", "http-server")))
	httpServer.Start()

	// Graceful stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("service is running", zap.Int("port", cfg.HTTPPort))
	if err := app.Run(ctx); err != nil {
		logger.Error("run error", zap.Error(err))
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("unable to shutdown HTTP Server", zap.Error(err))
	}
}
