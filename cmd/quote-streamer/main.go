// cmd/quote-streamer/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/quotelab/quote-streamer/internal/app"
	"github.com/quotelab/quote-streamer/internal/config"
	"github.com/quotelab/quote-streamer/pkg/logger"
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to config file (optional, ENV works too)")
	pflag.Parse()

	// .env is optional, useful for local runs
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		DevMode: cfg.Logging.DevMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Logging.DevMode {
		cfg.Print()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.ServiceVersion),
	)

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("service exited with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("service stopped")
}
