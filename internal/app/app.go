// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quotelab/quote-streamer/internal/config"
	"github.com/quotelab/quote-streamer/internal/processor"
	"github.com/quotelab/quote-streamer/internal/quotecache"
	"github.com/quotelab/quote-streamer/pkg/backoff"
	"github.com/quotelab/quote-streamer/pkg/dxlink"
	"github.com/quotelab/quote-streamer/pkg/httpserver"
	"github.com/quotelab/quote-streamer/pkg/kafka"
	"github.com/quotelab/quote-streamer/pkg/logger"
	"github.com/quotelab/quote-streamer/pkg/telemetry"
)

// Run wires the service together and blocks until ctx is cancelled or a
// component fails fatally.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// Tracing
	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe(ctx, "telemetry", func() error { return shutdownTracer(ctx) }, log)

	// Kafka producer
	kafkaProd, err := kafka.New(ctx, cfg.Kafka.Producer, log)
	if err != nil {
		return fmt.Errorf("kafka producer init: %w", err)
	}
	defer shutdownSafe(ctx, "kafka-producer", kafkaProd.Close, log)

	// Latest-quote cache (optional)
	var cache *quotecache.Cache
	if cfg.Redis.Addr != "" {
		cache, err = quotecache.New(ctx, quotecache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, log)
		if err != nil {
			return fmt.Errorf("quotecache init: %w", err)
		}
		defer shutdownSafe(ctx, "quotecache", cache.Close, log)
	}

	proc := processor.New(kafkaProd, cache, cfg.Kafka.QuotesTopic, log)

	// Streaming session
	tokens := dxlink.NewTokenClient(cfg.API.BaseURL, cfg.API.SessionToken, log)
	session, err := dxlink.NewSession(cfg.Stream.DXLink, tokens, dxlink.Handlers{
		OnConnect: func() {
			log.Info("stream connected")
		},
		OnData: func(events []dxlink.MarketEvent) {
			proc.Handle(ctx, events)
		},
		OnError: func(err error) {
			log.Warn("stream error", zap.Error(err))
		},
		OnDisconnect: func() {
			log.Info("stream disconnected")
		},
	}, log)
	if err != nil {
		return fmt.Errorf("dxlink session init: %w", err)
	}

	// Observability HTTP server
	readiness := func() error {
		if err := kafkaProd.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		if !session.Connected() {
			return fmt.Errorf("stream: not connected")
		}
		return nil
	}
	httpSrv, err := httpserver.New(cfg.HTTP, readiness, log)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return httpSrv.Start(ctx) })

	// Stream cycle: connect with retries, subscribe the configured set, wait
	// for the cycle to end and start over. Quote tokens are single-use, so
	// every iteration re-authenticates from scratch.
	g.Go(func() error {
		defer session.Disconnect()
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			connect := func(ctx context.Context) error {
				err := session.Connect(ctx)
				if errors.Is(err, dxlink.ErrEntitlementDenied) {
					// an account upgrade is required; retrying cannot help
					return backoff.Permanent(err)
				}
				return err
			}
			if err := backoff.Execute(ctx, cfg.Stream.Backoff, log, connect); err != nil {
				return fmt.Errorf("stream connect failed: %w", err)
			}

			if err := session.SubscribeToSymbols(cfg.Stream.Symbols...); err != nil {
				log.WithContext(ctx).Error("subscribe failed", zap.Error(err))
				session.Disconnect()
				continue
			}
			log.Info("symbols subscribed", zap.Strings("symbols", cfg.Stream.Symbols))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-session.Done():
				log.WithContext(ctx).Warn("stream cycle ended, reconnecting")
			}
		}
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Info("streamer stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// shutdownSafe wraps a Close/Shutdown call with logging.
func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Info(fmt.Sprintf("%s: shutting down", name))
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(fmt.Sprintf("%s shutdown error", name), zap.Error(err))
	} else {
		log.WithContext(ctx).Info(fmt.Sprintf("%s: shutdown complete", name))
	}
}
