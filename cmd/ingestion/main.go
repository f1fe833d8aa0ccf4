// Command ingestion starts the document ingestion HTTP service.
//
// The service accepts documents via POST /api/v1/documents and deletions via
// DELETE /api/v1/documents/{doc}, validates them against the configured
// schema and publishes them to the Kafka document topic for the indexer.
// Each client address gets server.rateLimit requests per minute. It provides
// a health endpoint at GET /health.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	s, err := schema.FromConfig(cfg.Schema.Fields)
	if err != nil {
		slog.Error("invalid schema", "error", err)
		os.Exit(1)
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)
	h := handler.New(publisher.New(producer), s)
	mux := http.NewServeMux()
	h.Register(mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Sweep(ctx, 5*time.Minute)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
