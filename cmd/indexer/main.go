// Command indexer builds index segments from document events.
//
// Events are consumed from the Kafka document topic, or read from a
// JSON-lines file when -input is given ("-" reads stdin). Buffered documents
// are sealed into a new segment every flush interval, when a segment reaches
// its document limit, and on shutdown.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-input docs.jsonl]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "", "JSON-lines event file to index instead of consuming Kafka (- for stdin)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, *input); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

func run(cfg *config.Config, input string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := schema.FromConfig(cfg.Schema.Fields)
	if err != nil {
		return fmt.Errorf("building schema: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	opts := []indexer.Option{indexer.WithMetrics(m)}
	if cfg.Indexer.PoolKind == config.PoolPostgres {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		slog.Info("connected to postgres", "host", cfg.Postgres.Host)
		opts = append(opts, indexer.WithDB(db.DB))
	}

	// SQL pools must outlive ctx: the final flush runs after it is cancelled.
	engine, err := indexer.NewEngine(context.WithoutCancel(ctx), cfg.Indexer, s, opts...)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("closing index", "error", err)
		}
	}()
	slog.Info("starting indexer service",
		"data_dir", cfg.Indexer.DataDir,
		"pool", cfg.Indexer.PoolKind,
		"fields", s.Names(),
	)
	engine.StartFlushLoop(ctx)

	if input != "" {
		return indexFile(ctx, engine, input)
	}

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(engine))
	defer kafkaConsumer.Close()
	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	return kafkaConsumer.Start(ctx)
}

func indexFile(ctx context.Context, engine *indexer.Engine, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	stats, err := consumer.ReadLines(ctx, r, engine)
	slog.Info("input processed", "applied", stats.Applied, "skipped", stats.Skipped)
	if err != nil {
		return err
	}
	return engine.Flush()
}
