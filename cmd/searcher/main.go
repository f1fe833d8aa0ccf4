// Command searcher serves read-only term, posting and document lookups over
// the sealed segments of an index directory. New segments written by the
// indexer are picked up every refresh interval.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/redis"
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
	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Indexer.DataDir)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	exec, err := executor.Open(ctx, cfg.Indexer.DataDir, m)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer exec.Close()
	go refreshLoop(ctx, exec, cfg.Search.RefreshInterval)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := exec.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d segments, %d documents", stats.Segments, stats.DocCount),
		}
	})

	var termCache *cache.TermCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, term caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			termCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
			slog.Info("term cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	h := handler.New(exec, termCache, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}

func refreshLoop(ctx context.Context, exec *executor.Executor, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := exec.Refresh(ctx); err != nil {
				slog.Error("index refresh failed", "error", err)
			}
		}
	}
}
