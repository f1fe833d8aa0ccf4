package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
)

// StartServer serves /metrics on port in the background and returns the
// server's shutdown function.
func StartServer(port int) (shutdown func(context.Context) error) {
	log := logger.WithComponent("metrics")
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
