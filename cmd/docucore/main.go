// docucore serves the versioned document store over HTTP.
//
// Backend selection and durable-store settings come from the environment
// (see internal/core.OpenStore); transport settings are flags.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docucore/internal/adapters/httpapi"
	"docucore/internal/core"
	"docucore/internal/logger"
	"docucore/internal/metrics"
)

var (
	addr     = flag.String("addr", ":8080", "HTTP listen address")
	logLevel = flag.String("log-level", "info", "log level (debug|info|warn|error)")
	pretty   = flag.Bool("pretty", false, "human-readable log output")
)

func main() {
	flag.Parse()
	log := logger.New(logger.Config{Level: *logLevel, Pretty: *pretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenStore(ctx)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	svc := core.NewService(store, log, m)
	handler := httpapi.NewHandler(svc, log, m)

	mux := handler.Routes()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", *addr).Str("driver", string(store.Driver())).Msg("docucore listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("serve")
		os.Exit(1)
	}
	log.Info().Msg("docucore stopped")
}
