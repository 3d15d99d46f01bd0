package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpAdapter "github.com/aretw0/cadence/pkg/adapters/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownGrace bounds how long in-flight requests and tasks get on shutdown.
const shutdownGrace = 10 * time.Second

// ServeOptions configures the HTTP server.
type ServeOptions struct {
	CommonOptions

	// Addr overrides http.addr from the configuration.
	Addr string
}

// newRouter mounts the JSON API next to the Prometheus and health endpoints.
func newRouter(api http.Handler, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", api)
	return r
}

// Serve starts the HTTP API and blocks until ctx is cancelled.
// Queued tasks are given shutdownGrace to finish before the engine stops.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTPAddr = opts.Addr
	}
	logger, err := createLogger(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := createEngine(cfg, logger, opts.Debug, reg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(httpAdapter.NewHandler(eng, httpAdapter.WithLogger(logger)), reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting Cadence Server", "addr", srv.Addr, "protocols", len(eng.Protocols()))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		shutdownEngine(eng, shutdownGrace)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown did not complete", "err", err)
		_ = srv.Close()
	}
	shutdownEngine(eng, shutdownGrace)
	logger.Info("Cadence Server stopped gracefully")
	return nil
}

// shutdownEngine drains in-flight runs, then cancels what is left.
// Each phase gets its own grace period.
func shutdownEngine(eng *engineHandle, grace time.Duration) {
	waitCtx, cancelWait := context.WithTimeout(context.Background(), grace)
	_ = eng.WaitAll(waitCtx)
	cancelWait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), grace)
	defer cancelStop()
	_ = eng.Shutdown(stopCtx)
}
