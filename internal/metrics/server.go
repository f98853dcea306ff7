package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kalhara-JA/retail-os/internal/ipfilter"
)

// ServerOptions configures the metrics HTTP server
type ServerOptions struct {
	Addr        string
	Path        string
	AllowedIPs  []string // IPs or CIDRs; empty allows everyone
	StoragePath string   // database file whose size is reported on scrape
}

// Server serves Prometheus metrics over HTTP
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	opts       ServerOptions
	filter     *ipfilter.Filter
	startTime  time.Time
	logger     *slog.Logger
}

// NewServer creates a new metrics HTTP server
func NewServer(m *Metrics, opts ServerOptions, logger *slog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}

	s := &Server{
		metrics:   m,
		opts:      opts,
		filter:    ipfilter.New(opts.AllowedIPs, logger),
		startTime: time.Now(),
		logger:    logger,
	}
	if s.filter.Enabled() {
		logger.Info("metrics IP filtering enabled", "allowed", opts.AllowedIPs)
	}
	return s
}

// Handler returns the router serving the metrics and health endpoints
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	scrape := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	deny := func(w http.ResponseWriter, r *http.Request) {
		s.logger.Warn("metrics access denied", "remote_addr", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
	}

	r.With(s.filter.Middleware(deny)).Get(s.opts.Path, func(w http.ResponseWriter, r *http.Request) {
		s.refreshGauges()
		scrape.ServeHTTP(w, r)
	})

	// Unfiltered, load balancers poll this
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

// ListenAndServe starts the metrics HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting metrics server", "addr", s.opts.Addr, "path", s.opts.Path)
	return s.httpServer.ListenAndServe()
}

// refreshGauges updates point-in-time gauges right before a scrape
func (s *Server) refreshGauges() {
	s.metrics.UptimeSeconds.Set(time.Since(s.startTime).Seconds())
	if s.opts.StoragePath == "" {
		return
	}
	if fi, err := os.Stat(s.opts.StoragePath); err == nil {
		s.metrics.StorageUsedBytes.Set(float64(fi.Size()))
	}
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
