package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kalhara-JA/retail-os/internal/config"
	"github.com/Kalhara-JA/retail-os/internal/dnscheck"
	"github.com/Kalhara-JA/retail-os/internal/ipfilter"
	"github.com/Kalhara-JA/retail-os/internal/mailer"
	"github.com/Kalhara-JA/retail-os/internal/metrics"
	"github.com/Kalhara-JA/retail-os/internal/newsletter"
	"github.com/Kalhara-JA/retail-os/internal/ratelimit"
	"github.com/Kalhara-JA/retail-os/internal/seed"
	"github.com/Kalhara-JA/retail-os/internal/store"
	"github.com/Kalhara-JA/retail-os/internal/template"
)

// Subscriber runs the newsletter sign-up flow
type Subscriber interface {
	Subscribe(ctx context.Context, sub newsletter.Subscription) (*newsletter.Outcome, error)
}

// Limiter throttles public submissions
type Limiter interface {
	Allow(ctx context.Context, req ratelimit.Request) ratelimit.Decision
}

// Renderer renders a named email template
type Renderer interface {
	Render(ctx context.Context, name string, vars template.Variables) (*template.RenderResult, error)
}

// DKIMInfo describes the signing key for DNS setup
type DKIMInfo interface {
	Domain() string
	Selector() string
	DNSName() string
	DNSRecord() (string, error)
}

// DNSChecker verifies a sending domain's DNS records
type DNSChecker interface {
	Check(ctx context.Context, req dnscheck.Request) (*dnscheck.Report, error)
}

// Deps are the services the API exposes. Limiter, Sandbox, DKIM and DNSCheck are optional.
type Deps struct {
	Store      store.Store
	Newsletter Subscriber
	Limiter    Limiter
	Exporter   *seed.Exporter
	Importer   *seed.Importer
	Files      *seed.Files
	Templates  Renderer
	Sandbox    *mailer.SandboxStorage
	DKIM       DKIMInfo
	DNSCheck   DNSChecker
	MailDomain string
	Version    string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	tlsConfig  *tls.Config
	config     *config.APIConfig
	deps       Deps
	adminIPs   *ipfilter.Filter
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.APIConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		deps:      deps,
		adminIPs:  ipfilter.New(cfg.Admin.AllowedIPs, logger),
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// SetTLS makes ListenAndServe serve HTTPS with cfg
func (s *Server) SetTLS(cfg *tls.Config) {
	s.tlsConfig = cfg
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.limitBody)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/newsletter/subscribe", s.handleSubscribe)
		r.Get("/globals/{slug}", s.handleGetGlobal)
		r.Get("/collections/{slug}", s.handleFindPublic)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminIPs.Middleware(func(w http.ResponseWriter, r *http.Request) {
				sendError(w, http.StatusForbidden, "Forbidden")
			}))

			r.Post("/auth/token", s.handleToken)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Get("/collections/{slug}", s.handleFindAdmin)

				r.Post("/seed/generate", s.handleSeedGenerate)
				r.Post("/seed/import", s.handleSeedImport)
				r.Get("/seed/files", s.handleSeedFiles)
				r.Get("/seed/files/{name}", s.handleSeedDownload)
				r.Delete("/seed/files/{name}", s.handleSeedDelete)
				r.Post("/seed/files/{name}/delete", s.handleSeedDelete)

				r.Post("/email-templates/{name}/preview", s.handleTemplatePreview)

				r.Get("/mail/sandbox", s.handleSandboxList)
				r.Get("/mail/sandbox/{id}", s.handleSandboxGet)
				r.Delete("/mail/sandbox", s.handleSandboxClear)
				r.Get("/mail/dkim", s.handleDKIM)
				r.Get("/mail/dns", s.handleDNSCheck)
			})
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		TLSConfig:      s.tlsConfig,
	}

	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		return s.httpServer.ListenAndServeTLS("", "")
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
