package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kalhara-JA/retail-os/internal/api"
	"github.com/Kalhara-JA/retail-os/internal/certs"
	"github.com/Kalhara-JA/retail-os/internal/config"
	"github.com/Kalhara-JA/retail-os/internal/dkim"
	"github.com/Kalhara-JA/retail-os/internal/dnscheck"
	"github.com/Kalhara-JA/retail-os/internal/email"
	"github.com/Kalhara-JA/retail-os/internal/mailer"
	"github.com/Kalhara-JA/retail-os/internal/metrics"
	"github.com/Kalhara-JA/retail-os/internal/newsletter"
	"github.com/Kalhara-JA/retail-os/internal/ratelimit"
	"github.com/Kalhara-JA/retail-os/internal/revalidate"
	"github.com/Kalhara-JA/retail-os/internal/seed"
	"github.com/Kalhara-JA/retail-os/internal/store"
	"github.com/Kalhara-JA/retail-os/internal/template"
)

// App is the main application
type App struct {
	config        *config.Config
	store         *store.BoltStore
	limiter       *ratelimit.Limiter
	mirror        *seed.Mirror
	acme          *certs.ACME
	acmeServer    *http.Server
	apiServer     *api.Server
	metricsServer *metrics.Server
	logger        *slog.Logger
}

// New wires every component from cfg. Nothing listens until Run.
func New(cfg *config.Config, version string) (*App, error) {
	logger := NewLogger(cfg.Logging)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
	}

	st, err := store.NewBoltStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	a := &App{config: cfg, store: st, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	rv := revalidate.New(cfg.Revalidate.URL, cfg.Revalidate.Secret, cfg.Revalidate.Timeout,
		logger.With("component", "revalidate"))
	if rv.Enabled() {
		st.SetRevalidator(rv)
		logger.Info("frontend revalidation enabled", "url", cfg.Revalidate.URL)
	}

	signer, err := newSigner(cfg.Mail)
	if err != nil {
		return nil, err
	}

	ml, sandbox, err := newMailer(cfg.Mail, st, signer, logger.With("component", "mailer"))
	if err != nil {
		return nil, err
	}
	logger.Info("mail delivery configured", "mode", ml.Mode())

	engine := template.NewEngine(template.NewStorage(st), logger.With("component", "templates"))

	subscriptions := newsletter.NewService(st, engine, ml, newsletter.Options{
		From:            cfg.Mail.From,
		AdminRecipients: cfg.Newsletter.AdminRecipients,
	}, logger.With("component", "newsletter"))

	a.limiter, err = ratelimit.New(st.DB(), *cfg.Newsletter.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	exporter := seed.NewExporter(st, cfg.Seeds.Dir, logger.With("component", "seed_export"))
	if cfg.Seeds.Mirror.Enabled {
		a.mirror, err = seed.NewMirror(mirrorConfig(cfg.Seeds.Mirror), logger.With("component", "seed_mirror"))
		if err != nil {
			return nil, fmt.Errorf("failed to create seed mirror: %w", err)
		}
		exporter.SetMirror(a.mirror)
		logger.Info("seed mirror enabled", "endpoint", cfg.Seeds.Mirror.Endpoint, "bucket", cfg.Seeds.Mirror.Bucket)
	}

	deps := api.Deps{
		Store:      st,
		Newsletter: subscriptions,
		Limiter:    a.limiter,
		Exporter:   exporter,
		Importer:   seed.NewImporter(st, logger.With("component", "seed_import")),
		Files:      seed.NewFiles(cfg.Seeds.Dir),
		Templates:  engine,
		Sandbox:    sandbox,
		DNSCheck:   dnscheck.New(nil),
		MailDomain: email.ExtractDomain(cfg.Mail.From),
		Version:    version,
	}
	if signer != nil {
		deps.DKIM = signer
		deps.MailDomain = signer.Domain()
	}
	a.apiServer = api.NewServer(&cfg.API, deps, logger.With("component", "api"))
	if err := a.setupTLS(cfg.API.TLS); err != nil {
		return nil, err
	}

	if m != nil {
		a.metricsServer = metrics.NewServer(m, metrics.ServerOptions{
			Addr:        cfg.Metrics.ListenAddr,
			Path:        cfg.Metrics.Path,
			AllowedIPs:  cfg.Metrics.AllowedIPs,
			StoragePath: cfg.Storage.Path,
		}, logger.With("component", "metrics"))
	}

	ok = true
	return a, nil
}

func newSigner(cfg config.MailConfig) (*dkim.Signer, error) {
	if !cfg.DKIM.Enabled {
		return nil, nil
	}
	signer, err := dkim.NewSignerFromFile(cfg.DKIM.KeyFile, dkim.Options{
		Domain:   cfg.DKIM.Domain,
		Selector: cfg.DKIM.Selector,
	})
	if err != nil {
		return nil, err
	}
	return signer, nil
}

// newMailer returns the mailer for the configured mode, plus the capture
// storage when the mode is sandbox
func newMailer(cfg config.MailConfig, st *store.BoltStore, signer *dkim.Signer, logger *slog.Logger) (mailer.Mailer, *mailer.SandboxStorage, error) {
	mode, err := mailer.ParseMode(cfg.Mode)
	if err != nil {
		return nil, nil, err
	}

	switch mode {
	case mailer.ModeSMTP:
		m := mailer.NewSMTP(mailer.SMTPOptions{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLS:                cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			Timeout:            cfg.SMTP.Timeout,
		}, logger)
		m.SetHeaderRules(&cfg.Headers)
		if signer != nil {
			m.SetSigner(signer)
			logger.Info("DKIM signing enabled", "domain", signer.Domain(), "selector", signer.Selector())
		}
		return m, nil, nil

	case mailer.ModeSandbox:
		storage, err := mailer.NewSandboxStorage(st.DB())
		if err != nil {
			return nil, nil, err
		}
		m := mailer.NewSandbox(storage, logger)
		m.SetHeaderRules(&cfg.Headers)
		return m, storage, nil
	}

	return mailer.NewDisabled(logger), nil, nil
}

// setupTLS switches the API server to HTTPS when certificates are configured
func (a *App) setupTLS(cfg config.TLSConfig) error {
	switch {
	case cfg.ACME.Enabled:
		a.acme = certs.NewACME(cfg.ACME.Email, cfg.ACME.Domains, cfg.ACME.CacheDir)
		a.apiServer.SetTLS(a.acme.TLSConfig())
		a.logger.Info("ACME (Let's Encrypt) enabled", "domains", cfg.ACME.Domains)

	case cfg.CertFile != "":
		tlsConfig, err := certs.Load(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return err
		}
		a.apiServer.SetTLS(tlsConfig)
		if info, err := certs.Inspect(cfg.CertFile); err == nil {
			if info.Expired() {
				a.logger.Warn("API certificate has expired", "domain", info.Domain, "not_after", info.NotAfter)
			} else {
				a.logger.Info("API certificate loaded", "domain", info.Domain, "days_left", info.DaysLeft)
			}
		}
	}
	return nil
}

// startACME serves HTTP-01 challenges and warms the certificate cache
func (a *App) startACME(ctx context.Context) {
	a.acmeServer = &http.Server{
		Addr:              a.config.API.TLS.ACME.HTTPAddr,
		Handler:           a.acme.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("starting ACME HTTP challenge server", "addr", a.acmeServer.Addr)
		if err := a.acmeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("ACME HTTP server error", "error", err)
		}
	}()

	if !a.acme.NeedsRenewal(ctx) {
		for _, info := range a.acme.Cached(ctx) {
			a.logger.Info("using cached certificate", "domain", info.Domain, "days_left", info.DaysLeft)
		}
		return
	}

	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		infos, err := a.acme.Warm(warmCtx)
		if err != nil {
			a.logger.Error("failed to obtain certificates", "error", err)
			return
		}
		for _, info := range infos {
			a.logger.Info("certificate ready", "domain", info.Domain, "not_after", info.NotAfter)
		}
	}()
}

func mirrorConfig(c config.MirrorConfig) seed.MirrorConfig {
	return seed.MirrorConfig{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Region:    c.Region,
		UseSSL:    c.UseSSL,
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
	}
}

// Run starts all servers and waits for a signal or a server failure
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting retailos",
		"hostname", a.config.Server.Hostname,
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Path,
		"seeds_dir", a.config.Seeds.Dir,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.mirror != nil {
		bucketCtx, bucketCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := a.mirror.EnsureBucket(bucketCtx); err != nil {
			a.logger.Warn("seed mirror bucket check failed", "error", err)
		}
		bucketCancel()
	}

	if a.acme != nil {
		a.startACME(ctx)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown stops the servers, then persists counters and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	a.close()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) close() {
	if a.limiter != nil {
		if err := a.limiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
