package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Kalhara-JA/retail-os/internal/email"
	"github.com/Kalhara-JA/retail-os/internal/ipfilter"
	"github.com/Kalhara-JA/retail-os/internal/mailer"
	"github.com/Kalhara-JA/retail-os/internal/ratelimit"
)

// Config is the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Mail       MailConfig       `yaml:"mail"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
	Seeds      SeedsConfig      `yaml:"seeds"`
	Revalidate RevalidateConfig `yaml:"revalidate"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	path string `yaml:"-"`
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Hostname string `yaml:"hostname"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`          // static admin key, sent as Bearer or X-API-Key
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // default: 1MB
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`   // default: 1MB
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	Admin          AdminConfig   `yaml:"admin"`
	JWT            JWTConfig     `yaml:"jwt"`
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig switches the API to HTTPS, from files or from Let's Encrypt
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains Let's Encrypt settings
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	HTTPAddr string   `yaml:"http_addr"` // HTTP-01 challenges, default :80
}

// Enabled reports whether the API should serve HTTPS
func (t TLSConfig) Enabled() bool {
	return t.ACME.Enabled || t.CertFile != ""
}

// AdminConfig is the single admin login used to obtain tokens
type AdminConfig struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"` // bcrypt, see `retailos admin hash-password`
	AllowedIPs   []string `yaml:"allowed_ips"`   // empty = allow all
}

// JWTConfig contains token signing settings
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// MailConfig contains outbound mail settings
type MailConfig struct {
	Mode    string             `yaml:"mode"` // smtp, sandbox, disabled
	From    string             `yaml:"from"`
	SMTP    SMTPConfig         `yaml:"smtp"`
	DKIM    DKIMConfig         `yaml:"dkim"`
	Headers mailer.HeaderRules `yaml:"headers"`
}

// SMTPConfig points at the relay used in smtp mode
type SMTPConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	TLS                string        `yaml:"tls"` // none, starttls, implicit
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
	Domain   string `yaml:"domain"` // default: domain of mail.from
}

// NewsletterConfig contains subscription settings
type NewsletterConfig struct {
	AdminRecipients []string          `yaml:"admin_recipients"`
	RateLimit       *ratelimit.Config `yaml:"rate_limit"` // omitted = defaults, {} = unlimited
}

// SeedsConfig contains seed file settings
type SeedsConfig struct {
	Dir    string       `yaml:"dir"`
	Mirror MirrorConfig `yaml:"mirror"`
}

// MirrorConfig contains the optional S3 compatible upload target
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"` // host:port, no scheme
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// RevalidateConfig contains the frontend cache webhook
type RevalidateConfig struct {
	URL     string        `yaml:"url"` // empty disables revalidation
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // default: :9090
	Path       string   `yaml:"path"`        // default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"`
}

// Load loads configuration from a YAML file.
// A .env file next to the config and one in the working directory are
// read first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{path: path}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// YAML lists get the same trim, lowercase and dedupe as ADMIN_EMAIL
	cfg.Newsletter.AdminRecipients = email.ParseRecipientList(cfg.Newsletter.AdminRecipients)

	return cfg, nil
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

func loadDotEnv(paths ...string) error {
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides file values with the deployment environment
func (c *Config) applyEnv() error {
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.Mail.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.Mail.SMTP.Port = port
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		c.Mail.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.Mail.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.Mail.From = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		c.Newsletter.AdminRecipients = email.ParseRecipientList(v)
	}
	if v := os.Getenv("REVALIDATE_SECRET"); v != "" {
		c.Revalidate.Secret = v
	}
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Server.Hostname = hostname
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = 1 << 20
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 5 * time.Minute
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}
	if c.API.JWT.TTL == 0 {
		c.API.JWT.TTL = 24 * time.Hour
	}
	if c.API.TLS.ACME.CacheDir == "" {
		c.API.TLS.ACME.CacheDir = "/var/lib/retailos/certs"
	}
	if c.API.TLS.ACME.HTTPAddr == "" {
		c.API.TLS.ACME.HTTPAddr = ":80"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/retailos/content.db"
	}

	// Credentials in the environment switch sending on
	if c.Mail.Mode == "" {
		if c.Mail.SMTP.Host != "" {
			c.Mail.Mode = "smtp"
		} else {
			c.Mail.Mode = "disabled"
		}
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Mail.SMTP.TLS == "" {
		switch c.Mail.SMTP.Port {
		case 465:
			c.Mail.SMTP.TLS = "implicit"
		default:
			c.Mail.SMTP.TLS = "starttls"
		}
	}
	if c.Mail.SMTP.Timeout == 0 {
		c.Mail.SMTP.Timeout = 30 * time.Second
	}
	if c.Mail.DKIM.Domain == "" && c.Mail.From != "" {
		c.Mail.DKIM.Domain = email.ExtractDomain(c.Mail.From)
	}

	if c.Newsletter.RateLimit == nil {
		c.Newsletter.RateLimit = &ratelimit.Config{
			PerIP:    ratelimit.Limit{PerHour: 10, PerDay: 50},
			PerEmail: ratelimit.Limit{PerDay: 3},
		}
	}

	if c.Seeds.Dir == "" {
		c.Seeds.Dir = "seed-data"
	}
	if c.Seeds.Mirror.Region == "" {
		c.Seeds.Mirror.Region = "us-east-1"
	}

	if c.Revalidate.Timeout == 0 {
		c.Revalidate.Timeout = 5 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateMail(); err != nil {
		return err
	}

	for _, addr := range c.Newsletter.AdminRecipients {
		if !email.IsValid(email.Normalize(addr)) {
			return fmt.Errorf("invalid newsletter.admin_recipients entry: %q", addr)
		}
	}

	if err := c.validateSeeds(); err != nil {
		return err
	}

	if c.Revalidate.URL != "" {
		u, err := url.Parse(c.Revalidate.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("revalidate.url must be an http(s) URL: %q", c.Revalidate.URL)
		}
	}

	return nil
}

func (c *Config) validateAPI() error {
	admin := c.API.Admin
	if admin.Username != "" {
		if admin.PasswordHash == "" {
			return fmt.Errorf("api.admin.password_hash is required when api.admin.username is set")
		}
		if !strings.HasPrefix(admin.PasswordHash, "$2") {
			return fmt.Errorf("api.admin.password_hash must be a bcrypt hash")
		}
		if len(c.API.JWT.Secret) < 32 {
			return fmt.Errorf("api.jwt.secret must be at least 32 characters when admin login is enabled")
		}
	}
	if c.API.JWT.TTL < 0 {
		return fmt.Errorf("api.jwt.ttl must not be negative")
	}
	if _, err := ipfilter.Parse(admin.AllowedIPs); err != nil {
		return fmt.Errorf("api.admin.allowed_ips: %w", err)
	}

	t := c.API.TLS
	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("api.tls.cert_file and api.tls.key_file must be set together")
	}
	if t.ACME.Enabled {
		if t.CertFile != "" {
			return fmt.Errorf("api.tls.acme cannot be combined with api.tls.cert_file")
		}
		if len(t.ACME.Domains) == 0 {
			return fmt.Errorf("api.tls.acme.domains is required when ACME is enabled")
		}
		if t.ACME.Email != "" && !email.IsValid(t.ACME.Email) {
			return fmt.Errorf("invalid api.tls.acme.email: %q", t.ACME.Email)
		}
	}
	return nil
}

func (c *Config) validateMail() error {
	m := c.Mail
	switch m.Mode {
	case "disabled":
		return nil
	case "smtp", "sandbox":
	default:
		return fmt.Errorf("invalid mail.mode: %s (must be smtp, sandbox, or disabled)", m.Mode)
	}

	if m.From == "" {
		return fmt.Errorf("mail.from is required when mail.mode is %s", m.Mode)
	}
	if !email.IsValid(m.From) {
		return fmt.Errorf("invalid mail.from: %q", m.From)
	}

	if m.Mode == "smtp" {
		if m.SMTP.Host == "" {
			return fmt.Errorf("mail.smtp.host is required when mail.mode is smtp")
		}
		if m.SMTP.Port < 1 || m.SMTP.Port > 65535 {
			return fmt.Errorf("invalid mail.smtp.port: %d", m.SMTP.Port)
		}
		validTLS := map[string]bool{"none": true, "starttls": true, "implicit": true}
		if !validTLS[m.SMTP.TLS] {
			return fmt.Errorf("invalid mail.smtp.tls: %s (must be none, starttls, or implicit)", m.SMTP.TLS)
		}
		if m.SMTP.Username != "" && m.SMTP.Password == "" {
			return fmt.Errorf("mail.smtp.password is required when mail.smtp.username is set")
		}
	}

	if err := m.Headers.Validate(); err != nil {
		return fmt.Errorf("mail.headers.%w", err)
	}

	if m.DKIM.Enabled {
		if m.DKIM.Selector == "" {
			return fmt.Errorf("mail.dkim.selector is required when DKIM is enabled")
		}
		if m.DKIM.KeyFile == "" {
			return fmt.Errorf("mail.dkim.key_file is required when DKIM is enabled")
		}
		if m.DKIM.Domain == "" {
			return fmt.Errorf("mail.dkim.domain is required when DKIM is enabled")
		}
	}

	return nil
}

func (c *Config) validateSeeds() error {
	mirror := c.Seeds.Mirror
	if !mirror.Enabled {
		return nil
	}
	if mirror.Endpoint == "" {
		return fmt.Errorf("seeds.mirror.endpoint is required when the mirror is enabled")
	}
	if strings.Contains(mirror.Endpoint, "://") {
		return fmt.Errorf("seeds.mirror.endpoint must be host:port without scheme")
	}
	if mirror.AccessKey == "" || mirror.SecretKey == "" {
		return fmt.Errorf("seeds.mirror.access_key and secret_key are required when the mirror is enabled")
	}
	if mirror.Bucket == "" {
		return fmt.Errorf("seeds.mirror.bucket is required when the mirror is enabled")
	}
	return nil
}

// AdminEnabled reports whether any admin credential is configured
func (c *Config) AdminEnabled() bool {
	return c.API.APIKey != "" || c.API.Admin.Username != ""
}
