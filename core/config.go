package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultAPIURL            = "http://localhost:8000"
	DefaultEnhanceTimeout    = 300 // seconds
	DefaultHealthInterval    = 15  // seconds
	DefaultWebUIHost         = "localhost"
	DefaultWebUIPort         = 3000
	DefaultDatabasePath      = "data/srdash.db"
	DefaultMaxUploadMB       = 10
	DefaultMaxResponseMB     = 64
	DefaultArtifactBudgetMB  = 512
	DefaultLogFile           = "srdash.log"
	DefaultHistoryRetainDays = 30
)

// Config holds all runtime configuration for the dashboard service.
type Config struct {
	// APIURL is the base URL of the enhancement backend.
	APIURL string
	// EnhanceTimeout bounds a single enhancement request.
	EnhanceTimeout time.Duration
	// HealthInterval is the backend liveness probe period.
	HealthInterval time.Duration

	WebUIHost     string
	WebUIPort     int
	WebUIPassword string

	DatabasePath      string
	HistoryEnabled    bool
	HistoryRetainDays int

	// MaxUploadBytes caps the size of an accepted input image.
	MaxUploadBytes int64
	// MaxResponseBytes caps a backend response body.
	MaxResponseBytes int64
	// ArtifactBudgetBytes caps the in-memory previews and outputs.
	ArtifactBudgetBytes int64

	// SimSeed seeds the metric generators. Zero means a random seed per run.
	SimSeed uint64
	// PipelinesFile optionally replaces the built-in pipeline presets.
	PipelinesFile string

	LogFile  string
	LogLevel string
	DevMode  bool

	AllowSelfSignedCerts bool

	// ConfigFile is the YAML file layered over the environment, if one was read.
	ConfigFile string
}

// LoadConfig builds a Config from environment variables, applying defaults
// for everything that is unset. Call godotenv.Load before this if a .env
// file should be honoured.
func LoadConfig() (*Config, error) {
	seed, err := parseUint64Env("SIM_SEED", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:               strings.TrimRight(GetEnvOrDefault("API_URL", DefaultAPIURL), "/"),
		EnhanceTimeout:       ParseDurationEnv("ENHANCE_TIMEOUT_SECONDS", DefaultEnhanceTimeout),
		HealthInterval:       ParseDurationEnv("HEALTH_INTERVAL_SECONDS", DefaultHealthInterval),
		WebUIHost:            GetEnvOrDefault("WEBUI_HOST", DefaultWebUIHost),
		WebUIPort:            ParseIntEnv("WEBUI_PORT", DefaultWebUIPort),
		WebUIPassword:        GetEnvOrDefault("WEBUI_PASSWORD", ""),
		DatabasePath:         GetEnvOrDefault("DATABASE_PATH", DefaultDatabasePath),
		HistoryEnabled:       ParseBoolEnv("HISTORY_ENABLED", true),
		HistoryRetainDays:    ParseIntEnv("HISTORY_RETAIN_DAYS", DefaultHistoryRetainDays),
		MaxUploadBytes:       ParseMegabytesEnv("MAX_UPLOAD_MB", DefaultMaxUploadMB),
		MaxResponseBytes:     ParseMegabytesEnv("MAX_RESPONSE_MB", DefaultMaxResponseMB),
		ArtifactBudgetBytes:  ParseMegabytesEnv("ARTIFACT_BUDGET_MB", DefaultArtifactBudgetMB),
		SimSeed:              seed,
		PipelinesFile:        GetEnvOrDefault("PIPELINES_FILE", ""),
		LogFile:              GetEnvOrDefault("LOG_FILE", DefaultLogFile),
		LogLevel:             GetEnvOrDefault("LOG_LEVEL", ""),
		DevMode:              ParseBoolEnv("DEV_MODE", false),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
// The returned error is a *ConfigError describing how to fix it.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return ErrInvalidAPIURL(c.APIURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidAPIURL(c.APIURL, "scheme must be http or https")
	}
	if u.Host == "" {
		return ErrInvalidAPIURL(c.APIURL, "missing host")
	}
	if c.WebUIPort <= 0 || c.WebUIPort > 65535 {
		return ErrInvalidValue("WEBUI_PORT", fmt.Sprintf("%d", c.WebUIPort), "must be between 1 and 65535")
	}
	if c.EnhanceTimeout <= 0 {
		return ErrInvalidValue("ENHANCE_TIMEOUT_SECONDS", c.EnhanceTimeout.String(), "must be positive")
	}
	if c.HealthInterval <= 0 {
		return ErrInvalidValue("HEALTH_INTERVAL_SECONDS", c.HealthInterval.String(), "must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidValue("MAX_UPLOAD_MB", fmt.Sprintf("%d", c.MaxUploadBytes), "must be positive")
	}
	if c.MaxResponseBytes <= 0 {
		return ErrInvalidValue("MAX_RESPONSE_MB", fmt.Sprintf("%d", c.MaxResponseBytes), "must be positive")
	}
	if c.ArtifactBudgetBytes < c.MaxUploadBytes {
		return ErrInvalidValue("ARTIFACT_BUDGET_MB", fmt.Sprintf("%d", c.ArtifactBudgetBytes>>20), "must be at least MAX_UPLOAD_MB")
	}
	if c.HistoryEnabled && c.DatabasePath == "" {
		return ErrMissingConfig("DATABASE_PATH")
	}
	return nil
}

// WebUIAddr returns the host:port the dashboard listens on.
func (c *Config) WebUIAddr() string {
	return fmt.Sprintf("%s:%d", c.WebUIHost, c.WebUIPort)
}

// AuthEnabled reports whether the dashboard requires a password.
func (c *Config) AuthEnabled() bool {
	return c.WebUIPassword != ""
}

// GetHTTPClient returns an HTTP client with the given timeout and the
// configured TLS settings.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}

// GetEnhanceHTTPClient returns the client used for backend enhancement calls.
func GetEnhanceHTTPClient(cfg *Config) *http.Client {
	return GetHTTPClient(cfg, cfg.EnhanceTimeout)
}
