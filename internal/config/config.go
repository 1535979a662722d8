package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
	"github.com/ironsheep/qr-tools-mcp/internal/qr"
	"github.com/ironsheep/qr-tools-mcp/internal/remote"
)

// Config is the complete qrmax configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Limits    LimitsConfig    `yaml:"limits"`
	Render    RenderConfig    `yaml:"render"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Upload    UploadConfig    `yaml:"upload"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LimitsConfig holds the admission ceilings.
type LimitsConfig struct {
	MaxContentLength  int   `yaml:"max_content_length"`
	MaxInlineSize     int   `yaml:"max_inline_size"`
	MaxFileSize       int64 `yaml:"max_file_size"`
	MaxImageDimension int   `yaml:"max_image_dimension"`
}

// RenderConfig controls how generated codes look.
type RenderConfig struct {
	MinSize       int    `yaml:"min_size"`
	RecoveryLevel string `yaml:"recovery_level"`
	Foreground    string `yaml:"foreground"`
	Background    string `yaml:"background"`
}

// FetchConfig controls remote image downloads.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"-"`
	TimeoutRaw      string        `yaml:"timeout"`
	UserAgent       string        `yaml:"user_agent"`
	AllowedDomains  []string      `yaml:"allowed_domains"`
	ImageExtensions []string      `yaml:"image_extensions"`
}

// UploadConfig controls publishing of generated codes.
type UploadConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Host       string        `yaml:"host"`
	UserHash   string        `yaml:"userhash"`
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// TelemetryConfig holds OpenTelemetry export settings. Tracing export is
// disabled when OTLPEndpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	l := admission.DefaultLimits()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Limits: LimitsConfig{
			MaxContentLength:  l.MaxContentLength,
			MaxInlineSize:     l.MaxInlineSize,
			MaxFileSize:       l.MaxFileSize,
			MaxImageDimension: l.MaxImageDimension,
		},
		Render: RenderConfig{
			MinSize:       l.MinRenderSize,
			RecoveryLevel: "medium",
			Foreground:    "#000000",
			Background:    "#ffffff",
		},
		Fetch: FetchConfig{
			Timeout:         l.FetchTimeout,
			TimeoutRaw:      l.FetchTimeout.String(),
			UserAgent:       remote.DefaultUserAgent,
			AllowedDomains:  l.AllowedDomains,
			ImageExtensions: l.ImageExtensions,
		},
		Upload: UploadConfig{
			Endpoint:   remote.DefaultCatboxEndpoint,
			Host:       l.UploadHost,
			Timeout:    l.UploadTimeout,
			TimeoutRaw: l.UploadTimeout.String(),
		},
		Telemetry: TelemetryConfig{ServiceName: "qrmax"},
	}
}

// Load reads a configuration file from the given path. Keys missing from the
// file keep their Default values. Environment variables in the format
// ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	var err error

	if cfg.Fetch.TimeoutRaw != "" {
		cfg.Fetch.Timeout, err = time.ParseDuration(cfg.Fetch.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing fetch.timeout %q: %w", cfg.Fetch.TimeoutRaw, err)
		}
	}

	if cfg.Upload.TimeoutRaw != "" {
		cfg.Upload.Timeout, err = time.ParseDuration(cfg.Upload.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upload.timeout %q: %w", cfg.Upload.TimeoutRaw, err)
		}
	}

	return nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if _, err := qr.NewEncoder(c.Render.RecoveryLevel, c.Render.Foreground, c.Render.Background); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	u, err := url.Parse(c.Upload.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("upload.endpoint %q is not an http(s) URL", c.Upload.Endpoint)
	}

	if err := c.AdmissionLimits().Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	return nil
}

// AdmissionLimits converts the configuration into pipeline limits.
// Extensions are lower-cased and dot-prefixed.
func (c *Config) AdmissionLimits() admission.Limits {
	exts := make([]string, 0, len(c.Fetch.ImageExtensions))
	for _, e := range c.Fetch.ImageExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if e != "" {
			exts = append(exts, e)
		}
	}
	return admission.Limits{
		MaxContentLength:  c.Limits.MaxContentLength,
		MaxInlineSize:     c.Limits.MaxInlineSize,
		MaxFileSize:       c.Limits.MaxFileSize,
		MaxImageDimension: c.Limits.MaxImageDimension,
		MinRenderSize:     c.Render.MinSize,
		FetchTimeout:      c.Fetch.Timeout,
		UploadTimeout:     c.Upload.Timeout,
		AllowedDomains:    append([]string(nil), c.Fetch.AllowedDomains...),
		ImageExtensions:   exts,
		UploadHost:        c.Upload.Host,
	}
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
