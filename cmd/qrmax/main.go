package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
	"github.com/ironsheep/qr-tools-mcp/internal/config"
	"github.com/ironsheep/qr-tools-mcp/internal/imaging"
	"github.com/ironsheep/qr-tools-mcp/internal/qr"
	"github.com/ironsheep/qr-tools-mcp/internal/remote"
	"github.com/ironsheep/qr-tools-mcp/internal/server"
	"github.com/ironsheep/qr-tools-mcp/internal/telemetry"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	envConfig   = "QRMAX_CONFIG"
	envLogLevel = "QRMAX_LOG_LEVEL"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "qrmax",
		Short: "MCP server for generating and decoding QR codes",
		Long: `qrmax serves two MCP tools over stdin/stdout:

  generate_qr_code  render text as a QR code and upload the PNG to catbox.moe
  decode_qr_code    decode a QR code from base64 data or an allow-listed HTTPS URL

Logs are written to stderr. Configure it in your MCP client.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, f, stdin, stdout, stderr)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to YAML config file (env "+envConfig+")")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (env "+envLogLevel+")")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "log format: text or json")

	cmd.Version = Version
	cmd.SetVersionTemplate(fmt.Sprintf("qrmax %s\n  Build time: %s\n  Git commit: %s\n", Version, BuildTime, GitCommit))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

// loadConfig resolves the config file and applies flag and environment
// overrides. Flags win over the environment, which wins over the file.
func loadConfig(f flags) (*config.Config, error) {
	path := f.configPath
	if path == "" {
		path = os.Getenv(envConfig)
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if level := os.Getenv(envLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newPipeline wires the concrete collaborators into an admission pipeline.
func newPipeline(cfg *config.Config, logger *slog.Logger) (*admission.Pipeline, error) {
	encoder, err := qr.NewEncoder(cfg.Render.RecoveryLevel, cfg.Render.Foreground, cfg.Render.Background)
	if err != nil {
		return nil, err
	}

	limits := cfg.AdmissionLimits()
	checkRedirect := func(u string) error {
		return admission.ValidateURL(u, limits.AllowedDomains, limits.ImageExtensions)
	}

	return admission.New(limits, admission.Deps{
		Encoder:  encoder,
		Scanner:  qr.NewScanner(),
		Codec:    imaging.NewCodec(),
		Fetcher:  remote.NewFetcher(limits.FetchTimeout, cfg.Fetch.UserAgent, checkRedirect),
		Uploader: remote.NewCatboxUploader(cfg.Upload.Endpoint, cfg.Upload.UserHash, cfg.Fetch.UserAgent, limits.UploadTimeout),
		Logger:   logger,
	})
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Server, *telemetry.Providers, error) {
	pipeline, err := newPipeline(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}

	registry, err := server.NewRegistry(
		server.GenerateTool{Pipeline: pipeline},
		server.DecodeTool{Pipeline: pipeline},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("register tools: %w", err)
	}

	providers, err := telemetry.Setup(ctx, telemetry.Options{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      Version,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}
	observer, err := telemetry.NewObserver(providers.Meter, providers.Tracer)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}

	srv := server.New(registry, server.Options{
		Name:     "qrmax",
		Version:  Version,
		Logger:   logger,
		Observer: observer,
	})
	return srv, providers, nil
}

func serve(ctx context.Context, f flags, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}

	srv, providers, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	logger.Info("qrmax starting",
		"version", Version,
		"build_time", BuildTime,
		"commit", GitCommit,
		"allowed_domains", cfg.Fetch.AllowedDomains)

	// Reads from stdin cannot be interrupted, so a signal returns without
	// waiting for Run.
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, stdin, stdout) }()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	}
	return nil
}
