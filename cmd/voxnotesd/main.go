// Voxnotesd is the voxnotes daemon.
//
// It serves the REST API, watches the transcript inbox and, with -mcp,
// speaks the Model Context Protocol on stdio instead of HTTP.
//
// Usage:
//
//	# Start the HTTP API with the default config file
//	voxnotesd
//
//	# Serve MCP on stdio
//	voxnotesd -mcp
//
//	# Configure via environment
//	VOXNOTES_SERVER_PORT=9292 VOXNOTES_EXTRACTION_MODE=local voxnotesd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/config"
	httpapi "github.com/fyrsmithlabs/voxnotes/internal/http"
	"github.com/fyrsmithlabs/voxnotes/internal/inbox"
	"github.com/fyrsmithlabs/voxnotes/internal/logging"
	"github.com/fyrsmithlabs/voxnotes/internal/mcp"
	"github.com/fyrsmithlabs/voxnotes/internal/services"
	"github.com/fyrsmithlabs/voxnotes/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath string
	mcpStdio   bool
	noInbox    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file (default ~/.config/voxnotes/config.yaml)")
	flag.BoolVar(&opts.mcpStdio, "mcp", false, "serve MCP on stdio instead of HTTP")
	flag.BoolVar(&opts.noInbox, "no-inbox", false, "do not watch the transcript inbox")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  voxnotesd [-config path] [-mcp] [-no-inbox]\n")
			fmt.Fprintf(os.Stderr, "  voxnotesd version\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "voxnotesd: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("voxnotesd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the pipeline and serves until ctx is cancelled.
func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath, opts.configPath != "")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version), zl.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			zl.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg, closeServices, err := services.Build(cfg, zl)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer func() { _ = closeServices() }()

	services.AutoInitialize(ctx, cfg, reg, zl)

	if !opts.noInbox && cfg.Inbox.Dir != "" {
		if err := startInbox(ctx, cfg, reg, zl); err != nil {
			zl.Warn("inbox disabled", zap.Error(err))
		}
	}

	if opts.mcpStdio {
		return runStdio(ctx, reg, zl)
	}
	return serveHTTP(ctx, cfg, reg, zl)
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lc, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(lc)
}

func startInbox(ctx context.Context, cfg *config.Config, reg services.Registry, logger *zap.Logger) error {
	dir, err := config.ExpandPath(cfg.Inbox.Dir)
	if err != nil {
		return err
	}
	w, err := inbox.New(dir, reg.Notes(), inbox.WithLogger(logger.Named("inbox")))
	if err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error("inbox watcher stopped", zap.Error(err))
		}
	}()
	return nil
}

// runStdio serves MCP on stdin/stdout. Logs go to stderr.
func runStdio(ctx context.Context, reg services.Registry, logger *zap.Logger) error {
	srv, err := mcp.NewServer(&mcp.Config{Name: "voxnotes", Version: version, Logger: logger.Named("mcp")},
		reg.Notes(), reg.Store(), reg.Model())
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("mcp stdio server stopped")
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, reg services.Registry, logger *zap.Logger) error {
	srv, err := httpapi.NewServer(reg.Notes(), reg.Store(), reg.Model(), logger.Named("http"), &httpapi.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
