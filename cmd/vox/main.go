// Package main implements vox, the voxnotes command-line client.
//
// vox runs the capture pipeline in-process against the local database: it
// records or accepts typed notes, queries entities, manages the on-device
// model, benchmarks extraction strategies and watches the transcript inbox.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/config"
	"github.com/fyrsmithlabs/voxnotes/internal/logging"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/services"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	mode       string
	verbose    bool
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "vox",
		Short: "Capture voice notes and turn them into todos, events and lists",
		Long: `vox records or accepts typed notes, extracts todos, reminders, events,
shopping lists, ideas and notes from them, and stores everything locally.

Examples:
  # Type a note
  vox note "buy milk and eggs, dentist tomorrow at 3pm"

  # Record from the microphone
  vox record

  # What is coming up?
  vox upcoming`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.config/voxnotes/config.yaml)")
	root.PersistentFlags().StringVar(&g.mode, "mode", "", "extraction mode override: local, remote or hybrid")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "print JSON instead of styled text")

	root.AddCommand(
		newNoteCmd(g),
		newRecordCmd(g),
		newListCmd(g),
		newUpcomingCmd(g),
		newSearchCmd(g),
		newCompleteCmd(g),
		newDeleteCmd(g),
		newModelCmd(g),
		newBenchCmd(g),
		newWatchCmd(g),
	)
	return root
}

// app is the wired pipeline for one command invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	reg    services.Registry
	close  func() error
}

func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath, g.configPath != "")
	if err != nil {
		return nil, err
	}
	if g.mode != "" {
		cfg.Extraction.Mode = g.mode
	}
	return cfg, nil
}

// newLogger logs to stderr; quiet unless --verbose.
func (g *globalFlags) newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.Logging
	lc.Format = "console"
	lc.Level = "warn"
	if g.verbose {
		lc.Level = "debug"
	}
	logCfg, err := logging.FromAppConfig(lc)
	if err != nil {
		return nil, err
	}
	l, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}
	return l.Underlying(), nil
}

func (g *globalFlags) open() (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := g.newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	reg, closeFn, err := services.Build(cfg, logger, services.WithMode(cfg.Extraction.Mode))
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, reg: reg, close: closeFn}, nil
}

func (a *app) Close() {
	_ = a.close()
	_ = a.logger.Sync()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError replaces pipeline errors with the message shown to users. The
// underlying error is still logged at debug level.
func userError(logger *zap.Logger, err error) error {
	if err == nil {
		return nil
	}
	logger.Debug("command failed", zap.Error(err))
	return errors.New(notes.UserMessage(err))
}
