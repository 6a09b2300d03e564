package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/config"
	"github.com/fyrsmithlabs/voxnotes/internal/dates"
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
	"github.com/fyrsmithlabs/voxnotes/internal/logging"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

// BuildOption adjusts how Build wires services.
type BuildOption func(*buildOptions)

type buildOptions struct {
	now          func() time.Time
	modelOptions []ondevice.Option
	mode         string
}

// WithClock overrides the clock used for dates, IDs and timestamps.
func WithClock(now func() time.Time) BuildOption {
	return func(o *buildOptions) { o.now = now }
}

// WithModelOptions passes options to the on-device model service.
func WithModelOptions(opts ...ondevice.Option) BuildOption {
	return func(o *buildOptions) { o.modelOptions = append(o.modelOptions, opts...) }
}

// WithMode overrides the configured extraction mode.
func WithMode(mode string) BuildOption {
	return func(o *buildOptions) { o.mode = mode }
}

// Build wires the pipeline described by cfg. The returned close function
// releases the store.
func Build(cfg *config.Config, logger *zap.Logger, opts ...BuildOption) (Registry, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bo := buildOptions{now: time.Now, mode: cfg.Extraction.Mode}
	for _, opt := range opts {
		opt(&bo)
	}

	mode, err := extraction.ParseMode(bo.mode)
	if err != nil {
		return nil, nil, err
	}

	dbPath, err := config.ExpandPath(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("store path: %w", err)
	}
	st, err := store.Open(dbPath, store.WithLogger(logger.Named("store")), store.WithClock(bo.now))
	if err != nil {
		return nil, nil, err
	}

	reg, err := wire(cfg, st, mode, logger, bo)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return reg, st.Close, nil
}

func wire(cfg *config.Config, st *store.SQLiteStore, mode extraction.Mode, logger *zap.Logger, bo buildOptions) (Registry, error) {
	modelCfg, err := ondevice.ConfigFrom(cfg.Model)
	if err != nil {
		return nil, err
	}
	model := ondevice.NewService(modelCfg, append([]ondevice.Option{ondevice.WithLogger(logger.Named("ondevice"))}, bo.modelOptions...)...)

	var cloud *extraction.CloudClient
	if cfg.Cloud.Enabled() {
		cloud, err = extraction.NewCloudClient(cfg.Cloud, logger.Named("cloud"), extraction.WithCloudClock(bo.now))
		if err != nil {
			return nil, fmt.Errorf("cloud client: %w", err)
		}
		logger.Debug("cloud extraction enabled",
			zap.String("provider", cfg.Cloud.Provider),
			zap.String("model", cfg.Cloud.Model),
			logging.Secret("api_key", cfg.Cloud.APIKey))
	}

	classifier := extraction.NewClassifier(dates.NewResolver(bo.now))
	metrics := extraction.NewMetrics(logger)
	matcher := extraction.NewCompletionMatcher(cfg.Extraction.ActiveWindow)

	orchOpts := []extraction.Option{
		extraction.WithMatcher(matcher),
		extraction.WithLogger(logger.Named("extraction")),
		extraction.WithMetrics(metrics),
		extraction.WithOnDevice(model),
	}
	if cloud != nil {
		orchOpts = append(orchOpts, extraction.WithCloud(cloud))
	}
	orch, err := extraction.NewOrchestrator(mode, classifier, orchOpts...)
	if err != nil {
		return nil, err
	}

	noteOpts := []notes.Option{
		notes.WithLogger(logger.Named("notes")),
		notes.WithClock(bo.now),
		notes.WithCompletionThreshold(cfg.Extraction.CompletionThreshold),
	}
	if mode == extraction.ModeRemote {
		local, err := extraction.NewOrchestrator(extraction.ModeLocal, classifier,
			extraction.WithMatcher(matcher),
			extraction.WithLogger(logger.Named("extraction")),
			extraction.WithMetrics(metrics))
		if err != nil {
			return nil, err
		}
		noteOpts = append(noteOpts, notes.WithFallback(local))
	}

	logger.Info("pipeline wired",
		zap.String("mode", string(mode)),
		zap.Bool("cloud", cloud != nil),
		zap.String("model", modelCfg.ModelPath()))

	return NewRegistry(Options{
		Store:     st,
		Notes:     notes.NewService(st, orch, noteOpts...),
		Extractor: orch,
		Model:     model,
		Cloud:     cloud,
	}), nil
}

// AutoInitialize starts model initialization in the background when the
// config asks for it. Failures are logged and surface through Status.
func AutoInitialize(ctx context.Context, cfg *config.Config, reg Registry, logger *zap.Logger) {
	if !cfg.Model.AutoInit || reg.Model() == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		if err := reg.Model().Initialize(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("background model initialization failed", zap.Error(err))
		}
	}()
}
