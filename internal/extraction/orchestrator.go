package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// Mode selects how the orchestrator arbitrates between strategies.
type Mode string

const (
	// ModeLocal runs the rule-based classifier only.
	ModeLocal Mode = "local"
	// ModeRemote runs the cloud model only. Its failures propagate.
	ModeRemote Mode = "remote"
	// ModeHybrid accepts a specific local result, otherwise tries the
	// on-device model, then the cloud model, then settles for local.
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeRemote, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("unknown extraction mode %q", s)
}

// OnDeviceBackend generates text with a local model.
type OnDeviceBackend interface {
	Ready() bool
	Generate(ctx context.Context, prompt string) (string, error)
}

// CloudBackend extracts entities with a hosted model.
type CloudBackend interface {
	ExtractEntities(ctx context.Context, transcript string, active []entity.Entity) (entity.ExtractionResult, error)
}

// Orchestrator produces exactly one strategy's extraction result per call.
type Orchestrator struct {
	mode       Mode
	classifier *Classifier
	matcher    *CompletionMatcher
	onDevice   OnDeviceBackend
	cloud      CloudBackend
	logger     *zap.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOnDevice sets the on-device model used in hybrid mode.
func WithOnDevice(b OnDeviceBackend) Option {
	return func(o *Orchestrator) { o.onDevice = b }
}

// WithCloud sets the hosted model used in remote and hybrid modes.
func WithCloud(b CloudBackend) Option {
	return func(o *Orchestrator) { o.cloud = b }
}

// WithMatcher overrides the completion matcher.
func WithMatcher(m *CompletionMatcher) Option {
	return func(o *Orchestrator) { o.matcher = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer used for per-strategy spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// NewOrchestrator returns an orchestrator for mode. Remote mode requires a
// cloud backend.
func NewOrchestrator(mode Mode, classifier *Classifier, opts ...Option) (*Orchestrator, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		mode:       mode,
		classifier: classifier,
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.matcher == nil {
		o.matcher = NewCompletionMatcher(DefaultCompletionWindow)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if mode == ModeRemote && o.cloud == nil {
		return nil, fmt.Errorf("remote mode: %w", ErrCloudUnavailable)
	}
	return o, nil
}

// Mode returns the configured mode.
func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// Matcher returns the completion matcher.
func (o *Orchestrator) Matcher() *CompletionMatcher {
	return o.matcher
}

// Extract classifies transcript. active lists the entities completions may
// refer to; only the most recent window of them is considered.
func (o *Orchestrator) Extract(ctx context.Context, transcript string, active []entity.Entity) (entity.ExtractionResult, error) {
	window := o.matcher.Window(active)

	var (
		result entity.ExtractionResult
		err    error
	)
	switch o.mode {
	case ModeLocal:
		result = o.runLocal(ctx, transcript)
	case ModeRemote:
		result, err = o.runCloud(ctx, transcript, window)
		if err != nil {
			return entity.ExtractionResult{}, err
		}
	default:
		result = o.runHybrid(ctx, transcript, window)
	}

	if len(result.Completions) == 0 {
		result.Completions = o.matcher.Match(transcript, window)
	}
	applicable := 0
	for _, c := range result.Completions {
		if AutoApplicable(c) {
			applicable++
		}
	}
	o.metrics.RecordCompletions(ctx, applicable, len(result.Completions)-applicable)
	o.metrics.RecordResult(ctx, o.mode, string(result.Strategy))

	result.Summary = fmt.Sprintf("%s (via %s)", result.Summary, result.Strategy)
	return result, nil
}

func (o *Orchestrator) runHybrid(ctx context.Context, transcript string, window []entity.Entity) entity.ExtractionResult {
	local := o.runLocal(ctx, transcript)
	if local.HasSpecific() {
		return local
	}
	o.logger.Debug("local extraction found only a note, trying models")

	if o.onDevice != nil {
		if !o.onDevice.Ready() {
			o.metrics.RecordFallback(ctx, string(entity.StrategyOnDevice), "not_ready")
		} else if result, err := o.runOnDevice(ctx, transcript, window); err == nil {
			return result
		} else {
			o.fallback(ctx, entity.StrategyOnDevice, err)
		}
	}

	if o.cloud != nil {
		result, err := o.runCloud(ctx, transcript, window)
		if err == nil {
			return result
		}
		o.fallback(ctx, entity.StrategyCloud, err)
	}

	return local
}

func (o *Orchestrator) fallback(ctx context.Context, strategy entity.Strategy, err error) {
	reason := "error"
	if errors.Is(err, ErrNoExtraction) {
		reason = "no_extraction"
	}
	o.logger.Info("extraction strategy fell through",
		zap.String("strategy", string(strategy)),
		zap.String("reason", reason),
		zap.Error(err))
	o.metrics.RecordFallback(ctx, string(strategy), reason)
}

func (o *Orchestrator) runLocal(ctx context.Context, transcript string) entity.ExtractionResult {
	_, span := o.startSpan(ctx, entity.StrategyLocal)
	defer span.End()

	start := time.Now()
	result := o.classifier.Extract(transcript)
	o.metrics.RecordAttempt(ctx, o.mode, string(entity.StrategyLocal), time.Since(start))

	span.SetAttributes(attribute.Int("extraction.entities", len(result.Entities)))
	return result
}

func (o *Orchestrator) runOnDevice(ctx context.Context, transcript string, window []entity.Entity) (entity.ExtractionResult, error) {
	ctx, span := o.startSpan(ctx, entity.StrategyOnDevice)
	defer span.End()

	prompt := ChatPrompt(SystemPrompt(o.classifier.Resolver().Now(), previewLines(window)), UserPrompt(transcript))

	start := time.Now()
	raw, err := o.onDevice.Generate(ctx, prompt)
	o.metrics.RecordAttempt(ctx, o.mode, string(entity.StrategyOnDevice), time.Since(start))
	if err != nil {
		endWithError(span, err)
		return entity.ExtractionResult{}, fmt.Errorf("on-device generate: %w", err)
	}

	result, err := ParseModelOutput(raw, knownIDs(window))
	if err != nil {
		o.metrics.RecordParseFailure(ctx, string(entity.StrategyOnDevice))
		endWithError(span, err)
		return entity.ExtractionResult{}, err
	}
	result.Strategy = entity.StrategyOnDevice
	span.SetAttributes(attribute.Int("extraction.entities", len(result.Entities)))
	return result, nil
}

func (o *Orchestrator) runCloud(ctx context.Context, transcript string, window []entity.Entity) (entity.ExtractionResult, error) {
	ctx, span := o.startSpan(ctx, entity.StrategyCloud)
	defer span.End()

	start := time.Now()
	result, err := o.cloud.ExtractEntities(ctx, transcript, window)
	o.metrics.RecordAttempt(ctx, o.mode, string(entity.StrategyCloud), time.Since(start))
	if err != nil {
		if errors.Is(err, ErrNoExtraction) {
			o.metrics.RecordParseFailure(ctx, string(entity.StrategyCloud))
		}
		endWithError(span, err)
		return entity.ExtractionResult{}, err
	}
	result.Strategy = entity.StrategyCloud
	span.SetAttributes(attribute.Int("extraction.entities", len(result.Entities)))
	return result, nil
}

func (o *Orchestrator) startSpan(ctx context.Context, strategy entity.Strategy) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "extraction."+string(strategy), trace.WithAttributes(
		attribute.String("extraction.mode", string(o.mode)),
		attribute.String("extraction.strategy", string(strategy)),
	))
}

func endWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func knownIDs(window []entity.Entity) map[string]bool {
	known := make(map[string]bool, len(window))
	for _, e := range window {
		known[e.ID] = true
	}
	return known
}
