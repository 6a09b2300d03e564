package extraction

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/voxnotes/internal/extraction"

// Metrics holds extraction metrics.
type Metrics struct {
	meter         metric.Meter
	logger        *zap.Logger
	duration      metric.Float64Histogram
	extractions   metric.Int64Counter
	fallbacks     metric.Int64Counter
	parseFailures metric.Int64Counter
	completions   metric.Int64Counter
}

// NewMetrics creates extraction metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"voxnotes.extraction.duration_seconds",
		metric.WithDescription("Duration of one extraction attempt, labeled by strategy (local, on_device, cloud) and mode"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.extractions, err = m.meter.Int64Counter(
		"voxnotes.extraction.results_total",
		metric.WithDescription("Extraction results returned to callers, labeled by the strategy whose entities were used"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		m.logger.Warn("failed to create results counter", zap.Error(err))
	}

	m.fallbacks, err = m.meter.Int64Counter(
		"voxnotes.extraction.fallbacks_total",
		metric.WithDescription("Strategies skipped or abandoned in favor of the next one, labeled by the strategy that fell through and why"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fallbacks counter", zap.Error(err))
	}

	m.parseFailures, err = m.meter.Int64Counter(
		"voxnotes.extraction.parse_failures_total",
		metric.WithDescription("Model outputs without a usable JSON object, labeled by strategy"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		m.logger.Warn("failed to create parse failures counter", zap.Error(err))
	}

	m.completions, err = m.meter.Int64Counter(
		"voxnotes.extraction.completion_matches_total",
		metric.WithDescription("Completion matches reported, labeled by whether they cleared the auto-apply threshold"),
		metric.WithUnit("{match}"),
	)
	if err != nil {
		m.logger.Warn("failed to create completion matches counter", zap.Error(err))
	}
}

// RecordAttempt records the duration of one strategy attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, mode Mode, strategy string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("strategy", strategy),
	))
}

// RecordResult counts a result delivered by strategy.
func (m *Metrics) RecordResult(ctx context.Context, mode Mode, strategy string) {
	if m == nil || m.extractions == nil {
		return
	}
	m.extractions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("strategy", strategy),
	))
}

// RecordFallback counts a strategy that fell through for reason.
func (m *Metrics) RecordFallback(ctx context.Context, strategy, reason string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("reason", reason),
	))
}

// RecordParseFailure counts unparseable model output.
func (m *Metrics) RecordParseFailure(ctx context.Context, strategy string) {
	if m == nil || m.parseFailures == nil {
		return
	}
	m.parseFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordCompletions counts completion matches by applicability.
func (m *Metrics) RecordCompletions(ctx context.Context, applicable, below int) {
	if m == nil || m.completions == nil {
		return
	}
	if applicable > 0 {
		m.completions.Add(ctx, int64(applicable), metric.WithAttributes(attribute.Bool("applicable", true)))
	}
	if below > 0 {
		m.completions.Add(ctx, int64(below), metric.WithAttributes(attribute.Bool("applicable", false)))
	}
}
