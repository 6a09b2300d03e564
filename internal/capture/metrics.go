package capture

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/voxnotes/internal/capture"

// Metrics holds capture session metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	sessions metric.Int64Counter
	finalize metric.Float64Histogram
	noSpeech metric.Int64Counter
}

// NewMetrics creates capture metrics on the global meter provider.
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

	m.sessions, err = m.meter.Int64Counter(
		"voxnotes.capture.sessions_total",
		metric.WithDescription("Capture sessions by terminal state"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		m.logger.Warn("failed to create sessions counter", zap.Error(err))
	}

	m.finalize, err = m.meter.Float64Histogram(
		"voxnotes.capture.finalize_seconds",
		metric.WithDescription("Time from stop to settled transcript, labeled by which side of the finalize race won"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn("failed to create finalize histogram", zap.Error(err))
	}

	m.noSpeech, err = m.meter.Int64Counter(
		"voxnotes.capture.no_speech_total",
		metric.WithDescription("Completed sessions whose transcript was too short to use"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		m.logger.Warn("failed to create no speech counter", zap.Error(err))
	}
}

// RecordSession counts a session reaching state.
func (m *Metrics) RecordSession(ctx context.Context, state State) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
}

// RecordFinalize records how long settling took and which source won.
func (m *Metrics) RecordFinalize(ctx context.Context, outcome string, d time.Duration) {
	if m == nil || m.finalize == nil {
		return
	}
	m.finalize.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordNoSpeech counts a session without usable speech.
func (m *Metrics) RecordNoSpeech(ctx context.Context) {
	if m == nil || m.noSpeech == nil {
		return
	}
	m.noSpeech.Add(ctx, 1)
}
