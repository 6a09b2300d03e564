package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/voxnotes/internal/http"

// HTTPMetrics records per-route request metrics.
type HTTPMetrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTP metrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	m.requests, err = m.meter.Int64Counter(
		"voxnotes.http.requests_total",
		metric.WithDescription("API requests by method, route template and status code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Note processing dominates the upper buckets when a model strategy runs.
	m.duration, err = m.meter.Float64Histogram(
		"voxnotes.http.request_duration_seconds",
		metric.WithDescription("API request latency by method, route template and status code"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.failures, err = m.meter.Int64Counter(
		"voxnotes.http.failures_total",
		metric.WithDescription("API requests answered with a 4xx or 5xx status, by route template and status class"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create failures counter", zap.Error(err))
	}

	m.inFlight, err = m.meter.Int64UpDownCounter(
		"voxnotes.http.in_flight",
		metric.WithDescription("API requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create in-flight counter", zap.Error(err))
	}
}

// MetricsMiddleware records every request against its route template.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)
			// The error handler has not run yet, so take the status it
			// will write.
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = statusFor(err)
			}

			route := normalizePath(c.Path())
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", route),
				attribute.Int("status", status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if status >= 400 && m.failures != nil {
				m.failures.Add(ctx, 1, metric.WithAttributes(
					attribute.String("endpoint", route),
					attribute.String("class", strconv.Itoa(status/100)+"xx"),
				))
			}
			return err
		}
	}
}

// normalizePath maps unmatched requests to "/". Matched requests already
// carry the route template (":id"), which bounds label cardinality.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
