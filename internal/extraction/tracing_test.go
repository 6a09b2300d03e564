package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/voxnotes/internal/telemetry"
)

func TestOrchestrator_Spans(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	o, err := NewOrchestrator(ModeLocal, newTestClassifier(), WithTracer(tel.Tracer(instrumentationName)))
	require.NoError(t, err)

	_, err = o.Extract(context.Background(), "buy milk and eggs", nil)
	require.NoError(t, err)

	tel.AssertSpanAttribute(t, "extraction.local", "extraction.mode", "local")
	tel.AssertSpanAttribute(t, "extraction.local", "extraction.entities", int64(1))
}

func TestOrchestrator_SpanRecordsCloudError(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	o, err := NewOrchestrator(ModeRemote, newTestClassifier(),
		WithCloud(&fakeCloud{err: errors.New("network down")}),
		WithTracer(tel.Tracer(instrumentationName)))
	require.NoError(t, err)

	_, err = o.Extract(context.Background(), "buy milk", nil)
	require.Error(t, err)

	span := tel.SpanByName("extraction.cloud")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	tel.AssertSpanAttribute(t, "extraction.cloud", "extraction.strategy", "cloud")
}
