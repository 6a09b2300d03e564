package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := CaptureSessionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("capture.session_id", id))
	}
	if id := VoiceNoteIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("voice_note.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

type captureSessionCtxKey struct{}
type voiceNoteCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// WithCaptureSessionID tags ctx with the active recording session.
func WithCaptureSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, captureSessionCtxKey{}, id)
}

// CaptureSessionIDFromContext returns the recording session ID, if any.
func CaptureSessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(captureSessionCtxKey{}).(string)
	return s
}

// WithVoiceNoteID tags ctx with the voice note being processed.
func WithVoiceNoteID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, voiceNoteCtxKey{}, id)
}

// VoiceNoteIDFromContext returns the voice note ID, if any.
func VoiceNoteIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(voiceNoteCtxKey{}).(string)
	return s
}

// WithRequestID tags ctx with an HTTP or MCP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request ID, if any.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
