// Package logging provides structured logging for voxnotes.
//
// Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (trace_id, capture session, voice note)
//   - Secret redaction at the encoder
//   - Level-aware sampling (errors never sampled)
//
// Logs are written to stderr. Stdout is reserved for command output and the
// MCP stdio transport.
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithCaptureSessionID(ctx, session.ID())
//	logger.Info(ctx, "recording started", zap.String("lang", "en-US"))
//
// Components that only need a *zap.Logger receive Logger.Underlying().
//
// Tests use NewTestLogger and its assertion helpers.
package logging
