// Package telemetry wires OpenTelemetry tracing and metrics for voxnotes.
//
// Both providers export over OTLP/HTTP and are disabled by default, since
// voxnotes runs offline. When enabled, New installs them as the otel
// globals so package-level instruments (extraction, capture) report
// through them. Failures degrade to no-op providers; they never stop the
// application.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
