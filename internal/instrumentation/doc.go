// Package instrumentation provides OpenTelemetry-based observability for the
// weeknotes server.
//
// The Provider owns a meter provider (Prometheus exporter by default, OTLP
// and stdout supported) and an optional tracer provider, plus a Metrics
// recorder with the counters and histograms this application cares about:
// HTTP requests, Granola sync runs and matches, OAuth flows and token
// refreshes, and MCP tool invocations.
//
// Instrumentation is optional: a Provider built from a disabled Config
// returns no-op metrics so callers never need nil checks.
package instrumentation
