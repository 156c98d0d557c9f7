package instrumentation

import (
	"os"
	"strconv"
)

// Exporter names accepted in configuration.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: weeknotes).
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Enabled determines if instrumentation is active (default: true).
	// Set INSTRUMENTATION_ENABLED=false to disable metrics and tracing.
	Enabled bool

	// MetricsExporter selects the metrics exporter:
	// "prometheus" (default), "otlp" or "stdout".
	MetricsExporter string

	// TracingExporter selects the tracing exporter:
	// "otlp", "stdout" or "none" (default).
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint, e.g. "localhost:4318"
	// (without protocol prefix).
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP export. Local development only.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default 0.1).
	TraceSamplingRate float64
}

// DefaultConfig builds a Config from the environment with sensible defaults.
func DefaultConfig() Config {
	cfg := Config{
		ServiceName:       "weeknotes",
		ServiceVersion:    "dev",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSamplingRate: 0.1,
	}

	if v := os.Getenv("INSTRUMENTATION_ENABLED"); v != "" {
		cfg.Enabled = v != "false"
	}
	if v := os.Getenv("METRICS_EXPORTER"); v != "" {
		cfg.MetricsExporter = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		cfg.TracingExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		cfg.OTLPInsecure = v == "true"
	}
	if v := os.Getenv("TRACE_SAMPLING_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate >= 0 && rate <= 1 {
			cfg.TraceSamplingRate = rate
		}
	}

	return cfg
}
