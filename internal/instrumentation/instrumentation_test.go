package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNewProvider_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if provider.Enabled() {
		t.Error("provider should report disabled")
	}
	if provider.Metrics() == nil {
		t.Fatal("disabled provider must still return a metrics recorder")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsExporter = "graphite"

	if _, err := NewProvider(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}

func TestNewProvider_OTLPRequiresEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsExporter = ExporterOTLP
	cfg.OTLPEndpoint = ""

	if _, err := NewProvider(context.Background(), cfg); err == nil {
		t.Fatal("expected error for OTLP without endpoint")
	}
}

func TestMetrics_NoOpRecording(t *testing.T) {
	ctx := context.Background()

	// Zero value and nil must both be safe to record on.
	var zero Metrics
	zero.RecordHTTPRequest(ctx, "GET", "/api/granola/status", 200, time.Millisecond)
	zero.RecordSyncRun(ctx, 2, 1, time.Second, nil)
	zero.RecordOAuthFlow(ctx, "initiate", nil)
	zero.RecordTokenRefresh(ctx, nil)
	zero.RecordToolInvocation(ctx, "search_meeting_notes", time.Millisecond, nil)

	var nilMetrics *Metrics
	nilMetrics.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	nilMetrics.RecordSyncRun(ctx, 0, 0, 0, nil)
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("INSTRUMENTATION_ENABLED", "")
	t.Setenv("METRICS_EXPORTER", "")
	t.Setenv("TRACING_EXPORTER", "")

	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("instrumentation should default to enabled")
	}
	if cfg.MetricsExporter != ExporterPrometheus {
		t.Errorf("metrics exporter = %q, want %q", cfg.MetricsExporter, ExporterPrometheus)
	}
	if cfg.TracingExporter != ExporterNone {
		t.Errorf("tracing exporter = %q, want %q", cfg.TracingExporter, ExporterNone)
	}
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("TRACE_SAMPLING_RATE", "0.5")

	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("INSTRUMENTATION_ENABLED=false should disable instrumentation")
	}
	if cfg.MetricsExporter != ExporterStdout {
		t.Errorf("metrics exporter = %q, want %q", cfg.MetricsExporter, ExporterStdout)
	}
	if cfg.TraceSamplingRate != 0.5 {
		t.Errorf("sampling rate = %v, want 0.5", cfg.TraceSamplingRate)
	}
}
