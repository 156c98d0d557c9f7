package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod = "method"
	attrPath   = "path"
	attrStatus = "status"
	attrResult = "result"
	attrPhase  = "phase"
	attrTool   = "tool"
)

// Result values for the result attribute.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics provides methods for recording observability metrics.
// The zero value is a no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	syncRunsTotal         metric.Int64Counter
	syncMatchedTotal      metric.Int64Counter
	syncPairFailuresTotal metric.Int64Counter
	syncDuration          metric.Float64Histogram

	oauthFlowsTotal        metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.syncRunsTotal, err = meter.Int64Counter(
		"granola_sync_runs_total",
		metric.WithDescription("Total number of Granola sync runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create granola_sync_runs_total counter: %w", err)
	}

	m.syncMatchedTotal, err = meter.Int64Counter(
		"granola_sync_matched_total",
		metric.WithDescription("Total number of meetings matched to Granola notes"),
		metric.WithUnit("{meeting}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create granola_sync_matched_total counter: %w", err)
	}

	m.syncPairFailuresTotal, err = meter.Int64Counter(
		"granola_sync_pair_failures_total",
		metric.WithDescription("Total number of matched pairs that failed to summarize or persist"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create granola_sync_pair_failures_total counter: %w", err)
	}

	m.syncDuration, err = meter.Float64Histogram(
		"granola_sync_duration_seconds",
		metric.WithDescription("Granola sync run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create granola_sync_duration_seconds histogram: %w", err)
	}

	m.oauthFlowsTotal, err = meter.Int64Counter(
		"granola_oauth_flows_total",
		metric.WithDescription("Total number of Granola OAuth flow phases"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create granola_oauth_flows_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"granola_oauth_token_refresh_total",
		metric.WithDescription("Total number of Granola OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create granola_oauth_token_refresh_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of remote MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("Remote MCP tool invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with its duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(status)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSyncRun records one Granola sync run with its outcome counts.
func (m *Metrics) RecordSyncRun(ctx context.Context, matched, failed int, duration time.Duration, err error) {
	if m == nil || m.syncRunsTotal == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.syncRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrResult, result)))
	if matched > 0 {
		m.syncMatchedTotal.Add(ctx, int64(matched))
	}
	if failed > 0 {
		m.syncPairFailuresTotal.Add(ctx, int64(failed))
	}
}

// RecordOAuthFlow records one OAuth flow phase ("initiate" or "complete").
func (m *Metrics) RecordOAuthFlow(ctx context.Context, phase string, err error) {
	if m == nil || m.oauthFlowsTotal == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.oauthFlowsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrPhase, phase),
		attribute.String(attrResult, result),
	))
}

// RecordTokenRefresh records one OAuth token refresh attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, err error) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records one remote MCP tool invocation with its duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrResult, result),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
