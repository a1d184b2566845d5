package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrOutcome   = "outcome"
	attrPrompt    = "prompt"
	attrDecision  = "decision"
	attrTool      = "tool"
)

var (
	shortBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}
	longBuckets  = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}
)

// Metrics records memorylane's metrics. The zero value and a nil *Metrics
// are no-ops, so callers never need to check whether instrumentation is on.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	googleAPIRequestsTotal   metric.Int64Counter
	googleAPIRequestDuration metric.Float64Histogram

	bootstrapTotal    metric.Int64Counter
	bootstrapDuration metric.Float64Histogram
	bootstrapAttempts metric.Int64Histogram

	loginTotal    metric.Int64Counter
	loginDuration metric.Float64Histogram

	accessDecisionsTotal metric.Int64Counter

	journalOperationsTotal   metric.Int64Counter
	journalOperationDuration metric.Float64Histogram

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	b := builder{meter: meter}

	m.httpRequestsTotal = b.counter("http_requests_total", "Total number of HTTP requests", "{request}")
	m.httpRequestDuration = b.histogram("http_request_duration_seconds", "HTTP request duration in seconds", shortBuckets)

	m.googleAPIRequestsTotal = b.counter("google_api_requests_total", "Total number of Google API requests", "{request}")
	m.googleAPIRequestDuration = b.histogram("google_api_request_duration_seconds", "Google API request duration in seconds", longBuckets)

	m.bootstrapTotal = b.counter("bootstrap_total", "Completed bootstraps of the Google client libraries", "{bootstrap}")
	m.bootstrapDuration = b.histogram("bootstrap_duration_seconds", "Time from bootstrap start to ready or degraded", longBuckets)
	m.bootstrapAttempts = b.intHistogram("bootstrap_poll_attempts", "Readiness polls used per bootstrap", []float64{1, 2, 5, 10, 15, 20})

	m.loginTotal = b.counter("login_total", "Login attempts by prompt and outcome", "{attempt}")
	m.loginDuration = b.histogram("login_duration_seconds", "Time from login start to outcome", longBuckets)

	m.accessDecisionsTotal = b.counter("access_decisions_total", "Allow-list checks by decision", "{decision}")

	m.journalOperationsTotal = b.counter("journal_operations_total", "Image uploads and row appends", "{operation}")
	m.journalOperationDuration = b.histogram("journal_operation_duration_seconds", "Journal operation duration in seconds", longBuckets)

	m.toolInvocationsTotal = b.counter("mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}")
	m.toolDuration = b.histogram("mcp_tool_duration_seconds", "MCP tool execution duration in seconds", longBuckets)

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder creates instruments and keeps the first error.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) counter(name, desc, unit string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *builder) histogram(name, desc string, buckets []float64) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *builder) intHistogram(name, desc string, buckets []float64) metric.Int64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

// RecordHTTPRequest records an HTTP request with method, route pattern, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIRequest records one request to a Google API.
// statusCode 0 means the request failed before a response arrived.
func (m *Metrics) RecordGoogleAPIRequest(ctx context.Context, service, method string, statusCode int, duration time.Duration) {
	if m == nil || m.googleAPIRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, googleStatus(statusCode)),
	)
	m.googleAPIRequestsTotal.Add(ctx, 1, attrs)
	m.googleAPIRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

func googleStatus(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return StatusRateLimited
	case code > 0 && code < 400:
		return StatusSuccess
	default:
		return StatusError
	}
}

// RecordBootstrap records a completed bootstrap.
func (m *Metrics) RecordBootstrap(ctx context.Context, outcome string, attempts int, duration time.Duration) {
	if m == nil || m.bootstrapTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.bootstrapTotal.Add(ctx, 1, attrs)
	m.bootstrapDuration.Record(ctx, duration.Seconds(), attrs)
	m.bootstrapAttempts.Record(ctx, int64(attempts), attrs)
}

// RecordLogin records a login attempt. prompt is "consent" or "none".
func (m *Metrics) RecordLogin(ctx context.Context, prompt, outcome string, duration time.Duration) {
	if m == nil || m.loginTotal == nil {
		return
	}
	if prompt == "" {
		prompt = "none"
	}
	attrs := metric.WithAttributes(
		attribute.String(attrPrompt, prompt),
		attribute.String(attrOutcome, outcome),
	)
	m.loginTotal.Add(ctx, 1, attrs)
	m.loginDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAccessDecision records the result of an allow-list check.
func (m *Metrics) RecordAccessDecision(ctx context.Context, decision string) {
	if m == nil || m.accessDecisionsTotal == nil {
		return
	}
	m.accessDecisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrDecision, decision)))
}

// RecordJournalOperation records an image upload or row append.
func (m *Metrics) RecordJournalOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.journalOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.journalOperationsTotal.Add(ctx, 1, attrs)
	m.journalOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
