// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for memorylane.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: REST API traffic
//   - google_api_requests_total, google_api_request_duration_seconds: Drive,
//     Sheets and userinfo calls by service, method and status
//   - bootstrap_total, bootstrap_duration_seconds, bootstrap_poll_attempts:
//     library bootstrap by outcome (ready, timeout, invalid_config,
//     init_failed, cancelled)
//   - login_total, login_duration_seconds: logins by prompt and outcome
//   - access_decisions_total: allow-list checks by decision
//   - journal_operations_total, journal_operation_duration_seconds: image
//     uploads and row appends
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// Labels never carry email addresses. The audit log is the only place a
// user is identified, by hash unless AUDIT_LOGGING_INCLUDE_PII is set.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED (default true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default 0.1)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// A nil or zero *Metrics records nothing, so components accept one
// unconditionally.
package instrumentation
