package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/memorylane/internal/logging"
)

// ToolInvocation is the audit record of one MCP tool call.
//
// UserEmail is PII. It is logged in full only when the AuditLogger is
// configured with IncludePII; otherwise a hash and the domain are logged.
type ToolInvocation struct {
	Tool      string
	UserEmail string
	Operation string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing a tool call. Call Complete when it finishes.
func NewToolInvocation(ctx context.Context, tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
		TraceID:   GetTraceID(ctx),
		SpanID:    GetSpanID(ctx),
	}
}

// WithUser sets the signed-in user's email.
func (ti *ToolInvocation) WithUser(email string) *ToolInvocation {
	ti.UserEmail = email
	return ti
}

// WithOperation sets the journal operation the tool performed.
func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// Complete stops timing and records the result.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) attrs(includePII bool) []any {
	attrs := []any{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	attrs = append(attrs, userAttrs(ti.UserEmail, includePII)...)
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID), slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

func userAttrs(email string, includePII bool) []any {
	if email == "" {
		return nil
	}
	if includePII {
		return []any{slog.String("user", email)}
	}
	return []any{logging.UserHash(email), slog.String("user_domain", ExtractUserDomain(email))}
}

// AuditLogger writes audit records for tool calls and access decisions.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger selects slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogToolInvocation writes ti at info level on success and warn on failure.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}
	if ti.Success {
		al.logger.Info("tool_executed", ti.attrs(al.includePII)...)
	} else {
		al.logger.Warn("tool_failed", ti.attrs(al.includePII)...)
	}
}

// LogAccessDecision writes the result of an allow-list check for email.
func (al *AuditLogger) LogAccessDecision(ctx context.Context, email, decision string) {
	if al == nil || !al.enabled {
		return
	}
	attrs := append([]any{slog.String("decision", decision)}, userAttrs(email, al.includePII)...)
	if traceID := GetTraceID(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	al.logger.Info("access_decision", attrs...)
}
