package common

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/memorylane/internal/instrumentation"
	"github.com/teemow/memorylane/internal/server"
)

// ToolHandler is the signature of an MCP tool handler.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

type invocationKey struct{}

// SetUser attaches the signed-in user's email to the audit record of the
// tool call running in ctx. It is a no-op outside an instrumented handler.
func SetUser(ctx context.Context, email string) {
	if ti, ok := ctx.Value(invocationKey{}).(*instrumentation.ToolInvocation); ok && email != "" {
		ti.WithUser(email)
	}
}

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging. A result with IsError set counts as a failure.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", "append_row", sc, handler))
func InstrumentedToolHandler(toolName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)

		invocation := instrumentation.NewToolInvocation(ctx, toolName)
		if operation != "" {
			invocation.WithOperation(operation)
		}
		ctx = context.WithValue(ctx, invocationKey{}, invocation)

		result, err := handler(ctx, request)

		failure := err
		if failure == nil && result != nil && result.IsError {
			failure = errors.New(resultText(result))
		}
		invocation.Complete(failure)
		instrumentation.EndSpan(span, failure)

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), invocation.Duration)
		sc.Audit().LogToolInvocation(invocation)

		return result, err
	}
}

func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return "tool returned an error"
}
