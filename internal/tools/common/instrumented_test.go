package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/memorylane/internal/instrumentation"
	"github.com/teemow/memorylane/internal/server"
)

func newServerContext(t *testing.T, audit *bytes.Buffer) *server.ServerContext {
	t.Helper()
	ctx := context.Background()
	opts := server.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if audit != nil {
		provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
			ServiceName: "test",
			Enabled:     false,
			Audit:       instrumentation.AuditConfig{Enabled: true},
		}, slog.New(slog.NewJSONHandler(audit, nil)))
		require.NoError(t, err)
		opts.Provider = provider
	}
	sc := server.NewServerContext(ctx, opts)
	t.Cleanup(sc.Shutdown)
	return sc
}

func auditRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	var audit bytes.Buffer
	sc := newServerContext(t, &audit)

	called := false
	wrapped := InstrumentedToolHandler("memory_append", "append_row", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		SetUser(ctx, "parent@example.com")
		return mcp.NewToolResultText("ok"), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, called)

	records := auditRecords(t, &audit)
	require.Len(t, records, 1)
	assert.Equal(t, "tool_executed", records[0]["msg"])
	assert.Equal(t, "memory_append", records[0]["tool"])
	assert.Equal(t, "append_row", records[0]["operation"])
	assert.NotContains(t, audit.String(), "parent@example.com")
	assert.Equal(t, "example.com", records[0]["user_domain"])
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	var audit bytes.Buffer
	sc := newServerContext(t, &audit)

	wrapped := InstrumentedToolHandler("memory_upload_image", "upload_image", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("invalid image data"), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	records := auditRecords(t, &audit)
	require.Len(t, records, 1)
	assert.Equal(t, "tool_failed", records[0]["msg"])
	assert.Contains(t, audit.String(), "invalid image data")
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	sc := newServerContext(t, nil)

	expectedErr := errors.New("test error")
	wrapped := InstrumentedToolHandler("memory_status", "", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	})

	_, err := wrapped(context.Background(), mcp.CallToolRequest{})
	assert.ErrorIs(t, err, expectedErr)
}

func TestSetUserOutsideHandler(t *testing.T) {
	assert.NotPanics(t, func() { SetUser(context.Background(), "x@example.com") })
}
