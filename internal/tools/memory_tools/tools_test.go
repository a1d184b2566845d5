package memory_tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/server"
)

type fakeGoogle struct {
	*httptest.Server

	mu       sync.Mutex
	email    string
	allowed  []string
	appended [][]any
}

func newFakeGoogle(t *testing.T, email string, allowed ...string) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{email: email, allowed: allowed}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/userinfo"):
			_ = json.NewEncoder(w).Encode(map[string]string{"email": f.email})
		case strings.HasSuffix(r.URL.Path, ":append"):
			var body struct {
				Values [][]any `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.appended = append(f.appended, body.Values...)
			_, _ = io.WriteString(w, `{}`)
		case strings.Contains(r.URL.Path, "/values/"):
			rows := make([][]string, 0, len(f.allowed))
			for _, e := range f.allowed {
				rows = append(rows, []string{e})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"values": rows})
		default:
			_, _ = io.WriteString(w, `{"id":"f1","webViewLink":"https://drive.google.com/file/d/f1/view"}`)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGoogle) rows() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.appended...)
}

func newHandlers(t *testing.T, fake *fakeGoogle) *handlers {
	t.Helper()
	sc := server.NewServerContext(context.Background(), server.Options{
		Config: config.Config{
			ClientID:      "client-id-1234567890",
			APIKey:        "api-key-1234567890",
			SpreadsheetID: "spreadsheet-123",
		},
		Birthday: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		API: google.APIClientConfig{
			HTTPClient:     fake.Client(),
			DriveEndpoint:  fake.URL + "/",
			SheetsEndpoint: fake.URL + "/",
			UserInfoURL:    fake.URL + "/userinfo",
		},
	})
	t.Cleanup(sc.Shutdown)
	require.NoError(t, sc.APIClient().SetToken(&oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(time.Hour)}))
	return &handlers{sc: sc}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestRegisterMemoryTools(t *testing.T) {
	fake := newFakeGoogle(t, "parent@example.com")
	h := newHandlers(t, fake)

	tests := []struct {
		name     string
		readOnly bool
		want     []string
	}{
		{
			name: "all tools",
			want: []string{ToolAppend, ToolCheckAccess, ToolGetProfile, ToolLogin, ToolStatus, ToolUploadImage},
		},
		{
			name:     "read-only omits journal tools",
			readOnly: true,
			want:     []string{ToolCheckAccess, ToolGetProfile, ToolLogin, ToolStatus},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
			require.NoError(t, RegisterMemoryTools(s, h.sc, tt.readOnly))

			var names []string
			for _, tool := range s.ListTools() {
				names = append(names, tool.Tool.Name)
			}
			assert.ElementsMatch(t, tt.want, names)
		})
	}

	assert.Error(t, RegisterMemoryTools(nil, h.sc, false))
}

func TestStatusTool(t *testing.T) {
	h := newHandlers(t, newFakeGoogle(t, "parent@example.com"))

	result, err := h.status(context.Background(), callRequest(ToolStatus, nil))
	require.NoError(t, err)

	var status server.Status
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &status))
	assert.True(t, status.Configured)
	assert.True(t, status.SignedIn)
	assert.False(t, status.DriveFolder)
}

func TestAppendMemoryTool(t *testing.T) {
	fake := newFakeGoogle(t, "parent@example.com", "parent@example.com")
	h := newHandlers(t, fake)

	result, err := h.appendMemory(context.Background(), callRequest(ToolAppend, map[string]any{
		"date":       "2023-02-15",
		"mood":       "sleepy",
		"note":       "nap in the park",
		"imageLinks": []any{"https://drive.google.com/file/d/a/view"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	rows := fake.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"2023-02-15", "0y 1m 14d", "sleepy", "nap in the park", "https://drive.google.com/file/d/a/view"}, rows[0])
}

func TestAppendMemoryTool_WithImages(t *testing.T) {
	fake := newFakeGoogle(t, "parent@example.com", "parent@example.com")
	h := newHandlers(t, fake)

	result, err := h.appendMemory(context.Background(), callRequest(ToolAppend, map[string]any{
		"date":          "2024-06-01",
		"calculatedAge": "1y 5m 0d",
		"images":        []any{"data:image/png;base64,aGVsbG8="},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))
	assert.Contains(t, resultText(t, result), "https://drive.google.com/file/d/f1/view")

	rows := fake.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"2024-06-01", "1y 5m 0d", "", "", "https://drive.google.com/file/d/f1/view"}, rows[0])
}

func TestAppendMemoryTool_SingleImageString(t *testing.T) {
	fake := newFakeGoogle(t, "parent@example.com", "parent@example.com")
	h := newHandlers(t, fake)

	result, err := h.appendMemory(context.Background(), callRequest(ToolAppend, map[string]any{
		"date":          "2024-06-01",
		"calculatedAge": "1y 5m 0d",
		"images":        "data:image/png;base64,aGVsbG8=",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	rows := fake.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "https://drive.google.com/file/d/f1/view", rows[0][4], "one image yields one link")
}

func TestAppendMemoryTool_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		args    map[string]any
		wantMsg string
	}{
		{name: "missing date", email: "parent@example.com", args: map[string]any{"mood": "ok"}, wantMsg: "date is required"},
		{name: "images and links", email: "parent@example.com", args: map[string]any{
			"date":       "2024-01-01",
			"images":     []any{"aGVsbG8="},
			"imageLinks": "https://a",
		}, wantMsg: "not both"},
		{name: "not allow-listed", email: "stranger@example.com", args: map[string]any{"date": "2024-01-01"}, wantMsg: "access denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGoogle(t, tt.email, "parent@example.com")
			h := newHandlers(t, fake)

			result, err := h.appendMemory(context.Background(), callRequest(ToolAppend, tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.wantMsg)
			assert.Empty(t, fake.rows())
		})
	}
}

func TestUploadImageTool(t *testing.T) {
	h := newHandlers(t, newFakeGoogle(t, "parent@example.com", "parent@example.com"))

	result, err := h.uploadImage(context.Background(), callRequest(ToolUploadImage, map[string]any{
		"data": "data:image/jpeg;base64,aGVsbG8=",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Image uploaded: https://drive.google.com/file/d/f1/view", resultText(t, result))

	result, err = h.uploadImage(context.Background(), callRequest(ToolUploadImage, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCheckAccessTool(t *testing.T) {
	h := newHandlers(t, newFakeGoogle(t, "stranger@example.com", "parent@example.com"))

	result, err := h.checkAccess(context.Background(), callRequest(ToolCheckAccess, map[string]any{"email": "Parent@Example.com"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), `"allowed": true`)

	result, err = h.checkAccess(context.Background(), callRequest(ToolCheckAccess, nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"allowed": false`)
	assert.Contains(t, resultText(t, result), "stranger@example.com")
}

func TestGetProfileTool(t *testing.T) {
	h := newHandlers(t, newFakeGoogle(t, "parent@example.com"))

	result, err := h.getProfile(context.Background(), callRequest(ToolGetProfile, nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "parent@example.com")
}

func TestLoginTool_NotConfigured(t *testing.T) {
	h := newHandlers(t, newFakeGoogle(t, "parent@example.com"))
	h.sc.Store().Set(config.Config{})

	result, err := h.login(context.Background(), callRequest(ToolLogin, nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not configured")
}
