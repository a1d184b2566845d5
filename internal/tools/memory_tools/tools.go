package memory_tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/memorylane/internal/server"
	"github.com/teemow/memorylane/internal/tools/common"
)

// Tool names.
const (
	ToolStatus      = "memory_status"
	ToolLogin       = "memory_login"
	ToolCheckAccess = "memory_check_access"
	ToolGetProfile  = "memory_get_profile"
	ToolUploadImage = "memory_upload_image"
	ToolAppend      = "memory_append"
)

type handlers struct {
	sc *server.ServerContext
}

// RegisterMemoryTools registers the journaling tools with the MCP server.
func RegisterMemoryTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if s == nil || sc == nil {
		return fmt.Errorf("mcp server and server context are required")
	}
	h := &handlers{sc: sc}

	registerSessionTools(s, h)
	if !readOnly {
		registerJournalTools(s, h)
	}
	return nil
}

func registerSessionTools(s *mcpserver.MCPServer, h *handlers) {
	s.AddTool(mcp.NewTool(ToolStatus,
		mcp.WithDescription("Report whether the Google integration is configured, whether the Google libraries are loaded and whether a user is signed in"),
		mcp.WithReadOnlyHintAnnotation(true),
	), mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(ToolStatus, "", h.sc, h.status)))

	s.AddTool(mcp.NewTool(ToolLogin,
		mcp.WithDescription("Sign in with Google. Opens or publishes an authorization URL and waits until the user completes consent. Silent when a token is already held."),
		mcp.WithNumber("timeoutSeconds",
			mcp.Description("How long to wait for the user to finish signing in (default: 120)"),
		),
	), mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(ToolLogin, "login", h.sc, h.login)))

	s.AddTool(mcp.NewTool(ToolCheckAccess,
		mcp.WithDescription("Check an email address against the allow-list in the Login sheet. Without an email, checks the signed-in user."),
		mcp.WithString("email",
			mcp.Description("Email address to check (default: the signed-in user)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(ToolCheckAccess, "check_access", h.sc, h.checkAccess)))

	s.AddTool(mcp.NewTool(ToolGetProfile,
		mcp.WithDescription("Return the Google profile (userinfo) of the signed-in user"),
		mcp.WithReadOnlyHintAnnotation(true),
	), mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(ToolGetProfile, "get_profile", h.sc, h.getProfile)))
}

func registerJournalTools(s *mcpserver.MCPServer, h *handlers) {
	s.AddTool(mcp.NewTool(ToolUploadImage,
		mcp.WithDescription("Upload one image to Google Drive and return its web view link. Only allow-listed users may upload."),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Image as a data URL (data:image/jpeg;base64,...) or bare base64"),
		),
		mcp.WithString("mimeType",
			mcp.Description("MIME type (default: taken from the data URL, else image/jpeg)"),
		),
		mcp.WithString("fileName",
			mcp.Description("File name in Drive (default: memory-<uuid>.<ext>)"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
	), mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(ToolUploadImage, "upload_image", h.sc, h.uploadImage)))

	s.AddTool(mcp.NewTool(ToolAppend,
		mcp.WithDescription("Append a memory to the journal sheet. Images are uploaded first and their links written to the row. Only allow-listed users may append."),
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Date of the memory (YYYY-MM-DD)"),
		),
		mcp.WithString("mood",
			mcp.Description("Mood of the child"),
		),
		mcp.WithString("note",
			mcp.Description("Free-text note"),
		),
		mcp.WithString("calculatedAge",
			mcp.Description("Age on the date (default: computed from the configured birthday)"),
		),
		mcp.WithArray("images",
			mcp.Description("Images to upload, as data URLs"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("imageLinks",
			mcp.Description("Links of images uploaded earlier. Mutually exclusive with images."),
			mcp.WithStringItems(),
		),
		mcp.WithReadOnlyHintAnnotation(false),
	), mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(ToolAppend, "append_row", h.sc, h.appendMemory)))
}

func jsonResult(prefix string, v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	if prefix == "" {
		return mcp.NewToolResultText(string(data))
	}
	return mcp.NewToolResultText(prefix + ":\n" + string(data))
}
