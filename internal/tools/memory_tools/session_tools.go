package memory_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/memorylane/internal/access"
	"github.com/teemow/memorylane/internal/tools/common"
)

// DefaultLoginTimeout bounds how long memory_login waits for consent.
const DefaultLoginTimeout = 2 * time.Minute

func (h *handlers) status(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult("", h.sc.Status()), nil
}

func (h *handlers) login(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeout := DefaultLoginTimeout
	if secs := request.GetFloat("timeoutSeconds", 0); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := h.sc.Auth().Login(ctx); err != nil {
		msg := fmt.Sprintf("Login failed: %v", err)
		if url := h.sc.PendingAuthURL(); url != "" && errors.Is(err, context.DeadlineExceeded) {
			msg += "\n\nOpen this URL to finish signing in, then call memory_login again:\n" + url
		}
		return mcp.NewToolResultError(msg), nil
	}

	if profile, err := h.sc.Access().GetUserProfile(ctx); err == nil && profile.Email() != "" {
		common.SetUser(ctx, profile.Email())
		return mcp.NewToolResultText("Signed in as " + profile.Email()), nil
	}
	return mcp.NewToolResultText("Signed in"), nil
}

type accessResult struct {
	Email   string `json:"email"`
	Allowed bool   `json:"allowed"`
}

func (h *handlers) checkAccess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if email := strings.TrimSpace(request.GetString("email", "")); email != "" {
		allowed, err := h.sc.Access().ValidateUserAccess(ctx, email)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to check access: %v", err)), nil
		}
		return jsonResult("", accessResult{Email: email, Allowed: allowed}), nil
	}

	profile, err := h.sc.Authorize(ctx)
	common.SetUser(ctx, profile.Email())
	switch {
	case err == nil:
		return jsonResult("", accessResult{Email: profile.Email(), Allowed: true}), nil
	case errors.Is(err, access.ErrAccessDenied):
		return jsonResult("", accessResult{Email: profile.Email(), Allowed: false}), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check access: %v", err)), nil
	}
}

func (h *handlers) getProfile(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profile, err := h.sc.Access().GetUserProfile(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
	}
	common.SetUser(ctx, profile.Email())
	return jsonResult("", profile), nil
}
