package memory_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/memorylane/internal/journal"
	"github.com/teemow/memorylane/internal/tools/common"
)

// authorize admits allow-listed users and returns an error result for
// everyone else.
func (h *handlers) authorize(ctx context.Context) *mcp.CallToolResult {
	profile, err := h.sc.Authorize(ctx)
	common.SetUser(ctx, profile.Email())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Access check failed: %v", err))
	}
	return nil
}

func (h *handlers) uploadImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := request.RequireString("data")
	if err != nil || strings.TrimSpace(data) == "" {
		return mcp.NewToolResultError("data is required"), nil
	}
	if denied := h.authorize(ctx); denied != nil {
		return denied, nil
	}

	link, err := h.sc.Journal().UploadImage(ctx, data, request.GetString("mimeType", ""), request.GetString("fileName", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to upload image: %v", err)), nil
	}
	return mcp.NewToolResultText("Image uploaded: " + link), nil
}

func (h *handlers) appendMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := request.RequireString("date")
	if err != nil || strings.TrimSpace(date) == "" {
		return mcp.NewToolResultError("date is required"), nil
	}

	args := request.GetArguments()
	var images []journal.Image
	for _, data := range common.StringValues(args, "images") {
		images = append(images, journal.Image{Data: data})
	}
	links := common.StringList(args, "imageLinks")
	if len(images) > 0 && len(links) > 0 {
		return mcp.NewToolResultError("pass either images or imageLinks, not both"), nil
	}

	memory := journal.Memory{
		Date:          strings.TrimSpace(date),
		CalculatedAge: request.GetString("calculatedAge", ""),
		Mood:          request.GetString("mood", ""),
		Note:          request.GetString("note", ""),
	}
	if memory.CalculatedAge == "" {
		memory.CalculatedAge = h.sc.AgeOn(memory.Date)
	}

	if denied := h.authorize(ctx); denied != nil {
		return denied, nil
	}

	if len(images) > 0 {
		links, err = h.sc.Journal().SaveMemory(ctx, memory, images)
	} else {
		err = h.sc.Journal().AppendRow(ctx, memory, links)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save memory: %v", err)), nil
	}

	return jsonResult("Memory saved", struct {
		journal.Memory
		ImageLinks []string `json:"imageLinks"`
	}{memory, links}), nil
}
