// Package sheets reads and appends spreadsheet values through the Google
// Sheets API v4.
package sheets

import (
	"context"
	"fmt"

	sheets "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"
)

// Ranges and options used against the journal spreadsheet.
const (
	// LoginRange holds the allow-list of email addresses, one per row.
	LoginRange = "Login!A:A"

	// JournalRange anchors appends to the journal table on the first sheet.
	JournalRange = "Sheet1!A1"

	// ValueInputUserEntered parses values as if typed into the UI.
	ValueInputUserEntered = "USER_ENTERED"

	insertRows = "INSERT_ROWS"
)

// Client wraps the Google Sheets API service
type Client struct {
	service *sheets.Service
}

// NewClient creates a Sheets client. The caller supplies authorization
// through opts.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	return &Client{service: svc}, nil
}

// ReadRange returns the values in rng, row by row. An empty range yields
// no rows and no error.
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	response, err := c.service.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rng, err)
	}
	return response.Values, nil
}

// AppendRow appends row after the table found at rng and returns the range
// that was written.
func (c *Client) AppendRow(ctx context.Context, spreadsheetID, rng string, row []any) (string, error) {
	body := &sheets.ValueRange{
		Values: [][]any{row},
	}

	response, err := c.service.Spreadsheets.Values.Append(spreadsheetID, rng, body).
		ValueInputOption(ValueInputUserEntered).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", rng, err)
	}

	if response.Updates == nil {
		return "", nil
	}
	return response.Updates.UpdatedRange, nil
}
