package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return client
}

func TestReadRange(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"range":"Login!A1:A2","majorDimension":"ROWS","values":[["Parent@Example.com"],["grandma@example.com"]]}`)
	})

	rows, err := client.ReadRange(context.Background(), "sheet-123", LoginRange)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{"Parent@Example.com"}, {"grandma@example.com"}}, rows)
	assert.Contains(t, gotPath, "/v4/spreadsheets/sheet-123/values/")
}

func TestReadRange_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"range":"Login!A1:A1000","majorDimension":"ROWS"}`)
	})

	rows, err := client.ReadRange(context.Background(), "sheet-123", LoginRange)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadRange_Error(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Requested entity was not found."}}`)
	})

	_, err := client.ReadRange(context.Background(), "missing", LoginRange)
	require.Error(t, err)

	var gerr *googleapi.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusNotFound, gerr.Code)
}

func TestAppendRow(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotQuery  map[string]string
		gotBody   struct {
			Values [][]any `json:"values"`
		}
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"valueInputOption": r.URL.Query().Get("valueInputOption"),
			"insertDataOption": r.URL.Query().Get("insertDataOption"),
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-123","updates":{"updatedRange":"Sheet1!A5:F5","updatedRows":1}}`)
	})

	row := []any{"2024-05-01", "2y 1m 3d", "happy", "first steps", "https://drive.google.com/file/d/a/view"}
	updated, err := client.AppendRow(context.Background(), "sheet-123", JournalRange, row)
	require.NoError(t, err)

	assert.Equal(t, "Sheet1!A5:F5", updated)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.True(t, strings.HasSuffix(gotPath, ":append"), "unexpected path %s", gotPath)
	assert.Equal(t, ValueInputUserEntered, gotQuery["valueInputOption"])
	assert.Equal(t, "INSERT_ROWS", gotQuery["insertDataOption"])
	assert.Equal(t, [][]any{row}, gotBody.Values)
}

func TestAppendRow_Error(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"The caller does not have permission"}}`)
	})

	_, err := client.AppendRow(context.Background(), "sheet-123", JournalRange, []any{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append to Sheet1!A1")
}
