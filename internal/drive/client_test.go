package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestConvertToFileInfo(t *testing.T) {
	driveFile := &drive.File{
		Id:          "file123",
		Name:        "photo.jpg",
		MimeType:    "image/jpeg",
		CreatedTime: "2023-01-01T10:00:00Z",
		WebViewLink: "https://drive.google.com/file/d/file123/view",
		Parents:     []string{"parent1"},
	}

	fileInfo := convertToFileInfo(driveFile)

	assert.Equal(t, "file123", fileInfo.ID)
	assert.Equal(t, "photo.jpg", fileInfo.Name)
	assert.Equal(t, "image/jpeg", fileInfo.MimeType)
	assert.Equal(t, "https://drive.google.com/file/d/file123/view", fileInfo.WebViewLink)
	assert.Equal(t, []string{"parent1"}, fileInfo.Parents)
	assert.True(t, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC).Equal(fileInfo.CreatedTime))
}

func TestConvertToFileInfo_InvalidTimestamp(t *testing.T) {
	fileInfo := convertToFileInfo(&drive.File{Id: "x", CreatedTime: "not a time"})
	assert.True(t, fileInfo.CreatedTime.IsZero())
}

// uploadRequest captures what the fake Drive endpoint received.
type uploadRequest struct {
	uploadType string
	fields     string
	metadata   map[string]any
	media      []byte
}

func newDriveServer(t *testing.T, status int, body string, got *uploadRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/files") {
			http.NotFound(w, r)
			return
		}
		got.uploadType = r.URL.Query().Get("uploadType")
		got.fields = r.URL.Query().Get("fields")

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err == nil && strings.HasPrefix(mediaType, "multipart/") {
			mr := multipart.NewReader(r.Body, params["boundary"])
			for i := 0; ; i++ {
				part, err := mr.NextPart()
				if err != nil {
					break
				}
				data, _ := io.ReadAll(part)
				if i == 0 {
					_ = json.Unmarshal(data, &got.metadata)
				} else {
					got.media = data
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return client
}

func TestUploadFile(t *testing.T) {
	var got uploadRequest
	srv := newDriveServer(t, http.StatusOK, `{"id":"abc","name":"photo.png","webViewLink":"https://drive.google.com/file/d/abc/view"}`, &got)
	defer srv.Close()

	client := newTestClient(t, srv)
	content := []byte{0x89, 'P', 'N', 'G'}

	info, err := client.UploadFile(context.Background(), "photo.png", bytes.NewReader(content), &UploadOptions{
		MimeType:      "image/png",
		ParentFolders: []string{"folder-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", info.ID)
	assert.Equal(t, "https://drive.google.com/file/d/abc/view", info.WebViewLink)

	assert.Equal(t, "multipart", got.uploadType)
	assert.Contains(t, got.fields, "webViewLink")
	assert.Contains(t, got.fields, "id")
	assert.Equal(t, "photo.png", got.metadata["name"])
	assert.Equal(t, "image/png", got.metadata["mimeType"])
	assert.Equal(t, []any{"folder-1"}, got.metadata["parents"])
	assert.Equal(t, content, got.media)
}

func TestUploadFile_NoParents(t *testing.T) {
	var got uploadRequest
	srv := newDriveServer(t, http.StatusOK, `{"id":"abc"}`, &got)
	defer srv.Close()

	_, err := newTestClient(t, srv).UploadFile(context.Background(), "a.jpg", bytes.NewReader([]byte("x")), &UploadOptions{MimeType: "image/jpeg"})
	require.NoError(t, err)

	_, hasParents := got.metadata["parents"]
	assert.False(t, hasParents, "parents must be omitted when no folder is set")
}

func TestUploadFile_APIError(t *testing.T) {
	var got uploadRequest
	srv := newDriveServer(t, http.StatusForbidden, `{"error":{"code":403,"message":"insufficient permissions"}}`, &got)
	defer srv.Close()

	_, err := newTestClient(t, srv).UploadFile(context.Background(), "a.jpg", bytes.NewReader([]byte("x")), nil)
	require.Error(t, err)

	var gerr *googleapi.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusForbidden, gerr.Code)
}

func TestUploadFile_Validation(t *testing.T) {
	client := &Client{}

	_, err := client.UploadFile(context.Background(), "", bytes.NewReader(nil), nil)
	assert.EqualError(t, err, "file name is required")

	_, err = client.UploadFile(context.Background(), "a.jpg", nil, nil)
	assert.EqualError(t, err, "file content is required")
}
