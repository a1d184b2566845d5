package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/drive"
	"github.com/teemow/memorylane/internal/logging"
	"github.com/teemow/memorylane/internal/sheets"
)

var (
	// ErrNoToken means no access token is held and the user must sign in.
	ErrNoToken = errors.New("no Google access token found, please login again")

	// ErrUploadFailed is the transport failure of an upload. Errors from the
	// Drive API are reported as *UploadError.
	ErrUploadFailed = errors.New("drive upload failed")

	// ErrMissingLink means Drive accepted the upload but returned no
	// webViewLink.
	ErrMissingLink = errors.New("drive upload succeeded but webViewLink is missing")

	// ErrInvalidImage means the image payload could not be decoded.
	ErrInvalidImage = errors.New("invalid image data")

	// ErrAppendFailed prefixes every append failure.
	ErrAppendFailed = errors.New("Sheets Append Failed")
)

// uploadErrorPrefix prefixes every upload failure.
const uploadErrorPrefix = "image upload error"

// UploadError is a non-success response from the Drive upload endpoint.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %d - %s", ErrUploadFailed.Error(), e.StatusCode, e.Body)
}

func (e *UploadError) Unwrap() error {
	return ErrUploadFailed
}

// ObjectUploader stores a binary object and returns its metadata.
type ObjectUploader interface {
	UploadFile(ctx context.Context, name string, content io.Reader, opts *drive.UploadOptions) (*drive.FileInfo, error)
}

// RowAppender appends one row to a spreadsheet range.
type RowAppender interface {
	AppendRow(ctx context.Context, spreadsheetID, rng string, row []any) error
}

// TokenChecker reports whether an access token is held.
type TokenChecker interface {
	HasToken() bool
}

// ConfigSource provides the current configuration.
type ConfigSource interface {
	Get() config.Config
}

// Recorder receives one observation per upload or append.
type Recorder interface {
	RecordJournalOperation(ctx context.Context, operation, status string, duration time.Duration)
}

// Gateway uploads images to Drive and appends memory rows to Sheets.
type Gateway struct {
	config   ConfigSource
	tokens   TokenChecker
	uploader ObjectUploader
	appender RowAppender
	logger   *slog.Logger
	recorder Recorder
}

// NewGateway creates a Gateway.
func NewGateway(cfg ConfigSource, tokens TokenChecker, uploader ObjectUploader, appender RowAppender, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:   cfg,
		tokens:   tokens,
		uploader: uploader,
		appender: appender,
		logger:   logger,
	}
}

// SetRecorder installs a Recorder. Not safe to call concurrently with uploads.
func (g *Gateway) SetRecorder(r Recorder) {
	g.recorder = r
}

// UploadImage uploads a base64 image, optionally in data URL form, and
// returns its Drive web view link. The file is placed in the configured
// Drive folder when one is set.
func (g *Gateway) UploadImage(ctx context.Context, base64Data, mimeType, fileName string) (link string, err error) {
	start := time.Now()
	logger := logging.WithOperation(g.logger, "upload_image")
	defer func() {
		g.record(ctx, "upload_image", err, start)
		if err != nil {
			logger.Error("image upload failed", logging.Err(err))
		}
	}()

	content, err := DecodeDataURL(base64Data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", uploadErrorPrefix, err)
	}
	if mimeType == "" {
		mimeType = MimeTypeFromDataURL(base64Data)
	}
	if fileName == "" {
		fileName = DefaultFileName(mimeType)
	}

	if !g.tokens.HasToken() {
		return "", fmt.Errorf("%s: %w", uploadErrorPrefix, ErrNoToken)
	}

	opts := &drive.UploadOptions{MimeType: mimeType}
	if cfg := g.config.Get(); cfg.HasDriveFolder() {
		opts.ParentFolders = []string{cfg.DriveFolderID}
	}

	info, err := g.uploader.UploadFile(ctx, fileName, bytes.NewReader(content), opts)
	if err != nil {
		return "", fmt.Errorf("%s: %w", uploadErrorPrefix, classifyUploadError(err))
	}
	if info == nil || info.WebViewLink == "" {
		return "", fmt.Errorf("%s: %w", uploadErrorPrefix, ErrMissingLink)
	}

	logger.Info("image uploaded", "file_id", info.ID, "bytes", len(content), "mime_type", mimeType)
	return info.WebViewLink, nil
}

// classifyUploadError turns a Drive API error into an *UploadError carrying
// the status code and raw body.
func classifyUploadError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return &UploadError{StatusCode: gerr.Code, Body: body}
	}
	return fmt.Errorf("%w: %w", ErrUploadFailed, err)
}

// AppendRow appends one row for memory followed by imageLinks to the
// journal sheet. It is never retried.
func (g *Gateway) AppendRow(ctx context.Context, memory Memory, imageLinks []string) (err error) {
	start := time.Now()
	defer func() { g.record(ctx, "append_row", err, start) }()

	cfg := g.config.Get()
	if err := g.appender.AppendRow(ctx, cfg.SpreadsheetID, sheets.JournalRange, memory.Row(imageLinks)); err != nil {
		logging.WithOperation(g.logger, "append_row").Error("sheets append failed", logging.Err(err))
		return fmt.Errorf("%w: %w", ErrAppendFailed, err)
	}
	return nil
}

// SaveMemory uploads images in order, then appends a single row with the
// resulting links. It stops at the first failure and returns the links
// uploaded so far.
func (g *Gateway) SaveMemory(ctx context.Context, memory Memory, images []Image) ([]string, error) {
	links := make([]string, 0, len(images))
	for i, img := range images {
		link, err := g.UploadImage(ctx, img.Data, img.MimeType, img.FileName)
		if err != nil {
			return links, fmt.Errorf("image %d: %w", i+1, err)
		}
		links = append(links, link)
	}

	if err := g.AppendRow(ctx, memory, links); err != nil {
		return links, err
	}
	return links, nil
}

func (g *Gateway) record(ctx context.Context, operation string, err error, start time.Time) {
	if g.recorder == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	g.recorder.RecordJournalOperation(ctx, operation, status, time.Since(start))
}

// StatusCode maps an upload or append error to an HTTP status for callers
// that surface it over HTTP.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNoToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidImage):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
