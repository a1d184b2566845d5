// Package access decides whether a signed-in user may use the journal by
// looking their email up in the allow-list kept in the spreadsheet.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/logging"
	"github.com/teemow/memorylane/internal/sheets"
)

var (
	// ErrVerificationUnavailable means the allow-list could not be read. It
	// is distinct from a legitimate deny.
	ErrVerificationUnavailable = errors.New("could not verify access")

	// ErrAccessDenied is returned by Gate when the user is not on the
	// allow-list.
	ErrAccessDenied = errors.New("access denied")

	// ErrNoEmail is returned by Gate when the profile carries no email.
	ErrNoEmail = errors.New("profile has no email address")
)

// Decisions reported to the Recorder.
const (
	DecisionAllowed     = "allowed"
	DecisionDenied      = "denied"
	DecisionEmptyList   = "empty_list"
	DecisionUnavailable = "unavailable"
)

// ConfigSource provides the current configuration.
type ConfigSource interface {
	Get() config.Config
}

// RangeReader reads a range of spreadsheet cells.
type RangeReader interface {
	ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
}

// ProfileFetcher fetches the signed-in user's profile.
type ProfileFetcher interface {
	UserInfo(ctx context.Context) (google.Profile, error)
}

// Recorder receives one observation per access check.
type Recorder interface {
	RecordAccessDecision(ctx context.Context, decision string)
}

// Checker validates users against the Login sheet.
type Checker struct {
	config   ConfigSource
	reader   RangeReader
	profiles ProfileFetcher
	logger   *slog.Logger
	recorder Recorder
}

// NewChecker creates a Checker.
func NewChecker(cfg ConfigSource, reader RangeReader, profiles ProfileFetcher, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		config:   cfg,
		reader:   reader,
		profiles: profiles,
		logger:   logging.WithOperation(logger, "access_check"),
	}
}

// SetRecorder installs a Recorder. Not safe to call concurrently with checks.
func (c *Checker) SetRecorder(r Recorder) {
	c.recorder = r
}

// ValidateUserAccess reports whether email is on the allow-list. Matching
// ignores case and surrounding whitespace. An empty or missing list denies
// everyone. Read failures are returned as ErrVerificationUnavailable.
func (c *Checker) ValidateUserAccess(ctx context.Context, email string) (bool, error) {
	cfg := c.config.Get()
	logger := c.logger.With(logging.UserHash(email))

	rows, err := c.reader.ReadRange(ctx, cfg.SpreadsheetID, sheets.LoginRange)
	if err != nil {
		logger.Error("failed to read allow-list", logging.Err(err))
		c.record(ctx, DecisionUnavailable)
		return false, fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
	}

	if len(rows) == 0 {
		logger.Warn("allow-list sheet is missing or empty, denying access", "range", sheets.LoginRange)
		c.record(ctx, DecisionEmptyList)
		return false, nil
	}

	want := normalize(email)
	if want != "" {
		for _, row := range rows {
			for _, cell := range row {
				if v := normalize(fmt.Sprint(cell)); v != "" && v == want {
					logger.Debug("user found in allow-list")
					c.record(ctx, DecisionAllowed)
					return true, nil
				}
			}
		}
	}

	logger.Warn("user not found in allow-list", "entries", len(rows))
	c.record(ctx, DecisionDenied)
	return false, nil
}

// GetUserProfile returns the raw userinfo payload. Failures are logged and
// returned unchanged.
func (c *Checker) GetUserProfile(ctx context.Context) (google.Profile, error) {
	profile, err := c.profiles.UserInfo(ctx)
	if err != nil {
		c.logger.Error("failed to fetch user profile", logging.Err(err))
		return nil, err
	}
	return profile, nil
}

// Gate fetches the signed-in user's profile and checks its email. It
// returns the profile when access is allowed and ErrAccessDenied when not.
func (c *Checker) Gate(ctx context.Context) (google.Profile, error) {
	profile, err := c.GetUserProfile(ctx)
	if err != nil {
		return nil, err
	}

	email := profile.Email()
	if email == "" {
		return profile, ErrNoEmail
	}

	allowed, err := c.ValidateUserAccess(ctx, email)
	if err != nil {
		return profile, err
	}
	if !allowed {
		return profile, fmt.Errorf("%w for %s", ErrAccessDenied, email)
	}
	return profile, nil
}

func (c *Checker) record(ctx context.Context, decision string) {
	if c.recorder != nil {
		c.recorder.RecordAccessDecision(ctx, decision)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
