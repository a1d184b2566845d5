package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/logging"
)

var (
	// ErrNotConfigured is returned before any network call when the Google
	// credentials are missing or implausible.
	ErrNotConfigured = errors.New("google integration is not configured: set the client ID, API key and spreadsheet ID in settings")

	// ErrNotLoaded is returned while the identity client is not initialized.
	// A background load is triggered so a later attempt can succeed.
	ErrNotLoaded = errors.New("google identity client is not loaded yet, try again shortly")

	// ErrAuthorization wraps failures reported by the identity provider.
	ErrAuthorization = errors.New("google login failed")

	// ErrLoginSuperseded is returned to a caller whose pending login was
	// replaced by a newer Login call.
	ErrLoginSuperseded = errors.New("login superseded by a newer login request")
)

// Login outcomes reported to the Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
	OutcomeCancelled  = "cancelled"
)

// AuthorizationError carries the provider's error payload.
type AuthorizationError struct {
	Payload     any
	Description string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuthorization.Error(), e.message())
}

func (e *AuthorizationError) Unwrap() error {
	return ErrAuthorization
}

// message returns a string payload as is and serializes anything else
// together with the description.
func (e *AuthorizationError) message() string {
	if s, ok := e.Payload.(string); ok {
		return s
	}
	resp := map[string]any{"error": e.Payload}
	if e.Description != "" {
		resp["error_description"] = e.Description
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprint(e.Payload)
	}
	return string(data)
}

// ConfigChecker reports whether the configuration is usable.
type ConfigChecker interface {
	IsConfigured() bool
}

// Bootstrapper initializes the identity client.
type Bootstrapper interface {
	Load(ctx context.Context, onReady func())
	TokenClient() google.TokenRequester
}

// TokenHolder is the API client's token accessor.
type TokenHolder interface {
	Token() *oauth2.Token
	SetToken(tok *oauth2.Token) error
}

// Recorder receives one observation per finished Login.
type Recorder interface {
	RecordLogin(ctx context.Context, prompt, outcome string, duration time.Duration)
}

// Manager performs interactive and silent Google sign-in.
type Manager struct {
	config ConfigChecker
	loader Bootstrapper
	tokens TokenHolder
	logger *slog.Logger

	mu       sync.Mutex
	pending  *pendingLogin
	recorder Recorder
}

// pendingLogin is the single slot a token response resolves.
type pendingLogin struct {
	done chan error
	once sync.Once
}

func (p *pendingLogin) resolve(err error) {
	p.once.Do(func() { p.done <- err })
}

// NewManager creates a Manager.
func NewManager(config ConfigChecker, loader Bootstrapper, tokens TokenHolder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config: config,
		loader: loader,
		tokens: tokens,
		logger: logging.WithOperation(logger, "login"),
	}
}

// SetRecorder installs a Recorder.
func (m *Manager) SetRecorder(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = r
}

// Login requests an access token and waits for the provider's answer. The
// consent screen is forced when no token is held; otherwise the request is
// silent.
//
// Only one login is pending at a time. Starting a new one fails the
// previous caller with ErrLoginSuperseded.
func (m *Manager) Login(ctx context.Context) error {
	if !m.config.IsConfigured() {
		return ErrNotConfigured
	}

	tc := m.loader.TokenClient()
	if tc == nil {
		m.logger.Info("identity client not loaded, retrying bootstrap in the background")
		m.loader.Load(context.WithoutCancel(ctx), nil)
		return ErrNotLoaded
	}

	prompt := google.PromptConsent
	if tok := m.tokens.Token(); tok != nil && tok.AccessToken != "" {
		prompt = google.PromptNone
	}
	promptLabel := string(prompt)
	if promptLabel == "" {
		promptLabel = "none"
	}

	start := time.Now()
	p := &pendingLogin{done: make(chan error, 1)}

	m.mu.Lock()
	if prev := m.pending; prev != nil {
		prev.resolve(ErrLoginSuperseded)
	}
	m.pending = p
	m.mu.Unlock()

	tc.SetCallback(func(resp google.TokenResponse) {
		m.handleResponse(p, resp)
	})

	if err := tc.RequestAccessToken(ctx, prompt); err != nil {
		m.release(p)
		err = fmt.Errorf("%w: %w", ErrAuthorization, err)
		m.record(ctx, promptLabel, err, start)
		return err
	}

	select {
	case err := <-p.done:
		m.record(ctx, promptLabel, err, start)
		return err
	case <-ctx.Done():
		m.release(p)
		m.record(ctx, promptLabel, ctx.Err(), start)
		return ctx.Err()
	}
}

// handleResponse resolves p with the provider's answer unless p has been
// superseded in the meantime.
func (m *Manager) handleResponse(p *pendingLogin, resp google.TokenResponse) {
	if !m.release(p) {
		return
	}

	if resp.Error != nil {
		err := &AuthorizationError{Payload: resp.Error, Description: resp.ErrorDescription}
		m.logger.Warn("google login failed", logging.Err(err))
		p.resolve(err)
		return
	}
	if resp.Token == nil {
		p.resolve(&AuthorizationError{Payload: "no token in response"})
		return
	}

	if err := m.tokens.SetToken(resp.Token); err != nil {
		// The token is held in memory; only persistence failed.
		m.logger.Warn("failed to persist access token", logging.Err(err))
	}
	m.logger.Info("google login succeeded", "token", logging.SanitizeToken(resp.Token.AccessToken))
	p.resolve(nil)
}

// release clears the pending slot if it still holds p.
func (m *Manager) release(p *pendingLogin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != p {
		return false
	}
	m.pending = nil
	return true
}

func (m *Manager) record(ctx context.Context, prompt string, err error, start time.Time) {
	m.mu.Lock()
	recorder := m.recorder
	m.mu.Unlock()
	if recorder == nil {
		return
	}

	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrLoginSuperseded):
		outcome = OutcomeSuperseded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = OutcomeCancelled
	default:
		outcome = OutcomeError
	}
	recorder.RecordLogin(ctx, prompt, outcome, time.Since(start))
}
