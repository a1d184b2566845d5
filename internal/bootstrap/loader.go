package bootstrap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/logging"
)

// Defaults for the readiness wait: 20 attempts 500ms apart, about 10s.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxAttempts  = 20
)

// Outcomes reported to the Recorder and exposed in State.Reason.
const (
	OutcomeReady         = "ready"
	OutcomeTimeout       = "timeout"
	OutcomeInvalidConfig = "invalid_config"
	OutcomeInitFailed    = "init_failed"
	OutcomeCancelled     = "cancelled"
)

// APIClientLibrary is the generic Google API client.
type APIClientLibrary interface {
	Available(ctx context.Context) bool
	Init(ctx context.Context, apiKey string, discoveryDocs []string) error
}

// IdentityLibrary is the identity/token client.
type IdentityLibrary interface {
	Available(ctx context.Context) bool
	InitTokenClient(cfg google.TokenClientConfig) (google.TokenRequester, error)
}

// ConfigSource provides the current configuration.
type ConfigSource interface {
	Get() config.Config
}

// Recorder receives one observation per completed bootstrap.
type Recorder interface {
	RecordBootstrap(ctx context.Context, outcome string, attempts int, duration time.Duration)
}

// Config tunes the Loader.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int

	// InitTimeout bounds library initialization once both are available.
	// Defaults to PollInterval * MaxAttempts.
	InitTimeout time.Duration

	Scopes        []string
	RedirectURL   string
	DiscoveryDocs []string

	// CurrentToken is handed to the token client so silent requests can
	// refresh a held token.
	CurrentToken func() *oauth2.Token
}

// State is a snapshot of the bootstrap.
type State struct {
	// ClientLibraryReady and IdentityLibraryReady report readiness, which
	// includes degraded readiness.
	ClientLibraryReady   bool `json:"clientLibraryReady"`
	IdentityLibraryReady bool `json:"identityLibraryReady"`

	// ClientLibraryInitialized and IdentityLibraryInitialized report that
	// initialization actually succeeded.
	ClientLibraryInitialized   bool `json:"clientLibraryInitialized"`
	IdentityLibraryInitialized bool `json:"identityLibraryInitialized"`

	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}

// Ready reports whether both libraries reached (possibly degraded) readiness.
func (s State) Ready() bool {
	return s.ClientLibraryReady && s.IdentityLibraryReady
}

// Loader waits for the API client and identity libraries and initializes
// each exactly once.
type Loader struct {
	cfg      Config
	config   ConfigSource
	api      APIClientLibrary
	identity IdentityLibrary
	logger   *slog.Logger

	group singleflight.Group

	mu          sync.RWMutex
	state       State
	tokenClient google.TokenRequester
	recorder    Recorder
}

// waitBudget is the deadline shared by all readiness attempts.
func (c Config) waitBudget() time.Duration {
	return c.PollInterval * time.Duration(c.MaxAttempts)
}

// NewLoader creates a Loader. Zero PollInterval and MaxAttempts select the
// defaults.
func NewLoader(cfg Config, source ConfigSource, api APIClientLibrary, identity IdentityLibrary, logger *slog.Logger) *Loader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = cfg.waitBudget()
	}
	if cfg.DiscoveryDocs == nil {
		cfg.DiscoveryDocs = google.DefaultDiscoveryDocs
	}
	if cfg.Scopes == nil {
		cfg.Scopes = google.DefaultOAuthScopes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cfg:      cfg,
		config:   source,
		api:      api,
		identity: identity,
		logger:   logging.WithOperation(logger, "bootstrap"),
	}
}

// SetRecorder installs a Recorder. Passing nil disables recording.
func (l *Loader) SetRecorder(r Recorder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorder = r
}

// Load bootstraps in the background and calls onReady exactly once when
// both libraries are ready, degraded or not. It never blocks.
func (l *Loader) Load(ctx context.Context, onReady func()) {
	go func() {
		l.LoadAndWait(ctx)
		if onReady != nil {
			onReady()
		}
	}()
}

// LoadAndWait bootstraps and returns the resulting state. Concurrent
// callers share one in-flight bootstrap.
func (l *Loader) LoadAndWait(ctx context.Context) State {
	v, _, _ := l.group.Do("load", func() (any, error) {
		return l.run(ctx), nil
	})
	return v.(State)
}

// State returns the current bootstrap state.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TokenClient returns the initialized token client, or nil while the
// identity library is not initialized.
func (l *Loader) TokenClient() google.TokenRequester {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tokenClient
}

// Reset forgets all initialization so the next Load starts over. Used after
// the configuration is replaced.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = State{}
	l.tokenClient = nil
}

func (l *Loader) run(ctx context.Context) State {
	start := time.Now()

	l.mu.RLock()
	needAPI := !l.state.ClientLibraryInitialized
	needIdentity := !l.state.IdentityLibraryInitialized
	l.mu.RUnlock()

	if !needAPI && !needIdentity {
		return l.finish(ctx, start, 0, "")
	}

	// An availability check that never answers must not stretch the wait past the budget.
	waitCtx, cancelWait := context.WithTimeout(ctx, l.cfg.waitBudget())
	attempts, available := l.awaitLibraries(waitCtx, needAPI, needIdentity)
	cancelWait()
	if !available {
		if ctx.Err() != nil {
			l.logger.Warn("bootstrap cancelled before libraries became available", "attempts", attempts)
			return l.finish(ctx, start, attempts, OutcomeCancelled)
		}
		l.logger.Warn("google client libraries not available, continuing degraded",
			"attempts", attempts,
			"waited", time.Since(start).String())
		return l.finish(ctx, start, attempts, OutcomeTimeout)
	}

	cfg := l.config.Get()
	if !cfg.Valid() {
		l.logger.Warn("google integration not configured, skipping initialization")
		return l.finish(ctx, start, attempts, OutcomeInvalidConfig)
	}

	initCtx, cancelInit := context.WithTimeout(ctx, l.cfg.InitTimeout)
	defer cancelInit()

	var g errgroup.Group
	if needAPI {
		g.Go(func() error {
			if err := l.api.Init(initCtx, cfg.APIKey, l.cfg.DiscoveryDocs); err != nil {
				l.logger.Error("failed to initialize google API client", logging.Err(err))
				return nil
			}
			l.mu.Lock()
			l.state.ClientLibraryInitialized = true
			l.mu.Unlock()
			return nil
		})
	}
	if needIdentity {
		g.Go(func() error {
			tc, err := l.identity.InitTokenClient(google.TokenClientConfig{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Scopes:       l.cfg.Scopes,
				RedirectURL:  l.cfg.RedirectURL,
				CurrentToken: l.cfg.CurrentToken,
				// Replaced by the authorization manager on each login.
				Callback: func(google.TokenResponse) {},
			})
			if err != nil {
				l.logger.Error("failed to initialize google identity client", logging.Err(err))
				return nil
			}
			l.mu.Lock()
			l.state.IdentityLibraryInitialized = true
			l.tokenClient = tc
			l.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	l.mu.RLock()
	ok := l.state.ClientLibraryInitialized && l.state.IdentityLibraryInitialized
	l.mu.RUnlock()
	if !ok {
		return l.finish(ctx, start, attempts, OutcomeInitFailed)
	}
	return l.finish(ctx, start, attempts, "")
}

// awaitLibraries runs one readiness future per library still needing
// initialization and joins them.
func (l *Loader) awaitLibraries(ctx context.Context, needAPI, needIdentity bool) (int, bool) {
	type result struct {
		attempts  int
		available bool
	}
	var apiRes, idRes = result{available: true}, result{available: true}

	var g errgroup.Group
	if needAPI {
		g.Go(func() error {
			apiRes.attempts, apiRes.available = l.await(ctx, l.api.Available)
			return nil
		})
	}
	if needIdentity {
		g.Go(func() error {
			idRes.attempts, idRes.available = l.await(ctx, l.identity.Available)
			return nil
		})
	}
	_ = g.Wait()

	return max(apiRes.attempts, idRes.attempts), apiRes.available && idRes.available
}

func (l *Loader) await(ctx context.Context, available func(context.Context) bool) (int, bool) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if available(ctx) {
			return attempt, true
		}
		if attempt >= l.cfg.MaxAttempts {
			return attempt, false
		}
		select {
		case <-ctx.Done():
			return attempt, false
		case <-ticker.C:
		}
	}
}

// finish marks both libraries ready and records the outcome. An empty
// reason means a fully initialized bootstrap.
func (l *Loader) finish(ctx context.Context, start time.Time, attempts int, reason string) State {
	l.mu.Lock()
	l.state.ClientLibraryReady = true
	l.state.IdentityLibraryReady = true
	l.state.Degraded = reason != ""
	l.state.Reason = reason
	l.state.Attempts = attempts
	state := l.state
	recorder := l.recorder
	l.mu.Unlock()

	outcome := reason
	if outcome == "" {
		outcome = OutcomeReady
		l.logger.Info("google client libraries ready", "attempts", attempts)
	}
	if recorder != nil {
		recorder.RecordBootstrap(ctx, outcome, attempts, time.Since(start))
	}
	return state
}
