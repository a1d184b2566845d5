package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/teemow/memorylane/internal/access"
	"github.com/teemow/memorylane/internal/auth"
	"github.com/teemow/memorylane/internal/bootstrap"
	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/instrumentation"
	"github.com/teemow/memorylane/internal/journal"
)

// Options configures a ServerContext.
type Options struct {
	// Config is the initial Google configuration.
	Config config.Config

	// TokenFile persists the access token. Empty disables persistence.
	TokenFile string

	// RedirectURL is the OAuth callback URL registered with Google. It must
	// route to google.CallbackPath on a server serving Identity().CallbackHandler().
	RedirectURL string

	// Birthday of the child, used to fill in the age of memories that
	// arrive without one. Zero disables the calculation.
	Birthday time.Time

	// OpenBrowser opens authorization URLs in the local browser in addition
	// to publishing them through PendingAuthURL.
	OpenBrowser bool

	// OnAuthURL is called with every authorization URL, for example to print
	// it on a terminal.
	OnAuthURL func(url string)

	// Provider supplies metrics and audit logging. Nil disables both.
	Provider *instrumentation.Provider

	Logger *slog.Logger

	// API, Identity and Bootstrap override library settings, mostly
	// endpoints in tests. Logger, Observer, TokenFile, OpenURL, RedirectURL
	// and CurrentToken are filled in by NewServerContext.
	API       google.APIClientConfig
	Identity  google.IdentityConfig
	Bootstrap bootstrap.Config
}

// Status summarizes the integration for the UI and the status command.
type Status struct {
	Configured  bool            `json:"configured"`
	DriveFolder bool            `json:"driveFolder"`
	SignedIn    bool            `json:"signedIn"`
	Config      config.Config   `json:"config"`
	Bootstrap   bootstrap.State `json:"bootstrap"`
}

// ServerContext owns one instance of every component and wires them
// together. It replaces process-wide state: handlers, tools and commands
// receive it by reference.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	store    *config.Store
	api      *google.APIClient
	identity *google.IdentityClient
	loader   *bootstrap.Loader
	auth     *auth.Manager
	access   *access.Checker
	journal  *journal.Gateway

	provider *instrumentation.Provider
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	logger   *slog.Logger

	openBrowser bool
	onAuthURL   func(string)
	startTime   time.Time

	mu       sync.RWMutex
	authURL  string
	birthday time.Time
	shutdown bool
}

// NewServerContext builds every component. No network calls are made until
// Start.
func NewServerContext(ctx context.Context, opts Options) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sc := &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		store:       config.NewStore(opts.Config.Normalize()),
		provider:    opts.Provider,
		logger:      logger,
		openBrowser: opts.OpenBrowser,
		onAuthURL:   opts.OnAuthURL,
		birthday:    opts.Birthday,
		startTime:   time.Now(),
	}
	if opts.Provider != nil {
		sc.metrics = opts.Provider.Metrics()
		sc.audit = opts.Provider.Audit()
	}

	apiCfg := opts.API
	apiCfg.TokenFile = opts.TokenFile
	apiCfg.Logger = logger
	if apiCfg.OAuthConfig == nil {
		apiCfg.OAuthConfig = sc.refreshConfig
	}
	apiCfg.Observer = func(service google.ServiceType, method string, statusCode int, d time.Duration) {
		sc.metrics.RecordGoogleAPIRequest(sc.ctx, string(service), method, statusCode, d)
	}
	sc.api = google.NewAPIClient(apiCfg)

	idCfg := opts.Identity
	idCfg.Logger = logger
	idCfg.OpenURL = sc.presentAuthURL
	sc.identity = google.NewIdentityClient(idCfg)

	bootCfg := opts.Bootstrap
	bootCfg.RedirectURL = opts.RedirectURL
	bootCfg.CurrentToken = sc.api.Token
	sc.loader = bootstrap.NewLoader(bootCfg, sc.store, sc.api, sc.identity, logger)

	sc.auth = auth.NewManager(sc.store, sc.loader, sc.api, logger)
	sc.access = access.NewChecker(sc.store, sc.api, sc.api, logger)
	sc.journal = journal.NewGateway(sc.store, sc.api, sc.api, sc.api, logger)

	if sc.metrics != nil {
		sc.loader.SetRecorder(sc.metrics)
		sc.auth.SetRecorder(sc.metrics)
		sc.access.SetRecorder(sc.metrics)
		sc.journal.SetRecorder(sc.metrics)
	}

	return sc
}

// Start restores a persisted token and begins bootstrapping in the
// background. onReady is called once both libraries are ready.
func (sc *ServerContext) Start(onReady func()) {
	if err := sc.api.LoadToken(); err != nil {
		sc.logger.Warn("failed to load stored token, sign in again", "error", err)
	}
	sc.loader.Load(sc.ctx, onReady)
}

// refreshConfig returns the OAuth client for the current credentials, or nil
// before a client ID is configured.
func (sc *ServerContext) refreshConfig() *oauth2.Config {
	cfg := sc.store.Get()
	if cfg.ClientID == "" {
		return nil
	}
	return sc.identity.OAuthConfig(cfg.ClientID, cfg.ClientSecret, "", nil)
}

// presentAuthURL publishes an authorization URL for the UI and optionally
// opens it locally.
func (sc *ServerContext) presentAuthURL(url string) error {
	sc.mu.Lock()
	sc.authURL = url
	sc.mu.Unlock()

	if sc.onAuthURL != nil {
		sc.onAuthURL(url)
	}
	if sc.openBrowser {
		return browser.OpenURL(url)
	}
	return nil
}

// PendingAuthURL returns the authorization URL of the most recent login.
func (sc *ServerContext) PendingAuthURL() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.authURL
}

// UpdateConfig replaces the configuration and re-runs the bootstrap so the
// libraries pick up the new credentials. It reports false and leaves the
// bootstrap alone when cfg matches the current configuration. Must not be
// called while a login is pending.
func (sc *ServerContext) UpdateConfig(cfg config.Config) bool {
	cfg = cfg.Normalize()
	if cfg == sc.store.Get() {
		sc.logger.Debug("configuration unchanged")
		return false
	}
	sc.store.Set(cfg)
	sc.loader.Reset()
	sc.loader.Load(sc.ctx, nil)
	sc.logger.Info("configuration updated", "configured", sc.store.IsConfigured())
	return true
}

// SetBirthday replaces the child's birthday.
func (sc *ServerContext) SetBirthday(birthday time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.birthday = birthday
}

// AgeOn returns the child's age on date (YYYY-MM-DD), or "" when the
// birthday or date is unknown.
func (sc *ServerContext) AgeOn(date string) string {
	sc.mu.RLock()
	birthday := sc.birthday
	sc.mu.RUnlock()

	on, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return ""
	}
	return journal.AgeAt(birthday, on)
}

// Status returns a snapshot of configuration, bootstrap and session.
func (sc *ServerContext) Status() Status {
	cfg := sc.store.Get()
	return Status{
		Configured:  sc.store.IsConfigured(),
		DriveFolder: cfg.HasDriveFolder(),
		SignedIn:    sc.api.HasToken(),
		Config:      cfg.Redacted(),
		Bootstrap:   sc.loader.State(),
	}
}

// Authorize admits the signed-in user only when their email is on the
// allow-list. Every decision is written to the audit log.
func (sc *ServerContext) Authorize(ctx context.Context) (google.Profile, error) {
	profile, err := sc.access.Gate(ctx)
	sc.audit.LogAccessDecision(ctx, profile.Email(), accessDecision(err))
	return profile, err
}

func accessDecision(err error) string {
	switch {
	case err == nil:
		return access.DecisionAllowed
	case errors.Is(err, access.ErrVerificationUnavailable):
		return access.DecisionUnavailable
	default:
		return access.DecisionDenied
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Store returns the configuration store.
func (sc *ServerContext) Store() *config.Store { return sc.store }

// APIClient returns the Google API client library.
func (sc *ServerContext) APIClient() *google.APIClient { return sc.api }

// Identity returns the Google identity client library.
func (sc *ServerContext) Identity() *google.IdentityClient { return sc.identity }

// Loader returns the library bootstrapper.
func (sc *ServerContext) Loader() *bootstrap.Loader { return sc.loader }

// Auth returns the authorization manager.
func (sc *ServerContext) Auth() *auth.Manager { return sc.auth }

// Access returns the access control checker.
func (sc *ServerContext) Access() *access.Checker { return sc.access }

// Journal returns the upload/append gateway.
func (sc *ServerContext) Journal() *journal.Gateway { return sc.journal }

// Metrics returns the metrics recorder. It may be nil; recording on nil is a no-op.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.metrics }

// Audit returns the audit logger. It may be nil; logging on nil is a no-op.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger { return sc.audit }

// Provider returns the instrumentation provider, or nil.
func (sc *ServerContext) Provider() *instrumentation.Provider { return sc.provider }

// Logger returns the root logger.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// CallbackHandler completes authorization requests started by logins.
func (sc *ServerContext) CallbackHandler() http.Handler {
	return sc.identity.CallbackHandler()
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return
	}
	sc.shutdown = true
	sc.cancel()
}
