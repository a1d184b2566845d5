package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/memorylane/internal/drive"
	"github.com/teemow/memorylane/internal/sheets"
)

// probeTimeout bounds a single availability probe.
const probeTimeout = 5 * time.Second

// ErrNoToken is returned by operations that need an access token when none
// is held.
var ErrNoToken = errors.New("no access token")

// Observer receives one call per Google API request.
type Observer func(service ServiceType, method string, statusCode int, duration time.Duration)

// APIClientConfig configures an APIClient.
type APIClientConfig struct {
	// HTTPClient is the base client. Its transport is wrapped with rate
	// limiting and OAuth authorization.
	HTTPClient *http.Client

	// TokenFile persists the access token between runs. Empty disables
	// persistence.
	TokenFile string

	// ProbeURL is fetched by Available. Defaults to the Drive discovery document.
	ProbeURL string

	// DriveEndpoint and SheetsEndpoint override the API base URLs.
	DriveEndpoint  string
	SheetsEndpoint string

	// UserInfoURL defaults to the OpenID Connect userinfo endpoint.
	UserInfoURL string

	// RateLimits overrides DefaultRateLimits per service.
	RateLimits map[ServiceType]RateLimitConfig

	// OAuthConfig returns the OAuth client used to refresh an expired access
	// token. A nil func or a nil result disables refresh.
	OAuthConfig func() *oauth2.Config

	Observer Observer
	Logger   *slog.Logger
}

// APIClient is the Google API client library: it loads the discovery
// documents, holds the access token and calls Drive, Sheets and userinfo.
type APIClient struct {
	cfg    APIClientConfig
	logger *slog.Logger

	limiters map[ServiceType]*RateLimiter

	mu          sync.RWMutex
	token       *oauth2.Token
	initialized bool
	discovered  map[string]string
}

// NewAPIClient creates an APIClient. No network calls are made.
func NewAPIClient(cfg APIClientConfig) *APIClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = DriveDiscoveryURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = UserInfoURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiters := make(map[ServiceType]*RateLimiter)
	for _, svc := range []ServiceType{ServiceDrive, ServiceSheets, ServiceUserInfo} {
		if rl, ok := cfg.RateLimits[svc]; ok {
			limiters[svc] = NewRateLimiterWithConfig(rl)
			continue
		}
		limiters[svc] = NewRateLimiter(svc)
	}

	return &APIClient{
		cfg:        cfg,
		logger:     logger,
		limiters:   limiters,
		discovered: make(map[string]string),
	}
}

// Available reports whether the Google API front end is reachable.
func (c *APIClient) Available(ctx context.Context) bool {
	return probe(ctx, c.cfg.HTTPClient, c.cfg.ProbeURL)
}

// Init loads the given discovery documents with apiKey. All documents are
// fetched concurrently; the first failure is returned.
func (c *APIClient) Init(ctx context.Context, apiKey string, docs []string) error {
	if apiKey == "" {
		return errors.New("API key is required")
	}

	var mu sync.Mutex
	loaded := make(map[string]string, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	for _, doc := range docs {
		g.Go(func() error {
			name, version, err := c.loadDiscovery(gctx, apiKey, doc)
			if err != nil {
				return err
			}
			mu.Lock()
			loaded[name] = version
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load discovery documents: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, version := range loaded {
		c.discovered[name] = version
	}
	c.initialized = true

	c.logger.Debug("google API client initialized", "apis", len(loaded))
	return nil
}

// Initialized reports whether Init has completed successfully.
func (c *APIClient) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Discovered returns the loaded APIs keyed by name with their versions.
func (c *APIClient) Discovered() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.discovered))
	for k, v := range c.discovered {
		out[k] = v
	}
	return out
}

type discoveryDoc struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (c *APIClient) loadDiscovery(ctx context.Context, apiKey, doc string) (string, string, error) {
	u, err := url.Parse(doc)
	if err != nil {
		return "", "", fmt.Errorf("invalid discovery URL %q: %w", doc, err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", "", err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", doc, err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return "", "", err
	}

	var d discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return "", "", fmt.Errorf("decode %s: %w", doc, err)
	}
	if d.Name == "" {
		return "", "", fmt.Errorf("%s is not a discovery document", doc)
	}
	return d.Name, d.Version, nil
}

// Token returns the held access token or nil.
func (c *APIClient) Token() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// HasToken reports whether a usable access token is held: one that has not
// expired, or that can be refreshed.
func (c *APIClient) HasToken() bool {
	tok := c.Token()
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	return tok.Valid() || tok.RefreshToken != ""
}

// SetToken stores tok and persists it when a token file is configured.
// A nil tok clears the held token.
func (c *APIClient) SetToken(tok *oauth2.Token) error {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()

	if c.cfg.TokenFile == "" {
		return nil
	}
	if tok == nil {
		return removeTokenFile(c.cfg.TokenFile)
	}
	return writeTokenFile(c.cfg.TokenFile, tok)
}

// LoadToken reads the persisted token, if any.
func (c *APIClient) LoadToken() error {
	if c.cfg.TokenFile == "" {
		return nil
	}
	tok, err := readTokenFile(c.cfg.TokenFile)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return nil
}

// UploadFile uploads content to Drive.
func (c *APIClient) UploadFile(ctx context.Context, name string, content io.Reader, opts *drive.UploadOptions) (*drive.FileInfo, error) {
	clientOpts, err := c.serviceOptions(ServiceDrive, c.cfg.DriveEndpoint)
	if err != nil {
		return nil, err
	}
	client, err := drive.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	return client.UploadFile(ctx, name, content, opts)
}

// ReadRange reads a range of cells from a spreadsheet.
func (c *APIClient) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	client, err := c.sheetsClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.ReadRange(ctx, spreadsheetID, rng)
}

// AppendRow appends one row after the table found at rng.
func (c *APIClient) AppendRow(ctx context.Context, spreadsheetID, rng string, row []any) error {
	client, err := c.sheetsClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.AppendRow(ctx, spreadsheetID, rng, row)
	return err
}

func (c *APIClient) sheetsClient(ctx context.Context) (*sheets.Client, error) {
	clientOpts, err := c.serviceOptions(ServiceSheets, c.cfg.SheetsEndpoint)
	if err != nil {
		return nil, err
	}
	return sheets.NewClient(ctx, clientOpts...)
}

// UserInfo fetches the signed-in user's OpenID Connect profile.
func (c *APIClient) UserInfo(ctx context.Context) (Profile, error) {
	client, err := c.authorizedClient(ServiceUserInfo)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return profile, nil
}

func (c *APIClient) serviceOptions(service ServiceType, endpoint string) ([]option.ClientOption, error) {
	client, err := c.authorizedClient(service)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts, nil
}

// authorizedClient returns an HTTP client that rate limits, observes and
// authorizes every request with the held token.
func (c *APIClient) authorizedClient(service ServiceType) (*http.Client, error) {
	if !c.HasToken() {
		return nil, ErrNoToken
	}

	base := c.cfg.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &http.Client{
		Timeout: c.cfg.HTTPClient.Timeout,
		Transport: &oauth2.Transport{
			Source: c.tokenSource(c.Token()),
			Base: &serviceTransport{
				base:     base,
				service:  service,
				limiter:  c.limiters[service],
				observer: c.cfg.Observer,
			},
		},
	}, nil
}

// tokenSource returns tok, refreshed through the OAuth client once it
// expires. Refreshed tokens are stored and persisted.
func (c *APIClient) tokenSource(tok *oauth2.Token) oauth2.TokenSource {
	var conf *oauth2.Config
	if c.cfg.OAuthConfig != nil {
		conf = c.cfg.OAuthConfig()
	}
	if conf == nil || tok.RefreshToken == "" {
		return oauth2.StaticTokenSource(tok)
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.cfg.HTTPClient)
	return &persistingTokenSource{
		client: c,
		src:    oauth2.ReuseTokenSource(tok, conf.TokenSource(ctx, tok)),
		last:   tok.AccessToken,
	}
}

// persistingTokenSource hands every newly issued token back to the client.
type persistingTokenSource struct {
	client *APIClient
	src    oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	refreshed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if refreshed {
		s.client.logger.Debug("refreshed google access token", "expiry", tok.Expiry)
		if err := s.client.SetToken(tok); err != nil {
			s.client.logger.Warn("failed to persist refreshed token", "error", err)
		}
	}
	return tok, nil
}

func probe(ctx context.Context, client *http.Client, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < http.StatusInternalServerError
}
