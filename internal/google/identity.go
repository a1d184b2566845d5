package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// CallbackPath is the path the identity callback handler is mounted on.
const CallbackPath = "/oauth2/callback"

// pendingTTL bounds how long an authorization request waits for its callback.
const pendingTTL = 10 * time.Minute

// Prompt selects how an access token request interacts with the user.
type Prompt string

const (
	// PromptNone requests a token without forcing a consent screen.
	PromptNone Prompt = ""
	// PromptConsent forces the consent screen.
	PromptConsent Prompt = "consent"
)

// TokenResponse is delivered to a token client's callback once a request
// completes. Exactly one of Token or Error is set.
type TokenResponse struct {
	Token *oauth2.Token

	// Error is the error payload reported by the identity provider. It is
	// usually a string but may be a structured value.
	Error any

	ErrorDescription string
}

// TokenRequester issues access token requests whose results arrive
// asynchronously through the registered callback.
type TokenRequester interface {
	SetCallback(fn func(TokenResponse))
	RequestAccessToken(ctx context.Context, prompt Prompt) error
}

// TokenClientConfig configures a token client.
type TokenClientConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURL  string

	// CurrentToken returns the token already held, if any. A held refresh
	// token lets silent requests complete without user interaction.
	CurrentToken func() *oauth2.Token

	Callback func(TokenResponse)
}

// IdentityConfig configures an IdentityClient.
type IdentityConfig struct {
	// HTTPClient is used for the discovery probe and token exchange.
	HTTPClient *http.Client

	// Endpoint defaults to Google's OAuth 2.0 endpoint.
	Endpoint oauth2.Endpoint

	// WellKnownURL is probed to decide whether the identity service is
	// reachable. Defaults to OpenIDConfigurationURL.
	WellKnownURL string

	// OpenURL presents an authorization URL to the user. Defaults to
	// opening the system browser.
	OpenURL func(url string) error

	Logger *slog.Logger
}

// IdentityClient runs the OAuth 2.0 authorization code flow with PKCE
// against Google and hands tokens to token clients.
type IdentityClient struct {
	cfg    IdentityConfig
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingAuth
}

type pendingAuth struct {
	client   *tokenClient
	verifier string
	created  time.Time
}

// NewIdentityClient creates an IdentityClient.
func NewIdentityClient(cfg IdentityConfig) *IdentityClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = googleoauth.Endpoint
	}
	if cfg.WellKnownURL == "" {
		cfg.WellKnownURL = OpenIDConfigurationURL
	}
	if cfg.OpenURL == nil {
		cfg.OpenURL = browser.OpenURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityClient{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]*pendingAuth),
	}
}

// Available reports whether the identity service answers its discovery
// document.
func (c *IdentityClient) Available(ctx context.Context) bool {
	return probe(ctx, c.cfg.HTTPClient, c.cfg.WellKnownURL)
}

// InitTokenClient creates a token client for the given OAuth client.
func (c *IdentityClient) InitTokenClient(cfg TokenClientConfig) (TokenRequester, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	return &tokenClient{
		identity: c,
		oauth:    c.OAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL, cfg.Scopes),
		current:  cfg.CurrentToken,
		callback: cfg.Callback,
	}, nil
}

// OAuthConfig returns the OAuth client configuration for clientID against
// this client's endpoint.
func (c *IdentityClient) OAuthConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     c.cfg.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
}

// CallbackHandler completes authorization requests started by token clients
// of this IdentityClient.
func (c *IdentityClient) CallbackHandler() http.Handler {
	return http.HandlerFunc(c.handleCallback)
}

func (c *IdentityClient) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	p := c.take(query.Get("state"))
	if p == nil {
		c.logger.Warn("oauth callback with unknown state")
		writeCallbackPage(w, http.StatusBadRequest, "Authorization failed", "This sign-in request is unknown or has expired.")
		return
	}

	if errParam := query.Get("error"); errParam != "" {
		desc := query.Get("error_description")
		p.client.deliver(TokenResponse{Error: errParam, ErrorDescription: desc})
		writeCallbackPage(w, http.StatusOK, "Authorization failed", desc)
		return
	}

	code := query.Get("code")
	if code == "" {
		p.client.deliver(TokenResponse{Error: "invalid_request", ErrorDescription: "no authorization code received"})
		writeCallbackPage(w, http.StatusBadRequest, "Authorization failed", "No authorization code received.")
		return
	}

	tok, err := p.client.oauth.Exchange(c.oauthContext(r.Context()), code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		c.logger.Warn("failed to exchange authorization code", "error", err)
		p.client.deliver(TokenResponse{Error: errorPayload(err)})
		writeCallbackPage(w, http.StatusBadGateway, "Authorization failed", "The authorization code could not be exchanged.")
		return
	}

	p.client.deliver(TokenResponse{Token: tok})
	writeCallbackPage(w, http.StatusOK, "Authorization successful", "You can close this window and return to the application.")
}

func (c *IdentityClient) register(state string, p *pendingAuth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s, old := range c.pending {
		if time.Since(old.created) > pendingTTL {
			delete(c.pending, s)
		}
	}
	c.pending[state] = p
}

func (c *IdentityClient) take(state string) *pendingAuth {
	if state == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[state]
	if !ok {
		return nil
	}
	delete(c.pending, state)
	if time.Since(p.created) > pendingTTL {
		return nil
	}
	return p
}

func (c *IdentityClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

type tokenClient struct {
	identity *IdentityClient
	oauth    *oauth2.Config
	current  func() *oauth2.Token

	mu       sync.Mutex
	callback func(TokenResponse)
}

func (t *tokenClient) SetCallback(fn func(TokenResponse)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback = fn
}

// RequestAccessToken starts a token request. The result is delivered to the
// callback; the returned error only reports failure to start the request.
func (t *tokenClient) RequestAccessToken(ctx context.Context, prompt Prompt) error {
	if prompt == PromptNone && t.current != nil {
		if tok := t.current(); tok != nil && tok.RefreshToken != "" {
			go t.refresh(ctx, tok.RefreshToken)
			return nil
		}
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)}
	if prompt != PromptNone {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", string(prompt)))
	}
	authURL := t.oauth.AuthCodeURL(state, opts...)

	t.identity.register(state, &pendingAuth{client: t, verifier: verifier, created: time.Now()})
	t.identity.logger.Info("authorization required, complete sign-in in the browser", "url", authURL)

	if err := t.identity.cfg.OpenURL(authURL); err != nil {
		t.identity.take(state)
		return fmt.Errorf("failed to open authorization URL: %w", err)
	}
	return nil
}

func (t *tokenClient) refresh(ctx context.Context, refreshToken string) {
	src := t.oauth.TokenSource(t.identity.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		t.deliver(TokenResponse{Error: errorPayload(err)})
		return
	}
	t.deliver(TokenResponse{Token: tok})
}

func (t *tokenClient) deliver(resp TokenResponse) {
	t.mu.Lock()
	cb := t.callback
	t.mu.Unlock()
	if cb != nil {
		cb(resp)
	}
}

// errorPayload turns a token endpoint error into the provider's error
// object when one is available.
func errorPayload(err error) any {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode != "" {
		payload := map[string]any{"error": re.ErrorCode}
		if re.ErrorDescription != "" {
			payload["error_description"] = re.ErrorDescription
		}
		return payload
	}
	return err.Error()
}

func writeCallbackPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%[1]s</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 15vh;">
<h1>%[1]s</h1>
<p>%[2]s</p>
</body>
</html>
`, html.EscapeString(title), html.EscapeString(message))
}
