package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/instrumentation"
	"github.com/teemow/memorylane/internal/logging"
	"github.com/teemow/memorylane/internal/server"
	"github.com/teemow/memorylane/internal/settings"
)

// EnvTokenFile overrides the location of the persisted Google token.
const EnvTokenFile = "MEMORYLANE_TOKEN_FILE"

// resolveSettingsPath returns --settings or the default location.
func resolveSettingsPath() (string, error) {
	if settingsPath != "" {
		return settingsPath, nil
	}
	return settings.DefaultPath()
}

// loadSettings reads the settings file and applies GOOGLE_* environment
// variables on top.
func loadSettings() (string, settings.Settings, error) {
	path, err := resolveSettingsPath()
	if err != nil {
		return "", settings.Settings{}, err
	}
	st, err := settings.Load(path)
	if err != nil {
		return path, st, err
	}
	st.Google = st.Google.Merge(config.FromEnv())
	return path, st, nil
}

func tokenFile() (string, error) {
	if path := os.Getenv(EnvTokenFile); path != "" {
		return path, nil
	}
	return google.DefaultTokenFile()
}

type contextOptions struct {
	RedirectURL string
	OpenBrowser bool
	OnAuthURL   func(string)
	Provider    *instrumentation.Provider
	Logger      *slog.Logger
}

// newServerContext builds a ServerContext from the settings. The stored
// token is not loaded; call Start or loadToken.
func newServerContext(ctx context.Context, st settings.Settings, opts contextOptions) (*server.ServerContext, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := tokenFile()
	if err != nil {
		return nil, err
	}

	birthday, err := st.Child.BirthdayTime()
	if err != nil {
		logger.Warn("ignoring child birthday", logging.Err(err))
	}

	return server.NewServerContext(ctx, server.Options{
		Config:      st.Google,
		TokenFile:   tokens,
		RedirectURL: opts.RedirectURL,
		Birthday:    birthday,
		OpenBrowser: opts.OpenBrowser,
		OnAuthURL:   opts.OnAuthURL,
		Provider:    opts.Provider,
		Logger:      logger,
	}), nil
}

// cliContext builds a ServerContext for a one-shot command and restores the
// stored token.
func cliContext(ctx context.Context) (*server.ServerContext, settings.Settings, error) {
	_, st, err := loadSettings()
	if err != nil {
		return nil, st, err
	}
	sc, err := newServerContext(ctx, st, contextOptions{})
	if err != nil {
		return nil, st, err
	}
	if err := sc.APIClient().LoadToken(); err != nil {
		sc.Shutdown()
		return nil, st, fmt.Errorf("failed to load stored token: %w", err)
	}
	if !sc.APIClient().HasToken() {
		sc.Shutdown()
		return nil, st, fmt.Errorf("not signed in, run 'memorylane login' first")
	}
	return sc, st, nil
}
