package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/server"
)

func newLoginCmd() *cobra.Command {
	var (
		callbackAddr string
		noBrowser    bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google",
		Long: `Sign in with Google and store the access token for later commands.

A loopback server receives the OAuth redirect. The OAuth client must allow
http://127.0.0.1 redirect URIs (a "Desktop app" client does).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runLogin(ctx, callbackAddr, !noBrowser)
		},
	}

	cmd.Flags().StringVar(&callbackAddr, "callback-addr", "127.0.0.1:0", "Address of the loopback server receiving the OAuth redirect")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the sign-in to complete")

	return cmd
}

func runLogin(ctx context.Context, callbackAddr string, openBrowser bool) error {
	_, st, err := loadSettings()
	if err != nil {
		return err
	}

	cb := google.NewCallbackServer(callbackAddr)
	if err := cb.Listen(); err != nil {
		return err
	}

	sc, err := newServerContext(ctx, st, contextOptions{
		RedirectURL: cb.RedirectURL(),
		OpenBrowser: openBrowser,
		OnAuthURL: func(url string) {
			fmt.Fprintf(os.Stderr, "\nTo sign in, visit:\n\n  %s\n\n", url)
		},
	})
	if err != nil {
		return err
	}
	defer sc.Shutdown()

	if err := cb.Serve(sc.CallbackHandler()); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		_ = cb.Stop(stopCtx)
	}()

	if err := sc.APIClient().LoadToken(); err != nil {
		return fmt.Errorf("failed to load stored token: %w", err)
	}

	state := sc.Loader().LoadAndWait(ctx)
	if !state.IdentityLibraryInitialized {
		if !sc.Store().IsConfigured() {
			return fmt.Errorf("google integration is not configured, run 'memorylane config set' first")
		}
		return fmt.Errorf("google identity client could not be loaded (%s)", state.Reason)
	}

	loginErr := make(chan error, 1)
	go func() { loginErr <- sc.Auth().Login(ctx) }()

	select {
	case err := <-loginErr:
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("timed out waiting for sign-in")
			}
			return err
		}
	case err := <-cb.Err():
		return fmt.Errorf("callback server failed: %w", err)
	}

	profile, err := sc.Access().GetUserProfile(ctx)
	if err != nil || profile.Email() == "" {
		fmt.Println("Signed in.")
		return nil
	}
	fmt.Printf("Signed in as %s.\n", profile.Email())
	return nil
}
