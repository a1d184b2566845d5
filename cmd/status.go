package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/memorylane/internal/access"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, library and sign-in status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, st, err := loadSettings()
			if err != nil {
				return err
			}
			sc, err := newServerContext(cmd.Context(), st, contextOptions{})
			if err != nil {
				return err
			}
			defer sc.Shutdown()

			if err := sc.APIClient().LoadToken(); err != nil {
				return fmt.Errorf("failed to load stored token: %w", err)
			}
			if probe {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				sc.Loader().LoadAndWait(ctx)
			}
			return printJSON(cmd.OutOrStdout(), sc.Status())
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", true, "Load the Google libraries to report their readiness")
	return cmd
}

func newCheckAccessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-access [email]",
		Short: "Check an email, or the signed-in user, against the allow-list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, _, err := cliContext(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Shutdown()

			if len(args) == 1 {
				allowed, err := sc.Access().ValidateUserAccess(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printAccess(cmd.OutOrStdout(), args[0], allowed)
			}

			profile, err := sc.Authorize(cmd.Context())
			switch {
			case err == nil:
				return printAccess(cmd.OutOrStdout(), profile.Email(), true)
			case errors.Is(err, access.ErrAccessDenied):
				return printAccess(cmd.OutOrStdout(), profile.Email(), false)
			default:
				return err
			}
		},
	}
}

func printAccess(w io.Writer, email string, allowed bool) error {
	if allowed {
		_, err := fmt.Fprintf(w, "%s is allowed\n", email)
		return err
	}
	_, err := fmt.Fprintf(w, "%s is NOT on the allow-list\n", email)
	return err
}

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the Google profile of the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, _, err := cliContext(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Shutdown()

			profile, err := sc.Access().GetUserProfile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
}
