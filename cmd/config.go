package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/settings"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the Google credentials and child profile",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, st, err := loadSettings()
			if err != nil {
				return err
			}
			st.Google = st.Google.Redacted()

			fmt.Fprintf(cmd.ErrOrStderr(), "# %s\n", path)
			return printJSON(cmd.OutOrStdout(), struct {
				settings.Settings
				Configured bool `json:"configured"`
			}{st, st.Google.Valid()})
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var (
		update    config.Config
		childName string
		birthday  string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the settings file",
		Example: `  memorylane config set --client-id 123.apps.googleusercontent.com --api-key AIza... \
    --spreadsheet https://docs.google.com/spreadsheets/d/abc123/edit --birthday 2023-01-15`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveSettingsPath()
			if err != nil {
				return err
			}
			// Environment overrides are not persisted.
			st, err := settings.Load(path)
			if err != nil {
				return err
			}

			st.Google = st.Google.Merge(update.Normalize())
			if cmd.Flags().Changed("child-name") {
				st.Child.Name = childName
			}
			if cmd.Flags().Changed("birthday") {
				st.Child.Birthday = birthday
				if _, err := st.Child.BirthdayTime(); err != nil {
					return err
				}
			}

			if err := settings.Save(path, st); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", path)
			if !st.Google.Valid() {
				fmt.Fprintln(cmd.OutOrStdout(), "Client ID, API key and spreadsheet are still required before signing in.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&update.ClientID, "client-id", "", "Google OAuth client ID")
	cmd.Flags().StringVar(&update.ClientSecret, "client-secret", "", "Google OAuth client secret (desktop clients)")
	cmd.Flags().StringVar(&update.APIKey, "api-key", "", "Google API key")
	cmd.Flags().StringVar(&update.SpreadsheetID, "spreadsheet", "", "Spreadsheet ID or URL")
	cmd.Flags().StringVar(&update.DriveFolderID, "drive-folder", "", "Drive folder ID for uploaded images")
	cmd.Flags().StringVar(&childName, "child-name", "", "Name of the child")
	cmd.Flags().StringVar(&birthday, "birthday", "", "Birthday of the child (YYYY-MM-DD)")
	return cmd
}
