package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/memorylane/internal/logging"
)

// rootCmd represents the base command for the memorylane application
var rootCmd = &cobra.Command{
	Use:   "memorylane",
	Short: "Journal a child's memories into Google Sheets and Drive",
	Long: `memorylane records dated memories of a child (mood, note, photos) into a
Google Sheet, with photos stored in Google Drive. Only users listed on the
sheet's Login tab may write.

It can run as:
  - A command line tool (login, status, upload, append, ...)
  - A server for the browser UI and for AI assistants over MCP (serve)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		setupLogging(false)
	},
}

var (
	// version will be set by main
	version = "dev"

	debugMode    bool
	settingsPath string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "memorylane version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the default slog logger on stderr. Servers log JSON,
// commands log text.
func setupLogging(json bool) *slog.Logger {
	level := slog.LevelWarn
	if debugMode {
		level = slog.LevelDebug
	} else if json {
		level = slog.LevelInfo
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" && !debugMode {
		level = logging.ParseLevel(env)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if json {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default: $XDG_CONFIG_HOME/memorylane/settings.toml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCheckAccessCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newAppendCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
