package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
	"github.com/teemow/memorylane/internal/instrumentation"
	"github.com/teemow/memorylane/internal/logging"
	"github.com/teemow/memorylane/internal/server"
	"github.com/teemow/memorylane/internal/settings"
	"github.com/teemow/memorylane/internal/tools/memory_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	Transport        string
	HTTPAddr         string
	PublicURL        string
	Yolo             bool
	DisableStreaming bool
	AllowedOrigins   []string
	Metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	var (
		opts           serveOptions
		allowedOrigins string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server and the journal HTTP API",
		Long: `Start the MCP server and the journal HTTP API.

The HTTP API always listens on --http-addr because it also serves the Google
OAuth callback. With --transport stdio the MCP protocol is spoken on
stdin/stdout; with --transport streamable-http it is mounted at /mcp.

Writing tools (memory_upload_image, memory_append) are only registered with
--yolo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.AllowedOrigins = parseCommaSeparatedList(allowedOrigins)
			loadMetricsEnvVars(cmd, &opts.Metrics)
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", ":8080", "HTTP server address for the API, the OAuth callback and streamable-http")
	cmd.Flags().StringVar(&opts.PublicURL, "public-url", "", "Public base URL of the HTTP server, used for the OAuth redirect (default: derived from --http-addr)")
	cmd.Flags().BoolVar(&opts.Yolo, "yolo", false, "Enable tools that write to Drive and the journal sheet")
	cmd.Flags().BoolVar(&opts.DisableStreaming, "disable-streaming", false, "Disable SSE streaming for streamable-http")
	cmd.Flags().StringVar(&allowedOrigins, "allowed-origins", "", "Comma-separated list of origins allowed to call the HTTP API (CORS)")
	cmd.Flags().BoolVar(&opts.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadMetricsEnvVars applies METRICS_* variables to flags that were not set
// explicitly.
func loadMetricsEnvVars(cmd *cobra.Command, cfg *MetricsConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			cfg.Enabled = v == "true"
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			cfg.Addr = addr
		}
	}
}

func runServe(opts serveOptions) error {
	if opts.Transport != "stdio" && opts.Transport != "streamable-http" {
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.Transport)
	}

	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := setupLogging(true)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	if opts.Metrics.Enabled && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.Metrics.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	path, st, err := loadSettings()
	if err != nil {
		return err
	}

	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = defaultPublicURL(opts.HTTPAddr)
	}

	sc, err := newServerContext(shutdownCtx, st, contextOptions{
		RedirectURL: strings.TrimSuffix(publicURL, "/") + google.CallbackPath,
		OpenBrowser: opts.Transport == "stdio",
		Provider:    provider,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer sc.Shutdown()

	sc.Start(func() {
		logger.Info("google libraries ready")
	})

	go func() {
		err := settings.Watch(shutdownCtx, path, func(s settings.Settings) {
			sc.UpdateConfig(s.Google.Merge(config.FromEnv()))
			if birthday, err := s.Child.BirthdayTime(); err == nil {
				sc.SetBirthday(birthday)
			}
		}, logger)
		if err != nil {
			logger.Warn("settings file is not watched", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("memorylane", version,
		mcpserver.WithToolCapabilities(true),
	)

	readOnly := !opts.Yolo
	if readOnly {
		logger.Info("starting in read-only mode (use --yolo to enable journal writes)")
	} else {
		logger.Info("starting with journal writes enabled (--yolo flag is set)")
	}
	if err := memory_tools.RegisterMemoryTools(mcpSrv, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register memory tools: %w", err)
	}

	routerOpts := server.RouterOptions{
		AllowedOrigins: opts.AllowedOrigins,
		OnConfigChange: func(cfg config.Config) error {
			// Reload so that a concurrent edit of the child profile survives.
			current, err := settings.Load(path)
			if err != nil {
				return err
			}
			current.Google = cfg
			return settings.Save(path, current)
		},
	}

	switch opts.Transport {
	case "stdio":
		return runStdioServer(shutdownCtx, mcpSrv, sc, opts.HTTPAddr, routerOpts, logger)
	default:
		streamOpts := []mcpserver.StreamableHTTPOption{
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithLogger(logging.NewPrintfAdapter(logger)),
		}
		if opts.DisableStreaming {
			streamOpts = append(streamOpts, mcpserver.WithDisableStreaming(true))
		}
		routerOpts.MCPHandler = mcpserver.NewStreamableHTTPServer(mcpSrv, streamOpts...)

		logger.Info("starting memorylane MCP server", "transport", opts.Transport, "addr", opts.HTTPAddr, "public_url", publicURL)
		return runHTTPServer(shutdownCtx, opts.HTTPAddr, server.NewRouter(sc, server.NewHealthChecker(sc), routerOpts), logger)
	}
}

// runStdioServer speaks MCP on stdin/stdout. The HTTP API runs alongside so
// that the OAuth callback can complete logins.
func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr string, routerOpts server.RouterOptions, logger *slog.Logger) error {
	httpCtx, stopHTTP := context.WithCancel(ctx)
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- runHTTPServer(httpCtx, addr, server.NewRouter(sc, server.NewHealthChecker(sc), routerOpts), logger)
	}()

	err := mcpserver.ServeStdio(mcpSrv, mcpserver.WithErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)))
	stopHTTP()
	if httpErr := <-httpDone; httpErr != nil {
		logger.Warn("HTTP server stopped with error", logging.Err(httpErr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// runHTTPServer serves handler on addr until ctx is done, then shuts down
// gracefully.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// defaultPublicURL derives a browser-reachable URL from a listen address.
func defaultPublicURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// parseCommaSeparatedList splits a comma-separated string into a slice of trimmed, non-empty strings.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
