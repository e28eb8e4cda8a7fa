package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/gmailnotifier/internal/config"
	"github.com/teemow/gmailnotifier/internal/gmail"
	"github.com/teemow/gmailnotifier/internal/google"
	"github.com/teemow/gmailnotifier/internal/instrumentation"
	"github.com/teemow/gmailnotifier/internal/scheduler"
	"github.com/teemow/gmailnotifier/internal/server"
	"github.com/teemow/gmailnotifier/internal/store"
	"github.com/teemow/gmailnotifier/internal/store/memory"
	"github.com/teemow/gmailnotifier/internal/store/sqlite"
)

// serveOptions collects the serve command's flag values. Settings resolve as
// explicit flags first, then environment variables, then the config file.
type serveOptions struct {
	configPath     string
	listenAddr     string
	metricsAddr    string
	metricsEnabled bool
	baseURL        string
	clientID       string
	clientSecret   string
	redirectURL    string
	project        string
	region         string
	schedule       string
	storeBackend   string
	storePath      string
	debugMode      bool
	logFormat      string
	trustProxy     bool
	rateLimit      float64
	rateBurst      int
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notification web service",
		Long: `Start the HTTP service that handles the OAuth flow, cron registration,
query editing and Pub/Sub push notifications.

Configuration is read from a TOML file (default ~/.gmailnotifier/config.toml)
and can be overridden per setting: an explicitly set flag wins, then the
matching environment variable, then the config file.

Required settings:
  OAuth client:  --google-client-id / --google-client-secret
                 (or GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET)
  Deployment:    --google-project / --google-region
                 (or GOOGLE_PROJECT / GOOGLE_REGION)
  Callback URL:  --base-url (or BASE_URL); the OAuth redirect URL defaults
                 to <base-url>/oauth2callback

The base URL must be HTTPS except for localhost development.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveServeConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runServe(cfg, *opts)
		},
	}

	registerServeFlags(cmd, opts)

	return cmd
}

func registerServeFlags(cmd *cobra.Command, opts *serveOptions) {
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file path (default: ~/.gmailnotifier/config.toml)")
	cmd.Flags().StringVar(&opts.listenAddr, "listen-addr", "", "HTTP server address (default: \":8080\"). Can also use LISTEN_ADDR env var.")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Externally visible base URL, e.g. https://notifier.example.com. Can also use BASE_URL env var.")
	cmd.Flags().StringVar(&opts.clientID, "google-client-id", "", "Google OAuth client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&opts.clientSecret, "google-client-secret", "", "Google OAuth client secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&opts.redirectURL, "redirect-url", "", "OAuth redirect URL (default: <base-url>/oauth2callback). Can also use REDIRECT_URL env var.")
	cmd.Flags().StringVar(&opts.project, "google-project", "", "Google Cloud project owning the scheduler jobs and topics. Can also use GOOGLE_PROJECT env var.")
	cmd.Flags().StringVar(&opts.region, "google-region", "", "Cloud Scheduler location, e.g. us-central1. Can also use GOOGLE_REGION env var.")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "Cron expression for registered jobs (default: \"*/10 * * * *\"). Can also use SCHEDULE env var.")
	cmd.Flags().StringVar(&opts.storeBackend, "store-backend", "", "Store backend: sqlite or memory (default: sqlite). Can also use STORE_BACKEND env var.")
	cmd.Flags().StringVar(&opts.storePath, "store-path", "", "SQLite database path (default: ~/.gmailnotifier/gmailnotifier.db). Can also use STORE_PATH env var.")
	cmd.Flags().BoolVar(&opts.debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "Log output format: text or json")
	cmd.Flags().BoolVar(&opts.trustProxy, "trust-proxy", false, "Trust X-Forwarded-For / X-Real-IP headers for rate limiting (only behind a trusted reverse proxy)")
	cmd.Flags().Float64Var(&opts.rateLimit, "rate-limit", 1, "Requests per second allowed per client IP on the OAuth endpoints (0 disables limiting)")
	cmd.Flags().IntVar(&opts.rateBurst, "rate-burst", 10, "Burst size per client IP on the OAuth endpoints")

	// Metrics server flags
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Metrics server address (default: \":9090\"). Can also use METRICS_ADDR env var.")
}

// resolveServeConfig loads the config file and layers environment variables
// and explicitly set flags on top of it.
func resolveServeConfig(cmd *cobra.Command, opts *serveOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}

	applyEnvOverrides(cmd, &cfg, opts)
	applyFlagOverrides(cmd, &cfg, opts)

	// Re-derive the redirect URL in case the base URL arrived via flag or
	// environment rather than the config file.
	if cfg.Google.RedirectURL == "" && cfg.Server.BaseURL != "" {
		cfg.Google.RedirectURL = cfg.Server.BaseURL + "/oauth2callback"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides loads settings from environment variables.
// Environment variables only apply when the matching flag was not
// explicitly set, so flags keep the highest precedence.
func applyEnvOverrides(cmd *cobra.Command, cfg *config.Config, opts *serveOptions) {
	stringVars := []struct {
		flag   string
		envVar string
		target *string
	}{
		{"listen-addr", "LISTEN_ADDR", &cfg.Server.ListenAddr},
		{"metrics-addr", "METRICS_ADDR", &cfg.Server.MetricsAddr},
		{"base-url", "BASE_URL", &cfg.Server.BaseURL},
		{"google-client-id", "GOOGLE_CLIENT_ID", &cfg.Google.ClientID},
		{"google-client-secret", "GOOGLE_CLIENT_SECRET", &cfg.Google.ClientSecret},
		{"redirect-url", "REDIRECT_URL", &cfg.Google.RedirectURL},
		{"google-project", "GOOGLE_PROJECT", &cfg.Google.Project},
		{"google-region", "GOOGLE_REGION", &cfg.Google.Region},
		{"schedule", "SCHEDULE", &cfg.Scheduler.Schedule},
		{"store-backend", "STORE_BACKEND", &cfg.Store.Backend},
		{"store-path", "STORE_PATH", &cfg.Store.Path},
	}

	for _, v := range stringVars {
		if cmd.Flags().Changed(v.flag) {
			continue
		}
		if value := os.Getenv(v.envVar); value != "" {
			*v.target = value
		}
	}

	if !cmd.Flags().Changed("metrics-enabled") {
		if value := os.Getenv("METRICS_ENABLED"); value != "" {
			if parsed, err := strconv.ParseBool(value); err == nil {
				opts.metricsEnabled = parsed
			} else {
				log.Printf("Warning: invalid METRICS_ENABLED value %q (expected true/false), using default", value)
			}
		}
	}
}

// applyFlagOverrides copies explicitly set flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, opts *serveOptions) {
	overrides := []struct {
		flag   string
		value  string
		target *string
	}{
		{"listen-addr", opts.listenAddr, &cfg.Server.ListenAddr},
		{"metrics-addr", opts.metricsAddr, &cfg.Server.MetricsAddr},
		{"base-url", opts.baseURL, &cfg.Server.BaseURL},
		{"google-client-id", opts.clientID, &cfg.Google.ClientID},
		{"google-client-secret", opts.clientSecret, &cfg.Google.ClientSecret},
		{"redirect-url", opts.redirectURL, &cfg.Google.RedirectURL},
		{"google-project", opts.project, &cfg.Google.Project},
		{"google-region", opts.region, &cfg.Google.Region},
		{"schedule", opts.schedule, &cfg.Scheduler.Schedule},
		{"store-backend", opts.storeBackend, &cfg.Store.Backend},
		{"store-path", opts.storePath, &cfg.Store.Path},
	}

	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.target = o.value
		}
	}
}

func runServe(cfg config.Config, opts serveOptions) error {
	logger := setupLogger(opts.debugMode, opts.logFormat)
	slog.SetDefault(logger)

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if instrConfig.CloudProject == "" {
		instrConfig.CloudProject = cfg.Google.Project
	}
	if instrConfig.CloudRegion == "" {
		instrConfig.CloudRegion = cfg.Google.Region
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.Printf("Error during instrumentation shutdown: %v", err)
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if opts.metricsEnabled && cfg.Server.MetricsAddr != "" && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Server.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		// Wait for metrics server to be ready or fail
		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}
	defer func() {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
	}()

	// Open the credential/query store
	st, err := buildStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	// OAuth client for the authorization flow and token refresh
	oauthClient, err := google.NewClient(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	if err != nil {
		return fmt.Errorf("failed to create OAuth client: %w", err)
	}

	// Registrar for the Pub/Sub topic and the recurring scheduler job
	registrar, err := scheduler.NewRegistrar(shutdownCtx, scheduler.Config{
		Project:  cfg.Google.Project,
		Region:   cfg.Google.Region,
		Schedule: cfg.Scheduler.Schedule,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler registrar: %w", err)
	}

	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)

	handlers, err := server.NewHandlers(server.HandlersConfig{
		OAuth:     oauthClient,
		Store:     st,
		Registrar: registrar,
		MailClient: func(ctx context.Context, ts oauth2.TokenSource) (server.MailClient, error) {
			return gmail.NewClient(ctx, ts)
		},
		Metrics: metrics,
		Audit:   audit,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create handlers: %w", err)
	}

	var limiter *server.RateLimiter
	if opts.rateLimit > 0 {
		limiter = server.NewRateLimiter(opts.rateLimit, opts.rateBurst, opts.trustProxy)
	}

	httpSrv, err := server.NewHTTPServer(server.HTTPServerConfig{
		Addr:        cfg.Server.ListenAddr,
		BaseURL:     cfg.Server.BaseURL,
		Handlers:    handlers,
		RateLimiter: limiter,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	fmt.Printf("gmailnotifier %s listening on %s\n", version, cfg.Server.ListenAddr)
	fmt.Printf("  OAuth endpoints: /oauth2init, /oauth2callback\n")
	fmt.Printf("  Cron registration: /setCron?emailAddress=<addr>\n")
	fmt.Printf("  Query editor: /setEditQuery?emailAddress=<addr>\n")
	fmt.Printf("  Push endpoint: /notify\n")
	fmt.Printf("  Health endpoints: /healthz, /readyz\n")
	if metricsServer != nil {
		fmt.Printf("  Metrics endpoint: %s/metrics\n", metricsServer.Addr())
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpSrv.Start(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		fmt.Println("Shutdown signal received, stopping HTTP server...")
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		fmt.Println("HTTP server stopped normally")
	}

	fmt.Println("HTTP server gracefully stopped")
	return nil
}

// buildStore opens the configured persistence backend.
func buildStore(cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Warn("using in-memory store; credentials and queries are lost on restart")
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.NewStore(cfg.Store.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// setupLogger builds the process logger. The metrics and server packages log
// through slog.Default, so serve installs this logger globally.
func setupLogger(debug bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	return slog.New(handler)
}
