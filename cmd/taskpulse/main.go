package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/redis/go-redis/v9"

	"github.com/btouchard/taskpulse/internal/api"
	"github.com/btouchard/taskpulse/internal/api/middleware"
	"github.com/btouchard/taskpulse/internal/auth"
	"github.com/btouchard/taskpulse/internal/config"
	taskmcp "github.com/btouchard/taskpulse/internal/mcp"
	"github.com/btouchard/taskpulse/internal/notify"
	"github.com/btouchard/taskpulse/internal/realtime"
	"github.com/btouchard/taskpulse/internal/store"
	"github.com/btouchard/taskpulse/internal/task"
	"github.com/btouchard/taskpulse/internal/tunnel"
	"github.com/btouchard/taskpulse/internal/user"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "version":
		fmt.Printf("taskpulse %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "rotate-secret":
		cmdRotateSecret(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: taskpulse <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve          Start the TaskPulse server\n")
	fmt.Fprintf(os.Stderr, "  check          Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  token          Mint a development bearer token\n")
	fmt.Fprintf(os.Stderr, "  rotate-secret  Replace the stored signing secret\n")
	fmt.Fprintf(os.Stderr, "  version        Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting taskpulse",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	userID := fs.Int64("user", 0, "user id to issue the token for (required)")
	username := fs.String("username", "", "optional username claim")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *ttl == 0 {
		*ttl = cfg.Auth.TokenTTL
	}

	secret, err := auth.SigningSecret(cfg.Auth.JWTSecret, cfg.Auth.SecretDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing secret: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.IssueToken(secret, auth.TokenRequest{
		UserID:   *userID,
		Username: *username,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      *ttl,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "issuing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func cmdRotateSecret(args []string) {
	fs := flag.NewFlagSet("rotate-secret", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret != "" {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret is set and takes precedence over the stored secret; rotate it in the configuration instead")
		os.Exit(1)
	}

	if _, err := auth.RotateSecret(cfg.Auth.SecretDir); err != nil {
		fmt.Fprintf(os.Stderr, "rotating secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("signing secret rotated; previously issued tokens are no longer valid")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", cfg.Database.Path)

	// --- Redis (optional) ---
	rc, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer func() { _ = rc.Close() }()
	}

	var tasks task.Store = db
	if rc != nil && cfg.Redis.CacheTTL > 0 {
		tasks = store.NewCache(db, rc, cfg.Redis.CacheTTL)
		slog.Info("task cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	// --- Realtime ---
	hub := realtime.NewHub(realtime.NewRegistry())

	var live task.Broadcaster = hub
	if rc != nil && cfg.Redis.RelayChannel != "" {
		relay := realtime.NewRelay(rc, cfg.Redis.RelayChannel, hub)
		go relay.Run(ctx)
		live = relay
		slog.Info("cross-instance relay enabled", "channel", cfg.Redis.RelayChannel)
	}

	events := notify.NewFanout(live)

	// --- Services ---
	taskSvc := task.NewService(tasks, events)
	userSvc := user.NewService(db)

	// --- Auth ---
	verifier, closeKeys, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	defer closeKeys()

	// --- MCP Server ---
	var mcpHTTP http.Handler
	if cfg.MCP.Enabled {
		sessions := realtime.NewRegistry()
		mcpServer := taskmcp.NewServer(&taskmcp.Deps{
			Tasks:    taskSvc,
			Sessions: sessions,
			Version:  version,
		})
		events.Add(notify.NewMCPNotifier(mcpServer, sessions, 0))
		mcpHTTP = taskmcp.NewHTTPHandler(mcpServer)
	}

	// --- HTTP Router ---
	router := api.NewRouter(api.Deps{
		Tasks:    taskSvc,
		Users:    userSvc,
		Verifier: verifier,
		Realtime: realtime.NewHandler(hub, verifier, realtime.Options{
			SendBuffer:     cfg.Realtime.SendBuffer,
			WriteTimeout:   cfg.Realtime.WriteTimeout,
			PingInterval:   cfg.Realtime.PingInterval,
			MaxMessageSize: cfg.Realtime.MaxMessageSize,
			AllowedOrigins: cfg.Server.CORSOrigins,
		}),
		MCP:     mcpHTTP,
		Limiter: middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		Origins: cfg.Server.CORSOrigins,
		Logger:  slog.Default(),
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := newHTTPServer(addr, router)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("taskpulse is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// --- Tunnel (optional) ---
	if cfg.Tunnel.Enabled {
		tun := tunnel.NewNgrok(cfg.Tunnel.AuthToken, cfg.Tunnel.Domain)
		tunnelSrv := newHTTPServer(addr, router)
		publicURL, err := tunnel.Serve(ctx, tun, tunnelSrv)
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("starting tunnel: %w", err)
		}
		slog.Info("tunnel is ready", "public_url", publicURL)
		defer func() {
			_ = tunnelSrv.Close()
			_ = tun.Close()
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	// Lets per-call deadlines (relay publishes) bound socket I/O.
	opts.ContextTimeoutEnabled = true
	rc := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		// The cache falls back to SQLite and the relay keeps resubscribing,
		// so a cold Redis is not fatal.
		slog.Warn("redis unreachable at startup", "addr", opts.Addr, "error", err)
	} else {
		slog.Info("redis connected", "addr", opts.Addr)
	}
	return rc, nil
}

// newVerifier builds the bearer token verifier. The returned func releases
// the JWKS refresher, if one was started.
func newVerifier(ctx context.Context, cfg config.AuthConfig) (*auth.Verifier, func(), error) {
	vc := auth.VerifierConfig{Issuer: cfg.Issuer, Audience: cfg.Audience}
	release := func() {}

	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				slog.Warn("jwks refresh failed", "url", cfg.JWKSURL, "error", err)
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("loading jwks: %w", err)
		}
		vc.JWKS = jwks
		release = jwks.EndBackground
		slog.Info("jwks loaded", "url", cfg.JWKSURL)
	}

	if cfg.JWTSecret != "" || cfg.SecretDir != "" {
		secret, err := auth.SigningSecret(cfg.JWTSecret, cfg.SecretDir)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("loading signing secret: %w", err)
		}
		vc.Secret = secret
	}

	v, err := auth.NewVerifier(vc)
	if err != nil {
		release()
		return nil, nil, err
	}
	return v, release, nil
}
