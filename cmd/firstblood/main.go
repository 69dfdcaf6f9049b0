package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/firstblood/internal/auth"
	"github.com/btouchard/firstblood/internal/config"
	"github.com/btouchard/firstblood/internal/firstblood"
	fbmcp "github.com/btouchard/firstblood/internal/mcp"
	"github.com/btouchard/firstblood/internal/notify"
	"github.com/btouchard/firstblood/internal/store"
	"github.com/btouchard/firstblood/internal/tunnel"
	"github.com/btouchard/firstblood/internal/web"
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
		fmt.Printf("firstblood %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	case "hash-password":
		cmdHashPassword(os.Args[2:])
	case "gen-token":
		cmdGenToken()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: firstblood <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve           Start the firstblood server\n")
	fmt.Fprintf(os.Stderr, "  check           Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  hash-password   Print a bcrypt hash for admin.password_hash\n")
	fmt.Fprintf(os.Stderr, "  gen-token       Generate an API token and its hash for api_tokens\n")
	fmt.Fprintf(os.Stderr, "  version         Print version\n")
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

	slog.Info("starting firstblood",
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

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Admin.PasswordHash == "" {
		fmt.Fprintln(os.Stderr, "warning: admin.password_hash is empty, the admin page cannot be used")
	}
	if len(cfg.APITokens) == 0 {
		fmt.Fprintln(os.Stderr, "warning: no api_tokens configured, the platform API rejects every request")
	}

	fmt.Println("configuration is valid")
}

func cmdHashPassword(args []string) {
	password := ""
	if len(args) > 0 {
		password = args[0]
	} else {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "reading password: %v\n", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "password must not be empty")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func cmdGenToken() {
	token, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("token:      %s\n", token)
	fmt.Printf("token_hash: %s\n", auth.HashToken(token))
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

// seedWebhook stores the configured webhook unless one was already set from the admin page.
func seedWebhook(ctx context.Context, s store.Store, webhook string) error {
	webhook = strings.TrimSpace(webhook)
	if webhook == "" {
		return nil
	}
	current, err := s.GetConfig(ctx, notify.WebhookKey)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	slog.Info("seeding first blood webhook from configuration")
	return s.SetConfig(ctx, notify.WebhookKey, webhook)
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", cfg.Database.Path)

	if err := seedWebhook(ctx, db, cfg.Notifier.Webhook); err != nil {
		return fmt.Errorf("seeding webhook: %w", err)
	}

	// --- Notifier + First Blood detection ---
	notifier := notify.NewWebhookNotifier(db, notify.WebhookOptions{
		Timeout:       cfg.Notifier.Timeout,
		RatePerMinute: cfg.Notifier.RatePerMinute,
		Burst:         cfg.Notifier.Burst,
		Username:      cfg.Notifier.Username,
	})
	db.OnSolveCreated(firstblood.NewDetector(notifier))

	// --- Auth ---
	if cfg.Admin.PasswordHash == "" {
		slog.Warn("admin.password_hash is empty, admin login is disabled")
	}
	sessions := auth.NewSessionStore(cfg.Admin.SessionTTL, ctx.Done())
	tokens := auth.NewTokenSet(cfg.APITokens)

	// --- MCP Server ---
	var mcpHandler http.Handler
	if cfg.MCP.Enabled {
		mcpServer := fbmcp.NewServer(&fbmcp.Deps{
			Config:   db,
			Bloods:   db,
			Notifier: notifier,
			Version:  version,
		})
		mcpHandler = server.NewStreamableHTTPServer(mcpServer)
	}

	// --- HTTP Router ---
	handler := web.NewRouter(web.Deps{
		Config:   cfg,
		Store:    db,
		Notifier: notifier,
		Sessions: sessions,
		Tokens:   tokens,
		MCP:      mcpHandler,
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("firstblood is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- Tunnel (optional) ---
	tun, err := tunnel.New(cfg.Tunnel)
	if err != nil {
		return err
	}
	if tun != nil {
		if _, err := tun.Start(ctx); err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		defer func() { _ = tun.Close() }()
		go func() {
			if err := srv.Serve(tun.Listener()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("tunnel listener: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
