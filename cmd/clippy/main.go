// Command clippy runs the element picker: a Chrome tab to pick from, the
// side panel and popup on a local HTTP listener, and the chat log the picks
// land in.
//
//	clippy -config clippy.yaml
//	clippy -add-user me@example.com -password '...'
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/clippy/audit"
	"github.com/hazyhaar/clippy/auth"
	"github.com/hazyhaar/clippy/authgate"
	"github.com/hazyhaar/clippy/background"
	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/browser"
	"github.com/hazyhaar/clippy/chat"
	"github.com/hazyhaar/clippy/clipboard"
	"github.com/hazyhaar/clippy/config"
	"github.com/hazyhaar/clippy/content"
	"github.com/hazyhaar/clippy/dbopen"
	"github.com/hazyhaar/clippy/panel"
	"github.com/hazyhaar/clippy/pick"
	"github.com/hazyhaar/clippy/prefs"
)

var version = "dev"

type options struct {
	configPath string
	pageURL    string
	logLevel   string
	addUser    string
	removeUser string
	password   string
	noBrowser  bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to clippy.yaml config file")
	flag.StringVar(&o.pageURL, "url", "", "page to open for picking (overrides page_url)")
	flag.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	flag.StringVar(&o.addUser, "add-user", "", "create a local account with this email and exit")
	flag.StringVar(&o.removeUser, "remove-user", "", "delete the local account with this email and exit")
	flag.StringVar(&o.password, "password", "", "password for -add-user")
	flag.BoolVar(&o.noBrowser, "no-browser", false, "serve the panel and MCP only, without Chrome")
	flag.Parse()

	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if o.pageURL != "" {
		cfg.PageURL = o.pageURL
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, o); err != nil {
		logger.Error("clippy: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, o options) error {
	db, err := dbopen.Open(cfg.DBPath(),
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(authgate.Schema),
		dbopen.WithSchema(chat.Schema),
		dbopen.WithSchema(prefs.Schema),
		dbopen.WithSchema(audit.Schema),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := authgate.NewLocalProvider(db, auth.DeriveSecret(cfg.Auth.Secret), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	switch {
	case o.addUser != "":
		id, err := provider.CreateUser(ctx, o.addUser, o.password)
		if err != nil {
			return err
		}
		logger.Info("clippy: user created", "email", o.addUser, "id", id)
		return nil
	case o.removeUser != "":
		if err := provider.DeleteUser(ctx, o.removeUser); err != nil {
			return err
		}
		logger.Info("clippy: user removed", "email", o.removeUser)
		return nil
	}

	store, closeStore, err := openStore(ctx, logger, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	gate := authgate.New(provider, logger)
	if err := gate.Start(ctx); err != nil {
		logger.Warn("clippy: session restore failed", "error", err)
	}
	go gate.Run(ctx, cfg.Auth.Revalidate)

	prefStore := prefs.New(db)
	p, err := prefStore.Load(ctx)
	if err != nil {
		logger.Warn("clippy: load prefs failed", "error", err)
		p = prefs.Defaults()
	}

	router := bridge.NewRouter(bridge.WithLogger(logger))
	panelURL := "http://" + dialAddr(cfg.Listen) + "/"

	var (
		opener background.PanelOpener
		reader clipboard.Reader = clipboard.System{}
	)
	if !o.noBrowser {
		mgr := browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Headless:         cfg.Browser.Headless,
			Stealth:          cfg.Browser.StealthEnabled(),
			UserDataDir:      cfg.Browser.UserDataDir,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           logger,
		})
		defer mgr.Close()

		tab, err := startPicker(ctx, logger, mgr, router, cfg.PageURL, p.Enabled)
		if err != nil {
			return err
		}
		defer tab.Close()
		opener = browser.NewPanelOpener(mgr, panelURL)
		reader = clipboard.Fallback{tab, clipboard.System{}}
	}

	var auditLog *audit.SQLiteLogger
	if !cfg.Audit.Disabled {
		auditLog = audit.NewSQLiteLogger(db, audit.WithLogger(logger))
		defer auditLog.Close()
		if n, err := auditLog.Cleanup(ctx, cfg.Audit.Retention); err != nil {
			logger.Warn("clippy: audit cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("clippy: audit entries expired", "count", n)
		}
	}

	coord := background.New(background.Config{
		Router:        router,
		Gate:          gate,
		Store:         store,
		Panel:         opener,
		Clipboard:     reader,
		Audit:         auditLog,
		CaptureFormat: cfg.Capture.Format,
		Timeout:       cfg.Bridge.Timeout,
		Logger:        logger,
	})
	bgEP := coord.Register()
	defer router.DetachEndpoint(bgEP)

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "clippy", Version: version}, nil)
	coord.RegisterMCP(mcpSrv)

	ps := panel.New(panel.Config{
		Gate:         gate,
		Store:        store,
		Router:       router,
		Prefs:        prefStore,
		MCP:          mcpSrv,
		Timeout:      cfg.Bridge.Timeout,
		TokenTTL:     cfg.Auth.TokenTTL,
		SecureCookie: cfg.Auth.SecureCookie,
		Hosts:        append(panelHosts(cfg.Listen), cfg.Hosts...),
		Logger:       logger,
	})
	defer ps.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           ps.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("clippy: panel listening", "addr", cfg.Listen, "url", panelURL)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if opener != nil {
		if err := opener.Open(ctx); err != nil {
			logger.Warn("clippy: open side panel failed", "error", err)
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("clippy: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("clippy: shutdown", "error", err)
	}
	return nil
}

// openStore returns the configured chat backend and its cleanup.
func openStore(ctx context.Context, logger *slog.Logger, cfg *config.Config, db *sql.DB) (chat.Store, func(), error) {
	if cfg.Chat.Backend == "redis" {
		client, err := chat.OpenRedis(ctx, cfg.Chat.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return chat.NewRedisStore(client, chat.WithLogger(logger)), func() { client.Close() }, nil
	}
	st := chat.NewSQLiteStore(db, chat.WithLogger(logger))
	go st.Watch(ctx, cfg.Chat.Poll)
	return st, func() {}, nil
}

// startPicker opens the picking tab and binds the content script to it.
func startPicker(ctx context.Context, logger *slog.Logger, mgr *browser.Manager, router *bridge.Router, pageURL string, enabled bool) (*browser.Tab, error) {
	if _, err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	tab, err := browser.OpenTab(ctx, mgr, pageURL)
	if err != nil {
		return nil, err
	}
	if origin := originOf(pageURL); origin != "" {
		if err := mgr.GrantClipboard(origin); err != nil {
			logger.Warn("clippy: clipboard permission not granted", "origin", origin, "error", err)
		}
	}

	ctrl := pick.NewController(content.PageSurface{Page: tab.Page}, logger)
	script := content.New(ctrl, router,
		content.WithClipboard(tab),
		content.WithEnabled(enabled),
		content.WithLogger(logger),
	)
	script.Register()
	if err := content.Attach(ctx, tab, script); err != nil {
		tab.Close()
		return nil, err
	}
	return tab, nil
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// panelHosts lists the Host headers a local browser sends for listen.
func panelHosts(listen string) []string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return []string{listen}
	}
	hosts := []string{
		dialAddr(listen),
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("::1", port),
	}
	if host != "" && host != "0.0.0.0" && host != "::" {
		hosts = append(hosts, listen)
	}
	return hosts
}

// dialAddr turns a listen address into one a browser can open.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
