// Package panel serves the side panel and popup: the login and chat views
// driven by the auth gate, a websocket stream of the chat log, a JSON entry
// into the messaging bridge, popup preferences and an MCP endpoint.
package panel

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/clippy/authgate"
	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/chat"
	"github.com/hazyhaar/clippy/prefs"
	"github.com/hazyhaar/clippy/shield"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Config wires a Server.
type Config struct {
	Gate   *authgate.Gate
	Store  chat.Store
	Router *bridge.Router
	Prefs  *prefs.Store

	// MCP, when set, is served on /mcp to callers holding the session token.
	MCP *mcp.Server

	// Timeout bounds bridge requests made for the UI. Default: 5s.
	Timeout time.Duration
	// TokenTTL is the session cookie lifetime. Default: 24h.
	TokenTTL time.Duration
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
	// Hosts, when set, are the only Host headers served.
	Hosts []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the panel HTTP surface.
type Server struct {
	cfg     Config
	log     *slog.Logger
	views   *views
	hub     *hub
	limiter *shield.RateLimiter
	unsub   func()
}

// New builds a Server and subscribes it to the gate. Call Close to
// unsubscribe and drop open streams.
func New(cfg Config) *Server {
	cfg.defaults()
	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		views:   newViews(),
		hub:     newHub(),
		limiter: shield.NewRateLimiter(shield.LoginRules()),
	}
	s.unsub = cfg.Gate.Subscribe(s.onTransition)
	return s
}

// Close unsubscribes from the gate and closes every stream.
func (s *Server) Close() {
	s.unsub()
	s.hub.closeAll()
}

// onTransition ends the streams of a user that is no longer signed in.
func (s *Server) onTransition(tr authgate.Transition) {
	if tr.From != authgate.SignedIn {
		return
	}
	n := s.hub.closeAll()
	s.log.Info("panel: streams closed", "to", tr.To, "reason", tr.Reason, "streams", n)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if len(s.cfg.Hosts) > 0 {
		r.Use(shield.AllowHosts(s.cfg.Hosts...))
	}
	for _, mw := range shield.PanelStack() {
		r.Use(mw)
	}
	r.Use(s.limiter.Middleware)

	r.Get("/", s.handleIndex)
	r.Get("/popup", s.handlePopup)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Route("/chat", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/send", s.handleSend)
		r.Post("/reset", s.handleReset)
		r.Get("/ws", s.handleStream)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireJSON)
		r.Post("/message", s.handleMessage)
		r.Get("/prefs", s.handleGetPrefs)
		r.Post("/prefs", s.handleSetPrefs)
	})

	if s.cfg.MCP != nil {
		srv := s.cfg.MCP
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
		r.Handle("/mcp", s.requireBearer(h))
	}
	return r
}
