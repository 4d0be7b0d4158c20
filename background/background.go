// Package background is the coordinator surface. It opens the side panel,
// relays resets to the content script, reads the clipboard for the panel,
// and stores captures in the signed-in user's chat log.
package background

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/clippy/audit"
	"github.com/hazyhaar/clippy/authgate"
	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/chat"
	"github.com/hazyhaar/clippy/clipboard"
)

var (
	// ErrNotSignedIn answers a capture made without a live user.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNoPanel means no PanelOpener is configured.
	ErrNoPanel = errors.New("side panel unavailable")
)

// Capture formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// PanelOpener shows the side panel.
type PanelOpener interface {
	Open(ctx context.Context) error
}

// Config wires a Coordinator.
type Config struct {
	Router    *bridge.Router
	Gate      *authgate.Gate
	Store     chat.Store
	Panel     PanelOpener
	Clipboard clipboard.Reader

	// Audit, when set, records captures and MCP tool calls.
	Audit *audit.SQLiteLogger

	// CaptureFormat is FormatText (default) or FormatMarkdown. Markdown
	// converts the captured HTML and falls back to the text.
	CaptureFormat string

	// Timeout bounds requests the coordinator makes to other surfaces.
	// Default: 5s.
	Timeout time.Duration

	Logger *slog.Logger
}

// Coordinator is the background surface.
type Coordinator struct {
	cfg Config
	log *slog.Logger
	md  *converter.Converter
}

// New returns a Coordinator. Call Register to attach it.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CaptureFormat == "" {
		cfg.CaptureFormat = FormatText
	}
	c := &Coordinator{cfg: cfg, log: cfg.Logger}
	if cfg.CaptureFormat == FormatMarkdown {
		c.md = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	}
	return c
}

// Register attaches the background surface and its handlers.
func (c *Coordinator) Register() *bridge.Endpoint {
	ep := c.cfg.Router.Attach(bridge.Background)
	ep.Handle(bridge.ActionOpenSidePanel, c.openSidePanel)
	ep.Handle(bridge.ActionResetElements, c.resetElements)
	ep.Handle(bridge.ActionPasteFromClipboard, c.pasteFromClipboard)
	ep.Handle(bridge.ActionElementSelected, c.elementSelected)
	return ep
}

// CurrentSession opens a chat session for the gate's live user.
func CurrentSession(g *authgate.Gate, st chat.Store) (*chat.Session, error) {
	u, ok := g.Current()
	if !ok {
		return nil, ErrNotSignedIn
	}
	return chat.NewSession(st, chat.Identity{ID: u.ID, Email: u.Email})
}

func (c *Coordinator) openSidePanel(ctx context.Context, _ bridge.Message) (bridge.Response, error) {
	if c.cfg.Panel == nil {
		return bridge.Fail(ErrNoPanel), nil
	}
	if err := c.cfg.Panel.Open(ctx); err != nil {
		c.log.WarnContext(ctx, "background: open side panel failed", "error", err)
		return bridge.Fail(err), nil
	}
	return bridge.OK(), nil
}

func (c *Coordinator) resetElements(ctx context.Context, _ bridge.Message) (bridge.Response, error) {
	c.cfg.Router.Post(ctx, bridge.ResetElements{})
	return bridge.OK(), nil
}

func (c *Coordinator) pasteFromClipboard(ctx context.Context, _ bridge.Message) (bridge.Response, error) {
	if c.cfg.Clipboard == nil {
		return bridge.Fail(clipboard.ErrUnavailable), nil
	}
	text, err := c.cfg.Clipboard.ReadText(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "background: clipboard read failed", "error", err)
		return bridge.Fail(err), nil
	}
	return bridge.Response{Success: true, Text: text}, nil
}

func (c *Coordinator) elementSelected(ctx context.Context, msg bridge.Message) (bridge.Response, error) {
	m := msg.(bridge.ElementSelected)

	start := time.Now()

	sess, err := CurrentSession(c.cfg.Gate, c.cfg.Store)
	if err != nil {
		c.log.ErrorContext(ctx, "background: capture dropped", "selector", m.Selector, "error", err)
		c.auditCapture(m, "", ErrNotSignedIn, start)
		return bridge.Fail(ErrNotSignedIn), nil
	}

	stored, err := sess.Send(ctx, c.captureText(m))
	if err != nil {
		c.log.WarnContext(ctx, "background: store capture failed", "selector", m.Selector, "error", err)
		c.auditCapture(m, sess.User().ID, err, start)
		return bridge.Fail(err), nil
	}
	c.log.InfoContext(ctx, "background: capture stored", "id", stored.ID, "selector", m.Selector)
	c.auditCapture(m, sess.User().ID, nil, start)
	return bridge.OK(), nil
}

func (c *Coordinator) auditCapture(m bridge.ElementSelected, userID string, err error, start time.Time) {
	if c.cfg.Audit == nil {
		return
	}
	params, _ := json.Marshal(map[string]string{"selector": m.Selector})
	e := &audit.Entry{
		Action:     "capture",
		Transport:  "bridge",
		UserID:     userID,
		Parameters: string(params),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	c.cfg.Audit.LogAsync(e)
}

func (c *Coordinator) captureText(m bridge.ElementSelected) string {
	if c.md == nil || m.HTML == "" {
		return m.Content
	}
	md, err := c.md.ConvertString(m.HTML)
	if err != nil || strings.TrimSpace(md) == "" {
		if err != nil {
			c.log.Warn("background: markdown conversion failed", "error", err)
		}
		return m.Content
	}
	return strings.TrimSpace(md)
}
