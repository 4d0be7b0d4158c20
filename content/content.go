// Package content is the script bound to the page being picked from. It
// turns pointer and keyboard events into pick.Controller transitions,
// answers the content surface's bridge messages, and forwards each capture
// to the background coordinator.
package content

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/clipboard"
	"github.com/hazyhaar/clippy/pick"
)

// ErrDisabled answers a toggle while the extension is switched off.
var ErrDisabled = errors.New("content: selection disabled")

// EventType names a page event.
type EventType string

const (
	Over  EventType = "over"
	Out   EventType = "out"
	Click EventType = "click"
	Key   EventType = "key"
)

// Event is one page event. Element is set for pointer events, Key and the
// modifier flags for keyboard events.
type Event struct {
	Type    EventType
	Element pick.Element

	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// isToggleShortcut reports Ctrl+Shift+X.
func (e Event) isToggleShortcut() bool {
	return e.Type == Key && e.Ctrl && e.Shift && !e.Alt && strings.EqualFold(e.Key, "x")
}

// Script is the content surface.
type Script struct {
	ctrl   *pick.Controller
	router *bridge.Router
	clip   clipboard.Writer
	log    *slog.Logger

	mu      sync.Mutex
	enabled bool
}

// Option configures a Script.
type Option func(*Script)

// WithClipboard copies every captured text to w.
func WithClipboard(w clipboard.Writer) Option {
	return func(s *Script) { s.clip = w }
}

// WithLogger sets the script logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Script) { s.log = l }
}

// WithEnabled sets the initial enable flag. Default: true.
func WithEnabled(on bool) Option {
	return func(s *Script) { s.enabled = on }
}

// New returns a Script driving ctrl and posting captures through router.
func New(ctrl *pick.Controller, router *bridge.Router, opts ...Option) *Script {
	s := &Script{
		ctrl:    ctrl,
		router:  router,
		log:     slog.Default(),
		enabled: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register attaches the content surface and its handlers. Detach the
// returned endpoint when the page goes away.
func (s *Script) Register() *bridge.Endpoint {
	ep := s.router.Attach(bridge.Content)
	ep.Handle(bridge.ActionToggleSelection, s.handleToggle)
	ep.Handle(bridge.ActionResetElements, s.handleReset)
	ep.Handle(bridge.ActionSetEnabled, s.handleSetEnabled)
	return ep
}

// Enabled reports the enable flag.
func (s *Script) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Script) handleToggle(ctx context.Context, _ bridge.Message) (bridge.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return bridge.Fail(ErrDisabled), nil
	}
	on := s.ctrl.Toggle()
	s.log.Debug("content: selection toggled", "picking", on)
	return bridge.Response{Success: true, Message: "Selection toggled"}, nil
}

func (s *Script) handleReset(ctx context.Context, _ bridge.Message) (bridge.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Reset()
	return bridge.OK(), nil
}

func (s *Script) handleSetEnabled(ctx context.Context, msg bridge.Message) (bridge.Response, error) {
	m := msg.(bridge.SetEnabled)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = m.Enabled
	if !m.Enabled {
		s.ctrl.Reset()
	}
	s.log.Info("content: enabled changed", "enabled", m.Enabled)
	return bridge.OK(), nil
}

// Handle applies one page event. It reports whether the event was consumed,
// in which case the page must suppress its default action and propagation.
func (s *Script) Handle(ctx context.Context, ev Event) bool {
	s.mu.Lock()
	var (
		capture pick.Capture
		took    bool
	)
	switch ev.Type {
	case Over:
		s.ctrl.Hover(ev.Element)
	case Out:
		s.ctrl.Unhover(ev.Element)
	case Click:
		capture, took = s.ctrl.Click(ev.Element)
	case Key:
		if ev.isToggleShortcut() && s.enabled {
			s.ctrl.Toggle()
			s.mu.Unlock()
			return true
		}
	}
	s.mu.Unlock()

	if took {
		s.deliver(ctx, capture)
	}
	return took
}

func (s *Script) deliver(ctx context.Context, c pick.Capture) {
	if s.clip != nil {
		if err := s.clip.WriteText(ctx, c.Text); err != nil {
			s.log.WarnContext(ctx, "content: copy to clipboard failed", "error", err)
		}
	}
	s.log.InfoContext(ctx, "content: element selected", "selector", c.Selector, "chars", len(c.Text))
	s.router.Post(ctx, bridge.ElementSelected{
		Content:  c.Text,
		Selector: c.Selector,
		HTML:     c.HTML,
	})
}
