// Package pick is the element selection state machine.
//
//	Idle --Toggle--> Picking --Hover--> Picking+Highlighted
//	  ^                 |  <--Unhover--       |
//	  +------Toggle-----+------Click----------+
//
// The state lives in an explicit Session value. The Controller mutates it
// and performs styling through the Element and Surface interfaces, so the
// transitions can be driven without a browser.
package pick

import (
	"fmt"
	"log/slog"
	"sync"
)

const (
	// OutlineStyle marks the highlighted element.
	OutlineStyle = "2px solid #ff0000"

	CursorPicking = "crosshair"
	CursorIdle    = "default"
)

// Element is a handle to a page element. Implementations must be comparable
// with ==, and two handles to the same node must compare equal.
type Element interface {
	// SetOutline sets the inline outline style. "" removes it.
	SetOutline(style string) error
	// Text returns the rendered text of the element.
	Text() (string, error)
	// HTML returns the element's outer HTML.
	HTML() (string, error)
	// Selector returns a CSS selector for the element.
	Selector() (string, error)
}

// Surface is the page-wide side of pick mode.
type Surface interface {
	// SetPickMode switches the cursor between CursorPicking and CursorIdle
	// and tells the page whether clicks should be intercepted.
	SetPickMode(on bool) error
}

// State names a point in the selection state machine.
type State int

const (
	Idle State = iota
	Picking
	Highlighted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Picking:
		return "picking"
	case Highlighted:
		return "highlighted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is the ephemeral pick state. The zero value is Idle.
type Session struct {
	Picking     bool
	Highlighted Element
}

// State derives the machine state from the session fields.
func (s Session) State() State {
	switch {
	case !s.Picking:
		return Idle
	case s.Highlighted == nil:
		return Picking
	default:
		return Highlighted
	}
}

// Capture is the result of a finalised pick.
type Capture struct {
	Selector string
	Text     string
	HTML     string
}

// Controller drives a Session. Safe for concurrent use; events are applied
// one at a time.
type Controller struct {
	mu      sync.Mutex
	sess    Session
	surface Surface
	log     *slog.Logger
}

// NewController returns an Idle controller. surface may be nil.
func NewController(surface Surface, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{surface: surface, log: logger}
}

// Session returns a copy of the current state.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Toggle flips picking and applies the matching cursor. Turning picking off
// removes any outline. It returns the new picking flag.
func (c *Controller) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.Picking {
		c.clearLocked()
		c.sess.Picking = false
	} else {
		c.sess.Picking = true
	}
	c.applyModeLocked()
	return c.sess.Picking
}

// Hover moves the highlight to el. No-op unless picking.
func (c *Controller) Hover(el Element) {
	if el == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sess.Picking || c.sess.Highlighted == el {
		return
	}
	c.clearLocked()
	c.outline(el, OutlineStyle)
	c.sess.Highlighted = el
}

// Unhover clears the highlight only if el is the highlighted element.
// Events for other elements are stale and ignored.
func (c *Controller) Unhover(el Element) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el == nil || c.sess.Highlighted != el {
		return
	}
	c.clearLocked()
}

// Click finalises the pick on el. It reports false, and does nothing, when
// not picking. Otherwise the outline is removed, the session returns to
// Idle and the capture is returned. The caller should suppress the click's
// default action and propagation when ok is true.
func (c *Controller) Click(el Element) (capture Capture, ok bool) {
	if el == nil {
		return Capture{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sess.Picking {
		return Capture{}, false
	}

	c.clearLocked()
	c.outline(el, "")
	c.sess = Session{}
	c.applyModeLocked()

	return c.capture(el), true
}

// Reset forces Idle and removes any lingering outline.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()
	wasPicking := c.sess.Picking
	c.sess = Session{}
	if wasPicking {
		c.applyModeLocked()
	}
}

func (c *Controller) capture(el Element) Capture {
	var cp Capture
	var err error
	if cp.Text, err = el.Text(); err != nil {
		c.log.Warn("pick: read text failed", "error", err)
	}
	if cp.Selector, err = el.Selector(); err != nil {
		c.log.Warn("pick: selector failed", "error", err)
	}
	if cp.HTML, err = el.HTML(); err != nil {
		c.log.Warn("pick: read html failed", "error", err)
	}
	return cp
}

func (c *Controller) clearLocked() {
	if c.sess.Highlighted == nil {
		return
	}
	c.outline(c.sess.Highlighted, "")
	c.sess.Highlighted = nil
}

func (c *Controller) outline(el Element, style string) {
	if err := el.SetOutline(style); err != nil {
		c.log.Warn("pick: set outline failed", "style", style, "error", err)
	}
}

func (c *Controller) applyModeLocked() {
	if c.surface == nil {
		return
	}
	if err := c.surface.SetPickMode(c.sess.Picking); err != nil {
		c.log.Warn("pick: set pick mode failed", "picking", c.sess.Picking, "error", err)
	}
}
