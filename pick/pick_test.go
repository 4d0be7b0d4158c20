package pick

import (
	"errors"
	"testing"
)

type fakeEl struct {
	name    string
	outline string
	calls   int
	failing bool
}

func (e *fakeEl) SetOutline(style string) error {
	e.calls++
	if e.failing {
		return errors.New("detached")
	}
	e.outline = style
	return nil
}
func (e *fakeEl) Text() (string, error)     { return "text of " + e.name, nil }
func (e *fakeEl) HTML() (string, error)     { return "<p>" + e.name + "</p>", nil }
func (e *fakeEl) Selector() (string, error) { return "#" + e.name, nil }

type fakeSurface struct{ modes []bool }

func (s *fakeSurface) SetPickMode(on bool) error {
	s.modes = append(s.modes, on)
	return nil
}

func (s *fakeSurface) cursor() string {
	if len(s.modes) > 0 && s.modes[len(s.modes)-1] {
		return CursorPicking
	}
	return CursorIdle
}

func TestSession_State(t *testing.T) {
	if s := (Session{}).State(); s != Idle {
		t.Fatalf("zero session = %v", s)
	}
	if s := (Session{Picking: true}).State(); s != Picking {
		t.Fatalf("picking = %v", s)
	}
	if s := (Session{Picking: true, Highlighted: &fakeEl{}}).State(); s != Highlighted {
		t.Fatalf("highlighted = %v", s)
	}
}

func TestToggleTwice(t *testing.T) {
	surf := &fakeSurface{}
	c := NewController(surf, nil)
	a := &fakeEl{name: "a"}

	if !c.Toggle() {
		t.Fatal("first toggle should enable picking")
	}
	if surf.cursor() != CursorPicking {
		t.Fatalf("cursor = %q", surf.cursor())
	}
	c.Hover(a)
	if a.outline != OutlineStyle {
		t.Fatalf("outline = %q", a.outline)
	}
	if c.Toggle() {
		t.Fatal("second toggle should disable picking")
	}

	if got := c.Session(); got != (Session{}) {
		t.Fatalf("session = %+v, want Idle", got)
	}
	if a.outline != "" {
		t.Fatalf("leftover outline %q", a.outline)
	}
	if surf.cursor() != CursorIdle {
		t.Fatalf("cursor = %q", surf.cursor())
	}
}

func TestHover_IgnoredWhenIdle(t *testing.T) {
	c := NewController(nil, nil)
	a := &fakeEl{name: "a"}
	c.Hover(a)
	if a.calls != 0 || c.Session().Highlighted != nil {
		t.Fatal("hover while idle must be a no-op")
	}
}

func TestHoverUnhover_Same(t *testing.T) {
	c := NewController(nil, nil)
	c.Toggle()
	a := &fakeEl{name: "a"}
	c.Hover(a)
	c.Unhover(a)
	if s := c.Session(); s.Highlighted != nil || s.State() != Picking {
		t.Fatalf("session = %+v", s)
	}
	if a.outline != "" {
		t.Fatalf("outline = %q", a.outline)
	}
}

func TestUnhover_StaleEventKeepsHighlight(t *testing.T) {
	c := NewController(nil, nil)
	c.Toggle()
	a, b := &fakeEl{name: "a"}, &fakeEl{name: "b"}

	c.Hover(a)
	c.Hover(b)
	c.Unhover(a)

	if got := c.Session().Highlighted; got != Element(b) {
		t.Fatalf("highlighted = %v, want b", got)
	}
	if a.outline != "" || b.outline != OutlineStyle {
		t.Fatalf("outlines a=%q b=%q", a.outline, b.outline)
	}
}

func TestClick(t *testing.T) {
	surf := &fakeSurface{}
	c := NewController(surf, nil)
	c.Toggle()
	a := &fakeEl{name: "card"}
	c.Hover(a)

	cp, ok := c.Click(a)
	if !ok {
		t.Fatal("click while picking should capture")
	}
	want := Capture{Selector: "#card", Text: "text of card", HTML: "<p>card</p>"}
	if cp != want {
		t.Fatalf("capture = %+v", cp)
	}
	if a.outline != "" {
		t.Fatalf("outline = %q", a.outline)
	}
	if c.Session() != (Session{}) || surf.cursor() != CursorIdle {
		t.Fatalf("session=%+v cursor=%q", c.Session(), surf.cursor())
	}
}

func TestClick_IgnoredWhenIdle(t *testing.T) {
	c := NewController(nil, nil)
	if _, ok := c.Click(&fakeEl{}); ok {
		t.Fatal("click while idle must not capture")
	}
}

func TestReset(t *testing.T) {
	surf := &fakeSurface{}
	c := NewController(surf, nil)
	c.Toggle()
	a := &fakeEl{name: "a"}
	c.Hover(a)

	c.Reset()
	if c.Session() != (Session{}) || a.outline != "" || surf.cursor() != CursorIdle {
		t.Fatalf("reset left state: %+v outline=%q", c.Session(), a.outline)
	}

	n := len(surf.modes)
	c.Reset()
	if len(surf.modes) != n {
		t.Fatal("reset while idle should not touch the surface")
	}
}

func TestStylingFailureDoesNotBlockTransitions(t *testing.T) {
	c := NewController(nil, nil)
	c.Toggle()
	a := &fakeEl{name: "a", failing: true}
	c.Hover(a)
	if c.Session().Highlighted != Element(a) {
		t.Fatal("hover should record the element even if styling fails")
	}
	if _, ok := c.Click(a); !ok {
		t.Fatal("click should still capture")
	}
}
