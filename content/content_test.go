package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/clipboard"
	"github.com/hazyhaar/clippy/dom"
	"github.com/hazyhaar/clippy/pick"
)

const page = `<html><body id="app"><div class="card">Hello <b>world</b></div><p>other</p></body></html>`

type fixture struct {
	doc    *dom.Document
	script *Script
	router *bridge.Router
	clip   *clipboard.Memory
	got    chan bridge.ElementSelected
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		doc:    doc,
		router: bridge.NewRouter(),
		clip:   &clipboard.Memory{},
		got:    make(chan bridge.ElementSelected, 4),
	}
	bg := f.router.Attach(bridge.Background)
	bg.Handle(bridge.ActionElementSelected, func(ctx context.Context, m bridge.Message) (bridge.Response, error) {
		f.got <- m.(bridge.ElementSelected)
		return bridge.OK(), nil
	})
	opts = append([]Option{WithClipboard(f.clip)}, opts...)
	f.script = New(pick.NewController(doc, nil), f.router, opts...)
	ep := f.script.Register()
	t.Cleanup(func() { f.router.DetachEndpoint(ep) })
	return f
}

func (f *fixture) el(t *testing.T, sel string) dom.Element {
	t.Helper()
	el, ok := f.doc.QueryFirst(sel)
	if !ok {
		t.Fatalf("%s not found", sel)
	}
	return el
}

func TestToggleResponds(t *testing.T) {
	f := newFixture(t)
	resp := f.router.Request(context.Background(), bridge.ToggleSelection{}, time.Second)
	if !resp.Success || resp.Message != "Selection toggled" {
		t.Fatalf("resp = %+v", resp)
	}
	if f.doc.Cursor() != pick.CursorPicking {
		t.Fatalf("cursor = %q", f.doc.Cursor())
	}
}

func TestClickPostsCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.router.Request(ctx, bridge.ToggleSelection{}, time.Second)

	card := f.el(t, "div.card")
	f.script.Handle(ctx, Event{Type: Over, Element: card})
	if card.Outline() != pick.OutlineStyle {
		t.Fatalf("outline = %q", card.Outline())
	}
	if !f.script.Handle(ctx, Event{Type: Click, Element: card}) {
		t.Fatal("click not consumed")
	}

	select {
	case m := <-f.got:
		if m.Content != "Hello world" || m.Selector != "#app > div.card" {
			t.Fatalf("capture = %+v", m)
		}
		if m.HTML != `<div class="card">Hello <b>world</b></div>` {
			t.Fatalf("html = %q", m.HTML)
		}
	case <-time.After(time.Second):
		t.Fatal("no elementSelected")
	}

	if s, _ := f.clip.ReadText(ctx); s != "Hello world" {
		t.Fatalf("clipboard = %q", s)
	}
	if f.doc.Cursor() != pick.CursorIdle {
		t.Fatalf("cursor = %q", f.doc.Cursor())
	}
}

func TestClickWhileIdle_NotConsumed(t *testing.T) {
	f := newFixture(t)
	if f.script.Handle(context.Background(), Event{Type: Click, Element: f.el(t, "p")}) {
		t.Fatal("idle click consumed")
	}
	select {
	case m := <-f.got:
		t.Fatalf("unexpected capture %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClipboardFailure_StillPosts(t *testing.T) {
	f := newFixture(t)
	f.clip.Err = errors.New("denied")
	ctx := context.Background()
	f.router.Request(ctx, bridge.ToggleSelection{}, time.Second)
	f.script.Handle(ctx, Event{Type: Click, Element: f.el(t, "p")})

	select {
	case m := <-f.got:
		if m.Content != "other" {
			t.Fatalf("content = %q", m.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("capture not posted")
	}
}

func TestShortcutToggles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.script.Handle(ctx, Event{Type: Key, Key: "x", Ctrl: true}) {
		t.Fatal("Ctrl+X must not toggle")
	}
	if !f.script.Handle(ctx, Event{Type: Key, Key: "X", Ctrl: true, Shift: true}) {
		t.Fatal("Ctrl+Shift+X not consumed")
	}
	if !f.doc.Picking() {
		t.Fatal("shortcut did not start picking")
	}
	f.script.Handle(ctx, Event{Type: Key, Key: "x", Ctrl: true, Shift: true})
	if f.doc.Picking() {
		t.Fatal("second shortcut did not stop picking")
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.router.Request(ctx, bridge.ToggleSelection{}, time.Second)
	card := f.el(t, "div.card")
	f.script.Handle(ctx, Event{Type: Over, Element: card})

	resp := f.router.Request(ctx, bridge.ResetElements{}, time.Second)
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if card.Outline() != "" || f.doc.Picking() {
		t.Fatalf("reset left outline %q picking %v", card.Outline(), f.doc.Picking())
	}
}

func TestSetEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.router.Request(ctx, bridge.ToggleSelection{}, time.Second)

	if resp := f.router.Request(ctx, bridge.SetEnabled{Enabled: false}, time.Second); !resp.Success {
		t.Fatalf("setEnabled resp = %+v", resp)
	}
	if f.doc.Picking() {
		t.Fatal("disabling must end the active pick")
	}

	resp := f.router.Request(ctx, bridge.ToggleSelection{}, time.Second)
	if resp.Success || resp.Error != ErrDisabled.Error() {
		t.Fatalf("toggle while disabled = %+v", resp)
	}
	if f.script.Handle(ctx, Event{Type: Key, Key: "x", Ctrl: true, Shift: true}) || f.doc.Picking() {
		t.Fatal("shortcut toggled while disabled")
	}

	f.router.Request(ctx, bridge.SetEnabled{Enabled: true}, time.Second)
	if resp := f.router.Request(ctx, bridge.ToggleSelection{}, time.Second); !resp.Success {
		t.Fatalf("toggle after re-enable = %+v", resp)
	}
}

func TestWithEnabled(t *testing.T) {
	f := newFixture(t, WithEnabled(false))
	if f.script.Enabled() {
		t.Fatal("WithEnabled(false) ignored")
	}
}
