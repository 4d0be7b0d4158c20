package content

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"github.com/hazyhaar/clippy/browser"
	"github.com/hazyhaar/clippy/dom"
	"github.com/hazyhaar/clippy/pick"
	"github.com/hazyhaar/clippy/selector"
)

//go:embed picker.js
var pickerJS string

const (
	bindingName = "__clippy_binding"
	keyAttr     = "data-clippy-key"
)

// Attach binds s to a live tab. It injects the picker into the current and
// every future document, then feeds binding calls to s.Handle until ctx
// ends.
func Attach(ctx context.Context, tab *browser.Tab, s *Script) error {
	page := tab.Page

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		s.log.Warn("content: addBinding failed (may already exist)", "error", err)
	}
	if _, err := page.EvalOnNewDocument(pickerJS); err != nil {
		return fmt.Errorf("content: register picker: %w", err)
	}
	if _, err := page.Eval(`() => {` + pickerJS + `}`); err != nil {
		return fmt.Errorf("content: inject picker: %w", err)
	}

	events := make(chan Event, 64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				s.Handle(ctx, ev)
			}
		}
	}()

	go page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var raw struct {
			Type    EventType `json:"type"`
			Key     string    `json:"key"`
			KeyName string    `json:"keyName"`
			Ctrl    bool      `json:"ctrl"`
			Shift   bool      `json:"shift"`
			Alt     bool      `json:"alt"`
			Meta    bool      `json:"meta"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &raw); err != nil {
			s.log.Warn("content: parse binding payload", "error", err)
			return
		}
		ev := Event{Type: raw.Type, Key: raw.KeyName, Ctrl: raw.Ctrl, Shift: raw.Shift, Alt: raw.Alt, Meta: raw.Meta}
		if raw.Type != Key {
			if raw.Key == "" {
				return
			}
			ev.Element = Element{tab: tab, key: raw.Key}
		}
		select {
		case events <- ev:
		default:
			s.log.Warn("content: event dropped", "type", raw.Type)
		}
	})()

	s.log.Info("content: attached", "url", tab.PageURL)
	return nil
}

// PageSurface is the pick.Surface of a live page. It mirrors pick mode into
// window.__clippy_picking so the picker intercepts clicks.
type PageSurface struct {
	Page *rod.Page
}

func (p PageSurface) SetPickMode(on bool) error {
	cursor := pick.CursorIdle
	if on {
		cursor = pick.CursorPicking
	}
	_, err := p.Page.Timeout(evalTimeout).Eval(`(on, cursor) => {
		window.__clippy_picking = on;
		if (document.body) document.body.style.cursor = cursor;
	}`, on, cursor)
	if err != nil {
		return fmt.Errorf("content: set pick mode: %w", err)
	}
	return nil
}

// Element is a page element tagged by the picker with data-clippy-key.
type Element struct {
	tab *browser.Tab
	key string
}

const evalTimeout = 5 * time.Second

func (e Element) eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	return e.tab.Page.Timeout(evalTimeout).Eval(`(k, ...rest) => {
		const el = document.querySelector('[`+keyAttr+`="' + k + '"]');
		if (!el) throw new Error("element gone");
		return (`+js+`)(el, ...rest);
	}`, append([]any{e.key}, args...)...)
}

func (e Element) SetOutline(style string) error {
	if _, err := e.eval(`(el, s) => { el.style.outline = s; if (!el.getAttribute("style")) el.removeAttribute("style"); }`, style); err != nil {
		return fmt.Errorf("content: set outline: %w", err)
	}
	return nil
}

func (e Element) Text() (string, error) {
	res, err := e.eval(`(el) => el.innerText`)
	if err != nil {
		return "", fmt.Errorf("content: read text: %w", err)
	}
	return res.Value.Str(), nil
}

// HTML renders the element from a parsed copy of the document with the
// picker's key attributes stripped.
func (e Element) HTML() (string, error) {
	doc, n, err := e.locate()
	if err != nil {
		return "", err
	}
	dom.StripAttr(n, keyAttr)
	return doc.Element(n).HTML()
}

// Selector generates a selector from a parsed copy of the document.
func (e Element) Selector() (string, error) {
	_, n, err := e.locate()
	if err != nil {
		return "", err
	}
	return selector.Generate(n), nil
}

func (e Element) locate() (*dom.Document, *html.Node, error) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()
	src, err := e.tab.GetFullDOM(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("content: %w", err)
	}
	doc, err := dom.ParseString(src)
	if err != nil {
		return nil, nil, err
	}
	n := dom.FindAttr(doc.Root, keyAttr, e.key)
	if n == nil {
		return nil, nil, fmt.Errorf("content: element %s not in document", e.key)
	}
	return doc, n, nil
}

var (
	_ pick.Element = Element{}
	_ pick.Surface = PageSurface{}
)
