// Package dom adapts a parsed HTML document to the pick interfaces, so the
// selection controller and the content script run without a browser.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/clippy/pick"
	"github.com/hazyhaar/clippy/selector"
)

// Document is a parsed page. It implements pick.Surface.
type Document struct {
	Root    *html.Node
	picking bool
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{Root: root}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Element wraps n. Two wrappers of the same node compare equal.
func (d *Document) Element(n *html.Node) Element {
	return Element{doc: d, n: n}
}

// QueryFirst resolves sel against the document.
func (d *Document) QueryFirst(sel string) (Element, bool) {
	n := selector.QueryFirst(d.Root, sel)
	if n == nil {
		return Element{}, false
	}
	return d.Element(n), true
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	var body *html.Node
	walk(d.Root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	return body
}

// Picking reports the last pick mode applied.
func (d *Document) Picking() bool { return d.picking }

// Cursor returns the cursor declared on <body>.
func (d *Document) Cursor() string {
	if b := d.Body(); b != nil {
		return styleProp(b, "cursor")
	}
	return ""
}

// SetPickMode sets the body cursor to crosshair or default.
func (d *Document) SetPickMode(on bool) error {
	body := d.Body()
	if body == nil {
		return fmt.Errorf("dom: document has no body")
	}
	cursor := pick.CursorIdle
	if on {
		cursor = pick.CursorPicking
	}
	setStyleProp(body, "cursor", cursor)
	d.picking = on
	return nil
}

// Render serialises the whole document.
func (d *Document) Render() string {
	var buf bytes.Buffer
	html.Render(&buf, d.Root)
	return buf.String()
}

var _ pick.Surface = (*Document)(nil)
var _ pick.Element = Element{}

// Element is a pick.Element over an html.Node.
type Element struct {
	doc *Document
	n   *html.Node
}

// Node returns the wrapped node.
func (e Element) Node() *html.Node { return e.n }

// Outline returns the element's inline outline declaration.
func (e Element) Outline() string {
	if e.n == nil {
		return ""
	}
	return styleProp(e.n, "outline")
}

func (e Element) SetOutline(style string) error {
	if e.n == nil || e.n.Type != html.ElementNode {
		return fmt.Errorf("dom: not an element")
	}
	setStyleProp(e.n, "outline", style)
	return nil
}

func (e Element) Text() (string, error) {
	if e.n == nil {
		return "", fmt.Errorf("dom: not an element")
	}
	return InnerText(e.n), nil
}

func (e Element) HTML() (string, error) {
	if e.n == nil {
		return "", fmt.Errorf("dom: not an element")
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, e.n); err != nil {
		return "", fmt.Errorf("dom: render: %w", err)
	}
	return buf.String(), nil
}

func (e Element) Selector() (string, error) {
	if e.n == nil || e.n.Type != html.ElementNode {
		return "", fmt.Errorf("dom: not an element")
	}
	return selector.Generate(e.n), nil
}

func attr(n *html.Node, key string) (string, int) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, i
		}
	}
	return "", -1
}

// FindAttr returns the first element whose attribute key equals val.
func FindAttr(root *html.Node, key, val string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if v, i := attr(n, key); i >= 0 && v == val {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// StripAttr removes key from n and all its descendants.
func StripAttr(n *html.Node, key string) {
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			if _, i := attr(c, key); i >= 0 {
				c.Attr = append(c.Attr[:i], c.Attr[i+1:]...)
			}
		}
		return true
	})
}

func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
