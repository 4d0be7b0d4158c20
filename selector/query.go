package selector

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Combinator links a compound to the one before it.
type Combinator byte

const (
	Descendant Combinator = ' '
	Child      Combinator = '>'
)

// Compound is one selector step such as div.card:nth-of-type(2).
type Compound struct {
	Tag       string // lower-case, "" or "*" for any
	ID        string
	Classes   []string
	NthOfType int // 0 when absent
	// Combinator joins this compound to the previous one. Unused on the
	// first compound.
	Combinator Combinator
}

// Path is a parsed selector, root side first.
type Path []Compound

// ParseError reports a malformed selector.
type ParseError struct {
	Selector string
	Offset   int
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("selector: parse %q at %d: %s", e.Selector, e.Offset, e.Reason)
}

// Parse reads the selector grammar Generate emits: compounds of tag, #id,
// .class and :nth-of-type(n), joined by ">" or whitespace.
func Parse(sel string) (Path, error) {
	p := &parser{src: []rune(sel), sel: sel}
	return p.parse()
}

type parser struct {
	src []rune
	sel string
	pos int
}

func (p *parser) fail(reason string) error {
	return &ParseError{Selector: p.sel, Offset: p.pos, Reason: reason}
}

func (p *parser) parse() (Path, error) {
	var path Path
	comb := Combinator(0)
	for {
		sawSpace := p.skipSpace()
		if p.pos >= len(p.src) {
			break
		}
		if p.src[p.pos] == '>' {
			if len(path) == 0 || comb == Child {
				return nil, p.fail("unexpected '>'")
			}
			p.pos++
			comb = Child
			continue
		}
		if len(path) > 0 && comb == 0 {
			if !sawSpace {
				return nil, p.fail("expected combinator")
			}
			comb = Descendant
		}
		c, err := p.compound()
		if err != nil {
			return nil, err
		}
		c.Combinator = comb
		path = append(path, c)
		comb = 0
	}
	if len(path) == 0 {
		return nil, p.fail("empty selector")
	}
	if comb == Child {
		return nil, p.fail("dangling '>'")
	}
	return path, nil
}

func (p *parser) skipSpace() bool {
	start := p.pos
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
	return p.pos > start
}

func (p *parser) compound() (Compound, error) {
	var c Compound
	start := p.pos
	if p.pos < len(p.src) && p.src[p.pos] == '*' {
		c.Tag = "*"
		p.pos++
	} else if p.pos < len(p.src) && isIdentStart(p.src[p.pos]) {
		c.Tag = strings.ToLower(p.ident())
	}

	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '#':
			p.pos++
			id := p.ident()
			if id == "" {
				return c, p.fail("empty id")
			}
			c.ID = id
		case '.':
			p.pos++
			cls := p.ident()
			if cls == "" {
				return c, p.fail("empty class")
			}
			c.Classes = append(c.Classes, cls)
		case ':':
			n, err := p.nthOfType()
			if err != nil {
				return c, err
			}
			c.NthOfType = n
		default:
			if p.pos == start {
				return c, p.fail(fmt.Sprintf("unexpected %q", p.src[p.pos]))
			}
			return c, nil
		}
	}
	return c, nil
}

func (p *parser) nthOfType() (int, error) {
	const prefix = ":nth-of-type("
	rest := string(p.src[p.pos:])
	if !strings.HasPrefix(rest, prefix) {
		return 0, p.fail("unsupported pseudo-class")
	}
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return 0, p.fail("unterminated :nth-of-type")
	}
	arg := strings.TrimSpace(rest[len(prefix):end])
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, p.fail("bad :nth-of-type argument " + strconv.Quote(arg))
	}
	p.pos += len([]rune(rest[:end+1]))
	return n, nil
}

// ident consumes an identifier including escapes and returns it decoded.
func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			if isHex(p.src[p.pos]) {
				k := 0
				for p.pos < len(p.src) && k < 6 && isHex(p.src[p.pos]) {
					p.pos++
					k++
				}
				if p.pos < len(p.src) && isSpace(p.src[p.pos]) {
					p.pos++
				}
				continue
			}
			p.pos++
		case isIdentChar(c):
			p.pos++
		default:
			return unescape(string(p.src[start:p.pos]))
		}
	}
	return unescape(string(p.src[start:p.pos]))
}

func isIdentStart(c rune) bool {
	return c == '\\' || c == '_' || c == '-' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// Match reports whether n satisfies the whole path.
func (path Path) Match(n *html.Node) bool {
	return len(path) > 0 && path.matchAt(n, len(path)-1)
}

func (path Path) matchAt(n *html.Node, i int) bool {
	if !path[i].match(n) {
		return false
	}
	if i == 0 {
		return true
	}
	switch path[i].Combinator {
	case Child:
		return n.Parent != nil && path.matchAt(n.Parent, i-1)
	default:
		for a := n.Parent; a != nil; a = a.Parent {
			if path.matchAt(a, i-1) {
				return true
			}
		}
		return false
	}
}

func (c Compound) match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if c.Tag != "" && c.Tag != "*" && strings.ToLower(n.Data) != c.Tag {
		return false
	}
	if c.ID != "" && attr(n, "id") != c.ID {
		return false
	}
	if len(c.Classes) > 0 {
		have := Classes(n)
		for _, want := range c.Classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	if c.NthOfType > 0 && NthOfType(n) != c.NthOfType {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// QueryAll returns every element under root matching sel, in document
// order. A malformed selector matches nothing.
func QueryAll(root *html.Node, sel string) []*html.Node {
	path, err := Parse(sel)
	if err != nil {
		return nil
	}
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if path.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// QueryFirst returns the first element under root matching sel, or nil.
func QueryFirst(root *html.Node, sel string) *html.Node {
	path, err := Parse(sel)
	if err != nil {
		return nil
	}
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if path.Match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits n and its descendants in document order until fn returns false.
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
