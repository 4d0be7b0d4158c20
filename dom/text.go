package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tr: true, atom.Ul: true,
}

var skipElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Head: true,
}

// InnerText approximates the rendered text of n: whitespace runs collapse
// to one space, block elements and <br> break lines, table cells are
// tab-separated, and script/style content is skipped.
func InnerText(n *html.Node) string {
	var b strings.Builder
	pendingBreak := false
	pendingTab := false
	pendingSpace := false

	emit := func(s string) {
		if s == "" {
			return
		}
		if b.Len() > 0 {
			switch {
			case pendingBreak:
				b.WriteByte('\n')
			case pendingTab:
				b.WriteByte('\t')
			case pendingSpace:
				b.WriteByte(' ')
			}
		}
		pendingBreak, pendingTab, pendingSpace = false, false, false
		b.WriteString(s)
	}

	var visit func(*html.Node, bool)
	visit = func(n *html.Node, pre bool) {
		switch n.Type {
		case html.TextNode:
			if pre {
				emit(n.Data)
				return
			}
			if strings.TrimSpace(n.Data) == "" {
				pendingSpace = pendingSpace || n.Data != ""
				return
			}
			if startsSpace(n.Data) {
				pendingSpace = true
			}
			emit(strings.Join(strings.Fields(n.Data), " "))
			if endsSpace(n.Data) {
				pendingSpace = true
			}
			return
		case html.ElementNode:
			if skipElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Br {
				if pendingBreak {
					b.WriteByte('\n')
				}
				pendingBreak = true
				return
			}
			if (n.DataAtom == atom.Td || n.DataAtom == atom.Th) && hasPrevElement(n) {
				pendingTab = true
			}
			pre = pre || n.DataAtom == atom.Pre || n.DataAtom == atom.Textarea
		}

		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			pendingBreak = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c, pre)
		}
		if block {
			pendingBreak = true
		}
	}
	visit(n, false)
	return b.String()
}

func startsSpace(s string) bool {
	return s != "" && strings.IndexByte(" \t\n\r\f", s[0]) >= 0
}

func endsSpace(s string) bool {
	return s != "" && strings.IndexByte(" \t\n\r\f", s[len(s)-1]) >= 0
}

func hasPrevElement(n *html.Node) bool {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return true
		}
	}
	return false
}
