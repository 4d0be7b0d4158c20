// Package selector builds and resolves short CSS selectors for elements of a
// parsed HTML document.
//
// Generate walks from an element toward the root, emitting one compound per
// level (tag, classes, :nth-of-type) and stopping at the first ancestor that
// looks like a stable anchor: one with an id or exactly one class. The
// result is likely unique, not guaranteed unique. Use QueryFirst to check.
package selector

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Separator joins path segments.
const Separator = " > "

// Generate returns a selector for el. An element with a non-empty id yields
// "#<escaped id>" and nothing else.
func Generate(el *html.Node) string {
	if el == nil || el.Type != html.ElementNode {
		return ""
	}
	if id := attr(el, "id"); id != "" {
		return "#" + Escape(id)
	}

	var path []string
	n := el
	for n != nil && n.Type == html.ElementNode {
		path = append(path, segment(n))
		if isAnchor(n.Parent) {
			break
		}
		n = n.Parent
	}

	if n != nil && isAnchor(n.Parent) {
		path = append(path, anchor(n.Parent))
	}

	// path was built element-to-root.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, Separator)
}

// segment renders tag, classes and nth-of-type for one element.
func segment(n *html.Node) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(n.Data))
	for _, c := range Classes(n) {
		b.WriteByte('.')
		b.WriteString(Escape(c))
	}
	if nth := NthOfType(n); nth > 1 {
		b.WriteString(":nth-of-type(")
		b.WriteString(strconv.Itoa(nth))
		b.WriteByte(')')
	}
	return b.String()
}

// isAnchor reports whether n has an id or exactly one class. Document and
// nil nodes are never anchors.
func isAnchor(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return attr(n, "id") != "" || len(Classes(n)) == 1
}

func anchor(n *html.Node) string {
	if id := attr(n, "id"); id != "" {
		return "#" + Escape(id)
	}
	return "." + Escape(Classes(n)[0])
}

// NthOfType returns 1 + the number of preceding element siblings sharing
// n's tag name.
func NthOfType(n *html.Node) int {
	tag := strings.ToLower(n.Data)
	nth := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && strings.ToLower(s.Data) == tag {
			nth++
		}
	}
	return nth
}

// Classes returns the class tokens of n in attribute order, without empty
// or whitespace-only entries.
func Classes(n *html.Node) []string {
	return strings.Fields(attr(n, "class"))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
