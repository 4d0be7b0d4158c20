package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// styleProp reads one declaration from n's style attribute.
func styleProp(n *html.Node, prop string) string {
	v, _ := attr(n, "style")
	for _, d := range splitDecls(v) {
		if d[0] == prop {
			return d[1]
		}
	}
	return ""
}

// setStyleProp replaces or removes (value == "") one declaration in n's
// style attribute, leaving the others in place.
func setStyleProp(n *html.Node, prop, value string) {
	cur, idx := attr(n, "style")
	var out []string
	found := false
	for _, d := range splitDecls(cur) {
		if d[0] == prop {
			found = true
			if value != "" {
				out = append(out, prop+": "+value)
			}
			continue
		}
		out = append(out, d[0]+": "+d[1])
	}
	if !found && value != "" {
		out = append(out, prop+": "+value)
	}

	style := strings.Join(out, "; ")
	switch {
	case style == "" && idx >= 0:
		n.Attr = append(n.Attr[:idx], n.Attr[idx+1:]...)
	case style == "":
	case idx >= 0:
		n.Attr[idx].Val = style
	default:
		n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: style})
	}
}

func splitDecls(style string) [][2]string {
	var out [][2]string
	for _, part := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, strings.TrimSpace(v)})
	}
	return out
}
