package selector

import (
	"strconv"
	"strings"
)

// Escape serialises s as a CSS identifier, following the CSSOM CSS.escape
// algorithm.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	first := rune(-1)
	i := 0
	for _, c := range s {
		switch {
		case c == 0:
			b.WriteRune('\uFFFD')
		case (c >= 0x1 && c <= 0x1f) || c == 0x7f,
			i == 0 && c >= '0' && c <= '9',
			i == 1 && c >= '0' && c <= '9' && first == '-':
			hexEscape(&b, c)
		case i == 0 && c == '-' && len(s) == 1:
			b.WriteString(`\-`)
		case c >= 0x80, c == '-', c == '_',
			c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
			b.WriteRune(c)
		default:
			b.WriteByte('\\')
			b.WriteRune(c)
		}
		if i == 0 {
			first = c
		}
		i++
	}
	return b.String()
}

func hexEscape(b *strings.Builder, c rune) {
	b.WriteByte('\\')
	b.WriteString(strconv.FormatInt(int64(c), 16))
	b.WriteByte(' ')
}

// unescape decodes CSS escapes in an identifier: "\31 0" -> "10", "\." -> ".".
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		if c != '\\' || i+1 >= len(rs) {
			b.WriteRune(c)
			continue
		}
		i++
		j := i
		for j < len(rs) && j-i < 6 && isHex(rs[j]) {
			j++
		}
		if j == i {
			b.WriteRune(rs[i])
			continue
		}
		v, _ := strconv.ParseInt(string(rs[i:j]), 16, 32)
		if v == 0 || v > 0x10ffff || (v >= 0xd800 && v <= 0xdfff) {
			v = 0xfffd
		}
		b.WriteRune(rune(v))
		if j < len(rs) && isSpace(rs[j]) {
			j++
		}
		i = j - 1
	}
	return b.String()
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
