package uidriver

import (
	"strconv"
	"strings"
)

// With substitutes the "%s" placeholder in the selector with value, quoted for
// the selector's language. Selectors without a placeholder are returned as is.
func (s Selector) With(value string) Selector {
	if !strings.Contains(s.Query, "%s") {
		return s
	}
	quoted := CSSString(value)
	if s.XPath {
		quoted = XPathLiteral(value)
	}
	return Selector{Query: strings.ReplaceAll(s.Query, "%s", quoted), XPath: s.XPath}
}

// XPathLiteral renders value as an XPath 1.0 string literal. XPath has no
// escape syntax, so values containing both quote kinds are built with concat().
func XPathLiteral(value string) string {
	if !strings.Contains(value, "'") {
		return "'" + value + "'"
	}
	if !strings.Contains(value, `"`) {
		return `"` + value + `"`
	}
	parts := strings.Split(value, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + p + "'")
	}
	b.WriteString(")")
	return b.String()
}

// CSSString renders value as a double-quoted CSS string. Quotes and
// backslashes are backslash-escaped and control characters become hex escapes
// terminated by a space, so the value never ends the string or the rule.
func CSSString(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('"')
	for _, r := range value {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			b.WriteByte('\\')
			b.WriteString(strconv.FormatInt(int64(r), 16))
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
