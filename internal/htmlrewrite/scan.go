package htmlrewrite

import (
	"bytes"
)

// attrSpan locates one attribute inside a raw start tag. valStart:valEnd covers
// the value without its quotes.
type attrSpan struct {
	valStart, valEnd int
	quote            byte
	hasValue         bool
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\n', '\r', '\t', '\f':
		return true
	}
	return false
}

// tagName returns the lower-cased element name of a raw start tag.
func tagName(raw []byte) string {
	if len(raw) < 2 || raw[0] != '<' {
		return ""
	}
	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	return string(bytes.ToLower(raw[1:i]))
}

// findAttr returns the first attribute named name (lower case) in raw. The
// scan follows the tokenizer's attribute rules so the span it reports is the
// same attribute the tokenizer sees.
func findAttr(raw []byte, name string) (attrSpan, bool) {
	n := len(raw)
	i := 1
	for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}

	for i < n {
		for i < n && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= n || raw[i] == '>' {
			return attrSpan{}, false
		}

		// A leading '=' belongs to the attribute name.
		keyStart := i
		i++
		for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '=' && raw[i] != '>' {
			i++
		}
		key := raw[keyStart:i]

		j := i
		for j < n && isSpace(raw[j]) {
			j++
		}
		var span attrSpan
		if j < n && raw[j] == '=' {
			j++
			for j < n && isSpace(raw[j]) {
				j++
			}
			span.hasValue = true
			switch {
			case j < n && (raw[j] == '"' || raw[j] == '\''):
				span.quote = raw[j]
				span.valStart = j + 1
				k := bytes.IndexByte(raw[j+1:], span.quote)
				if k < 0 {
					// Unterminated: the tokenizer would not have produced a tag.
					return attrSpan{}, false
				}
				span.valEnd = j + 1 + k
				i = span.valEnd + 1
			default:
				span.valStart = j
				for j < n && !isSpace(raw[j]) && raw[j] != '>' {
					j++
				}
				span.valEnd = j
				i = j
			}
		}

		if string(bytes.ToLower(key)) == name {
			return span, true
		}
	}
	return attrSpan{}, false
}
