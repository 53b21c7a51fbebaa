package directive

import (
	"encoding/json"
	"strings"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Parse decodes a complete block body.
func Parse(raw string) (*domain.Directive, bool) {
	var d domain.Directive
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &d); err != nil {
		return nil, false
	}
	return &d, true
}

// Repair turns a block body cut off mid-stream into a parseable directive.
// It returns false when the body is too fragmentary or still does not parse
// after one repair attempt.
func Repair(raw string) (*domain.Directive, bool) {
	if !strings.Contains(raw, `"vizState"`) || !strings.Contains(raw, `"zones"`) {
		return nil, false
	}

	s := trimOpenString(strings.TrimSpace(raw))
	open := openDelimiters(s)
	s = stripTrailingFragment(s)
	s = closeDelimiters(s, open)

	d, ok := Parse(s)
	if !ok || !d.VizState.Valid() {
		return nil, false
	}
	return d, true
}

// trimOpenString cuts back to the last unescaped quote when a string literal
// is left open. Guessing the rest of the string could inject wrong data.
func trimOpenString(s string) string {
	inString := false
	escaped := false
	lastQuote := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
			lastQuote = i
		}
	}
	if !inString {
		return s
	}
	return s[:lastQuote]
}

// openDelimiters returns the stack of unclosed '{' and '[' outside strings.
func openDelimiters(s string) []byte {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack
}

func closeDelimiters(s string, open []byte) string {
	var b strings.Builder
	b.Grow(len(s) + len(open))
	b.WriteString(s)
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

type tokenKind int

const (
	tokPunct tokenKind = iota
	tokString
	tokScalar
)

type token struct {
	kind  tokenKind
	start int
	punct byte
	// inObject is true when the token sits directly inside an object.
	inObject bool
}

// stripTrailingFragment removes whatever cannot end a valid container:
// a trailing comma, a dangling "key":, or a bare key. A number or literal is
// only removed when it is the very last token, since it may itself be cut short.
func stripTrailingFragment(s string) string {
	toks := tokenize(s)
	n := len(toks)

loop:
	for n > 0 {
		last := toks[n-1]
		switch {
		case last.kind == tokScalar && n == len(toks):
			n--

		case last.kind == tokPunct && last.punct == ',':
			n--

		case last.kind == tokPunct && last.punct == ':':
			n--
			if n > 0 && toks[n-1].kind == tokString {
				n--
			}

		case last.kind == tokString && last.inObject && isKeyPosition(toks[:n-1]):
			n--

		default:
			break loop
		}
	}

	if n == len(toks) {
		return s
	}
	if n == 0 {
		return ""
	}
	return strings.TrimRight(s[:toks[n].start], " \t\r\n")
}

// isKeyPosition reports whether a string following prev would be an object key.
func isKeyPosition(prev []token) bool {
	if len(prev) == 0 {
		return false
	}
	p := prev[len(prev)-1]
	return p.kind == tokPunct && (p.punct == '{' || p.punct == ',')
}

func tokenize(s string) []token {
	var toks []token
	var stack []byte
	inObject := func() bool { return len(stack) > 0 && stack[len(stack)-1] == '{' }

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++

		case c == '"':
			start := i
			i++
			for i < len(s) {
				if s[i] == '\\' {
					i += 2
					continue
				}
				if s[i] == '"' {
					i++
					break
				}
				i++
			}
			if i > len(s) {
				i = len(s)
			}
			toks = append(toks, token{kind: tokString, start: start, inObject: inObject()})

		case c == '{' || c == '[' || c == '}' || c == ']' || c == ':' || c == ',':
			toks = append(toks, token{kind: tokPunct, start: i, punct: c, inObject: inObject()})
			switch c {
			case '{', '[':
				stack = append(stack, c)
			case '}', ']':
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			}
			i++

		default:
			start := i
			for i < len(s) && !strings.ContainsRune(" \t\r\n\"{}[]:,", rune(s[i])) {
				i++
			}
			toks = append(toks, token{kind: tokScalar, start: start, inObject: inObject()})
		}
	}
	return toks
}
