// Package directive pulls the scene directive out of streamed model text,
// repairs blocks cut off by generation limits, and validates the result
// against the layout rules renderers rely on.
package directive

import "strings"

// Default markers around the embedded block.
const (
	DefaultStartMarker = "```scene"
	DefaultEndMarker   = "```"
)

// SegmentKind discriminates Segment.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentBlock
)

// Segment is one piece of extractor output. For SegmentBlock, Text holds the
// raw block body without markers.
type Segment struct {
	Kind SegmentKind
	Text string
}

type extractorState int

const (
	statePlain extractorState = iota
	stateInsideBlock
)

// Extractor splits a stream of text deltas into plain text and at most one
// delimited block. Output is independent of how the input is chunked.
// An Extractor is not safe for concurrent use.
type Extractor struct {
	start, end string

	state    extractorState
	consumed bool

	// carry holds a suffix withheld because it may be the start of a marker.
	carry string
	block strings.Builder

	// skipBreak is set right after the start marker until the first byte of
	// the block is seen.
	skipBreak bool
}

// NewExtractor returns an extractor for the given markers. Empty markers fall
// back to the defaults.
func NewExtractor(start, end string) *Extractor {
	if start == "" {
		start = DefaultStartMarker
	}
	if end == "" {
		end = DefaultEndMarker
	}
	return &Extractor{start: start, end: end}
}

// Feed consumes one delta and returns whatever can be released so far.
func (e *Extractor) Feed(delta string) []Segment {
	s := e.carry + delta
	e.carry = ""

	var out []Segment
	emit := func(kind SegmentKind, text string) {
		if text == "" && kind == SegmentText {
			return
		}
		if kind == SegmentText && len(out) > 0 && out[len(out)-1].Kind == SegmentText {
			out[len(out)-1].Text += text
			return
		}
		out = append(out, Segment{Kind: kind, Text: text})
	}

	for s != "" {
		if e.state == statePlain {
			if e.consumed {
				emit(SegmentText, s)
				return out
			}
			if i := strings.Index(s, e.start); i >= 0 {
				emit(SegmentText, s[:i])
				s = s[i+len(e.start):]
				e.state = stateInsideBlock
				e.block.Reset()
				e.skipBreak = true
				continue
			}
			k := markerPrefixSuffix(s, e.start)
			emit(SegmentText, s[:len(s)-k])
			e.carry = s[len(s)-k:]
			return out
		}

		if e.skipBreak {
			switch {
			case s == "\r":
				e.carry = s
				return out
			case strings.HasPrefix(s, "\r\n"):
				s = s[2:]
			case strings.HasPrefix(s, "\n"):
				s = s[1:]
			}
			e.skipBreak = false
			if s == "" {
				return out
			}
		}

		if i := strings.Index(s, e.end); i >= 0 {
			e.block.WriteString(s[:i])
			emit(SegmentBlock, e.block.String())
			e.block.Reset()
			s = s[i+len(e.end):]
			e.state = statePlain
			e.consumed = true
			continue
		}
		k := markerPrefixSuffix(s, e.end)
		e.block.WriteString(s[:len(s)-k])
		e.carry = s[len(s)-k:]
		return out
	}
	return out
}

// Finish flushes withheld text at end of stream. When the stream ended inside
// a block, truncated points at the accumulated block body; a trailing partial
// end marker is not part of it.
func (e *Extractor) Finish() (tail []Segment, truncated *string) {
	defer e.reset()

	if e.state == statePlain {
		if e.carry != "" {
			tail = []Segment{{Kind: SegmentText, Text: e.carry}}
		}
		return tail, nil
	}

	body := e.block.String()
	return nil, &body
}

// Consumed reports whether a complete block has been seen.
func (e *Extractor) Consumed() bool {
	return e.consumed
}

func (e *Extractor) reset() {
	e.state = statePlain
	e.consumed = false
	e.carry = ""
	e.block.Reset()
	e.skipBreak = false
}

// markerPrefixSuffix returns the length of the longest proper prefix of marker
// that s ends with.
func markerPrefixSuffix(s, marker string) int {
	n := len(marker) - 1
	if len(s) < n {
		n = len(s)
	}
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, marker[:k]) {
			return k
		}
	}
	return 0
}
