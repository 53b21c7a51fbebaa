package directive

import (
	"strings"
	"testing"
)

type extraction struct {
	text      string
	blocks    []string
	truncated *string
}

func run(e *Extractor, chunks []string) extraction {
	var out extraction
	collect := func(segs []Segment) {
		for _, s := range segs {
			switch s.Kind {
			case SegmentText:
				out.text += s.Text
			case SegmentBlock:
				out.blocks = append(out.blocks, s.Text)
			}
		}
	}
	for _, c := range chunks {
		collect(e.Feed(c))
	}
	tail, truncated := e.Finish()
	collect(tail)
	out.truncated = truncated
	return out
}

func bytesOf(s string) []string {
	chunks := make([]string, len(s))
	for i := range s {
		chunks[i] = s[i : i+1]
	}
	return chunks
}

func sameExtraction(t *testing.T, label string, got, want extraction) {
	t.Helper()
	if got.text != want.text {
		t.Errorf("%s: text = %q, want %q", label, got.text, want.text)
	}
	if strings.Join(got.blocks, "\x00") != strings.Join(want.blocks, "\x00") || len(got.blocks) != len(want.blocks) {
		t.Errorf("%s: blocks = %q, want %q", label, got.blocks, want.blocks)
	}
	if (got.truncated == nil) != (want.truncated == nil) || (got.truncated != nil && *got.truncated != *want.truncated) {
		t.Errorf("%s: truncated = %v, want %v", label, deref(got.truncated), deref(want.truncated))
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestExtractor_NoMarker(t *testing.T) {
	input := "The entrance is on the left. Use `code` and ``` fences freely."
	got := run(NewExtractor("", ""), []string{input[:10], input[10:31], input[31:]})
	if got.text != input {
		t.Errorf("text = %q, want %q", got.text, input)
	}
	if len(got.blocks) != 0 || got.truncated != nil {
		t.Errorf("unexpected block output: %+v", got)
	}
}

func TestExtractor_Block(t *testing.T) {
	input := "Here is the layout:\n```scene\n{\"vizState\":\"overview\"}\n```\nEnjoy."
	got := run(NewExtractor("", ""), []string{input})

	if got.text != "Here is the layout:\n\nEnjoy." {
		t.Errorf("text = %q", got.text)
	}
	if len(got.blocks) != 1 || got.blocks[0] != "{\"vizState\":\"overview\"}\n" {
		t.Errorf("blocks = %q", got.blocks)
	}
}

func TestExtractor_CRLFAfterStartMarker(t *testing.T) {
	got := run(NewExtractor("", ""), []string{"a```scene", "\r", "\n{}```b"})
	if got.text != "ab" {
		t.Errorf("text = %q", got.text)
	}
	if len(got.blocks) != 1 || got.blocks[0] != "{}" {
		t.Errorf("blocks = %q", got.blocks)
	}
}

func TestExtractor_SecondBlockIsText(t *testing.T) {
	input := "a```scene\n{}```b```scene\n{\"x\":1}```c"
	got := run(NewExtractor("", ""), []string{input})

	if len(got.blocks) != 1 || got.blocks[0] != "{}" {
		t.Errorf("blocks = %q", got.blocks)
	}
	if got.text != "ab```scene\n{\"x\":1}```c" {
		t.Errorf("text = %q", got.text)
	}
}

func TestExtractor_Truncated(t *testing.T) {
	got := run(NewExtractor("", ""), []string{"Layout:\n```scene\n{\"vizState\":\"entry\",\"zones\":[", "{\"id\":\"a\"}``"})
	if got.text != "Layout:\n" {
		t.Errorf("text = %q", got.text)
	}
	if got.truncated == nil {
		t.Fatal("expected truncated buffer")
	}
	if *got.truncated != "{\"vizState\":\"entry\",\"zones\":[{\"id\":\"a\"}" {
		t.Errorf("truncated = %q", *got.truncated)
	}
}

func TestExtractor_PartialMarkerAtEnd(t *testing.T) {
	got := run(NewExtractor("", ""), []string{"see ```sc"})
	if got.text != "see ```sc" {
		t.Errorf("withheld prefix must be flushed as text, got %q", got.text)
	}
}

func TestExtractor_CustomMarkers(t *testing.T) {
	got := run(NewExtractor("<scene>", "</scene>"), bytesOf("x<scene>{}</scene>y"))
	if got.text != "xy" || len(got.blocks) != 1 || got.blocks[0] != "{}" {
		t.Errorf("got %+v", got)
	}
}

func TestExtractor_SingleByteMarkers(t *testing.T) {
	input := "Zones ready.\n```scene\n{\"vizState\":\"topdown\",\"zones\":[]}\n```\nDone."
	got := run(NewExtractor("", ""), bytesOf(input))

	if strings.Contains(got.text, "`") || strings.Contains(got.text, "scene") {
		t.Errorf("marker text leaked: %q", got.text)
	}
	if got.text != "Zones ready.\n\nDone." {
		t.Errorf("text = %q", got.text)
	}
	if len(got.blocks) != 1 || got.blocks[0] != "{\"vizState\":\"topdown\",\"zones\":[]}\n" {
		t.Errorf("blocks = %q", got.blocks)
	}
}

func TestExtractor_ChunkBoundaryIndependence(t *testing.T) {
	inputs := []string{
		"Intro ``` not a block ```scene\n{\"vizState\":\"overview\",\"zones\":[{\"id\":\"a\"}]}\n```tail ```scene again",
		"no markers at all, just `ticks` and ``doubles``",
		"```scene\r\n{\"a\":\"``\"}```",
		"prefix ```scene\n{\"vizState\":\"entry\",\"zones\":[{\"id\":\"a\",\"x\":1",
		"``````scene\n```",
	}

	for _, input := range inputs {
		want := run(NewExtractor("", ""), []string{input})

		sameExtraction(t, "bytes", run(NewExtractor("", ""), bytesOf(input)), want)

		for i := 0; i <= len(input); i++ {
			got := run(NewExtractor("", ""), []string{input[:i], input[i:]})
			sameExtraction(t, "split", got, want)

			for j := i; j <= len(input); j += 3 {
				got := run(NewExtractor("", ""), []string{input[:i], input[i:j], input[j:]})
				sameExtraction(t, "split3", got, want)
			}
		}
	}
}

func TestExtractor_ReusableAfterFinish(t *testing.T) {
	e := NewExtractor("", "")
	run(e, []string{"```scene\n{}```"})
	if e.Consumed() {
		t.Error("Finish should reset state")
	}
	got := run(e, []string{"```scene\n{\"b\":1}```"})
	if len(got.blocks) != 1 {
		t.Errorf("blocks = %q", got.blocks)
	}
}
