package preview

import (
	"strings"
	"testing"

	"github.com/cascad/grepzilla/internal/segment"
)

func doc(fields ...segment.FieldValue) *segment.StoredDoc {
	return &segment.StoredDoc{ExtID: "x", Fields: fields}
}

func TestBuildHighlightsMatch(t *testing.T) {
	d := doc(segment.FieldValue{Name: "body", Text: "the quick brown fox jumps over the lazy dog"})
	out := Build(d, Options{PreferredFields: []string{"body"}, MaxLen: 20, HighlightNeedle: "brown"})
	if !strings.Contains(out, "[brown]") {
		t.Errorf("expected bracketed match, got %q", out)
	}
}

func TestBuildTruncatesWithoutNeedle(t *testing.T) {
	d := doc(segment.FieldValue{Name: "body", Text: strings.Repeat("a", 50)})
	out := Build(d, Options{PreferredFields: []string{"body"}, MaxLen: 10})
	if !strings.HasSuffix(out, "…") {
		t.Errorf("expected ellipsis truncation, got %q", out)
	}
}

func TestBuildCaseInsensitive(t *testing.T) {
	d := doc(segment.FieldValue{Name: "body", Text: "Hello World"})
	out := Build(d, Options{PreferredFields: []string{"body"}, MaxLen: 20, HighlightNeedle: "world"})
	if !strings.Contains(out, "[World]") {
		t.Errorf("expected case-insensitive bracketed match, got %q", out)
	}
}

func TestBuildEmptyDocReturnsEmpty(t *testing.T) {
	d := doc()
	out := Build(d, Options{PreferredFields: []string{"body"}, MaxLen: 20})
	if out != "" {
		t.Errorf("expected empty preview, got %q", out)
	}
}
