package segment

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir string, lines []string) string {
	t.Helper()
	in := filepath.Join(dir, "input.jsonl")
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(in, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return in
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, []string{
		`{"_id":"doc-1","text":{"body":"the quick brown fox"}}`,
		`{"_id":"doc-2","text":{"body":"the lazy dog sleeps"}}`,
	})
	out := filepath.Join(dir, "seg")
	if err := WriteSegment(in, out); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}

	r, err := OpenBin(out)
	if err != nil {
		t.Fatalf("OpenBin: %v", err)
	}
	defer r.Close()

	if r.DocCount() != 2 {
		t.Fatalf("DocCount = %d, want 2", r.DocCount())
	}

	bm, err := r.Prefilter(OpAnd, []string{"qui", "uic", "ick"}, "")
	if err != nil {
		t.Fatalf("Prefilter: %v", err)
	}
	if !bm.ContainsInt(0) || bm.GetCardinality() != 1 {
		t.Fatalf("Prefilter result = %v, want {0}", bm.ToArray())
	}

	doc, ok := r.GetDoc(0)
	if !ok {
		t.Fatal("GetDoc(0) not found")
	}
	if doc.ExtID != "doc-1" {
		t.Errorf("ExtID = %q, want doc-1", doc.ExtID)
	}
	text, ok := doc.Get("text.body")
	if !ok || text != "the quick brown fox" {
		t.Errorf("text.body = %q, ok=%v", text, ok)
	}
}

func TestPrefilterUnknownFieldIsEmpty(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, []string{`{"_id":"doc-1","text":{"body":"hello world"}}`})
	out := filepath.Join(dir, "seg")
	if err := WriteSegment(in, out); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
	r, err := OpenBin(out)
	if err != nil {
		t.Fatalf("OpenBin: %v", err)
	}
	defer r.Close()

	bm, err := r.Prefilter(OpAnd, []string{"hel", "ell", "llo"}, "no.such.field")
	if err != nil {
		t.Fatalf("Prefilter: %v", err)
	}
	if bm.GetCardinality() != 0 {
		t.Errorf("expected empty bitmap for unknown field, got %v", bm.ToArray())
	}
}

func TestPrefilterMissingGramShortCircuitsAnd(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, []string{`{"_id":"doc-1","text":{"body":"hello world"}}`})
	out := filepath.Join(dir, "seg")
	if err := WriteSegment(in, out); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
	r, err := OpenBin(out)
	if err != nil {
		t.Fatalf("OpenBin: %v", err)
	}
	defer r.Close()

	bm, err := r.Prefilter(OpAnd, []string{"hel", "zzz"}, "")
	if err != nil {
		t.Fatalf("Prefilter: %v", err)
	}
	if bm.GetCardinality() != 0 {
		t.Errorf("expected empty bitmap on missing AND gram, got %v", bm.ToArray())
	}
}
