package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cascad/grepzilla/internal/manifest"
	"github.com/cascad/grepzilla/internal/segment"
)

func buildSegment(t *testing.T, dir string, docs []string) string {
	t.Helper()
	inputPath := filepath.Join(t.TempDir(), "docs.jsonl")
	var data []byte
	for i, body := range docs {
		line := `{"_id":"ext-` + itoa(i) + `","body":"` + body + `"}` + "\n"
		data = append(data, []byte(line)...)
	}
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := segment.WriteJSONSegment(inputPath, dir); err != nil {
		t.Fatalf("WriteJSONSegment: %v", err)
	}
	return dir
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

type fakeManifestLoader struct {
	u *manifest.Unified
}

func (f *fakeManifestLoader) Load() (*manifest.Unified, error) { return f.u, nil }

func TestHandleRawSegmentsMatchesWildcard(t *testing.T) {
	segDir := buildSegment(t, t.TempDir(), []string{
		"the quick brown fox",
		"goodbye cruel world",
	})

	c := NewCoordinator(nil, nil, 4, 10000)
	resp, err := c.Handle(context.Background(), Request{
		Wildcard: "*brown*",
		Segments: []string{segDir},
		Page:     PageIn{Size: 10},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(resp.Hits), resp.Hits)
	}
	if resp.Hits[0].ExtID != "ext-0" {
		t.Errorf("ExtID = %q, want ext-0", resp.Hits[0].ExtID)
	}
	if resp.Hits[0].Preview == "" {
		t.Errorf("expected non-empty preview")
	}
}

func TestHandlePatternTooWeakReturnsError(t *testing.T) {
	c := NewCoordinator(nil, nil, 4, 10000)
	_, err := c.Handle(context.Background(), Request{
		Wildcard: "a*b",
		Page:     PageIn{Size: 10},
	})
	if err == nil {
		t.Fatal("expected an error for a pattern with no 3-char literal run")
	}
}

func TestHandleShardResolutionUsesManifest(t *testing.T) {
	segDir := buildSegment(t, t.TempDir(), []string{"hello world"})

	u := manifest.Empty()
	next, _ := u.AppendSegment(1, segDir)

	c := NewCoordinator(&fakeManifestLoader{u: next}, nil, 4, 10000)
	resp, err := c.Handle(context.Background(), Request{
		Wildcard: "*hello*",
		Shards:   []uint64{1},
		Page:     PageIn{Size: 10},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(resp.Hits))
	}
	if resp.Cursor.PinGen[1] != 1 {
		t.Errorf("PinGen[1] = %d, want 1", resp.Cursor.PinGen[1])
	}
}

func TestHandleNoMatchingSegmentsReturnsEmptyPage(t *testing.T) {
	c := NewCoordinator(nil, nil, 4, 10000)
	resp, err := c.Handle(context.Background(), Request{
		Wildcard: "*nothing*",
		Page:     PageIn{Size: 10},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.Hits) != 0 {
		t.Errorf("expected no hits, got %d", len(resp.Hits))
	}
}

type fakeHotBuffer struct {
	docs []segment.StoredDoc
}

func (f *fakeHotBuffer) Snapshot() []segment.StoredDoc { return f.docs }

func TestHandleFusesHotBuffer(t *testing.T) {
	hot := &fakeHotBuffer{docs: []segment.StoredDoc{
		{ExtID: "hot-1", Fields: []segment.FieldValue{{Name: "body", Text: "fresh brown fox"}}},
	}}

	c := NewCoordinator(nil, hot, 4, 10000)
	resp, err := c.Handle(context.Background(), Request{
		Wildcard: "*brown*",
		Page:     PageIn{Size: 10},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].ExtID != "hot-1" {
		t.Fatalf("expected one hit from the hot buffer, got %+v", resp.Hits)
	}
}
