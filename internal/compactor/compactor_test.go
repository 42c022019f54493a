package compactor

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"

	"github.com/cascad/grepzilla/internal/segment"
)

func writeWal(t *testing.T, dir string, withSidecar bool) string {
	t.Helper()
	path := filepath.Join(dir, "0000000000001000-abc.jsonl")
	data := []byte("{\"_id\":\"1\",\"body\":\"hello world\"}\n{\"_id\":\"2\",\"body\":\"goodbye\"}\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write wal: %v", err)
	}
	if withSidecar {
		sum := xxhash.Sum64(data)
		sidecar := path[:len(path)-len(".jsonl")] + ".xxh3"
		if err := os.WriteFile(sidecar, []byte(fmt.Sprintf("%016x", sum)), 0o644); err != nil {
			t.Fatalf("write sidecar: %v", err)
		}
	}
	return path
}

func TestWalToSegmentProducesReadableSegment(t *testing.T) {
	walDir := t.TempDir()
	outDir := t.TempDir()
	walPath := writeWal(t, walDir, true)

	c := New(outDir)
	segDir, warn := c.WalToSegment(walPath)
	if warn != nil {
		t.Errorf("unexpected checksum warning: %v", warn)
	}
	if segDir == "" {
		t.Fatal("expected non-empty segment dir")
	}

	if _, err := os.Stat(filepath.Join(segDir, "docs.jsonl")); !os.IsNotExist(err) {
		t.Errorf("intermediate docs.jsonl should be removed after segment write")
	}

	r, err := segment.Open(segDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.DocCount() != 2 {
		t.Errorf("DocCount = %d, want 2", r.DocCount())
	}
	bm, err := r.Prefilter(segment.OpAnd, []string{"hel", "ell", "llo"}, "")
	if err != nil {
		t.Fatalf("Prefilter: %v", err)
	}
	if bm.GetCardinality() != 1 {
		t.Errorf("expected exactly one doc matching 'hel'/'ell'/'llo', got %d", bm.GetCardinality())
	}
}

func TestWalToSegmentMissingSidecarIsNonFatal(t *testing.T) {
	walDir := t.TempDir()
	outDir := t.TempDir()
	walPath := writeWal(t, walDir, false)

	c := New(outDir)
	segDir, warn := c.WalToSegment(walPath)
	if warn == nil {
		t.Errorf("expected a warning for missing checksum sidecar")
	}
	if segDir == "" {
		t.Fatal("expected compaction to still succeed without a sidecar")
	}
}

func TestWalToSegmentCorruptSidecarIsNonFatal(t *testing.T) {
	walDir := t.TempDir()
	outDir := t.TempDir()
	walPath := writeWal(t, walDir, true)

	sidecar := walPath[:len(walPath)-len(".jsonl")] + ".xxh3"
	if err := os.WriteFile(sidecar, []byte("0000000000000000"), 0o644); err != nil {
		t.Fatalf("corrupt sidecar: %v", err)
	}

	c := New(outDir)
	segDir, warn := c.WalToSegment(walPath)
	if warn == nil {
		t.Errorf("expected a warning for checksum mismatch")
	}
	if segDir == "" {
		t.Fatal("expected compaction to still succeed despite checksum mismatch")
	}
}
