package manifest

import (
	"path/filepath"
	"testing"
)

func TestStoreAppendSegmentCreatesFileOnFirstWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	s := NewStore(path)

	gen, err := s.AppendSegment(3, "/seg-1")
	if err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	if gen != 1 {
		t.Errorf("gen = %d, want 1", gen)
	}

	refs, pin, err := s.Resolve([]uint64{3})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pin[3] != 1 || len(refs) != 1 || refs[0].Path != "/seg-1" {
		t.Errorf("unexpected resolve result: refs=%+v pin=%v", refs, pin)
	}
}

func TestStoreAppendSegmentIsMonotonicAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	s := NewStore(path)

	if _, err := s.AppendSegment(0, "/a"); err != nil {
		t.Fatalf("first append: %v", err)
	}
	gen, err := s.AppendSegment(0, "/b")
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if gen != 2 {
		t.Errorf("gen = %d, want 2", gen)
	}

	refs, pin, err := s.Resolve([]uint64{0})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pin[0] != 2 {
		t.Errorf("pin = %d, want 2", pin[0])
	}
	if len(refs) != 1 || refs[0].Path != "/b" {
		t.Errorf("expected only latest generation visible, got %+v", refs)
	}
}

func TestStoreResolveOnMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "does-not-exist.json"))
	refs, pin, err := s.Resolve([]uint64{0})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(refs) != 0 || len(pin) != 0 {
		t.Errorf("expected empty resolve on missing manifest, got refs=%+v pin=%v", refs, pin)
	}
}
