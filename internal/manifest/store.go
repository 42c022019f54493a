package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a file-backed manifest with atomic write-temp-then-rename
// publishes, serializing concurrent AppendSegment calls through an
// in-process mutex (the manifest file is the serialization point for
// writers, per the component design; a single broker process is the
// only writer in this deployment shape).
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store backed by the manifest file at path. The
// file need not exist yet; Load treats a missing file as empty.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and decodes the current manifest, returning Empty() if
// the file does not exist.
func (s *Store) Load() (*Unified, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("manifest: read %s: %w", s.path, err)
	}
	return Decode(data)
}

// Resolve loads the manifest and resolves shards against it.
func (s *Store) Resolve(shards []uint64) ([]SegRef, map[uint64]uint64, error) {
	u, err := s.Load()
	if err != nil {
		return nil, nil, err
	}
	refs, pin := u.Resolve(shards)
	return refs, pin, nil
}

// AppendSegment performs the monotonic-generation append algorithm
// under the store's lock: read-modify-write, with the write landing
// via a temp file in the same directory, fsynced, then renamed over
// the real manifest path. Creates the manifest (and its directory) if
// absent.
func (s *Store) AppendSegment(shard uint64, path string) (gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Load()
	if err != nil {
		return 0, err
	}
	next, gen := cur.AppendSegment(shard, path)

	data, err := next.Encode()
	if err != nil {
		return 0, fmt.Errorf("manifest: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("manifest: create dir: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("manifest: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return 0, fmt.Errorf("manifest: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("manifest: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("manifest: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return 0, fmt.Errorf("manifest: rename: %w", err)
	}

	return gen, nil
}
