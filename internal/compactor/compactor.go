// Package compactor turns a WAL file into an on-disk segment directory.
package compactor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/cascad/grepzilla/internal/obs"
	"github.com/cascad/grepzilla/internal/segment"
)

// Compactor writes segment directories under OutDir.
type Compactor struct {
	OutDir string
	log    zerolog.Logger
}

// New returns a Compactor rooted at outDir.
func New(outDir string) *Compactor {
	return &Compactor{OutDir: outDir, log: obs.New("compactor")}
}

// WalToSegment copies walPath's contents into a new segment directory
// named by millisecond timestamp, builds the binary segment files from
// it via segment.WriteSegment, and removes the intermediate docs.jsonl
// copy. Checksum validation against the WAL's sidecar is best-effort: a
// missing or mismatched sidecar is logged here and returned as warning
// for the caller to fold into its own result, never fatal.
func (c *Compactor) WalToSegment(walPath string) (segDir string, warning error) {
	warning = validateChecksumBestEffort(walPath)
	if warning != nil {
		c.log.Warn().Str("wal", walPath).Err(warning).Msg("checksum validation failed, compacting anyway")
	}

	ts := time.Now().UnixMilli()
	segDir = filepath.Join(c.OutDir, fmt.Sprintf("%015d", ts))
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return "", fmt.Errorf("compactor: create segment dir: %w", err)
	}

	data, err := os.ReadFile(walPath)
	if err != nil {
		return "", fmt.Errorf("compactor: read wal: %w", err)
	}
	docsPath := filepath.Join(segDir, "docs.jsonl")
	if err := os.WriteFile(docsPath, data, 0o644); err != nil {
		return "", fmt.Errorf("compactor: write docs.jsonl: %w", err)
	}

	if err := segment.WriteSegment(docsPath, segDir); err != nil {
		return "", fmt.Errorf("compactor: write segment: %w", err)
	}

	_ = os.Remove(docsPath)

	return segDir, warning
}

// validateChecksumBestEffort probes for a checksum sidecar next to
// walPath, accepting either the wal package's own ".xxh3" naming or a
// recovered ".crc32c" alternative, and returns a non-nil error only to
// report to the caller as a warning — never to abort compaction.
func validateChecksumBestEffort(walPath string) error {
	type candidate struct {
		path string
		algo string
	}
	ext := filepath.Ext(walPath)
	base := strings.TrimSuffix(walPath, ext)
	candidates := []candidate{
		{base + ".xxh3", "xxh3"},
		{walPath + ".xxh3", "xxh3"},
		{base + ".crc32c", "crc32c"},
		{walPath + ".crc32c", "crc32c"},
	}

	var sidecar *candidate
	for i := range candidates {
		if _, err := os.Stat(candidates[i].path); err == nil {
			sidecar = &candidates[i]
			break
		}
	}
	if sidecar == nil {
		return fmt.Errorf("compactor: no checksum sidecar found for %s", walPath)
	}

	data, err := os.ReadFile(walPath)
	if err != nil {
		return fmt.Errorf("compactor: read wal for checksum: %w", err)
	}
	wantRaw, err := os.ReadFile(sidecar.path)
	if err != nil {
		return fmt.Errorf("compactor: read sidecar: %w", err)
	}
	want := strings.TrimSpace(string(wantRaw))

	var have string
	switch sidecar.algo {
	case "xxh3":
		have = fmt.Sprintf("%016x", xxhash.Sum64(data))
	case "crc32c":
		have = fmt.Sprintf("%08x", crc32cOf(data))
	default:
		return fmt.Errorf("compactor: unknown sidecar algorithm %q", sidecar.algo)
	}

	if have != want {
		return fmt.Errorf("compactor: wal checksum mismatch: have=%s want=%s sidecar=%s", have, want, sidecar.path)
	}
	return nil
}
