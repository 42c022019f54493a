// Package ingest implements the write path: hot-buffer apply, WAL
// append, compaction, and manifest publish, with non-fatal partial
// failure surfaced back to the caller rather than aborting the batch.
package ingest

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/cascad/grepzilla/internal/apperr"
	"github.com/cascad/grepzilla/internal/hotbuffer"
	"github.com/cascad/grepzilla/internal/obs"
)

// HotApplier is the write side of the hot buffer, as consumed by the
// ingest coordinator.
type HotApplier interface {
	Apply(docs []json.RawMessage, idempotencyKey string) (hotbuffer.ApplyResult, error)
}

// WalAppender appends a batch to the write-ahead log and returns the
// path of the file it landed in.
type WalAppender interface {
	AppendBatch(batch []json.RawMessage) (path string, count int, err error)
}

// SegmentWriter turns one WAL file into a segment directory.
type SegmentWriter interface {
	WalToSegment(walPath string) (segDir string, warning error)
}

// ManifestAppender publishes a segment path under a shard's next
// generation.
type ManifestAppender interface {
	AppendSegment(shard uint64, path string) (gen uint64, err error)
}

// Result is the POST /ingest response body.
type Result struct {
	OK            bool   `json:"ok"`
	HotAdded      int    `json:"hot_added"`
	Idempotent    bool   `json:"idempotent"`
	BacklogMs     *int64 `json:"backlog_ms,omitempty"`
	SegmentError  string `json:"segment_error,omitempty"`
	ManifestError string `json:"manifest_error,omitempty"`
	WalPath       string `json:"-"`
	SegmentPath   string `json:"-"`
}

// Coordinator orchestrates one ingest batch end to end. Manifest may be
// nil, meaning no manifest is configured for this broker instance.
type Coordinator struct {
	Hot      HotApplier
	WAL      WalAppender
	Compact  SegmentWriter
	Manifest ManifestAppender // nil disables manifest publish
	Shard    uint64
	log      zerolog.Logger
}

// NewCoordinator builds a Coordinator from its dependencies.
func NewCoordinator(hot HotApplier, w WalAppender, c SegmentWriter, m ManifestAppender, shard uint64) *Coordinator {
	return &Coordinator{Hot: hot, WAL: w, Compact: c, Manifest: m, Shard: shard, log: obs.New("ingest")}
}

// Ingest runs spec.md §4.13's pipeline: hot-buffer apply (short-
// circuiting on backpressure or idempotent replay), WAL append,
// compaction, and a manifest publish retried once on failure. Every
// stage past the hot-buffer apply is non-fatal: its failure is
// reported as a response field, never as a returned error.
func (c *Coordinator) Ingest(docs []json.RawMessage, idempotencyKey string) (Result, error) {
	applyRes, err := c.Hot.Apply(docs, idempotencyKey)
	if err != nil {
		var bp hotbuffer.Backpressure
		if errors.As(err, &bp) {
			ms := bp.RetryAfterMs
			return Result{BacklogMs: &ms}, apperr.New(apperr.KindBackpressure, "ingest.Ingest", bp)
		}
		return Result{}, err
	}
	if applyRes.Idempotent {
		return Result{OK: true, Idempotent: true}, nil
	}

	res := Result{OK: true, HotAdded: applyRes.Added}
	if applyRes.HasBacklog {
		ms := applyRes.BacklogMs
		res.BacklogMs = &ms
	}

	walPath, _, err := c.WAL.AppendBatch(docs)
	if err != nil {
		walErr := apperr.New(apperr.KindWAL, "ingest.Ingest", err)
		c.log.Warn().Err(walErr).Msg("wal append failed, batch stays hot-buffer-only")
		res.SegmentError = walErr.Error()
		return res, nil
	}
	res.WalPath = walPath

	segPath, warn := c.Compact.WalToSegment(walPath)
	if segPath == "" {
		segErr := apperr.New(apperr.KindSegment, "ingest.Ingest", warn)
		c.log.Warn().Err(segErr).Str("wal", walPath).Msg("compaction failed")
		res.SegmentError = segErr.Error()
		return res, nil
	}
	res.SegmentPath = segPath

	if c.Manifest != nil {
		if _, err := c.Manifest.AppendSegment(c.Shard, segPath); err != nil {
			if _, err2 := c.Manifest.AppendSegment(c.Shard, segPath); err2 != nil {
				manifestErr := apperr.New(apperr.KindManifest, "ingest.Ingest", err2)
				c.log.Error().Err(manifestErr).Str("segment", segPath).Msg("manifest publish failed after retry")
				res.ManifestError = manifestErr.Error()
			}
		}
	}

	return res, nil
}
