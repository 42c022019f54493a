package ingest

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/cascad/grepzilla/internal/hotbuffer"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

type fakeHot struct {
	result hotbuffer.ApplyResult
	err    error
	calls  int
}

func (f *fakeHot) Apply(docs []json.RawMessage, key string) (hotbuffer.ApplyResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeWAL struct {
	path string
	err  error
}

func (f *fakeWAL) AppendBatch(batch []json.RawMessage) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.path, len(batch), nil
}

type fakeCompactor struct {
	segDir  string
	warning error
}

func (f *fakeCompactor) WalToSegment(walPath string) (string, error) {
	return f.segDir, f.warning
}

type fakeManifest struct {
	failures int
	gen      uint64
	err      error
	calls    int
}

func (f *fakeManifest) AppendSegment(shard uint64, path string) (uint64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("manifest append failed")
	}
	return f.gen, f.err
}

func TestIngestBackpressureShortCircuits(t *testing.T) {
	hot := &fakeHot{err: hotbuffer.Backpressure{RetryAfterMs: 1500}}
	c := NewCoordinator(hot, &fakeWAL{}, &fakeCompactor{}, nil, 0)

	res, err := c.Ingest([]json.RawMessage{raw(`{"_id":"1"}`)}, "")
	if err == nil {
		t.Fatal("expected a backpressure error")
	}
	if res.BacklogMs == nil || *res.BacklogMs != 1500 {
		t.Errorf("BacklogMs = %v, want 1500", res.BacklogMs)
	}
}

func TestIngestIdempotentReplaySkipsDiskWork(t *testing.T) {
	hot := &fakeHot{result: hotbuffer.ApplyResult{Idempotent: true}}
	wal := &fakeWAL{path: "should-not-be-read"}
	c := NewCoordinator(hot, wal, &fakeCompactor{}, nil, 0)

	res, err := c.Ingest([]json.RawMessage{raw(`{"_id":"1"}`)}, "key-1")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !res.Idempotent || !res.OK {
		t.Errorf("expected OK idempotent replay, got %+v", res)
	}
	if res.HotAdded != 0 {
		t.Errorf("HotAdded = %d, want 0", res.HotAdded)
	}
}

func TestIngestWalFailureIsNonFatal(t *testing.T) {
	hot := &fakeHot{result: hotbuffer.ApplyResult{Added: 1}}
	wal := &fakeWAL{err: errors.New("disk full")}
	c := NewCoordinator(hot, wal, &fakeCompactor{}, nil, 0)

	res, err := c.Ingest([]json.RawMessage{raw(`{"_id":"1"}`)}, "")
	if err != nil {
		t.Fatalf("Ingest should not return an error for a WAL failure: %v", err)
	}
	if !res.OK || res.HotAdded != 1 {
		t.Errorf("expected OK=true, HotAdded=1 despite WAL failure, got %+v", res)
	}
	if res.SegmentError == "" {
		t.Errorf("expected segment_error to be populated")
	}
}

func TestIngestManifestRetriesOnceThenSucceeds(t *testing.T) {
	hot := &fakeHot{result: hotbuffer.ApplyResult{Added: 1}}
	wal := &fakeWAL{path: "/wal/0001.jsonl"}
	comp := &fakeCompactor{segDir: "/segments/0001"}
	mf := &fakeManifest{failures: 1, gen: 2}
	c := NewCoordinator(hot, wal, comp, mf, 3)

	res, err := c.Ingest([]json.RawMessage{raw(`{"_id":"1"}`)}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ManifestError != "" {
		t.Errorf("expected no manifest_error after retry succeeds, got %q", res.ManifestError)
	}
	if mf.calls != 2 {
		t.Errorf("expected exactly one retry (2 calls), got %d", mf.calls)
	}
}

func TestIngestManifestFailsTwiceSurfacesError(t *testing.T) {
	hot := &fakeHot{result: hotbuffer.ApplyResult{Added: 1}}
	wal := &fakeWAL{path: "/wal/0001.jsonl"}
	comp := &fakeCompactor{segDir: "/segments/0001"}
	mf := &fakeManifest{failures: 2}
	c := NewCoordinator(hot, wal, comp, mf, 3)

	res, err := c.Ingest([]json.RawMessage{raw(`{"_id":"1"}`)}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ManifestError == "" {
		t.Errorf("expected manifest_error to be populated")
	}
	if !res.OK {
		t.Errorf("manifest failure must not flip OK to false")
	}
}
