package hotbuffer

import (
	"encoding/json"
	"errors"
	"testing"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestApplyAddsAndEvictsOnSoftCap(t *testing.T) {
	b := New(2, 10)
	res, err := b.Apply([]json.RawMessage{
		raw(`{"_id":"1","text":"a"}`),
		raw(`{"_id":"2","text":"b"}`),
		raw(`{"_id":"3","text":"c"}`),
	}, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Added != 3 {
		t.Errorf("Added = %d, want 3", res.Added)
	}
	if b.Len() != 2 {
		t.Errorf("Len = %d, want 2 (soft cap eviction)", b.Len())
	}
	snap := b.Snapshot()
	if snap[0].ExtID != "2" || snap[1].ExtID != "3" {
		t.Errorf("unexpected snapshot order: %+v", snap)
	}
}

func TestApplyIdempotentReplay(t *testing.T) {
	b := New(10, 10)
	_, err := b.Apply([]json.RawMessage{raw(`{"_id":"1","text":"a"}`)}, "key-1")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	res, err := b.Apply([]json.RawMessage{raw(`{"_id":"2","text":"b"}`)}, "key-1")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Idempotent || res.Added != 0 {
		t.Errorf("expected idempotent replay with Added=0, got %+v", res)
	}
	if b.Len() != 1 {
		t.Errorf("replay must not add documents, Len = %d", b.Len())
	}
}

func TestApplyBackpressureAtHardCap(t *testing.T) {
	b := New(2, 2)
	_, err := b.Apply([]json.RawMessage{raw(`{"_id":"1"}`), raw(`{"_id":"2"}`)}, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	_, err = b.Apply([]json.RawMessage{raw(`{"_id":"3"}`)}, "")
	var bp Backpressure
	if !errors.As(err, &bp) {
		t.Fatalf("expected Backpressure, got %v", err)
	}
	if bp.RetryAfterMs != DefaultRetryAfterMs {
		t.Errorf("RetryAfterMs = %d, want %d", bp.RetryAfterMs, DefaultRetryAfterMs)
	}
}
