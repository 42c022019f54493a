// Package hotbuffer implements the bounded in-memory FIFO of recently
// ingested documents that queries fuse with segment results before a
// batch has been compacted to disk.
package hotbuffer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cascad/grepzilla/internal/normalize"
	"github.com/cascad/grepzilla/internal/segment"
)

// DefaultRetryAfterMs is the fixed backpressure hint returned when the
// buffer is at its hard cap.
const DefaultRetryAfterMs = 1500

// ApplyResult is the outcome of a successful (non-backpressured) Apply.
type ApplyResult struct {
	Added      int
	Idempotent bool
	BacklogMs  int64
	HasBacklog bool
}

// Backpressure is returned by Apply when the buffer is at its hard cap.
type Backpressure struct {
	RetryAfterMs int64
}

func (Backpressure) Error() string { return "hotbuffer: backpressure" }

// Buffer is a bounded FIFO of StoredDoc with an idempotency-key dedup set.
// Soft cap triggers front-eviction after a push; hard cap rejects new
// pushes with Backpressure.
type Buffer struct {
	mu       sync.RWMutex
	docs     []segment.StoredDoc
	seenKeys map[string]struct{}
	softCap  int
	hardCap  int
}

// New returns a Buffer with the given soft capacity (eviction threshold)
// and hard capacity (backpressure threshold). If hardCap <= 0 it defaults
// to softCap, matching the "equal to cap by default" rule.
func New(softCap, hardCap int) *Buffer {
	if hardCap <= 0 {
		hardCap = softCap
	}
	return &Buffer{
		seenKeys: make(map[string]struct{}),
		softCap:  softCap,
		hardCap:  hardCap,
	}
}

// Len returns the current document count.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}

// Clear empties the buffer and its idempotency set.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = nil
	b.seenKeys = make(map[string]struct{})
}

// Snapshot returns a cheap copy of the buffer's current document
// references, safe to iterate without holding any lock.
func (b *Buffer) Snapshot() []segment.StoredDoc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]segment.StoredDoc, len(b.docs))
	copy(out, b.docs)
	return out
}

// Apply normalizes and appends docs (raw decoded JSON values), honoring
// the idempotency key and backpressure rules:
//
//   - If idempotencyKey is non-empty and has been seen before, returns
//     ApplyResult{Added: 0, Idempotent: true} without side effects.
//   - If the buffer is at its hard cap, returns Backpressure.
//   - Otherwise each document's string leaves are normalized, it is
//     pushed to the back, and documents are evicted from the front until
//     the buffer is at or below its soft cap.
func (b *Buffer) Apply(docs []json.RawMessage, idempotencyKey string) (ApplyResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idempotencyKey != "" {
		if _, seen := b.seenKeys[idempotencyKey]; seen {
			return ApplyResult{Added: 0, Idempotent: true}, nil
		}
	}

	if len(b.docs) >= b.hardCap {
		return ApplyResult{}, Backpressure{RetryAfterMs: DefaultRetryAfterMs}
	}

	added := 0
	for _, raw := range docs {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		doc := decodeDoc(v)
		b.docs = append(b.docs, doc)
		added++

		for len(b.docs) > b.softCap {
			b.docs = b.docs[1:]
		}
	}

	if idempotencyKey != "" {
		b.seenKeys[idempotencyKey] = struct{}{}
	}

	return ApplyResult{Added: added, Idempotent: false}, nil
}

func decodeDoc(v any) segment.StoredDoc {
	var extID string
	var fields []segment.FieldValue
	collectStrings("", v, func(path, s string) {
		if path == "_id" {
			extID = s
			return
		}
		fields = append(fields, segment.FieldValue{Name: path, Text: normalize.Normalize(s)})
	})
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return segment.StoredDoc{ExtID: extID, Fields: fields}
}

func collectStrings(path string, v any, fn func(path, s string)) {
	switch val := v.(type) {
	case string:
		fn(path, val)
	case map[string]any:
		for k, vv := range val {
			np := k
			if path != "" {
				np = path + "." + k
			}
			collectStrings(np, vv, fn)
		}
	case []any:
		for i, vv := range val {
			np := fmt.Sprintf("%s[%d]", path, i)
			collectStrings(np, vv, fn)
		}
	}
}
