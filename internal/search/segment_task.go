package search

import (
	"context"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/cascad/grepzilla/internal/paginator"
	"github.com/cascad/grepzilla/internal/preview"
	"github.com/cascad/grepzilla/internal/segment"
	"github.com/cascad/grepzilla/internal/verify"
)

// localHitBatchCap bounds how many hits a single segment task may
// contribute before stopping early, independent of page size.
const localHitBatchCap = 1024

// segmentTaskInput is everything one segment task needs; reqGrams and
// engine are shared (compiled once per request) across every task.
type segmentTaskInput struct {
	segPath       string
	reader        segment.Reader
	field         string
	cursorDocID   *uint32
	maxCandidates int
	pageSize      int
	reqGrams      []string
	engine        verify.Engine
	previewNeedle string
}

// runSegmentTask implements the per-segment verify loop: prefilter,
// prefetch budget, ordered candidate scan with cursor skip, verify,
// preview, early local-batch stop.
func runSegmentTask(ctx context.Context, in segmentTaskInput) paginator.Part {
	empty := paginator.Part{SegPath: in.segPath, LastDocID: in.cursorDocID}
	if ctx.Err() != nil {
		return empty
	}

	prefilterStart := time.Now()
	bm, err := in.reader.Prefilter(segment.OpAnd, in.reqGrams, in.field)
	prefilterMs := time.Since(prefilterStart).Milliseconds()
	if err != nil {
		// Treated as a bad/unusable segment: skip it, contribute nothing.
		return empty
	}

	prefetchStart := time.Now()
	warmedDocs := warmPrefetch(in, bm)
	prefetchMs := time.Since(prefetchStart).Milliseconds()

	var hits []paginator.Hit
	lastDocID := in.cursorDocID
	candidates := 0
	var verifyMs int64

	it := bm.Iterator()
	for it.HasNext() {
		if ctx.Err() != nil {
			break
		}
		docID := it.Next()
		if in.cursorDocID != nil && docID <= *in.cursorDocID {
			continue
		}
		id := docID
		lastDocID = &id

		candidates++
		if candidates > in.maxCandidates {
			break
		}

		doc, ok := in.reader.GetDoc(docID)
		if !ok {
			continue
		}

		verifyStart := time.Now()
		matchedField, matched := verifyDoc(in.engine, doc, in.field)
		verifyMs += time.Since(verifyStart).Milliseconds()
		if !matched {
			continue
		}

		prev := preview.Build(doc, preview.Options{
			PreferredFields: []string{matchedField},
			MaxLen:          160,
			HighlightNeedle: in.previewNeedle,
		})
		hits = append(hits, paginator.Hit{
			ExtID:        doc.ExtID,
			DocID:        docID,
			MatchedField: matchedField,
			Preview:      prev,
		})

		if len(hits) >= localHitBatchCap {
			break
		}
	}

	return paginator.Part{
		SegPath:     in.segPath,
		Hits:        hits,
		LastDocID:   lastDocID,
		Candidates:  candidates,
		PrefilterMs: prefilterMs,
		VerifyMs:    verifyMs,
		PrefetchMs:  prefetchMs,
		WarmedDocs:  warmedDocs,
	}
}

// warmPrefetch synchronously warms up to min(pageSize*4, 5000)
// candidate documents past the cursor, before the main scan loop.
func warmPrefetch(in segmentTaskInput, bm *roaring.Bitmap) int64 {
	budget := in.pageSize * 4
	if budget > 5000 || budget <= 0 {
		budget = 5000
	}

	ids := make([]uint32, 0, budget)
	it := bm.Iterator()
	for it.HasNext() && len(ids) < budget {
		docID := it.Next()
		if in.cursorDocID != nil && docID <= *in.cursorDocID {
			continue
		}
		ids = append(ids, docID)
	}
	in.reader.Prefetch(ids)
	return int64(len(ids))
}

// verifyDoc checks the named field only, or scans the document's
// fields in order and returns the first one whose value matches.
func verifyDoc(engine verify.Engine, doc *segment.StoredDoc, field string) (matchedField string, ok bool) {
	if field != "" {
		text, has := doc.Get(field)
		if !has {
			return "", false
		}
		return field, engine.IsMatch(text)
	}
	for _, fv := range doc.Fields {
		if engine.IsMatch(fv.Text) {
			return fv.Name, true
		}
	}
	return "", false
}
