// Package paginator merges the unordered per-segment outputs of a
// search into a single deduplicated page with a cursor and summed
// metrics.
package paginator

// HotBufferPath is the reserved segment path for the synthetic part
// produced by scanning the hot buffer. It is never cursor-persisted.
const HotBufferPath = "__hot__"

// Hit is one matched document surfaced to the client.
type Hit struct {
	ExtID        string
	DocID        uint32
	MatchedField string
	Preview      string
}

// Part is one segment's (or the hot buffer's) contribution to a
// search, in the shape the executor collects and the paginator
// merges.
type Part struct {
	SegPath     string
	Hits        []Hit
	LastDocID   *uint32 // nil if nothing was scanned in this part
	Candidates  int
	PrefilterMs int64
	VerifyMs    int64
	PrefetchMs  int64
	WarmedDocs  int64
}

// HitCount lets Part satisfy executor.Part for the shared early-stop
// hit counter.
func (p Part) HitCount() int { return len(p.Hits) }

// SegCursor is one segment path's resume position.
type SegCursor struct {
	LastDocID uint32
}

// Cursor is the opaque, client-echoed pagination state.
type Cursor struct {
	PerSeg map[string]SegCursor
	PinGen map[uint64]uint64 // optional; overlaid by the search coordinator
}

// Metrics holds the per-stage totals. The pointer fields are nil
// ("absent") when every part contributed zero to all of them and no
// candidates were seen, distinguishing "no instrumentation" from "zero
// work done".
type Metrics struct {
	PrefilterMs *int64
	VerifyMs    *int64
	PrefetchMs  *int64
	WarmedDocs  *int64
}

// Page is the merged result of Paginate.
type Page struct {
	Hits            []Hit
	Cursor          Cursor
	CandidatesTotal int
	DedupDropped    int
	Metrics         Metrics
}

// Paginate merges parts into a page of at most pageSize deduplicated
// hits (by ExtID, first-seen wins, in part-then-within-part order),
// while still visiting every part to accumulate candidates, per-
// segment cursor state, and summed metrics.
func Paginate(parts []Part, pageSize int) Page {
	page := Page{Cursor: Cursor{PerSeg: make(map[string]SegCursor, len(parts))}}
	seen := make(map[string]struct{})

	var prefilterMs, verifyMs, prefetchMs, warmedDocs int64
	var anyMetric bool

	for _, p := range parts {
		page.CandidatesTotal += p.Candidates

		if p.PrefilterMs != 0 || p.VerifyMs != 0 || p.PrefetchMs != 0 || p.WarmedDocs != 0 || p.Candidates != 0 {
			anyMetric = true
		}
		prefilterMs += p.PrefilterMs
		verifyMs += p.VerifyMs
		prefetchMs += p.PrefetchMs
		warmedDocs += p.WarmedDocs

		for _, h := range p.Hits {
			if len(page.Hits) >= pageSize {
				break
			}
			if _, dup := seen[h.ExtID]; dup {
				page.DedupDropped++
				continue
			}
			seen[h.ExtID] = struct{}{}
			page.Hits = append(page.Hits, h)
		}

		if p.SegPath != HotBufferPath {
			var last uint32
			if p.LastDocID != nil {
				last = *p.LastDocID
			}
			page.Cursor.PerSeg[p.SegPath] = SegCursor{LastDocID: last}
		}
	}

	if anyMetric {
		page.Metrics = Metrics{
			PrefilterMs: &prefilterMs,
			VerifyMs:    &verifyMs,
			PrefetchMs:  &prefetchMs,
			WarmedDocs:  &warmedDocs,
		}
	}

	return page
}
