// Package search implements the query-side pipeline: compiling a
// wildcard once per request, selecting segments (by manifest or raw
// path), fanning out per-segment verify tasks, fusing in the hot
// buffer, and paginating the merged result.
package search

// PageIn is the client-supplied paging request.
type PageIn struct {
	Size   int     `json:"size"`
	Cursor *Cursor `json:"cursor,omitempty"`
}

// Limits is the client-supplied, all-optional resource budget.
type Limits struct {
	Parallelism   *int  `json:"parallelism,omitempty"`
	DeadlineMs    *uint `json:"deadline_ms,omitempty"`
	MaxCandidates *uint `json:"max_candidates,omitempty"`
}

// Request is the POST /search request body.
type Request struct {
	Wildcard string   `json:"wildcard"`
	Field    string   `json:"field,omitempty"`
	Segments []string `json:"segments,omitempty"`
	Shards   []uint64 `json:"shards,omitempty"`
	Page     PageIn   `json:"page"`
	Limits   *Limits  `json:"limits,omitempty"`
}

// SegCursor is one segment path's resume position.
type SegCursor struct {
	LastDocID uint32 `json:"last_docid"`
}

// Cursor is the opaque, client-echoed pagination state the server
// emits and later re-parses verbatim from the request.
type Cursor struct {
	PerSeg map[string]SegCursor `json:"per_seg"`
	PinGen map[uint64]uint64    `json:"pin_gen,omitempty"`
}

// Hit is one matched document in a search response.
type Hit struct {
	ExtID        string `json:"ext_id"`
	DocID        uint32 `json:"doc_id"`
	MatchedField string `json:"matched_field"`
	Preview      string `json:"preview"`
}

// Metrics is the per-request summary. The pointer fields are omitted
// entirely ("absent") rather than zero when no part did any
// instrumented work.
type Metrics struct {
	CandidatesTotal  int    `json:"candidates_total"`
	TimeToFirstHitMs int64  `json:"time_to_first_hit_ms"`
	DeadlineHit      bool   `json:"deadline_hit"`
	SaturatedSem     int    `json:"saturated_sem"`
	DedupDropped     int    `json:"dedup_dropped"`
	PrefilterMs      *int64 `json:"prefilter_ms,omitempty"`
	VerifyMs         *int64 `json:"verify_ms,omitempty"`
	PrefetchMs       *int64 `json:"prefetch_ms,omitempty"`
	WarmedDocs       *int64 `json:"warmed_docs,omitempty"`
}

// Response is the POST /search response body.
type Response struct {
	Hits    []Hit   `json:"hits"`
	Cursor  Cursor  `json:"cursor"`
	Metrics Metrics `json:"metrics"`
}
