package search

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cascad/grepzilla/internal/apperr"
	"github.com/cascad/grepzilla/internal/executor"
	"github.com/cascad/grepzilla/internal/gram"
	"github.com/cascad/grepzilla/internal/manifest"
	"github.com/cascad/grepzilla/internal/normalize"
	"github.com/cascad/grepzilla/internal/obs"
	"github.com/cascad/grepzilla/internal/paginator"
	"github.com/cascad/grepzilla/internal/preview"
	"github.com/cascad/grepzilla/internal/segment"
	"github.com/cascad/grepzilla/internal/verify"
)

// ManifestLoader is the read side of a manifest store, as consumed by
// the search coordinator (it never appends).
type ManifestLoader interface {
	Load() (*manifest.Unified, error)
}

// HotBuffer is the read side of the ingest hot buffer, as consumed by
// the search coordinator.
type HotBuffer interface {
	Snapshot() []segment.StoredDoc
}

// Coordinator orchestrates one search request end to end.
type Coordinator struct {
	Manifest             ManifestLoader // nil disables shard-based selection
	Hot                  HotBuffer      // nil disables hot-buffer fusion
	DefaultParallelism   int
	DefaultMaxCandidates int
	VerifyFactory        verify.Factory
	log                  zerolog.Logger
}

// NewCoordinator builds a Coordinator with the given defaults. The verify
// engine is selected through verify.NewEnvFactory (GZ_VERIFY_ENGINE), so
// an alternative backend can be swapped in per-process without a code
// change here.
func NewCoordinator(m ManifestLoader, hot HotBuffer, defaultParallelism, defaultMaxCandidates int) *Coordinator {
	return &Coordinator{
		Manifest:             m,
		Hot:                  hot,
		DefaultParallelism:   defaultParallelism,
		DefaultMaxCandidates: defaultMaxCandidates,
		VerifyFactory:        verify.NewEnvFactory(),
		log:                  obs.New("search"),
	}
}

// Handle runs the full search pipeline: compile the verify engine
// once, select and sort segments, build and run per-segment tasks,
// fuse the hot buffer, paginate, and overlay pin_gen into the cursor.
func (c *Coordinator) Handle(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	reqGrams, err := gram.RequiredGrams(req.Wildcard)
	if err != nil {
		return Response{}, apperr.New(apperr.KindPatternTooWeak, "search.Handle", err)
	}
	engine, err := c.VerifyFactory.Compile(normalize.Normalize(req.Wildcard))
	if err != nil {
		return Response{}, apperr.New(apperr.KindPatternTooWeak, "search.Handle", err)
	}
	previewNeedle := gram.LongestLiteralRun(req.Wildcard)

	segRefs, pinGen := c.selectSegments(req)
	sortSegRefs(segRefs)

	parallelism := c.DefaultParallelism
	maxCandidates := c.DefaultMaxCandidates
	var deadline time.Duration
	if req.Limits != nil {
		if req.Limits.Parallelism != nil {
			parallelism = *req.Limits.Parallelism
		}
		if req.Limits.MaxCandidates != nil {
			maxCandidates = int(*req.Limits.MaxCandidates)
		}
		if req.Limits.DeadlineMs != nil {
			deadline = time.Duration(*req.Limits.DeadlineMs) * time.Millisecond
		}
	}

	tasks := make([]executor.TaskFunc[paginator.Part], 0, len(segRefs))
	for _, ref := range segRefs {
		ref := ref
		var cursorDocID *uint32
		if req.Page.Cursor != nil {
			if sc, ok := req.Page.Cursor.PerSeg[ref.Path]; ok {
				v := sc.LastDocID
				cursorDocID = &v
			}
		}
		tasks = append(tasks, func(taskCtx context.Context) (paginator.Part, error) {
			reader, openErr := segment.Open(ref.Path)
			if openErr != nil {
				badSeg := apperr.New(apperr.KindBadSegment, "search.Handle", openErr)
				c.log.Warn().Str("segment", ref.Path).Err(badSeg).Msg("skipping unreadable segment")
				// BadSegment: skip it, contribute nothing but preserve cursor.
				return paginator.Part{SegPath: ref.Path, LastDocID: cursorDocID}, nil
			}
			defer reader.Close()
			in := segmentTaskInput{
				segPath:       ref.Path,
				reader:        reader,
				field:         req.Field,
				cursorDocID:   cursorDocID,
				maxCandidates: maxCandidates,
				pageSize:      req.Page.Size,
				reqGrams:      reqGrams,
				engine:        engine,
				previewNeedle: previewNeedle,
			}
			return runSegmentTask(taskCtx, in), nil
		})
	}

	result := executor.Run(ctx, tasks, executor.Options{
		Parallelism: parallelism,
		PageSize:    req.Page.Size,
		Deadline:    deadline,
	})

	parts := result.Parts
	if c.Hot != nil {
		parts = append(parts, c.hotPart(engine, req.Field, previewNeedle))
	}

	page := paginator.Paginate(parts, req.Page.Size)

	var ttfh int64
	if len(page.Hits) > 0 {
		ttfh = time.Since(start).Milliseconds()
	}

	cursor := Cursor{PerSeg: convertPerSeg(page.Cursor.PerSeg)}
	if len(pinGen) > 0 {
		cursor.PinGen = pinGen
	}

	resp := Response{
		Hits:   convertHits(page.Hits),
		Cursor: cursor,
		Metrics: Metrics{
			CandidatesTotal:  page.CandidatesTotal,
			TimeToFirstHitMs: ttfh,
			DeadlineHit:      result.DeadlineHit,
			SaturatedSem:     result.SaturatedSem,
			DedupDropped:     page.DedupDropped,
		},
	}
	if page.Metrics.PrefilterMs != nil {
		resp.Metrics.PrefilterMs = page.Metrics.PrefilterMs
		resp.Metrics.VerifyMs = page.Metrics.VerifyMs
		resp.Metrics.PrefetchMs = page.Metrics.PrefetchMs
		resp.Metrics.WarmedDocs = page.Metrics.WarmedDocs
	}
	return resp, nil
}

// hotPart scans the hot buffer's snapshot and returns a synthetic part
// under the reserved HotBufferPath, using the same field rules as
// segment tasks.
func (c *Coordinator) hotPart(engine verify.Engine, field, previewNeedle string) paginator.Part {
	docs := c.Hot.Snapshot()
	var hits []paginator.Hit
	for i := range docs {
		matchedField, matched := verifyDoc(engine, &docs[i], field)
		if !matched {
			continue
		}
		prev := preview.Build(&docs[i], preview.Options{
			PreferredFields: []string{matchedField},
			MaxLen:          160,
			HighlightNeedle: previewNeedle,
		})
		hits = append(hits, paginator.Hit{
			ExtID:        docs[i].ExtID,
			MatchedField: matchedField,
			Preview:      prev,
		})
	}
	return paginator.Part{SegPath: paginator.HotBufferPath, Hits: hits}
}

// selectSegments implements spec.md §4.12 step 2: raw paths win when
// present; otherwise resolve shards through the manifest, honoring a
// pin_gen already captured by an in-progress paginated query.
func (c *Coordinator) selectSegments(req Request) ([]manifest.SegRef, map[uint64]uint64) {
	if len(req.Segments) > 0 {
		refs := make([]manifest.SegRef, 0, len(req.Segments))
		for _, p := range req.Segments {
			refs = append(refs, manifest.SegRef{Path: p})
		}
		return refs, nil
	}

	if len(req.Shards) == 0 || c.Manifest == nil {
		return nil, nil
	}

	u, err := c.Manifest.Load()
	if err != nil {
		return nil, nil
	}

	if req.Page.Cursor != nil && len(req.Page.Cursor.PinGen) > 0 {
		pins := make(map[uint64]uint64, len(req.Shards))
		for _, sh := range req.Shards {
			if gen, ok := req.Page.Cursor.PinGen[sh]; ok {
				pins[sh] = gen
			}
		}
		return u.ResolvePinned(pins), pins
	}

	return u.Resolve(req.Shards)
}

// sortSegRefs orders segments by (shard asc, gen desc) so fresher
// generations are preferred within a shard.
func sortSegRefs(refs []manifest.SegRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Shard != refs[j].Shard {
			return refs[i].Shard < refs[j].Shard
		}
		return refs[i].Gen > refs[j].Gen
	})
}

func convertPerSeg(m map[string]paginator.SegCursor) map[string]SegCursor {
	out := make(map[string]SegCursor, len(m))
	for k, v := range m {
		out[k] = SegCursor{LastDocID: v.LastDocID}
	}
	return out
}

func convertHits(hits []paginator.Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{ExtID: h.ExtID, DocID: h.DocID, MatchedField: h.MatchedField, Preview: h.Preview}
	}
	return out
}
