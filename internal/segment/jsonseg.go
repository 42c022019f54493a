package segment

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/cascad/grepzilla/internal/gram"
	"github.com/cascad/grepzilla/internal/normalize"
)

// jsonMeta is the meta.json sidecar for the V1 textual segment variant.
type jsonMeta struct {
	Version   int    `json:"version"`
	DocCount  uint32 `json:"doc_count"`
	GramCount int    `json:"gram_count"`
}

// jsonDoc is the wire shape of one docs.jsonl line in the V1 variant.
type jsonDoc struct {
	DocID  uint32            `json:"doc_id"`
	ExtID  string            `json:"ext_id"`
	Fields map[string]string `json:"fields"`
}

// WriteJSONSegment writes the V1 textual segment variant: grams.json
// (trigram -> doc_id list), docs.jsonl (one StoredDoc per line), and
// meta.json. This predates the binary V2 format; it is kept for segments
// written by older tooling and is otherwise functionally equivalent.
func WriteJSONSegment(inputJSONL, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("segment: create out dir: %w", err)
	}
	f, err := os.Open(inputJSONL)
	if err != nil {
		return fmt.Errorf("segment: open input: %w", err)
	}
	defer f.Close()

	grams := make(map[string]*roaring.Bitmap)
	var docs []jsonDoc
	var nextID uint32

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(line, &v); err != nil {
			return fmt.Errorf("segment: parse json line %d: %w", nextID, err)
		}
		var extID string
		stored := make(map[string]string)
		collectStrings("", v, func(path, s string) {
			if path == "_id" {
				extID = s
				return
			}
			ns := normalize.Normalize(s)
			stored[path] = ns
			for _, g := range gram.Trigrams(ns) {
				bm, ok := grams[g]
				if !ok {
					bm = roaring.New()
					grams[g] = bm
				}
				bm.Add(nextID)
			}
		})
		docs = append(docs, jsonDoc{DocID: nextID, ExtID: extID, Fields: stored})
		nextID++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("segment: scan input: %w", err)
	}

	gramsDump := make(map[string][]uint32, len(grams))
	for g, bm := range grams {
		gramsDump[g] = bm.ToArray()
	}
	if err := writeJSONFile(filepath.Join(outDir, "grams.json"), gramsDump); err != nil {
		return err
	}

	docsPath := filepath.Join(outDir, "docs.jsonl")
	df, err := os.Create(docsPath)
	if err != nil {
		return fmt.Errorf("segment: create docs.jsonl: %w", err)
	}
	defer df.Close()
	enc := json.NewEncoder(df)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("segment: write docs.jsonl: %w", err)
		}
	}

	meta := jsonMeta{Version: 1, DocCount: nextID, GramCount: len(grams)}
	return writeJSONFile(filepath.Join(outDir, "meta.json"), meta)
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("segment: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("segment: write %s: %w", path, err)
	}
	return nil
}

// JSONReader is the read side of the V1 textual segment variant: grams
// and documents are loaded entirely into memory at open time.
type JSONReader struct {
	meta  jsonMeta
	grams map[string]*roaring.Bitmap
	docs  []StoredDoc
}

// IsJSONSegment reports whether dir holds a V1 textual segment (detected
// by the presence of meta.json, as opposed to V2's meta.bin).
func IsJSONSegment(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "meta.json"))
	return err == nil
}

// OpenJSON opens the V1 textual segment rooted at dir.
func OpenJSON(dir string) (*JSONReader, error) {
	var meta jsonMeta
	if err := readJSONFile(filepath.Join(dir, "meta.json"), &meta); err != nil {
		return nil, err
	}
	var gramsDump map[string][]uint32
	if err := readJSONFile(filepath.Join(dir, "grams.json"), &gramsDump); err != nil {
		return nil, err
	}
	grams := make(map[string]*roaring.Bitmap, len(gramsDump))
	for g, ids := range gramsDump {
		bm := roaring.New()
		bm.AddMany(ids)
		grams[g] = bm
	}

	docsByID := make(map[uint32]jsonDoc)
	f, err := os.Open(filepath.Join(dir, "docs.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("segment: open docs.jsonl: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var d jsonDoc
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("segment: parse docs.jsonl: %w", err)
		}
		docsByID[d.DocID] = d
	}

	docs := make([]StoredDoc, meta.DocCount)
	for id, d := range docsByID {
		if id >= meta.DocCount {
			continue
		}
		names := make([]string, 0, len(d.Fields))
		for name := range d.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]FieldValue, 0, len(names))
		for _, name := range names {
			fields = append(fields, FieldValue{Name: name, Text: d.Fields[name]})
		}
		docs[id] = StoredDoc{ExtID: d.ExtID, Fields: fields}
	}

	return &JSONReader{meta: meta, grams: grams, docs: docs}, nil
}

func readJSONFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("segment: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("segment: unmarshal %s: %w", path, err)
	}
	return nil
}

func (r *JSONReader) DocCount() uint32 { return r.meta.DocCount }

func (r *JSONReader) Close() error { return nil }

func (r *JSONReader) Prefetch(docIDs []uint32) {}

func (r *JSONReader) GetDoc(docID uint32) (*StoredDoc, bool) {
	if docID >= uint32(len(r.docs)) {
		return nil, false
	}
	return &r.docs[docID], true
}

func (r *JSONReader) Prefilter(op BooleanOp, grams []string, field string) (*roaring.Bitmap, error) {
	var acc *roaring.Bitmap
	switch op {
	case OpAnd:
		acc = roaring.New()
		if r.meta.DocCount > 0 {
			acc.AddRange(0, uint64(r.meta.DocCount))
		}
		for _, g := range grams {
			if bm, ok := r.grams[g]; ok {
				acc.And(bm)
			} else {
				acc.Clear()
				break
			}
		}
	case OpOr:
		acc = roaring.New()
		for _, g := range grams {
			if bm, ok := r.grams[g]; ok {
				acc.Or(bm)
			}
		}
	case OpNot:
		acc = roaring.New()
		if r.meta.DocCount > 0 {
			acc.AddRange(0, uint64(r.meta.DocCount))
		}
		for _, g := range grams {
			if bm, ok := r.grams[g]; ok {
				acc.AndNot(bm)
			}
		}
	default:
		return nil, fmt.Errorf("segment: unknown boolean op %d", op)
	}

	if field != "" {
		filtered := roaring.New()
		it := acc.Iterator()
		for it.HasNext() {
			id := it.Next()
			if doc, ok := r.GetDoc(id); ok {
				if _, has := doc.Get(field); has {
					filtered.Add(id)
				}
			}
		}
		return filtered, nil
	}
	return acc, nil
}

var _ Reader = (*JSONReader)(nil)
var _ Reader = (*BinReader)(nil)
