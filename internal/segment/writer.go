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

// WriteSegment reads inputJSONL (one JSON document per line) and writes a
// complete V2 binary segment directory at outDir, following the one-pass-
// plus-finalization algorithm: walk every document collecting trigram
// postings and field membership, then emit grams.dat/grams.idx/fields.dat/
// fields.idx/docs.dat/meta.bin in that order, each file's body ending in a
// CRC64 footer.
//
// Any I/O or encoding failure aborts immediately; the writer does not
// self-rollback, so callers must discard outDir on error.
func WriteSegment(inputJSONL, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("segment: create out dir: %w", err)
	}

	f, err := os.Open(inputJSONL)
	if err != nil {
		return fmt.Errorf("segment: open input: %w", err)
	}
	defer f.Close()

	docs := make([]StoredDoc, 0, 1024)
	grams := make(map[gram.Key][]uint32)
	fieldMasks := make(map[string]*roaring.Bitmap)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var docID uint32
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(line, &v); err != nil {
			return fmt.Errorf("segment: parse json line %d: %w", docID, err)
		}

		doc := StoredDoc{}
		var extID string
		collectStrings("", v, func(path, s string) {
			if path == "_id" {
				extID = s
				return
			}
			ns := normalize.Normalize(s)
			doc.Fields = append(doc.Fields, FieldValue{Name: path, Text: ns})

			for _, tri := range gram.Trigrams(ns) {
				key, ok := gram.KeyOf(tri)
				if !ok {
					continue
				}
				grams[key] = append(grams[key], docID)
			}
			bm, ok := fieldMasks[path]
			if !ok {
				bm = roaring.New()
				fieldMasks[path] = bm
			}
			bm.Add(docID)
		})
		doc.ExtID = extID
		sort.Slice(doc.Fields, func(i, j int) bool { return doc.Fields[i].Name < doc.Fields[j].Name })
		docs = append(docs, doc)
		docID++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("segment: scan input: %w", err)
	}
	docCount := docID

	for k, ids := range grams {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		ids = dedupSorted(ids)
		grams[k] = ids
	}

	gramsDatLen, gramsIndex, err := writeGramsDat(filepath.Join(outDir, "grams.dat"), grams)
	if err != nil {
		return err
	}
	gramsIdxLen, err := writeGramsIdx(filepath.Join(outDir, "grams.idx"), gramsIndex)
	if err != nil {
		return err
	}

	fieldNames := make([]string, 0, len(fieldMasks))
	for name := range fieldMasks {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	fieldsDatLen, fieldRecords, err := writeFieldsDat(filepath.Join(outDir, "fields.dat"), fieldNames, fieldMasks)
	if err != nil {
		return err
	}
	fieldsIdxLen, err := writeFieldsIdx(filepath.Join(outDir, "fields.idx"), fieldNames, fieldRecords)
	if err != nil {
		return err
	}

	fieldIDByName := make(map[string]uint32, len(fieldNames))
	for i, name := range fieldNames {
		fieldIDByName[name] = uint32(i)
	}
	docsDatLen, err := writeDocsDat(filepath.Join(outDir, "docs.dat"), docs, fieldIDByName)
	if err != nil {
		return err
	}

	hdr := NewMetaHeader()
	hdr.DocCount = uint64(docCount)
	hdr.GramCount = uint64(len(gramsIndex))
	hdr.GramsIdxLen = gramsIdxLen
	hdr.GramsDatLen = gramsDatLen
	hdr.FieldsIdxLen = fieldsIdxLen
	hdr.FieldsDatLen = fieldsDatLen
	hdr.DocsDatLen = docsDatLen
	return writeMeta(filepath.Join(outDir, "meta.bin"), hdr)
}

type gramRecord struct {
	key         gram.Key
	offset, len uint64
}

func writeGramsDat(path string, grams map[gram.Key][]uint32) (uint64, []gramRecord, error) {
	keys := make([]gram.Key, 0, len(grams))
	for k := range grams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	var body []byte
	records := make([]gramRecord, 0, len(keys))
	for _, key := range keys {
		ids := grams[key]
		offset := uint64(len(body))
		body = append(body, PostingsKindVarint)
		body = putLE32(body, uint32(len(ids)))
		if len(ids) > 0 {
			body = putUvarint(body, uint64(ids[0]))
			prev := ids[0]
			for _, id := range ids[1:] {
				body = putUvarint(body, uint64(id-prev))
				prev = id
			}
		}
		records = append(records, gramRecord{key: key, offset: offset, len: uint64(len(body)) - offset})
	}

	bodyLen := uint64(len(body))
	out := appendCRC64Footer(body)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, nil, fmt.Errorf("segment: write grams.dat: %w", err)
	}
	return bodyLen, records, nil
}

func writeGramsIdx(path string, records []gramRecord) (uint64, error) {
	var body []byte
	body = putLE32(body, GramsIdxMagic)
	body = append(body, 1, 0, 0, 0) // version=1 (u16 LE), flags=0 (u16 LE)
	body = putLE32(body, uint32(len(records)))
	body = putLE32(body, GramsIdxRecordLen)
	for _, r := range records {
		body = append(body, r.key[:]...)
		body = putLE64(body, r.offset)
		body = putLE64(body, r.len)
		body = append(body, make([]byte, 5)...)
	}
	bodyLen := uint64(len(body))
	out := appendCRC64Footer(body)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, fmt.Errorf("segment: write grams.idx: %w", err)
	}
	return bodyLen, nil
}

type fieldRecord struct {
	fieldID     uint32
	offset, len uint64
}

func writeFieldsDat(path string, names []string, masks map[string]*roaring.Bitmap) (uint64, []fieldRecord, error) {
	var body []byte
	records := make([]fieldRecord, 0, len(names))
	for i, name := range names {
		bm := masks[name]
		bm.RunOptimize()
		var buf bytes.Buffer
		if _, err := bm.WriteTo(&buf); err != nil {
			return 0, nil, fmt.Errorf("segment: serialize field bitmap %q: %w", name, err)
		}
		offset := uint64(len(body))
		body = append(body, FieldBitmapKindRoaring)
		body = putLE32(body, uint32(buf.Len()))
		body = append(body, buf.Bytes()...)
		records = append(records, fieldRecord{fieldID: uint32(i), offset: offset, len: uint64(len(body)) - offset})
	}
	bodyLen := uint64(len(body))
	out := appendCRC64Footer(body)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, nil, fmt.Errorf("segment: write fields.dat: %w", err)
	}
	return bodyLen, records, nil
}

func writeFieldsIdx(path string, names []string, records []fieldRecord) (uint64, error) {
	var nameDict []byte
	for _, name := range names {
		nameDict = putUvarint(nameDict, uint64(len(name)))
		nameDict = append(nameDict, name...)
	}

	var body []byte
	body = putLE32(body, FieldsIdxMagic)
	body = append(body, 1, 0, 0, 0) // version=1, flags=0
	body = putLE32(body, uint32(len(names)))
	body = putLE32(body, uint32(len(nameDict)))
	body = append(body, nameDict...)
	for _, r := range records {
		body = putLE32(body, r.fieldID)
		body = putLE64(body, r.offset)
		body = putLE64(body, r.len)
	}
	bodyLen := uint64(len(body))
	out := appendCRC64Footer(body)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, fmt.Errorf("segment: write fields.idx: %w", err)
	}
	return bodyLen, nil
}

func writeDocsDat(path string, docs []StoredDoc, fieldIDByName map[string]uint32) (uint64, error) {
	docCount := uint64(len(docs))
	offsetsCount := docCount + 1

	var payload []byte
	offsets := make([]uint64, 0, offsetsCount)
	for _, doc := range docs {
		offsets = append(offsets, uint64(len(payload)))
		payload = putUvarint(payload, uint64(len(doc.ExtID)))
		payload = append(payload, doc.ExtID...)
		payload = putUvarint(payload, uint64(len(doc.Fields)))
		for _, fv := range doc.Fields {
			fid, ok := fieldIDByName[fv.Name]
			if !ok {
				return 0, fmt.Errorf("segment: field %q missing from field dictionary", fv.Name)
			}
			payload = putUvarint(payload, uint64(fid))
			payload = putUvarint(payload, uint64(len(fv.Text)))
			payload = append(payload, fv.Text...)
		}
	}
	offsets = append(offsets, uint64(len(payload))) // guard offset

	var body []byte
	body = append(body, DocsDatMagic...)
	body = putLE64(body, docCount)
	body = putLE64(body, offsetsCount)
	for _, off := range offsets {
		body = putLE64(body, off)
	}
	body = append(body, payload...)

	bodyLen := uint64(len(body))
	out := appendCRC64Footer(body)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, fmt.Errorf("segment: write docs.dat: %w", err)
	}
	return bodyLen, nil
}

func writeMeta(path string, hdr MetaHeader) error {
	body := make([]byte, 0, MetaHeaderLen)
	body = putLE32(body, hdr.Magic)
	body = append(body, byte(hdr.Version), byte(hdr.Version>>8))
	body = append(body, byte(hdr.HeaderLen), byte(hdr.HeaderLen>>8))
	body = putLE64(body, hdr.DocCount)
	body = putLE64(body, hdr.GramCount)
	body = putLE64(body, hdr.GramsIdxLen)
	body = putLE64(body, hdr.GramsDatLen)
	body = putLE64(body, hdr.FieldsIdxLen)
	body = putLE64(body, hdr.FieldsDatLen)
	body = putLE64(body, hdr.DocsDatLen)
	for len(body) < int(MetaHeaderLen) {
		body = append(body, 0)
	}
	out := appendCRC64Footer(body)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("segment: write meta.bin: %w", err)
	}
	return nil
}

func dedupSorted(ids []uint32) []uint32 {
	if len(ids) == 0 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// collectStrings walks an arbitrary decoded JSON value, invoking fn with
// the dotted path and value of every string leaf, matching the writer's
// field-path convention (`text.body`, `tags[0]`).
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
