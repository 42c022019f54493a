package segment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/blevesearch/mmap-go"

	"github.com/cascad/grepzilla/internal/gram"
)

// Reader is the read side of a segment: prefilter over trigram/field
// bitmaps, and lazy, memoized per-document decode.
type Reader interface {
	DocCount() uint32
	Prefilter(op BooleanOp, grams []string, field string) (*roaring.Bitmap, error)
	GetDoc(docID uint32) (*StoredDoc, bool)
	Prefetch(docIDs []uint32)
	Close() error
}

// BinReader is the V2 binary segment reader: every file is memory-mapped
// and CRC64-verified at open time; documents are decoded on first access
// into a per-doc slot that is initialized at most once (the slot's zero
// value is "not yet parsed"; the winning first reader parses, any
// concurrent losers observe the same parsed value).
type BinReader struct {
	metaMmap   mmap.MMap
	gramsIdx   mmap.MMap
	gramsDat   mmap.MMap
	fieldsIdx  mmap.MMap
	fieldsDat  mmap.MMap
	docsDat    mmap.MMap
	files      []mmap.MMap
	docCount    uint32
	fieldOff    map[string]fieldSpan
	fieldNames  map[uint64]string
	docsBase    int // offset into docsDat where the offsets table starts
	docsOffTbl  []uint64
	slots       []docSlot
}

type fieldSpan struct {
	offset, length uint64
}

type docSlot struct {
	once sync.Once
	doc  StoredDoc
	ok   bool
}

// OpenBin opens the V2 binary segment rooted at dir. It refuses to open if
// any file's trailing CRC64 fails to verify, or if meta.bin's magic or
// version does not match.
func OpenBin(dir string) (*BinReader, error) {
	metaMmap, metaBody, err := mmapVerified(filepath.Join(dir, "meta.bin"))
	if err != nil {
		return nil, err
	}
	if len(metaBody) < int(MetaHeaderLen) {
		return nil, fmt.Errorf("segment: meta.bin too small")
	}
	if le32(metaBody[0:4]) != MetaMagic || le16(metaBody[4:6]) != MetaVersion {
		metaMmap.Unmap()
		return nil, fmt.Errorf("segment: not a V2 segment (magic/version mismatch)")
	}
	docCount := uint32(le64(metaBody[8:16]))

	gramsIdx, _, err := mmapVerified(filepath.Join(dir, "grams.idx"))
	if err != nil {
		metaMmap.Unmap()
		return nil, err
	}
	gramsDat, _, err := mmapVerified(filepath.Join(dir, "grams.dat"))
	if err != nil {
		metaMmap.Unmap()
		gramsIdx.Unmap()
		return nil, err
	}
	fieldsIdx, fieldsIdxBody, err := mmapVerified(filepath.Join(dir, "fields.idx"))
	if err != nil {
		metaMmap.Unmap()
		gramsIdx.Unmap()
		gramsDat.Unmap()
		return nil, err
	}
	fieldsDat, _, err := mmapVerified(filepath.Join(dir, "fields.dat"))
	if err != nil {
		metaMmap.Unmap()
		gramsIdx.Unmap()
		gramsDat.Unmap()
		fieldsIdx.Unmap()
		return nil, err
	}
	docsDat, docsDatBody, err := mmapVerified(filepath.Join(dir, "docs.dat"))
	if err != nil {
		metaMmap.Unmap()
		gramsIdx.Unmap()
		gramsDat.Unmap()
		fieldsIdx.Unmap()
		fieldsDat.Unmap()
		return nil, err
	}

	fieldOff, fieldNames, err := parseFieldsIndex(fieldsIdxBody)
	if err != nil {
		return nil, err
	}

	docsBase, offTbl, err := parseDocsOffsets(docsDatBody, docCount)
	if err != nil {
		return nil, err
	}

	r := &BinReader{
		metaMmap:   metaMmap,
		gramsIdx:   gramsIdx,
		gramsDat:   gramsDat,
		fieldsIdx:  fieldsIdx,
		fieldsDat:  fieldsDat,
		docsDat:    docsDat,
		files:      []mmap.MMap{metaMmap, gramsIdx, gramsDat, fieldsIdx, fieldsDat, docsDat},
		docCount:   docCount,
		fieldOff:   fieldOff,
		fieldNames: fieldNames,
		docsBase:   docsBase,
		docsOffTbl: offTbl,
		slots:      make([]docSlot, docCount),
	}
	return r, nil
}

func mmapVerified(path string) (mmap.MMap, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	defer f.Close()
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("segment: mmap %s: %w", path, err)
	}
	body, ok := verifyCRC64Footer(m)
	if !ok {
		m.Unmap()
		return nil, nil, fmt.Errorf("segment: CRC64 mismatch: %s", path)
	}
	return m, body, nil
}

func (r *BinReader) Close() error {
	var firstErr error
	for _, m := range r.files {
		if err := m.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *BinReader) DocCount() uint32 { return r.docCount }

// Prefilter implements the bitmap-algebra contract: decode each required
// trigram's posting list (ignoring any trigram shorter than 3 bytes),
// combine per op, then intersect with the named field's membership bitmap
// if one is given.
func (r *BinReader) Prefilter(op BooleanOp, grams []string, field string) (*roaring.Bitmap, error) {
	var bitmaps []*roaring.Bitmap
	for _, g := range grams {
		key, ok := gram.KeyOf(g)
		if !ok {
			continue
		}
		off, length, found, err := r.lookupGram(key)
		if err != nil {
			return nil, err
		}
		if !found {
			if op == OpAnd {
				return roaring.New(), nil
			}
			continue
		}
		bm, err := r.readPostings(off, length)
		if err != nil {
			return nil, err
		}
		bitmaps = append(bitmaps, bm)
	}

	var acc *roaring.Bitmap
	switch op {
	case OpAnd:
		if len(bitmaps) == 0 {
			acc = roaring.New()
			if r.docCount > 0 {
				acc.AddRange(0, uint64(r.docCount))
			}
		} else {
			acc = bitmaps[0].Clone()
			for _, bm := range bitmaps[1:] {
				acc.And(bm)
			}
		}
	case OpOr:
		acc = roaring.New()
		for _, bm := range bitmaps {
			acc.Or(bm)
		}
	case OpNot:
		acc = roaring.New()
		if r.docCount > 0 {
			acc.AddRange(0, uint64(r.docCount))
		}
		for _, bm := range bitmaps {
			acc.AndNot(bm)
		}
	default:
		return nil, fmt.Errorf("segment: unknown boolean op %d", op)
	}

	if field != "" {
		span, ok := r.fieldOff[field]
		if !ok {
			return roaring.New(), nil
		}
		mask, err := r.readFieldBitmap(span)
		if err != nil {
			return nil, err
		}
		acc.And(mask)
	}
	return acc, nil
}

func (r *BinReader) lookupGram(key gram.Key) (offset, length uint64, found bool, err error) {
	idx := r.gramsIdx
	if len(idx) < 16 {
		return 0, 0, false, fmt.Errorf("segment: grams.idx too small")
	}
	count := int(le32(idx[8:12]))
	recLen := int(le32(idx[12:16]))
	base := 16
	lo, hi := 0, count-1
	for lo <= hi {
		mid := (lo + hi) / 2
		off := base + mid*recLen
		k := idx[off : off+3]
		switch bytes.Compare(k, key[:]) {
		case -1:
			lo = mid + 1
		case 1:
			hi = mid - 1
		default:
			return le64(idx[off+3 : off+11]), le64(idx[off+11 : off+19]), true, nil
		}
	}
	return 0, 0, false, nil
}

func (r *BinReader) readPostings(offset, length uint64) (*roaring.Bitmap, error) {
	body := r.gramsDat[offset : offset+length]
	if len(body) < 5 {
		return nil, fmt.Errorf("segment: postings record too small")
	}
	kind := body[0]
	if kind != PostingsKindVarint {
		return nil, fmt.Errorf("segment: unsupported postings kind %d", kind)
	}
	count := int(le32(body[1:5]))
	bm := roaring.New()
	p := 5
	if count > 0 {
		first, n, err := getUvarint(body[p:])
		if err != nil {
			return nil, err
		}
		p += n
		prev := uint32(first)
		bm.Add(prev)
		for i := 1; i < count; i++ {
			delta, n, err := getUvarint(body[p:])
			if err != nil {
				return nil, err
			}
			p += n
			prev += uint32(delta)
			bm.Add(prev)
		}
	}
	return bm, nil
}

func (r *BinReader) readFieldBitmap(span fieldSpan) (*roaring.Bitmap, error) {
	body := r.fieldsDat[span.offset : span.offset+span.length]
	if len(body) == 0 {
		return roaring.New(), nil
	}
	if body[0] != FieldBitmapKindRoaring {
		return nil, fmt.Errorf("segment: unsupported field bitmap kind %d", body[0])
	}
	if len(body) < 5 {
		return nil, fmt.Errorf("segment: field bitmap record too small")
	}
	payloadLen := le32(body[1:5])
	payload := body[5 : 5+payloadLen]
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("segment: deserialize field bitmap: %w", err)
	}
	return bm, nil
}

func parseFieldsIndex(body []byte) (map[string]fieldSpan, map[uint64]string, error) {
	if len(body) < 16 {
		return nil, nil, fmt.Errorf("segment: fields.idx too small")
	}
	if le32(body[0:4]) != FieldsIdxMagic {
		return nil, nil, fmt.Errorf("segment: fields.idx bad magic")
	}
	fieldCount := int(le32(body[8:12]))
	nameDictLen := int(le32(body[12:16]))

	p := 16
	end := p + nameDictLen
	names := make([]string, 0, fieldCount)
	for i := 0; i < fieldCount; i++ {
		n, adv, err := getUvarint(body[p:])
		if err != nil {
			return nil, nil, err
		}
		p += adv
		names = append(names, string(body[p:p+int(n)]))
		p += int(n)
	}

	spans := make(map[string]fieldSpan, fieldCount)
	byID := make(map[uint64]string, fieldCount)
	for fid := 0; fid < fieldCount; fid++ {
		base := end + fid*(4+8+8)
		id := int(le32(body[base : base+4]))
		off := le64(body[base+4 : base+12])
		length := le64(body[base+12 : base+20])
		if id < 0 || id >= len(names) {
			return nil, nil, fmt.Errorf("segment: fields.idx bad field id %d", id)
		}
		spans[names[id]] = fieldSpan{offset: off, length: length}
		byID[uint64(id)] = names[id]
	}
	return spans, byID, nil
}

func parseDocsOffsets(body []byte, expectDocCount uint32) (int, []uint64, error) {
	if len(body) < 8 {
		return 0, nil, fmt.Errorf("segment: docs.dat too small")
	}
	if string(body[0:8]) != DocsDatMagic {
		return 0, nil, fmt.Errorf("segment: docs.dat bad magic")
	}
	docCount := le64(body[8:16])
	offsetsCount := le64(body[16:24])
	if docCount != uint64(expectDocCount) {
		return 0, nil, fmt.Errorf("segment: docs.dat doc_count %d != meta doc_count %d", docCount, expectDocCount)
	}
	if offsetsCount != docCount+1 {
		return 0, nil, fmt.Errorf("segment: docs.dat offsets_count invariant violated")
	}
	p := 24
	offsets := make([]uint64, offsetsCount)
	for i := range offsets {
		offsets[i] = le64(body[p : p+8])
		p += 8
	}
	payloadStart := p
	lastOffset := offsets[len(offsets)-1]
	if int(lastOffset) != len(body)-payloadStart {
		return 0, nil, fmt.Errorf("segment: docs.dat guard offset mismatch")
	}
	return payloadStart, offsets, nil
}

// GetDoc returns the parsed document for docID, decoding it on first
// access and caching the result for subsequent calls. Safe for concurrent
// callers: the first caller to reach a given slot parses it; any
// concurrent callers block until that parse completes and then observe
// the same value.
func (r *BinReader) GetDoc(docID uint32) (*StoredDoc, bool) {
	if docID >= r.docCount {
		return nil, false
	}
	slot := &r.slots[docID]
	slot.once.Do(func() {
		slot.doc, slot.ok = r.parseDoc(docID)
	})
	if !slot.ok {
		return nil, false
	}
	return &slot.doc, true
}

// Prefetch synchronously warms the slots for docIDs, used to hide
// first-hit latency on the page a request is about to return.
func (r *BinReader) Prefetch(docIDs []uint32) {
	for _, id := range docIDs {
		r.GetDoc(id)
	}
}

func (r *BinReader) parseDoc(docID uint32) (StoredDoc, bool) {
	start := r.docsBase + int(r.docsOffTbl[docID])
	end := r.docsBase + int(r.docsOffTbl[docID+1])
	body := r.docsDat[start:end]

	p := 0
	extLen, n, err := getUvarint(body[p:])
	if err != nil {
		return StoredDoc{}, false
	}
	p += n
	extID := string(body[p : p+int(extLen)])
	p += int(extLen)

	fieldCount, n, err := getUvarint(body[p:])
	if err != nil {
		return StoredDoc{}, false
	}
	p += n

	fields := make([]FieldValue, 0, fieldCount)
	for i := uint64(0); i < fieldCount; i++ {
		fid, n, err := getUvarint(body[p:])
		if err != nil {
			return StoredDoc{}, false
		}
		p += n
		strLen, n, err := getUvarint(body[p:])
		if err != nil {
			return StoredDoc{}, false
		}
		p += n
		text := string(body[p : p+int(strLen)])
		p += int(strLen)
		name, ok := r.fieldNames[fid]
		if !ok {
			continue
		}
		fields = append(fields, FieldValue{Name: name, Text: text})
	}
	return StoredDoc{ExtID: extID, Fields: fields}, true
}

