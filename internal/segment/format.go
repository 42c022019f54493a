// Package segment implements the on-disk segment format: an immutable
// directory of six files produced by one compaction, plus the V1 JSON
// variant recovered from the original implementation. See the reader and
// writer in this package for the binary layout.
package segment

const (
	// MetaMagic is the magic number stored in meta.bin ("GZSG").
	MetaMagic uint32 = 0x475A5347
	// MetaVersion is the only supported meta.bin version.
	MetaVersion uint16 = 2
	// MetaHeaderLen is the fixed length, in bytes, of the meta.bin header
	// that precedes its trailing CRC64 footer: magic(4) + version(2) +
	// header_len(2) + seven uint64 length fields(56).
	MetaHeaderLen uint16 = 4 + 2 + 2 + 7*8

	// GramsIdxMagic is the magic number stored in grams.idx ("GZID").
	GramsIdxMagic uint32 = 0x475A4944
	// GramsIdxRecordLen is the fixed stride, in bytes, of each record in
	// grams.idx: 3-byte key + 8-byte offset + 8-byte length + 5 bytes pad.
	GramsIdxRecordLen uint32 = 24

	// FieldsIdxMagic is the magic number stored in fields.idx ("GZFI").
	FieldsIdxMagic uint32 = 0x475A4649

	// DocsDatMagic is the 8-byte magic that opens docs.dat.
	DocsDatMagic = "GZDOCS2\x00"

	// PostingsKindVarint is the only supported grams.dat posting kind:
	// delta-varint encoded, monotonically increasing doc_ids.
	PostingsKindVarint uint8 = 1

	// FieldBitmapKindRoaring is the only supported fields.dat bitmap kind:
	// a roaring bitmap in portable serialization format.
	FieldBitmapKindRoaring uint8 = 1

	// CRCFooterLen is the length, in bytes, of the trailing CRC64 footer
	// every segment file carries.
	CRCFooterLen = 8
)

// MetaHeader is the fixed-layout header stored in meta.bin, immediately
// followed by an 8-byte little-endian CRC64 over these MetaHeaderLen
// bytes.
type MetaHeader struct {
	Magic        uint32
	Version      uint16
	HeaderLen    uint16
	DocCount     uint64
	GramCount    uint64
	GramsIdxLen  uint64
	GramsDatLen  uint64
	FieldsIdxLen uint64
	FieldsDatLen uint64
	DocsDatLen   uint64
}

// NewMetaHeader returns a MetaHeader with magic/version/header_len filled
// in and every length field zeroed, matching the writer's starting point
// before it learns the real body lengths.
func NewMetaHeader() MetaHeader {
	return MetaHeader{
		Magic:     MetaMagic,
		Version:   MetaVersion,
		HeaderLen: MetaHeaderLen,
	}
}

// StoredDoc is a single document's indexed form: its local doc_id (not
// stored on the struct itself — callers track it via the offsets table),
// its external id, and an ordered field-name-to-normalized-text map.
type StoredDoc struct {
	ExtID  string
	Fields []FieldValue
}

// FieldValue is one (field name, normalized text) pair within a StoredDoc,
// written to and read from docs.dat in field_id order.
type FieldValue struct {
	Name string
	Text string
}

// Get returns the text of the named field and whether it was present.
func (d *StoredDoc) Get(name string) (string, bool) {
	for _, fv := range d.Fields {
		if fv.Name == name {
			return fv.Text, true
		}
	}
	return "", false
}

// BooleanOp selects the combination rule Prefilter applies across a
// trigram's decoded posting bitmaps.
type BooleanOp int

const (
	OpAnd BooleanOp = iota
	OpOr
	OpNot
)
