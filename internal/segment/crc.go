package segment

import "hash/crc64"

// crcTable is the ECMA-182 polynomial table, matching the original
// implementation's crc64_ecma and the CRC64 variant spec.md names
// throughout the segment format.
var crcTable = crc64.MakeTable(crc64.ECMA)

// crc64ECMA computes the CRC64 (ECMA polynomial) of data.
func crc64ECMA(data []byte) uint64 {
	return crc64.Checksum(data, crcTable)
}

// appendCRC64Footer appends an 8-byte little-endian CRC64 of body to buf
// and returns the extended slice.
func appendCRC64Footer(buf []byte) []byte {
	crc := crc64ECMA(buf)
	return putLE64(buf, crc)
}

// verifyCRC64Footer checks the trailing 8-byte CRC64 footer of b against
// a freshly computed checksum of the preceding bytes. Returns the body
// (b without its footer) and whether the checksum matched.
func verifyCRC64Footer(b []byte) (body []byte, ok bool) {
	if len(b) < CRCFooterLen {
		return nil, false
	}
	body = b[:len(b)-CRCFooterLen]
	want := le64(b[len(b)-CRCFooterLen:])
	return body, crc64ECMA(body) == want
}
