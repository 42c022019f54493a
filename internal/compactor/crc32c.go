package compactor

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32cOf computes the CRC32C (Castagnoli) checksum of data, matching
// the recovered ".crc32c" sidecar format some WAL producers use.
func crc32cOf(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}
