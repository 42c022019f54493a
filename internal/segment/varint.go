package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
)

// putUvarint appends x to buf in the same base-128 varint encoding used
// throughout the segment format (LEB128, unsigned).
func putUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// readUvarint reads a single varint from r.
func readUvarint(r *bufio.Reader) (uint64, error) {
	x, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("segment: read varint: %w", err)
	}
	return x, nil
}

// getUvarint decodes a varint from the start of b, returning the value and
// the number of bytes consumed. Used against mmap-backed byte slices where
// wrapping in a bufio.Reader would be wasteful.
func getUvarint(b []byte) (uint64, int, error) {
	x, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, fmt.Errorf("segment: truncated or invalid varint")
	}
	return x, n, nil
}
