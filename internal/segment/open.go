package segment

import "fmt"

// Open detects the on-disk segment variant at dir (V2 binary via
// meta.bin, V1 textual via meta.json) and returns the appropriate Reader.
// The coordinator and compactor are variant-agnostic: both shapes
// implement the same Reader interface.
func Open(dir string) (Reader, error) {
	if IsJSONSegment(dir) {
		return OpenJSON(dir)
	}
	r, err := OpenBin(dir)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", dir, err)
	}
	return r, nil
}
