// Package manifest maintains the mapping from shard to current
// generation and the segment paths published under each generation.
package manifest

import (
	"encoding/json"
	"fmt"
)

// SegRef names one segment belonging to a resolved shard/generation.
type SegRef struct {
	Shard uint64
	Gen   uint64
	Path  string
}

// SegmentMeta is the recovered richer per-segment record from the
// original's grepzilla_segment manifest shape (min/max doc id, time
// range). Nothing in this repository populates or stores it: Unified
// and both on-disk shapes record plain segment paths only, and no read
// path in this package requires it.
type SegmentMeta struct {
	Path    string `json:"path"`
	MinDoc  uint32 `json:"min_doc,omitempty"`
	MaxDoc  uint32 `json:"max_doc,omitempty"`
	TimeMin int64  `json:"time_min,omitempty"`
	TimeMax int64  `json:"time_max,omitempty"`
	PrevGen uint64 `json:"prev_gen,omitempty"`
}

// shardEntryV1 is one shard's record in the V1 on-disk shape.
type shardEntryV1 struct {
	Gen      uint64   `json:"gen"`
	Segments []string `json:"segments"`
}

// onDiskV1 is `{"version": 1, "shards": {shard: {"gen": g, "segments": [...]}}}`.
type onDiskV1 struct {
	Version uint32                  `json:"version"`
	Shards  map[string]shardEntryV1 `json:"shards"`
}

// onDiskFlat is `{"shards": {shard: gen}, "segments": {"shard:gen": [...]}}`.
type onDiskFlat struct {
	Shards   map[string]uint64   `json:"shards"`
	Segments map[string][]string `json:"segments"`
}

// Unified is the broker-internal view both on-disk shapes decode into.
type Unified struct {
	PinGen map[uint64]uint64            // shard -> current generation
	Segs   map[[2]uint64][]string       // (shard, gen) -> segment paths
}

// Empty returns a Unified manifest with no shards, used when no
// manifest file exists yet.
func Empty() *Unified {
	return &Unified{PinGen: map[uint64]uint64{}, Segs: map[[2]uint64][]string{}}
}

// Decode parses either accepted on-disk shape into a Unified view. An
// empty or all-whitespace input decodes to Empty().
func Decode(data []byte) (*Unified, error) {
	trimmed := make([]byte, 0, len(data))
	for _, b := range data {
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			trimmed = append(trimmed, b)
		}
	}
	if len(trimmed) == 0 {
		return Empty(), nil
	}

	var probe struct {
		Version uint32 `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}

	if probe.Version == 1 {
		var v1 onDiskV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, fmt.Errorf("manifest: decode v1: %w", err)
		}
		return fromV1(v1), nil
	}

	var flat onDiskFlat
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("manifest: decode flat: %w", err)
	}
	return fromFlat(flat)
}

func fromV1(m onDiskV1) *Unified {
	u := Empty()
	for shardStr, ent := range m.Shards {
		sh := parseUint(shardStr)
		u.PinGen[sh] = ent.Gen
		u.Segs[[2]uint64{sh, ent.Gen}] = ent.Segments
	}
	return u
}

func fromFlat(m onDiskFlat) (*Unified, error) {
	u := Empty()
	for shardStr, gen := range m.Shards {
		u.PinGen[parseUint(shardStr)] = gen
	}
	for key, paths := range m.Segments {
		sh, gen, ok := splitShardGen(key)
		if !ok {
			continue
		}
		u.Segs[[2]uint64{sh, gen}] = paths
	}
	return u, nil
}

// Resolve returns segment refs and pinned generations for shards,
// looking up only the pinned (current) generation per shard.
func (u *Unified) Resolve(shards []uint64) ([]SegRef, map[uint64]uint64) {
	var refs []SegRef
	pin := make(map[uint64]uint64, len(shards))
	for _, sh := range shards {
		gen, ok := u.PinGen[sh]
		if !ok {
			continue
		}
		pin[sh] = gen
		for _, p := range u.Segs[[2]uint64{sh, gen}] {
			refs = append(refs, SegRef{Shard: sh, Gen: gen, Path: p})
		}
	}
	return refs, pin
}

// ResolvePinned resolves shards exactly as Resolve, except the
// generation used per shard comes from pins (captured at an earlier
// query time) rather than from u.PinGen's current value. This is how
// a paginated query stays immune to manifest publishes that happen
// between pages: the caller re-supplies the pin_gen it first saw.
func (u *Unified) ResolvePinned(pins map[uint64]uint64) []SegRef {
	var refs []SegRef
	for sh, gen := range pins {
		for _, p := range u.Segs[[2]uint64{sh, gen}] {
			refs = append(refs, SegRef{Shard: sh, Gen: gen, Path: p})
		}
	}
	return refs
}

// AppendSegment records path under shard's next generation, returning
// the updated Unified view and the new generation number. The caller
// is responsible for persisting the result (see Store.AppendSegment).
func (u *Unified) AppendSegment(shard uint64, path string) (next *Unified, gen uint64) {
	cur := u.currentGen(shard)
	gen = cur + 1

	out := &Unified{
		PinGen: make(map[uint64]uint64, len(u.PinGen)+1),
		Segs:   make(map[[2]uint64][]string, len(u.Segs)+1),
	}
	for k, v := range u.PinGen {
		out.PinGen[k] = v
	}
	for k, v := range u.Segs {
		out.Segs[k] = v
	}
	out.PinGen[shard] = gen
	out.Segs[[2]uint64{shard, gen}] = []string{path}
	return out, gen
}

// currentGen computes the maximum of PinGen[shard] and any generation
// found among Segs keys for shard, per the monotonic-append algorithm.
func (u *Unified) currentGen(shard uint64) uint64 {
	cur := u.PinGen[shard]
	for k := range u.Segs {
		if k[0] == shard && k[1] > cur {
			cur = k[1]
		}
	}
	return cur
}

// Encode serializes u back to the flat on-disk shape (the shape this
// package always writes; both shapes remain acceptable on read).
func (u *Unified) Encode() ([]byte, error) {
	flat := onDiskFlat{
		Shards:   make(map[string]uint64, len(u.PinGen)),
		Segments: make(map[string][]string, len(u.Segs)),
	}
	for sh, gen := range u.PinGen {
		flat.Shards[fmt.Sprintf("%d", sh)] = gen
	}
	for k, paths := range u.Segs {
		flat.Segments[fmt.Sprintf("%d:%d", k[0], k[1])] = paths
	}
	return json.MarshalIndent(flat, "", "  ")
}

func splitShardGen(key string) (shard, gen uint64, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return parseUint(key[:i]), parseUint(key[i+1:]), true
		}
	}
	return 0, 0, false
}

func parseUint(s string) uint64 {
	var n uint64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return n
		}
		n = n*10 + uint64(s[i]-'0')
	}
	return n
}
