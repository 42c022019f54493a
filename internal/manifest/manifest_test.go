package manifest

import "testing"

func TestDecodeFlatShape(t *testing.T) {
	data := []byte(`{"shards":{"0":1,"1":7},"segments":{"0:1":["/a"],"1:7":["/b","/c"]}}`)
	u, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if u.PinGen[0] != 1 || u.PinGen[1] != 7 {
		t.Errorf("PinGen = %v, want {0:1, 1:7}", u.PinGen)
	}
	refs, pin := u.Resolve([]uint64{0, 1})
	if len(refs) != 3 {
		t.Errorf("got %d refs, want 3", len(refs))
	}
	if pin[0] != 1 || pin[1] != 7 {
		t.Errorf("pin = %v, want {0:1, 1:7}", pin)
	}
}

func TestDecodeV1Shape(t *testing.T) {
	data := []byte(`{"version":1,"shards":{"2":{"gen":3,"segments":["/x"]}}}`)
	u, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if u.PinGen[2] != 3 {
		t.Errorf("PinGen[2] = %d, want 3", u.PinGen[2])
	}
	refs, _ := u.Resolve([]uint64{2})
	if len(refs) != 1 || refs[0].Path != "/x" {
		t.Errorf("unexpected refs: %+v", refs)
	}
}

func TestDecodeEmptyIsEmptyManifest(t *testing.T) {
	u, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(u.PinGen) != 0 {
		t.Errorf("expected empty manifest, got %v", u.PinGen)
	}
}

func TestAppendSegmentIsMonotonic(t *testing.T) {
	u := Empty()
	u, gen1 := appendSeg(u, 0, "/seg-a")
	if gen1 != 1 {
		t.Errorf("first gen = %d, want 1", gen1)
	}
	u, gen2 := appendSeg(u, 0, "/seg-b")
	if gen2 != 2 {
		t.Errorf("second gen = %d, want 2", gen2)
	}
	refs, pin := u.Resolve([]uint64{0})
	if pin[0] != 2 {
		t.Errorf("pin = %d, want 2", pin[0])
	}
	if len(refs) != 1 || refs[0].Path != "/seg-b" {
		t.Errorf("expected only the latest generation's segment, got %+v", refs)
	}
}

func appendSeg(u *Unified, shard uint64, path string) (*Unified, uint64) {
	return u.AppendSegment(shard, path)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	u := Empty()
	u, _ = appendSeg(u, 5, "/a")
	data, err := u.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.PinGen[5] != 1 {
		t.Errorf("PinGen[5] = %d, want 1", back.PinGen[5])
	}
}
