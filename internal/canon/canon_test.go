package canon

import "testing"

func TestMarshalSortsObjectKeysRegardlessOfInputOrder(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}
	b := map[string]any{"c": map[string]any{"y": 2, "z": 1}, "a": 2, "b": 1}

	encodedA, err := Marshal(a)
	if err != nil {
		t.Fatalf("marshal a: %v", err)
	}
	encodedB, err := Marshal(b)
	if err != nil {
		t.Fatalf("marshal b: %v", err)
	}
	if string(encodedA) != string(encodedB) {
		t.Fatalf("expected identical canonical encodings, got %q and %q", encodedA, encodedB)
	}
}

func TestHashIsStableAndChangesWithContent(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable hash, got %q and %q", h1, h2)
	}
	h3, err := Hash(map[string]any{"a": 2})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h3 {
		t.Fatalf("expected different hash for different content")
	}
}

func TestMarshalEscapesNonASCIIRunes(t *testing.T) {
	encoded, err := Marshal(map[string]any{"k": "\u5168\u90e8"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "{\"k\":\"\\u5168\\u90e8\"}"
	if string(encoded) != want {
		t.Fatalf("expected ASCII-escaped output %q, got %q", want, encoded)
	}
}

func TestMarshalEscapesNonASCIIInObjectKeys(t *testing.T) {
	encoded, err := Marshal(map[string]any{"\u5168": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "{\"\\u5168\":1}"
	if string(encoded) != want {
		t.Fatalf("expected ASCII-escaped key %q, got %q", want, encoded)
	}
}

func TestMarshalEscapesAstralPlaneRuneAsSurrogatePair(t *testing.T) {
	encoded, err := Marshal(map[string]any{"k": "\U0001F600"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "{\"k\":\"\\ud83d\\ude00\"}"
	if string(encoded) != want {
		t.Fatalf("expected surrogate-pair escape %q, got %q", want, encoded)
	}
}

func TestBucketIsDeterministicAndWithinRange(t *testing.T) {
	b1 := Bucket("T-001")
	b2 := Bucket("T-001")
	if b1 != b2 {
		t.Fatalf("expected deterministic bucket, got %d and %d", b1, b2)
	}
	if b1 >= 100 {
		t.Fatalf("expected bucket in [0,100), got %d", b1)
	}
}
