package canon

import "testing"

func TestHash32HexRoundTrip(t *testing.T) {
	h := SHA3([]byte("hello"))
	s := h.Hex()
	got, err := ParseHash32(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("round-trip mismatch: %v -> %v", h, got)
	}
}

func TestParseHash32RejectsBadShape(t *testing.T) {
	bad := []string{
		"",
		"h:abc",
		"g:" + string(make([]byte, 64)),
		"h:" + "ABCDEF0000000000000000000000000000000000000000000000000000000000", // uppercase, correct length
	}
	for _, s := range bad {
		if _, err := ParseHash32(s); err == nil {
			t.Errorf("ParseHash32(%q) should have failed", s)
		}
	}
}

func TestHash32IsZero(t *testing.T) {
	var z Hash32
	if !z.IsZero() {
		t.Error("zero-value Hash32 must report IsZero")
	}
	h := SHA3([]byte("x"))
	if h.IsZero() {
		t.Error("a real hash must not report IsZero")
	}
}

func TestSHA3Deterministic(t *testing.T) {
	a := SHA3([]byte("same input"))
	b := SHA3([]byte("same input"))
	if a != b {
		t.Error("SHA3 must be deterministic for identical input")
	}
	c := SHA3([]byte("different input"))
	if a == c {
		t.Error("SHA3 must differ for different input")
	}
}

func TestSHA256PairOrderSensitive(t *testing.T) {
	a := SHA3([]byte("a"))
	b := SHA3([]byte("b"))
	ab := SHA256Pair(a, b)
	ba := SHA256Pair(b, a)
	if ab == ba {
		t.Error("SHA256Pair must be sensitive to left/right order")
	}
}

func TestMerkleRootSingleLeafIsItself(t *testing.T) {
	leaf := SHA3([]byte("only"))
	root, err := MerkleRoot([]Hash32{leaf})
	if err != nil {
		t.Fatal(err)
	}
	if root != leaf {
		t.Error("a single-leaf tree's root must be the leaf itself, no duplication applied")
	}
}

func TestMerkleRootOddCountDuplicatesLast(t *testing.T) {
	a := SHA3([]byte("a"))
	b := SHA3([]byte("b"))
	c := SHA3([]byte("c"))
	root, err := MerkleRoot([]Hash32{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	left := SHA256Pair(a, b)
	right := SHA256Pair(c, c)
	want := SHA256Pair(left, right)
	if root != want {
		t.Error("odd leaf count must duplicate the last node at each level")
	}
}

func TestMerkleRootRejectsEmpty(t *testing.T) {
	if _, err := MerkleRoot(nil); err == nil {
		t.Error("MerkleRoot must reject an empty leaf set")
	}
}

func TestMerkleRootEvenCountNoSelfDuplication(t *testing.T) {
	a := SHA3([]byte("a"))
	b := SHA3([]byte("b"))
	root, err := MerkleRoot([]Hash32{a, b})
	if err != nil {
		t.Fatal(err)
	}
	want := SHA256Pair(a, b)
	if root != want {
		t.Error("two-leaf tree must be the direct pairwise hash, no duplication")
	}
}
