package canon

import (
	"math/big"
	"testing"

	"coherence.dev/gate/internal/quantum"
)

func TestAtomCanonicalRoundTrip(t *testing.T) {
	q, err := quantum.FromRational(big.NewInt(1), big.NewInt(4))
	if err != nil {
		t.Fatal(err)
	}
	atoms := []Atom{
		AtomI(42),
		AtomI(-7),
		AtomIBig(new(big.Int).SetInt64(0)),
		AtomQ(q),
		AtomB([]byte{0x01, 0x02, 0xff}),
		AtomB(nil),
		AtomS("hello world"),
		AtomS(""),
	}
	for _, a := range atoms {
		s := a.Canonical()
		got, err := ParseAtom(s)
		if err != nil {
			t.Fatalf("ParseAtom(%q): %v", s, err)
		}
		if got.Canonical() != s {
			t.Errorf("round-trip mismatch: %q -> %q", s, got.Canonical())
		}
	}
}

func TestAtomKindDiscrimination(t *testing.T) {
	// i:1 != s:1 != q:...:1 != b64:... even when they "look similar".
	i := AtomI(1).Canonical()
	s := AtomS("1").Canonical()
	if i == s {
		t.Errorf("integer and string atoms for the same literal must differ: %q vs %q", i, s)
	}
}

func TestAtomStringEagerNFC(t *testing.T) {
	nfd := "\u0065\u0301clair" // "e" + combining acute, decomposed
	nfc := "\u00e9clair"      // precomposed
	a := AtomS(nfd)
	b := AtomS(nfc)
	if a.Canonical() != b.Canonical() {
		t.Errorf("NFD and NFC forms must canonicalize identically: %q vs %q", a.Canonical(), b.Canonical())
	}
	if a.Str != nfc {
		t.Errorf("AtomS must normalize eagerly: got %q want %q", a.Str, nfc)
	}
}

func TestParseAtomRejectsNonNFCString(t *testing.T) {
	notNFC := "s:\u0065\u0301clair"
	if _, err := ParseAtom(notNFC); err == nil {
		t.Error("ParseAtom must reject a string atom whose payload is not already NFC-normalized")
	}
}

func TestParseAtomRejectsMalformedIntLiterals(t *testing.T) {
	bad := []string{"i:", "i:+1", "i:01", "i:-0", "i:1.5", "i:abc"}
	for _, s := range bad {
		if _, err := ParseAtom(s); err == nil {
			t.Errorf("ParseAtom(%q) should have failed", s)
		}
	}
}

func TestParseAtomRejectsUnknownTag(t *testing.T) {
	if _, err := ParseAtom("x:1"); err == nil {
		t.Error("ParseAtom must reject an unrecognized tag")
	}
}

func TestAtomBytesUsesRawURLEncoding(t *testing.T) {
	a := AtomB([]byte{0xfb, 0xff})
	s := a.Canonical()
	if s[:4] != "b64:" {
		t.Fatalf("expected b64: prefix, got %q", s)
	}
	// RawURLEncoding never emits '=' padding or '+'/'/'.
	for _, c := range s[4:] {
		if c == '=' || c == '+' || c == '/' {
			t.Errorf("b64 payload must use URL-safe unpadded alphabet, found %q in %q", c, s)
		}
	}
}

func TestAtomBCopiesInput(t *testing.T) {
	buf := []byte{1, 2, 3}
	a := AtomB(buf)
	buf[0] = 99
	if a.Bytes[0] != 1 {
		t.Error("AtomB must copy its input so later mutation of the caller's slice is not observed")
	}
}
