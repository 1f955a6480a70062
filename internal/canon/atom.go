// Package canon implements tagged atoms, field ids, identity hashes, the
// Merkle root, and the canonical byte encoders for state and action (the
// curvature matrix, policy bundle and receipt encoders live in their own
// packages). Every encoder here is a pure, total function producing
// byte-exact output from a typed input (spec §4.2). Tagged atoms and sorted
// object keys follow the teacher's hand-rolled wire-encoding discipline
// (consensus/encode.go, consensus/tx_marshal.go) rather than reflection- or
// struct-tag-driven JSON marshaling, because field order here is keyed by
// decoded byte value, not by Go struct declaration order.
package canon

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"

	"coherence.dev/gate/internal/quantum"
)

// AtomKind discriminates the four tagged-atom families. Kinds are compared
// literally: i:1 != s:1 != q:0:1 != b64:AQ (spec §3).
type AtomKind byte

const (
	AtomInt AtomKind = iota
	AtomQuantum
	AtomBytes
	AtomString
)

// Atom is one tagged scalar value. Exactly one of the typed fields is
// meaningful, selected by Kind.
type Atom struct {
	Kind  AtomKind
	Int   *big.Int
	Quant quantum.Q
	Bytes []byte
	Str   string
}

// AtomI builds an integer atom.
func AtomI(n int64) Atom { return Atom{Kind: AtomInt, Int: big.NewInt(n)} }

// AtomIBig builds an integer atom from an arbitrary-precision integer.
func AtomIBig(n *big.Int) Atom { return Atom{Kind: AtomInt, Int: new(big.Int).Set(n)} }

// AtomQ builds a quantum atom.
func AtomQ(q quantum.Q) Atom { return Atom{Kind: AtomQuantum, Quant: q} }

// AtomB builds an opaque-bytes atom.
func AtomB(b []byte) Atom {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Atom{Kind: AtomBytes, Bytes: cp}
}

// AtomS builds a string atom, NFC-normalizing eagerly so that Canonical is
// idempotent and round-trip stable.
func AtomS(s string) Atom { return Atom{Kind: AtomString, Str: norm.NFC.String(s)} }

// Canonical renders the atom in its wire tagged-string form.
func (a Atom) Canonical() string {
	switch a.Kind {
	case AtomInt:
		return "i:" + canonicalIntLiteral(a.Int)
	case AtomQuantum:
		return a.Quant.Canonical()
	case AtomBytes:
		return "b64:" + base64.RawURLEncoding.EncodeToString(a.Bytes)
	case AtomString:
		return "s:" + norm.NFC.String(a.Str)
	default:
		panic("canon: invalid atom kind")
	}
}

func canonicalIntLiteral(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String() // big.Int.String already omits '+' and leading zeros
}

// ParseAtom decodes a tagged-atom wire string back into an Atom, validating
// the same constraints the encoders enforce (no scientific notation, no
// NaN/Inf, no leading zeros other than the literal zero, no '+').
func ParseAtom(s string) (Atom, error) {
	switch {
	case strings.HasPrefix(s, "i:"):
		lit := s[2:]
		if err := validateIntLiteral(lit); err != nil {
			return Atom{}, fmt.Errorf("canon: atom %q: %w", s, err)
		}
		n, ok := new(big.Int).SetString(lit, 10)
		if !ok {
			return Atom{}, fmt.Errorf("canon: invalid integer atom %q", s)
		}
		return Atom{Kind: AtomInt, Int: n}, nil
	case strings.HasPrefix(s, "q:"):
		q, err := quantum.Parse(s)
		if err != nil {
			return Atom{}, err
		}
		return Atom{Kind: AtomQuantum, Quant: q}, nil
	case strings.HasPrefix(s, "b64:"):
		b, err := base64.RawURLEncoding.DecodeString(s[4:])
		if err != nil {
			return Atom{}, fmt.Errorf("canon: invalid base64url atom %q: %w", s, err)
		}
		return Atom{Kind: AtomBytes, Bytes: b}, nil
	case strings.HasPrefix(s, "s:"):
		raw := s[2:]
		nfc := norm.NFC.String(raw)
		if nfc != raw {
			return Atom{}, fmt.Errorf("canon: string atom %q is not NFC-normalized", s)
		}
		return Atom{Kind: AtomString, Str: raw}, nil
	default:
		return Atom{}, fmt.Errorf("canon: unrecognized atom tag in %q", s)
	}
}

func validateIntLiteral(s string) error {
	if s == "" {
		return fmt.Errorf("empty integer literal")
	}
	body := s
	if s[0] == '-' {
		body = s[1:]
	} else if s[0] == '+' {
		return fmt.Errorf("leading '+' not allowed")
	}
	if body == "" {
		return fmt.Errorf("malformed integer literal")
	}
	if body != "0" && body[0] == '0' {
		return fmt.Errorf("leading zero not allowed")
	}
	if body == "0" && s[0] == '-' {
		return fmt.Errorf("negative zero not allowed")
	}
	for _, c := range body {
		if c < '0' || c > '9' {
			return fmt.Errorf("non-digit in integer literal")
		}
	}
	return nil
}

// jsonString escapes s as a compact JSON string literal: UTF-8, with
// HTML-escaping disabled so '<','>','&' pass through unescaped (the teacher
// disables this on its JSON encoders too, e.g. cmd/rubin-consensus-cli's
// enc.SetEscapeHTML(false)).
func jsonString(s string) string {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // Encode on a string always succeeds and appends '\n'
	return strings.TrimSuffix(buf.String(), "\n")
}
