package canon

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// FieldID is a 32-lowercase-hex-character field identifier. Ordering
// between FieldIDs is always by the *decoded* raw bytes, never by the hex
// string directly, per spec §3 (even though for equal-length lowercase hex
// the two orders coincide, the decode step is part of the spec and is
// preserved here for fidelity and because ParseFieldID also validates
// shape).
type FieldID struct {
	hex string
	raw [16]byte
}

// ParseFieldID validates and decodes a 32-lowercase-hex-character field id.
func ParseFieldID(s string) (FieldID, error) {
	if len(s) != 32 {
		return FieldID{}, fmt.Errorf("canon: FieldID must be 32 hex chars, got %d", len(s))
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return FieldID{}, fmt.Errorf("canon: FieldID %q must be lowercase hex", s)
		}
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return FieldID{}, fmt.Errorf("canon: FieldID %q: %w", s, err)
	}
	var f FieldID
	f.hex = s
	copy(f.raw[:], raw)
	return f, nil
}

// String returns the 32-hex-char canonical form.
func (f FieldID) String() string { return f.hex }

// Bytes returns the decoded raw bytes used for ordering.
func (f FieldID) Bytes() []byte { return f.raw[:] }

// Less orders two FieldIDs by decoded raw bytes.
func (f FieldID) Less(other FieldID) bool {
	return bytes.Compare(f.raw[:], other.raw[:]) < 0
}
