// Package cryptoprovider supplies the SHA3-256 hash function used for every
// identity hash on the authoritative path (state, action, matrix, policy
// bundle, receipt, kernel body). It mirrors the teacher's narrow
// CryptoProvider interface so that an alternate backend (e.g. a hardware
// provider) can be swapped in without touching callers.
package cryptoprovider

import "golang.org/x/crypto/sha3"

// Provider is the narrow hashing interface consumed by package canon and
// everything built on it. It never includes signing: this core has no
// signature scheme, only content-addressed hashing.
type Provider interface {
	SHA3_256(input []byte) [32]byte
}

// Default is the std-backed provider used unless a caller substitutes
// another Provider. It uses golang.org/x/crypto/sha3 directly, matching the
// teacher's DevStdCryptoProvider.
type Default struct{}

// SHA3_256 returns the SHA3-256 digest of input.
func (Default) SHA3_256(input []byte) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(input)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// active is the process-wide provider. It is set once at startup (never
// mid-chain) and is otherwise read-only, matching spec §5's "no global
// mutable state" rule: this is the one deliberate exception, a read-only
// strategy selector, not mutable state.
var active Provider = Default{}

// Use installs provider as the active hasher. Callers in cmd/ may invoke
// this once at process start; nothing on the authoritative path calls it.
func Use(p Provider) { active = p }

// SHA3_256 hashes input with the active provider.
func SHA3_256(input []byte) [32]byte { return active.SHA3_256(input) }
