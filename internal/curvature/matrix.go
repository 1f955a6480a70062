// Package curvature implements the curvature matrix registry of spec §3,
// §4.4: a symmetric nonnegative rational matrix over blocks, stored only as
// upper-triangle entries, validated and registered once, then looked up by
// id. Grounded on the teacher's validated-artifact registry shape
// (node/store/manifest.go / node/store/work.go).
package curvature

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"coherence.dev/gate/internal/canon"
)

// Entry is one reduced upper-triangle matrix entry (i<=j). The canonical
// zero form is Num=0, Den=1; missing entries default to zero.
type Entry struct {
	I, J     int
	Num, Den *big.Int
}

// MatrixID identifies a registered curvature matrix.
type MatrixID string

// Matrix is a symmetric nonnegative rational matrix indexed by block,
// stored as reduced upper-triangle entries only.
type Matrix struct {
	ID           MatrixID
	Version      string
	EntryMode    string
	SymmetryMode string
	DomainMode   string
	BlockCount   int
	entries      map[[2]int]Entry // key (i,j), i<=j, only present-nonzero entries kept
}

// New constructs a Matrix from the given upper-triangle entries, validating
// every invariant from spec §3/§4.4: no lower-triangle entry, nonnegative
// numerator, positive denominator, reduced (gcd(num,den)==1) fraction,
// block indices within [0,BlockCount).
func New(id MatrixID, version, entryMode, symmetryMode, domainMode string, blockCount int, entries []Entry) (Matrix, error) {
	m := Matrix{
		ID: id, Version: version, EntryMode: entryMode, SymmetryMode: symmetryMode,
		DomainMode: domainMode, BlockCount: blockCount, entries: map[[2]int]Entry{},
	}
	for _, e := range entries {
		if e.I > e.J {
			return Matrix{}, fmt.Errorf("curvature: lower-triangle entry (%d,%d) not permitted", e.I, e.J)
		}
		if e.I < 0 || e.J >= blockCount {
			return Matrix{}, fmt.Errorf("curvature: entry (%d,%d) out of [0,%d)", e.I, e.J, blockCount)
		}
		if e.Num == nil || e.Den == nil || e.Num.Sign() < 0 || e.Den.Sign() <= 0 {
			return Matrix{}, fmt.Errorf("curvature: entry (%d,%d) must have nonnegative numerator and positive denominator", e.I, e.J)
		}
		g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(e.Num), new(big.Int).Abs(e.Den))
		if e.Num.Sign() != 0 && g.Cmp(big.NewInt(1)) != 0 {
			return Matrix{}, fmt.Errorf("curvature: entry (%d,%d) is not a reduced fraction", e.I, e.J)
		}
		if e.Num.Sign() == 0 {
			continue // canonical zero form omitted entirely; missing == zero
		}
		key := [2]int{e.I, e.J}
		if _, dup := m.entries[key]; dup {
			return Matrix{}, fmt.Errorf("curvature: duplicate entry (%d,%d)", e.I, e.J)
		}
		m.entries[key] = Entry{I: e.I, J: e.J, Num: new(big.Int).Set(e.Num), Den: new(big.Int).Set(e.Den)}
	}
	return m, nil
}

// At returns the stored value for (i,j), mirroring (j,i) when i>j, and zero
// when missing (spec §4.4).
func (m Matrix) At(i, j int) (num, den *big.Int) {
	if i > j {
		i, j = j, i
	}
	if e, ok := m.entries[[2]int{i, j}]; ok {
		return new(big.Int).Set(e.Num), new(big.Int).Set(e.Den)
	}
	return big.NewInt(0), big.NewInt(1)
}

func (m Matrix) sortedEntries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	return out
}

// canonEntry renders a single entry's canonical fragment with fixed
// per-entry field order i,j,num,den (spec §3).
func canonEntry(e Entry) string {
	return "{" +
		`"i":` + canonInt(e.I) + "," +
		`"j":` + canonInt(e.J) + "," +
		`"num":` + e.Num.String() + "," +
		`"den":` + e.Den.String() +
		"}"
}

func canonInt(n int) string {
	if n == 0 {
		return "0"
	}
	return fmt.Sprintf("%d", n)
}

// Canonical renders the matrix's canonical JSON bytes with the fixed
// top-level field order matrix_id,version,entry_mode,symmetry_mode,
// domain_mode,block_count,entries (spec §3).
func (m Matrix) Canonical() []byte {
	entries := m.sortedEntries()
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = canonEntry(e)
	}
	entriesJSON := "[" + joinComma(parts) + "]"

	out := "{" +
		`"matrix_id":` + quoteJSON(string(m.ID)) + "," +
		`"version":` + quoteJSON(m.Version) + "," +
		`"entry_mode":` + quoteJSON(m.EntryMode) + "," +
		`"symmetry_mode":` + quoteJSON(m.SymmetryMode) + "," +
		`"domain_mode":` + quoteJSON(m.DomainMode) + "," +
		`"block_count":` + canonInt(m.BlockCount) + "," +
		`"entries":` + entriesJSON +
		"}"
	return []byte(out)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Hash returns the SHA3-256 identity hash of the matrix's canonical bytes.
func (m Matrix) Hash() canon.Hash32 { return canon.SHA3(m.Canonical()) }
