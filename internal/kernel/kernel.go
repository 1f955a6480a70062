// Package kernel implements the kernel registry of spec §3, §6: named pure
// functions over State, hashed by id so an OpSpec can bind a stable
// kernel_hash without embedding source text in the chain. Grounded on the
// teacher's closed covenant-type handler registry
// (consensus/covenant_genesis.go).
package kernel

import (
	"fmt"

	"coherence.dev/gate/internal/canon"
)

// Func is a kernel body: a pure function of the pre-state that returns a
// full state-like value. Callers must restrict the result to the op's
// declared write set before trusting it (spec §4.6 step 4) — Func itself
// makes no such guarantee, by design, so that kernel authors cannot rely on
// writes outside W being honored.
type Func func(pre canon.State) (canon.State, error)

// Entry is one registered kernel: its body plus the descriptor bytes used
// to compute kernel_hash.
type Entry struct {
	ID                 string
	Body               Func
	ParamsSchemaDigest canon.Hash32
}

// Hash returns the SHA3-256 hash of the kernel's canonical descriptor
// (kernel id + params schema digest), per spec §3 OpSpec / §6 kernel
// registry.
func (e Entry) Hash() canon.Hash32 {
	desc := "{\"kernel_id\":\"" + jsonEscape(e.ID) + "\",\"params_schema_digest\":\"" + e.ParamsSchemaDigest.Hex() + "\"}"
	return canon.SHA3([]byte(desc))
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

// Registry is the chain-wide kernel allowlist, built once at genesis and
// read-only afterward (spec §5, §6: its digest is bound into the policy
// bundle).
type Registry struct {
	byID map[string]Entry
}

// NewRegistry builds an empty kernel registry.
func NewRegistry() *Registry { return &Registry{byID: map[string]Entry{}} }

// Register adds a kernel under id, rejecting a duplicate id.
func (r *Registry) Register(e Entry) error {
	if _, dup := r.byID[e.ID]; dup {
		return fmt.Errorf("kernel: id %q already registered", e.ID)
	}
	r.byID[e.ID] = e
	return nil
}

// Lookup returns the registered kernel entry by id.
func (r *Registry) Lookup(id string) (Entry, error) {
	e, ok := r.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("kernel: id %q is not registered", id)
	}
	return e, nil
}

// Digest returns the registry's own digest, bound into the policy bundle
// (spec §6: "The registry digest is bound into the policy bundle"). It is
// the SHA3-256 of the sorted concatenation of every entry's own hash, so
// that registering the same kernels in a different order yields the same
// digest (consistent with the "no dependence on ... filesystem order"
// non-goal).
func (r *Registry) Digest() canon.Hash32 {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sortStrings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		e := r.byID[id]
		parts[i] = "{\"kernel_id\":\"" + jsonEscape(id) + "\",\"kernel_hash\":\"" + e.Hash().Hex() + "\"}"
	}
	joined := "["
	for i, p := range parts {
		if i > 0 {
			joined += ","
		}
		joined += p
	}
	joined += "]"
	return canon.SHA3([]byte(joined))
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j] < ss[j-1]; j-- {
			ss[j], ss[j-1] = ss[j-1], ss[j]
		}
	}
}

// Run executes the kernel for id on pre-state x and restricts the result to
// writes (spec §4.6 step 4, §4.9 step 2): only fields named in writes are
// taken from the kernel's output; everything else from the kernel's result
// is discarded, and any field in writes absent from the kernel's output is
// likewise absent from the patch (the kernel must produce every field it
// claims to write).
func (r *Registry) Run(id string, pre canon.State, writes []canon.FieldID) (canon.State, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return canon.State{}, err
	}
	full, err := e.Body(pre)
	if err != nil {
		return canon.State{}, err
	}
	patch := make(map[canon.FieldID]canon.Atom, len(writes))
	for _, f := range writes {
		if v, ok := full.Get(f); ok {
			patch[f] = v
		}
	}
	return pre.Patch(patch), nil
}
