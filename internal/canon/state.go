package canon

import (
	"fmt"
	"sort"
)

// SchemaID identifies the logical schema a State instance belongs to
// (bound into every canonical encoding alongside canon_id and float_policy
// per spec §3).
type SchemaID string

// FloatPolicy is always "forbidden" on the authoritative path (spec §1,
// §4.5); the field is still carried explicitly in every canonical state so
// replay can detect drift if a bundle ever claimed otherwise.
const FloatPolicyForbidden = "forbidden"

// State is an unordered mapping from FieldID to a tagged atom. It is
// immutable once built: new snapshots are produced by Patch, never by
// mutating an existing State's map (spec §3 lifecycle).
type State struct {
	SchemaID SchemaID
	fields   map[string]Atom // keyed by FieldID.String(); sortedIDs sorts by decoded bytes at encode time
	// Meta is an optional attachment that is never hashed (spec §3).
	Meta map[string]string
}

// NewState builds an empty state under the given schema.
func NewState(schema SchemaID) State {
	return State{SchemaID: schema, fields: map[string]Atom{}}
}

// Get returns the atom stored at id, if present.
func (s State) Get(id FieldID) (Atom, bool) {
	a, ok := s.fields[id.String()]
	return a, ok
}

// Len reports the number of fields.
func (s State) Len() int { return len(s.fields) }

// ForEach iterates fields in canonical (decoded-byte-sorted) FieldID order.
// It never relies on Go map iteration order for anything observable.
func (s State) ForEach(fn func(id FieldID, a Atom)) {
	for _, id := range s.sortedIDs() {
		fn(id, s.fields[id.String()])
	}
}

func (s State) sortedIDs() []FieldID {
	ids := make([]FieldID, 0, len(s.fields))
	for k := range s.fields {
		id, err := ParseFieldID(k)
		if err != nil {
			panic("canon: State holds an invalid FieldID key: " + err.Error())
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Patch returns a new State equal to s with the given writes applied
// (inserted or overwritten). s itself is never mutated (spec §3: "new
// snapshots are produced by patching writes").
func (s State) Patch(writes map[FieldID]Atom) State {
	out := State{SchemaID: s.SchemaID, fields: make(map[string]Atom, len(s.fields)+len(writes)), Meta: s.Meta}
	for k, v := range s.fields {
		out.fields[k] = v
	}
	for id, a := range writes {
		out.fields[id.String()] = a
	}
	return out
}

// With returns a new State with a single field set, convenience over Patch.
func (s State) With(id FieldID, a Atom) State {
	return s.Patch(map[FieldID]Atom{id: a})
}

// Canonical renders the state as canonical bytes:
//
//	{"canon_id":"sorted_json_bytes.v1","schema_id":...,"float_policy":"forbidden","fields":[[FieldID,ValueCanon],...]}
//
// fields are sorted by decoded FieldID bytes (spec §3).
func (s State) Canonical() []byte {
	ids := s.sortedIDs()
	pairs := make([]string, 0, len(ids))
	for _, id := range ids {
		a := s.fields[id.String()]
		pairs = append(pairs, arr(strVal(id.String()), strVal(a.Canonical())))
	}
	out := object(
		field{"canon_id", strVal("sorted_json_bytes.v1")},
		field{"schema_id", strVal(string(s.SchemaID))},
		field{"float_policy", strVal(FloatPolicyForbidden)},
		field{"fields", arr(pairs...)},
	)
	return []byte(out)
}

// Hash returns the SHA3-256 identity hash of the state's canonical bytes.
func (s State) Hash() Hash32 { return SHA3(s.Canonical()) }

// Validate checks the State-level invariant not already enforced by
// construction: SchemaID must be non-empty. Field keys are FieldIDs by
// construction and are not re-checked here. State carries no schema of
// field constraints, so Validate does not check the
// nonnegativity-on-declared-fields invariant (spec §3).
func (s State) Validate() error {
	if s.SchemaID == "" {
		return fmt.Errorf("canon: State.SchemaID must not be empty")
	}
	return nil
}
