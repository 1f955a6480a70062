// Package dag holds the execution plan data model (OpSpec, DAG edges,
// dependency tracker, ready-set computation) of spec §3, §4.7. Grounded on
// the teacher's reorg/candidate bookkeeping (node/store/reorg.go,
// node/store/work.go) generalized from "chain of blocks" to "DAG of ops".
package dag

import (
	"bytes"
	"sort"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/quantum"
)

// EdgeKind is the closed set of DAG edge kinds (spec §3).
type EdgeKind string

const (
	EdgeWAR            EdgeKind = "WAR"
	EdgeWAW            EdgeKind = "WAW"
	EdgeControlExplicit EdgeKind = "control.explicit"
)

// Edge is one DAG edge (predecessor, successor) with a kind.
type Edge struct {
	Pred, Succ string // op_id
	Kind       EdgeKind
}

// OpSpec is one operation specification (spec §3).
type OpSpec struct {
	OpID            string
	KernelID        string
	KernelHash      canon.Hash32
	FootprintDigest canon.Hash32
	Reads           []canon.FieldID
	Writes          []canon.FieldID
	Block           int
	DeltaBound      quantum.Q // positive
	RequiresModeD   bool
	FloatTouch      bool
	KernelType      string
}

// readSet/writeSet return the field id strings for independence checks.
func (o OpSpec) readSet() map[string]bool {
	m := make(map[string]bool, len(o.Reads))
	for _, f := range o.Reads {
		m[f.String()] = true
	}
	return m
}

func (o OpSpec) writeSet() map[string]bool {
	m := make(map[string]bool, len(o.Writes))
	for _, f := range o.Writes {
		m[f.String()] = true
	}
	return m
}

// FieldsTouched returns |R ∪ W|, used against policy.Caps.MaxFieldsTouchedPerOp.
func (o OpSpec) FieldsTouched() int {
	touched := o.readSet()
	for k := range o.writeSet() {
		touched[k] = true
	}
	return len(touched)
}

// IndependentFrom reports whether o and other may appear in the same batch:
// no overlap between (R∪W) of one and W of the other, in either direction
// (spec §4.8).
func (o OpSpec) IndependentFrom(other OpSpec) bool {
	oRW := o.readSet()
	for k := range o.writeSet() {
		oRW[k] = true
	}
	otherRW := other.readSet()
	for k := range other.writeSet() {
		otherRW[k] = true
	}
	oW := o.writeSet()
	otherW := other.writeSet()
	for k := range oW {
		if otherRW[k] {
			return false
		}
	}
	for k := range otherW {
		if oRW[k] {
			return false
		}
	}
	return true
}

// CanonicalLess orders OpSpecs (and op ids generally) by raw UTF-8 bytes of
// op_id (spec §4.7).
func CanonicalLess(a, b string) bool { return bytes.Compare([]byte(a), []byte(b)) < 0 }

// SortOpIDs sorts a slice of op ids in canonical order, in place.
func SortOpIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return CanonicalLess(ids[i], ids[j]) })
}

// ModeD is the one scheduler mode under which an op declaring
// RequiresModeD may be batched (spec §4.8 eligibility rule).
const ModeD = "D"

// ExecutionPlan is the immutable execution plan of spec §3.
type ExecutionPlan struct {
	PlanID             string
	PolicyBundleID     string
	PolicyBundleDigest canon.Hash32
	InitialStateHash   canon.Hash32
	Ops                []OpSpec
	Edges              []Edge
	MaxParallelWidth   int
	SchedulerRuleID    string
	SchedulerMode      string
	AbortOnKernelError bool
}

// ByID indexes Ops by op_id.
func (p ExecutionPlan) ByID() map[string]OpSpec {
	out := make(map[string]OpSpec, len(p.Ops))
	for _, o := range p.Ops {
		out[o.OpID] = o
	}
	return out
}
