package scheduler

import (
	"fmt"
	"math/big"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/contract"
	"coherence.dev/gate/internal/curvature"
	"coherence.dev/gate/internal/dag"
	"coherence.dev/gate/internal/errs"
	"coherence.dev/gate/internal/gate"
	"coherence.dev/gate/internal/kernel"
	"coherence.dev/gate/internal/policy"
	"coherence.dev/gate/internal/quantum"
	"coherence.dev/gate/internal/receipt"
)

// priority is the fixed classification order of spec §4.10: when more than
// one failure is present in a batch, the worst-ranked one (lowest number)
// is the one the main loop acts on.
var priority = map[errs.Code]int{
	errs.FailIndependence: 0,
	errs.FailPolicyVeto:   1,
	errs.FailKernelError:  2,
	errs.FailDeltaBound:   3,
	errs.FailGateEps:      4,
}

func worseOf(a, b errs.Code) errs.Code {
	if priority[a] <= priority[b] {
		return a
	}
	return b
}

// Failure is a classified, non-terminal batch failure (or a terminal cap
// exhaustion) pinned to the responsible op, if any.
type Failure struct {
	Code errs.Code
	OpID string // empty for a batch-level failure with no single responsible op
}

// Outcome is the result of one batch attempt (spec §4.9).
type Outcome struct {
	Accepted  bool
	Failure   Failure // meaningful only if !Accepted
	Locals    []receipt.Local
	Commit    receipt.Commit
	PostState canon.State // the batch-patched state; meaningful only if Accepted
}

// Attempt runs the batch attempter pipeline of spec §4.9 steps 1-8 for one
// candidate batch against the shared pre-state pre. actions maps each op id
// in batch to the Action descriptor carrying its declared budget and
// disturbance event label. plan supplies the op registry and the
// policy-locked identifiers (scheduler rule id, scheduler mode, policy
// bundle id) bound into the resulting commit receipt. batch is never
// mutated; a canonically-sorted copy is used for patching order so that a
// caller's append-order slice survives unchanged for rescheduling.
func Attempt(
	index int,
	prevHash canon.Hash32,
	batch []string,
	plan dag.ExecutionPlan,
	actions map[string]canon.Action,
	pre canon.State,
	kernels *kernel.Registry,
	contracts contract.Set,
	matrix curvature.Matrix,
	bundle policy.Bundle,
	preconditions []gate.Precondition,
) (Outcome, error) {
	byID := plan.ByID()
	sorted := append([]string(nil), batch...)
	dag.SortOpIDs(sorted)

	specs := make([]dag.OpSpec, len(sorted))
	for i, id := range sorted {
		specs[i] = byID[id]
	}

	// Step 1: planning checks. Independence is re-verified defensively even
	// though Assemble already enforced it; a caller-supplied batch might not
	// have gone through Assemble at all. Mode/float policy is likewise
	// re-verified here rather than trusted from assembly time (spec §4.9
	// step 1).
	for i := 0; i < len(specs); i++ {
		for j := i + 1; j < len(specs); j++ {
			if !specs[i].IndependentFrom(specs[j]) {
				// remove-last-appended: the later op in canonical order is
				// the one the fixed priority order holds responsible.
				return Outcome{Failure: Failure{Code: errs.FailIndependence, OpID: specs[j].OpID}}, nil
			}
		}
	}
	for _, o := range specs {
		if o.RequiresModeD && plan.SchedulerMode != dag.ModeD {
			return Outcome{Failure: Failure{Code: errs.FailPolicyVeto, OpID: o.OpID}}, nil
		}
		if o.FloatTouch && bundle.IsForbiddenFloat() {
			return Outcome{Failure: Failure{Code: errs.FailPolicyVeto, OpID: o.OpID}}, nil
		}
	}

	if !bundle.Caps.CheckFieldsTouched(maxFieldsTouched(specs)) {
		return Outcome{}, errs.New(errs.ErrCapFieldsTouchedExceeded, "")
	}

	// Step 2-3: shared-state kernel execution per op, plus per-op law and
	// delta-bound checks (spec §4.6 steps 1-9 applied per op, §4.9 step 3).
	results := make([]gate.Result, len(specs))
	var worst *Failure
	for i, o := range specs {
		a, ok := actions[o.OpID]
		if !ok {
			return Outcome{}, fmt.Errorf("scheduler: no action descriptor for op %q", o.OpID)
		}
		res, err := gate.Check(
			pre, o.Writes, o.KernelID, kernels, contracts,
			a.Budget, disturbanceAmount(a), a.DisturbanceTag,
			bundle.ServiceLaw, bundle.Disturbance, preconditions, o.OpID,
		)
		if err != nil {
			code, ok := errs.CodeOf(err)
			if !ok {
				return Outcome{}, err
			}
			f := Failure{Code: code, OpID: o.OpID}
			worst = keepWorse(worst, f)
			continue
		}
		results[i] = res

		touched := append(append([]canon.FieldID(nil), o.Reads...), o.Writes...)
		deltaSq := fieldDeltaNormSquared(pre, res.PostState, touched)
		boundSq := quantum.MulQ(o.DeltaBound, o.DeltaBound)
		if quantum.Cmp(deltaSq, boundSq) > 0 {
			worst = keepWorse(worst, Failure{Code: errs.FailDeltaBound, OpID: o.OpID})
			continue
		}
		if !res.Accepted {
			worst = keepWorse(worst, Failure{Code: res.FailureCode, OpID: o.OpID})
		}
	}
	if worst != nil {
		return Outcome{Failure: *worst}, nil
	}

	// Step 4: disjoint patching in canonical op_id order onto the shared
	// pre-state (spec §4.9 step 4).
	post := pre
	for _, o := range specs {
		res := resultFor(results, specs, o.OpID)
		patch := make(map[canon.FieldID]canon.Atom, len(o.Writes))
		for _, f := range o.Writes {
			if v, ok := res.PostState.Get(f); ok {
				patch[f] = v
			}
		}
		post = post.Patch(patch)
	}

	// Step 5: measure epsilon over the whole batch.
	vPre, _, err := contract.Evaluate(contracts, pre)
	if err != nil {
		return Outcome{}, err
	}
	vPost, _, err := contract.Evaluate(contracts, post)
	if err != nil {
		return Outcome{}, err
	}
	epsilon := quantum.Abs(quantum.Sub(vPost, vPre))

	if !bundle.Caps.CheckBigintBits(maxBits(vPre, vPost, epsilon)) {
		return Outcome{}, errs.New(errs.ErrCapBigintBitsExceeded, "")
	}

	// Step 6: gate. epsilon <= eps_hat(B) and, if capped, <= max_epsilon.
	epsHat, err := EpsilonHat(specs, matrix)
	if err != nil {
		return Outcome{}, err
	}
	if quantum.Cmp(epsilon, epsHat) > 0 {
		return Outcome{Failure: Failure{Code: errs.FailGateEps}}, nil
	}
	if !bundle.Caps.CheckEpsilon(epsilon) {
		return Outcome{}, errs.New(errs.ErrCapEpsilonExceeded, "")
	}

	// Step 7-8: local receipts, Merkle root, commit receipt.
	locals := make([]receipt.Local, len(specs))
	leaves := make([]canon.Hash32, len(specs))
	for i, o := range specs {
		res := resultFor(results, specs, o.OpID)
		l := receipt.Local{
			OpID: o.OpID, PreStateHash: pre.Hash(), PostStateHash: res.PostState.Hash(),
			D: res.D, DPrime: res.DPrime, Service: res.Service, Disturbance: res.Disturbance,
		}
		locals[i] = l
		leaves[i] = l.Hash()
	}
	root, err := canon.MerkleRoot(leaves)
	if err != nil {
		return Outcome{}, err
	}

	commit := receipt.Commit{
		Index: index, PrevHash: prevHash, BatchOpIDs: sorted, MerkleRoot: root,
		PreStateHash: pre.Hash(), PostStateHash: post.Hash(),
		VPre: vPre, VPost: vPost, Epsilon: epsilon, EpsilonHat: epsHat,
		PolicyDigest: bundle.Digest(),
		SchedulerRuleID: plan.SchedulerRuleID, SchedulerMode: plan.SchedulerMode,
		PolicyBundleID: plan.PolicyBundleID,
		CurvatureMatrixID: bundle.CurvatureMatrixID, CurvatureMatrixDigest: bundle.CurvatureMatrixDigest,
	}

	return Outcome{Accepted: true, Locals: locals, Commit: commit, PostState: post}, nil
}

func keepWorse(cur *Failure, f Failure) *Failure {
	if cur == nil {
		return &f
	}
	w := worseOf(cur.Code, f.Code)
	if w == f.Code && f.Code != cur.Code {
		return &f
	}
	return cur
}

func resultFor(results []gate.Result, specs []dag.OpSpec, opID string) gate.Result {
	for i, o := range specs {
		if o.OpID == opID {
			return results[i]
		}
	}
	return gate.Result{}
}

// fieldDeltaNormSquared computes the squared 2-norm, over fields, of
// (post-pre) restricted to the declared field set touched (spec §4.9 step
// 3). Comparing squares instead of the norm itself avoids an exact-integer
// square root; since both sides of the gate comparison are nonnegative,
// order is preserved. Only the two numeric atom kinds contribute; a
// bytes/string field carries no notion of a squared difference and an
// absent field (on either side) contributes zero.
func fieldDeltaNormSquared(pre, post canon.State, fields []canon.FieldID) quantum.Q {
	seen := make(map[canon.FieldID]bool, len(fields))
	sum := quantum.Zero()
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		a, aOK := numericAtomAsQ(pre, f)
		b, bOK := numericAtomAsQ(post, f)
		if !aOK && !bOK {
			continue
		}
		d := quantum.Sub(b, a)
		sum = quantum.Add(sum, quantum.MulQ(d, d))
	}
	return sum
}

// numericAtomAsQ resolves a field to a quantum value for delta-norm
// purposes: quantum atoms pass through directly, integer atoms convert
// exactly (an integer n is the quantum value n/1, requiring no rounding),
// and bytes/string atoms (and absent fields) are not numeric.
func numericAtomAsQ(s canon.State, f canon.FieldID) (quantum.Q, bool) {
	v, ok := s.Get(f)
	if !ok {
		return quantum.Zero(), false
	}
	switch v.Kind {
	case canon.AtomQuantum:
		return v.Quant, true
	case canon.AtomInt:
		q, err := quantum.FromRational(v.Int, big.NewInt(1))
		if err != nil {
			return quantum.Zero(), false
		}
		return q, true
	default:
		return quantum.Zero(), false
	}
}

func maxFieldsTouched(specs []dag.OpSpec) int {
	max := 0
	for _, o := range specs {
		if n := o.FieldsTouched(); n > max {
			max = n
		}
	}
	return max
}

// disturbanceAmount reads the claimed disturbance magnitude E from an
// action's payload (key "disturbance_amount"), defaulting to zero when
// absent — the common case under DP0, where E=0 is required anyway.
func disturbanceAmount(a canon.Action) quantum.Q {
	atom, ok := a.Payload["disturbance_amount"]
	if !ok || atom.Kind != canon.AtomQuantum {
		return quantum.Zero()
	}
	return atom.Quant
}

func maxBits(qs ...quantum.Q) int {
	max := 0
	for _, q := range qs {
		if b := q.BitLen(); b > max {
			max = b
		}
	}
	return max
}
