// Package scheduler implements the Deterministic Scheduler of spec §3,
// §4.7-§4.10: the allowlisted "greedy.curv.v1" batch assembly rule, the
// batch attempter, fixed-priority failure classification with its two
// rescheduling transforms, and the main commit loop. Grounded on the
// teacher's greedy block-template assembly (node/miner.go: candidates sorted
// by a deterministic key, accepted one at a time under a weight cap) and its
// cost-accumulation discipline (consensus/fork_choice.go), generalized from
// "transactions under a byte-weight cap" to "ops under an curvature-bounded
// epsilon-hat cap".
package scheduler

import (
	"math/big"

	"coherence.dev/gate/internal/curvature"
	"coherence.dev/gate/internal/dag"
	"coherence.dev/gate/internal/policy"
	"coherence.dev/gate/internal/quantum"
)

// RuleID is the one allowlisted scheduler rule (spec §3, policy.AllowedSchedulerRule).
const RuleID = "greedy.curv.v1"

// EpsilonHat computes the curvature-bounded cost estimate for a candidate
// batch (spec §4.4, §4.9 step 3):
//
//	eps_hat(B) = sum_o a_o^2 + 2 * sum_{i<j} M[block_i,block_j] * a_i * a_j
//
// where a_o is op o's declared delta-bound and M is the chain's registered
// curvature matrix. All bookkeeping is exact big.Rat arithmetic; the single
// terminal half-even round happens in the final quantum.FromRational call,
// matching the violation functional's rounding discipline.
func EpsilonHat(batch []dag.OpSpec, m curvature.Matrix) (quantum.Q, error) {
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quantum.Scale)), nil)
	toRat := func(q quantum.Q) *big.Rat { return new(big.Rat).SetFrac(q.Raw(), den) }

	total := new(big.Rat)
	for _, o := range batch {
		a := toRat(o.DeltaBound)
		sq := new(big.Rat).Mul(a, a)
		total.Add(total, sq)
	}
	for i := 0; i < len(batch); i++ {
		for j := i + 1; j < len(batch); j++ {
			num, mden := m.At(batch[i].Block, batch[j].Block)
			if num.Sign() == 0 {
				continue
			}
			mrat := new(big.Rat).SetFrac(num, mden)
			ai := toRat(batch[i].DeltaBound)
			aj := toRat(batch[j].DeltaBound)
			term := new(big.Rat).Mul(mrat, ai)
			term.Mul(term, aj)
			term.Mul(term, big.NewRat(2, 1))
			total.Add(total, term)
		}
	}
	return quantum.FromRational(total.Num(), total.Denom())
}

// eligible reports whether cand may be appended to a batch already holding
// admitted, under the given scheduler mode and policy bundle (spec §4.8
// eligibility rule): mutual independence with everything already admitted;
// not requiring mode D unless the batch mode is D; not touching floats
// when the bundle forbids floats for this mode (which, per spec §1/§4.5,
// is always — float_policy is permanently "forbidden" on the authoritative
// path).
func eligible(cand dag.OpSpec, admitted []dag.OpSpec, mode string, bundle policy.Bundle) bool {
	for _, s := range admitted {
		if !cand.IndependentFrom(s) {
			return false
		}
	}
	if cand.RequiresModeD && mode != dag.ModeD {
		return false
	}
	if cand.FloatTouch && bundle.IsForbiddenFloat() {
		return false
	}
	return true
}

// matrixAccumTerms is the number of cross-term pairings (i<j) EpsilonHat
// must accumulate for a batch of size n: exactly the iteration count of its
// inner loop, independent of which specific ops occupy the batch.
func matrixAccumTerms(n int) int {
	return n * (n - 1) / 2
}

// Assemble builds one batch from the ready set under the greedy.curv.v1
// rule (spec §4.8): starting from an empty batch, repeatedly append the
// eligible op with the minimum strict marginal cost ε̂(B∪{o})−ε̂(B),
// tie-breaking by op_id bytes, until the batch reaches max_parallel_width,
// no eligible op remains, or appending any further op would force
// max_matrix_accum_terms. Ready must already be canonically sorted
// (dag.Tracker.ReadySet guarantees this), which is what makes the
// lexicographic tie-break deterministic without an extra sort here. The
// returned slice is the append log itself (spec §4.8's "canonical witness
// of scheduler behavior"): the exact chronological order ops were added,
// not a re-sorted view of the final batch.
func Assemble(ready []string, byID map[string]dag.OpSpec, matrix curvature.Matrix, bundle policy.Bundle, mode string) ([]string, error) {
	caps := bundle.Caps
	var appendLog []string
	var specs []dag.OpSpec

	for {
		if caps.MaxParallelWidth > 0 && len(specs) >= caps.MaxParallelWidth {
			break
		}
		if !caps.CheckMatrixAccumTerms(matrixAccumTerms(len(specs) + 1)) {
			// Every remaining candidate would force a tentative batch of the
			// same size, hence the same term count: no candidate can help,
			// so assembly stops here rather than skipping candidate by
			// candidate (spec §4.8 stop condition).
			break
		}

		baseEps, err := EpsilonHat(specs, matrix)
		if err != nil {
			return nil, err
		}

		var bestID string
		var bestSpec dag.OpSpec
		var bestMarginal quantum.Q
		haveBest := false

		for _, id := range ready {
			if containsOpID(appendLog, id) {
				continue
			}
			cand := byID[id]
			if !eligible(cand, specs, mode, bundle) {
				continue
			}

			tentative := append(append([]dag.OpSpec(nil), specs...), cand)
			tentEps, err := EpsilonHat(tentative, matrix)
			if err != nil {
				return nil, err
			}
			if caps.MaxEpsilon != nil && !caps.CheckEpsilon(tentEps) {
				continue
			}
			marginal := quantum.Sub(tentEps, baseEps)

			if !haveBest || quantum.Cmp(marginal, bestMarginal) < 0 {
				bestID, bestSpec, bestMarginal, haveBest = id, cand, marginal, true
			}
			// Ties resolve to the lexicographically smallest op_id for
			// free: ready is canonically sorted and a later id only ever
			// replaces bestID on a strictly smaller marginal cost.
		}

		if !haveBest {
			break
		}
		appendLog = append(appendLog, bestID)
		specs = append(specs, bestSpec)
	}
	return appendLog, nil
}

func containsOpID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
