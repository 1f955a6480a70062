package scheduler

import (
	"coherence.dev/gate/internal/dag"
	"coherence.dev/gate/internal/errs"
)

// RemoveLastAppended is the first rescheduling transform (spec §4.10): drop
// the op that Assemble genuinely appended last — per its append log, the
// exact chronological order ops were admitted during greedy assembly, not
// a lexicographic re-sort of the batch — and return it to the ready set for
// independent reconsideration. Used for failures that point at one specific
// misbehaving op — independence conflicts, a policy veto, or a kernel
// error — where peeling off the most-recently-admitted op is the natural
// repair. appendOrder must be a permutation of batch; when batch did not
// come out of Assemble (e.g. one half of a prior SplitLexmin, which has no
// chronological append order of its own), the caller passes batch's own
// lexicographic order as the best available proxy.
func RemoveLastAppended(appendOrder []string) (remaining []string, removed string) {
	remaining = append([]string(nil), appendOrder[:len(appendOrder)-1]...)
	return remaining, appendOrder[len(appendOrder)-1]
}

// SplitLexmin is the second rescheduling transform (spec §4.10): split a
// rejected batch in half by lexicographic op_id order. Used for failures
// that are properties of the whole batch's combined cost (a delta-bound or
// gate-epsilon violation) rather than of one op, where halving the batch
// isolates which half still exceeds its bound.
func SplitLexmin(batch []string) (first, second []string) {
	sorted := append([]string(nil), batch...)
	dag.SortOpIDs(sorted)
	mid := (len(sorted) + 1) / 2
	return sorted[:mid], sorted[mid:]
}

// terminalSingleton maps a non-terminal batch failure code to the terminal
// code reported when that failure recurs on a batch of exactly one op (spec
// §4.10: there is nothing left to peel or split).
var terminalSingleton = map[errs.Code]errs.Code{
	errs.FailKernelError: errs.ErrKernelErrorSingleton,
	errs.FailDeltaBound:  errs.ErrDeltaBoundSingleton,
	errs.FailPolicyVeto:  errs.ErrPolicyVetoSingleton,
	errs.FailGateEps:     errs.ErrGateEpsSingleton,
}

// Reschedule applies the fixed rescheduling policy of spec §4.10 to a
// rejected batch. appendOrder is the batch's chronological append log (as
// produced by Assemble, or the batch's own lexicographic order when it has
// no append log of its own — see RemoveLastAppended). It returns the next
// batches to attempt (one for remove-last-appended, two for split-lexmin),
// or a non-nil terminal code when the batch cannot be shrunk any further.
func Reschedule(appendOrder []string, failure Failure) (next [][]string, terminal *errs.Code) {
	if len(appendOrder) <= 1 {
		if code, ok := terminalSingleton[failure.Code]; ok {
			return nil, &code
		}
		// An independence conflict on a singleton batch is impossible by
		// construction (IndependentFrom always returns true against an
		// empty "already admitted" set); treat it as a transition error if
		// it is somehow reached.
		te := errs.TransitionError
		return nil, &te
	}
	switch failure.Code {
	case errs.FailIndependence, errs.FailPolicyVeto, errs.FailKernelError:
		remaining, _ := RemoveLastAppended(appendOrder)
		return [][]string{remaining}, nil
	case errs.FailDeltaBound, errs.FailGateEps:
		a, b := SplitLexmin(appendOrder)
		return [][]string{a, b}, nil
	default:
		code := failure.Code
		return nil, &code
	}
}
