package scheduler

import (
	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/contract"
	"coherence.dev/gate/internal/curvature"
	"coherence.dev/gate/internal/dag"
	"coherence.dev/gate/internal/errs"
	"coherence.dev/gate/internal/gate"
	"coherence.dev/gate/internal/kernel"
	"coherence.dev/gate/internal/policy"
	"coherence.dev/gate/internal/receipt"
)

// Run is the main deterministic commit loop (spec §4.7, §4.10): pull the
// next ready batch under greedy.curv.v1, attempt it, commit on acceptance,
// reschedule on a non-terminal failure, halt on a terminal one. Grounded on
// the teacher's mining loop shape (node/miner.go: build template, try to
// seal, on failure shrink and retry) generalized to this domain's
// reschedule-or-halt discipline.
type Run struct {
	Plan          dag.ExecutionPlan
	Tracker       *dag.Tracker
	Actions       map[string]canon.Action
	Kernels       *kernel.Registry
	Contracts     contract.Set
	Matrix        curvature.Matrix
	Bundle        policy.Bundle
	Preconditions []gate.Precondition

	state    canon.State
	prevHash canon.Hash32
	index    int
	queue    [][]string // batches already peeled/split, attempted before pulling a fresh ready set
}

// NewRun builds a fresh run at the plan's declared initial state.
func NewRun(plan dag.ExecutionPlan, tracker *dag.Tracker, actions map[string]canon.Action,
	kernels *kernel.Registry, contracts contract.Set, matrix curvature.Matrix, bundle policy.Bundle,
	preconditions []gate.Precondition, initial canon.State, genesisPrevHash canon.Hash32) *Run {
	return &Run{
		Plan: plan, Tracker: tracker, Actions: actions, Kernels: kernels, Contracts: contracts,
		Matrix: matrix, Bundle: bundle, Preconditions: preconditions,
		state: initial, prevHash: genesisPrevHash,
	}
}

// Result is the terminal outcome of a completed run.
type Result struct {
	Commits    []receipt.Commit
	Locals     [][]receipt.Local
	HaltCode   errs.Code // empty if the run drained the ready set cleanly
	FinalState canon.State
}

// Drive runs the loop to completion: it repeatedly attempts a candidate
// batch — first draining any batches left over from a prior peel or split,
// otherwise assembling a fresh one from the current ready set — and either
// commits, reschedules, or halts, until no candidate remains or a terminal
// failure occurs.
func (r *Run) Drive() (Result, error) {
	byID := r.Plan.ByID()
	var out Result
	committed := map[string]bool{}

	for {
		var candidate []string
		if len(r.queue) > 0 {
			candidate = r.queue[0]
			r.queue = r.queue[1:]
		} else {
			ready := r.Tracker.ReadySet(committed)
			if len(ready) == 0 {
				break
			}
			batch, err := Assemble(ready, byID, r.Matrix, r.Bundle, r.Plan.SchedulerMode)
			if err != nil {
				return out, err
			}
			if len(batch) == 0 {
				// The greedy rule could admit nothing at all from a
				// nonempty ready set: no independent progress is possible.
				out.HaltCode = errs.TransitionError
				break
			}
			candidate = batch
		}

		outcome, err := Attempt(r.index, r.prevHash, candidate, r.Plan, r.Actions, r.state,
			r.Kernels, r.Contracts, r.Matrix, r.Bundle, r.Preconditions)
		if err != nil {
			code, isCode := errs.CodeOf(err)
			if isCode && errs.IsCap(code) {
				out.HaltCode = code
				break
			}
			return out, err
		}

		if outcome.Accepted {
			out.Commits = append(out.Commits, outcome.Commit)
			out.Locals = append(out.Locals, outcome.Locals)
			r.prevHash = outcome.Commit.Hash()
			r.index++
			r.state = outcome.PostState
			for _, id := range candidate {
				committed[id] = true
				r.Tracker.MarkCommitted(id)
			}
			continue
		}

		next, terminal := Reschedule(candidate, outcome.Failure)
		if terminal != nil {
			out.HaltCode = *terminal
			break
		}
		r.queue = append(r.queue, next...)
	}

	out.FinalState = r.state
	return out, nil
}
