// Package gate implements the Measured Gate of spec §4.6: the per-action
// pipeline from pre-state debt through service/disturbance verification to
// the law inequality D' <= D - S(D,B) + E. Grounded on the teacher's
// ordered-check validation pipeline (consensus/validate.go's
// parse -> precondition -> apply -> recompute -> compare -> accept shape).
package gate

import (
	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/contract"
	"coherence.dev/gate/internal/errs"
	"coherence.dev/gate/internal/kernel"
	"coherence.dev/gate/internal/policy"
	"coherence.dev/gate/internal/quantum"
)

// Result carries every intermediate value the gate computed, so a caller
// building a receipt never has to recompute anything.
type Result struct {
	Accepted    bool
	PreState    canon.State
	PostState   canon.State // single-op patched state (spec §4.6 step 4)
	D, DPrime   quantum.Q
	DeltaV      quantum.Q
	Service     quantum.Q
	Disturbance quantum.Q
	FailureCode errs.Code // meaningful only if !Accepted
}

// Precondition is a hard invariant on the pre-state, evaluated before any
// kernel runs (spec §4.6 step 2). It returns a nil error when satisfied.
type Precondition func(x canon.State) error

// Check runs the full Measured Gate pipeline (spec §4.6 steps 1-9) for one
// op against the shared pre-state x:
//  1. the caller is expected to have already canonicalized the Action
//     (internal/canon.Action.Canonicalize) before calling Check;
//  2. preconditions;
//  3. pre-state debt D = V(x);
//  4. run the kernel on x, restrict to the op's write set to get the
//     single-op patched state;
//  5. post-state debt D' and DeltaV = D' - D;
//  6. service S(D,B);
//  7. disturbance verification;
//  8. law check D' <= D - S(D,B) + E;
//  9. the caller builds the receipt from the returned Result on accept.
func Check(
	x canon.State,
	writes []canon.FieldID,
	kernelID string,
	kernels *kernel.Registry,
	contracts contract.Set,
	budget quantum.Q,
	disturbance quantum.Q,
	disturbanceEventLabel string,
	law policy.ServiceLaw,
	disturbancePolicy policy.DisturbancePolicy,
	preconditions []Precondition,
	opID string,
) (Result, error) {
	for _, pc := range preconditions {
		if err := pc(x); err != nil {
			return Result{}, errs.NewOp(errs.InvariantViolation, opID, "precondition_failed")
		}
	}

	d, _, err := contract.Evaluate(contracts, x)
	if err != nil {
		return Result{}, err
	}

	post, err := kernels.Run(kernelID, x, writes)
	if err != nil {
		return Result{Accepted: false, FailureCode: errs.FailKernelError}, errs.NewOp(errs.FailKernelError, opID, "kernel_error")
	}

	dPrime, _, err := contract.Evaluate(contracts, post)
	if err != nil {
		return Result{}, err
	}
	deltaV := quantum.Sub(dPrime, d)

	service, err := law.Apply(d, budget)
	if err != nil {
		return Result{}, err
	}

	if err := disturbancePolicy.Verify(disturbance, disturbanceEventLabel); err != nil {
		return Result{
			Accepted: false, PreState: x, PostState: post, D: d, DPrime: dPrime, DeltaV: deltaV,
			Service: service, Disturbance: disturbance, FailureCode: errs.FailPolicyVeto,
		}, nil
	}

	// Law: D' <= D - S(D,B) + E, compared integer-exact on the shared scale.
	rhs := quantum.Add(quantum.Sub(d, service), disturbance)
	accept := quantum.Cmp(dPrime, rhs) <= 0

	res := Result{
		Accepted: accept, PreState: x, PostState: post, D: d, DPrime: dPrime, DeltaV: deltaV,
		Service: service, Disturbance: disturbance,
	}
	if !accept {
		res.FailureCode = errs.FailGateEps
	}
	return res, nil
}
