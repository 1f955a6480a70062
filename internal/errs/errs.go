// Package errs defines the closed error taxonomy used on the authoritative
// path. No free-form string ever enters the hash chain: every failure is one
// of the constants below, optionally paired with a failing op id.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, closed error code. New codes are never invented ad hoc;
// they are added here and nowhere else.
type Code string

const (
	// Invariant-time — never reach a kernel.
	InvariantViolation Code = "invariant_violation"
	TransitionError    Code = "transition_error"
	ActionSchema       Code = "action_schema"

	// Batch-time, non-terminal — the main loop reschedules.
	FailIndependence Code = "fail.independence"
	FailPolicyVeto   Code = "fail.policy_veto"
	FailKernelError  Code = "fail.kernel_error"
	FailDeltaBound   Code = "fail.delta_bound"
	FailGateEps      Code = "fail.gate_eps"

	// Terminal — halt, no receipt.
	ErrKernelErrorSingleton Code = "err.kernel_error.singleton"
	ErrDeltaBoundSingleton  Code = "err.delta_bound.singleton"
	ErrPolicyVetoSingleton  Code = "err.policy_veto.singleton"
	ErrGateEpsSingleton     Code = "err.gate_eps.singleton"

	ErrCapBigintBitsExceeded   Code = "err.cap.bigint_bits_exceeded"
	ErrCapMatrixTermsExceeded  Code = "err.cap.matrix_terms_exceeded"
	ErrCapFieldsTouchedExceeded Code = "err.cap.fields_touched_exceeded"
	ErrCapVEvalCostExceeded    Code = "err.cap.v_eval_cost_exceeded"
	ErrCapEpsilonExceeded      Code = "err.cap.epsilon_exceeded"
	ErrCapLCMOverflow          Code = "err.cap.lcm_overflow"
	ErrCapAllocFailed          Code = "err.cap.alloc_failed"

	ErrPolicyDigestMismatch          Code = "err.policy_digest_mismatch"
	ErrMatrixDigestMismatch          Code = "err.matrix_digest_mismatch"
	ErrKernelRegistryDigestMismatch  Code = "err.kernel_registry_digest_mismatch"
	ErrInitialStateHashMismatch      Code = "err.initial_state_hash_mismatch"
	ErrSchedulerRuleNotAllowlisted   Code = "err.scheduler_rule_not_allowlisted"
)

// batchNonTerminal lists the codes the main loop may reschedule instead of
// halting on. Order here is irrelevant; classification priority order lives
// in package scheduler.
var batchNonTerminal = map[Code]bool{
	FailIndependence: true,
	FailPolicyVeto:   true,
	FailKernelError:  true,
	FailDeltaBound:   true,
	FailGateEps:      true,
}

// IsBatchNonTerminal reports whether code is one the scheduler may
// reschedule (as opposed to a terminal halt).
func IsBatchNonTerminal(c Code) bool { return batchNonTerminal[c] }

// IsCap reports whether code names a resource-cap exhaustion. Caps never
// reschedule; they are always terminal (spec §4.10).
func IsCap(c Code) bool {
	switch c {
	case ErrCapBigintBitsExceeded, ErrCapMatrixTermsExceeded, ErrCapFieldsTouchedExceeded,
		ErrCapVEvalCostExceeded, ErrCapEpsilonExceeded, ErrCapLCMOverflow, ErrCapAllocFailed:
		return true
	default:
		return false
	}
}

// Detail is a small enumerated qualifier for an error; it is never a
// free-form string that could vary across replay runs.
type Detail string

// GateError is the one error type used on the authoritative path. It never
// carries a free-form message: Detail is itself from a closed enumeration
// chosen by the caller.
type GateError struct {
	Code   Code
	OpID   string
	Detail Detail
}

func (e *GateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.OpID == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: op=%s detail=%s", e.Code, e.OpID, e.Detail)
}

// New builds a GateError with no op-id context (invariant-time or genesis
// errors).
func New(code Code, detail Detail) error {
	return &GateError{Code: code, Detail: detail}
}

// NewOp builds a GateError scoped to a failing op.
func NewOp(code Code, opID string, detail Detail) error {
	return &GateError{Code: code, OpID: opID, Detail: detail}
}

// CodeOf extracts the Code from err if it is (or wraps) a *GateError, and
// the ok flag reporting whether the extraction succeeded.
func CodeOf(err error) (Code, bool) {
	var ge *GateError
	if !errors.As(err, &ge) || ge == nil {
		return "", false
	}
	return ge.Code, true
}
