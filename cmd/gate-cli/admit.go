package main

import (
	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/dag"
	"coherence.dev/gate/internal/errs"
	"coherence.dev/gate/internal/kernel"
	"coherence.dev/gate/internal/policy"
)

// admitPlan checks a decoded plan against the frozen policy bundle before
// any op in it is ever attempted: a plan that claims a stale or mismatched
// digest is rejected up front rather than discovered mid-chain. This is the
// admission-time counterpart of the per-op Measured Gate: these are
// identity checks on the frozen configuration itself, not on a state
// transition, so they live at the CLI boundary rather than in the gate.
func admitPlan(plan dag.ExecutionPlan, initial canon.State, kernels *kernel.Registry, bundle policy.Bundle) error {
	if bundle.SchedulerRuleID != policy.AllowedSchedulerRule {
		return errs.New(errs.ErrSchedulerRuleNotAllowlisted, "")
	}
	if plan.SchedulerRuleID != "" && plan.SchedulerRuleID != bundle.SchedulerRuleID {
		return errs.New(errs.ErrSchedulerRuleNotAllowlisted, "")
	}
	if !plan.PolicyBundleDigest.IsZero() && plan.PolicyBundleDigest != bundle.Digest() {
		return errs.New(errs.ErrPolicyDigestMismatch, "")
	}
	if !plan.InitialStateHash.IsZero() && plan.InitialStateHash != initial.Hash() {
		return errs.New(errs.ErrInitialStateHashMismatch, "")
	}
	if kernels.Digest() != bundle.KernelRegistryDigest {
		return errs.New(errs.ErrKernelRegistryDigestMismatch, "")
	}
	return nil
}
