package policy

import (
	"fmt"
	"sort"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/quantum"
)

// Bundle is the chain-wide frozen policy configuration of spec §3, §4.5.
// It is built once at genesis (Genesis) and never mutated afterward; every
// receipt binds Digest, and any attempt to use a different digest while the
// chain has receipts is rejected (spec §4.5, enforced by internal/ledger).
type Bundle struct {
	ViolationPolicyID    string
	ServiceLaw           ServiceLaw
	Disturbance          DisturbancePolicy
	CurvatureMatrixID    string
	CurvatureMatrixDigest canon.Hash32
	KernelRegistryDigest canon.Hash32
	SchedulerRuleID      string // must equal "greedy.curv.v1" (spec §3)
	Caps                 Caps
	FloatPolicy          string // always "forbidden" (spec §1, §4.5)
	GenesisPrevHash      canon.Hash32
}

const AllowedSchedulerRule = "greedy.curv.v1"

// Genesis performs the one-shot bundle construction of spec §4.5: validate
// every component, then return the bundle and its digest. It never mutates
// global state; the caller (the chain's genesis setup) is responsible for
// pinning the result as the chain's single active bundle.
func Genesis(b Bundle) (Bundle, canon.Hash32, error) {
	if b.SchedulerRuleID != AllowedSchedulerRule {
		return Bundle{}, canon.Hash32{}, fmt.Errorf("policy: scheduler rule %q is not allowlisted", b.SchedulerRuleID)
	}
	if b.FloatPolicy == "" {
		b.FloatPolicy = canon.FloatPolicyForbidden
	}
	if b.FloatPolicy != canon.FloatPolicyForbidden {
		return Bundle{}, canon.Hash32{}, fmt.Errorf("policy: float_policy must be %q", canon.FloatPolicyForbidden)
	}
	if err := b.ServiceLaw.Validate(); err != nil {
		return Bundle{}, canon.Hash32{}, err
	}
	if b.Caps.MaxParallelWidth <= 0 {
		return Bundle{}, canon.Hash32{}, fmt.Errorf("policy: max_parallel_width must be > 0")
	}
	return b, b.Digest(), nil
}

// Canonical renders the bundle's canonical bytes as a JSON object of string
// values with sorted keys (spec §3); the quantum values use their q:6:
// form, while ids, hashes and caps are plain strings, not tagged atoms.
func (b Bundle) Canonical() []byte {
	fields := map[string]string{
		"violation_policy_id":       b.ViolationPolicyID,
		"service_law_kind":          string(b.ServiceLaw.Kind),
		"service_law_mu":            b.ServiceLaw.Mu.Canonical(),
		"disturbance_class":        string(b.Disturbance.Class),
		"disturbance_ebar":          b.Disturbance.Ebar.Canonical(),
		"disturbance_beta":          canonicalBeta(b.Disturbance.Beta),
		"curvature_matrix_id":       b.CurvatureMatrixID,
		"curvature_matrix_digest":   b.CurvatureMatrixDigest.Hex(),
		"kernel_registry_digest":    b.KernelRegistryDigest.Hex(),
		"scheduler_rule_id":         b.SchedulerRuleID,
		"max_parallel_width":        fmt.Sprintf("%d", b.Caps.MaxParallelWidth),
		"max_bigint_bits":           capIntString(b.Caps.MaxBigintBits),
		"max_matrix_accum_terms":    capIntString(b.Caps.MaxMatrixAccumTerms),
		"max_fields_touched_per_op": capIntString(b.Caps.MaxFieldsTouchedPerOp),
		"max_v_eval_cost":           capIntString(b.Caps.MaxVEvalCost),
		"max_epsilon":               capQuantumString(b.Caps.MaxEpsilon),
		"float_policy":              b.FloatPolicy,
		"genesis_prev_hash":         b.GenesisPrevHash.Hex(),
	}
	keys := sortedKeys(fields)
	var out []byte
	out = append(out, '{')
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, quoteJSONKey(k)...)
		out = append(out, ':')
		out = append(out, quoteJSONKey(fields[k])...)
	}
	out = append(out, '}')
	return out
}

// Digest is the policy bundle's identity hash. §6 of the spec enumerates
// "policy digest" under the SHA3-256 list alongside state/action/receipt
// hashes; §3's shorthand "digest = SHA-256 of canonical bytes" is read as
// the generic "a secure hash", resolved here in favor of the explicit §6
// enumeration (recorded in DESIGN.md).
func (b Bundle) Digest() canon.Hash32 { return canon.SHA3(b.Canonical()) }

// IsForbiddenFloat is a convenience used by callers that want to assert the
// non-goal "no floating point on the authoritative path" against a live
// bundle.
func (b Bundle) IsForbiddenFloat() bool { return b.FloatPolicy == canon.FloatPolicyForbidden }

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// capIntString renders an optional int cap as a decimal string, or "none"
// for an uncapped (nil) field, so that "uncapped" and "capped at literal
// zero" never collide in the digest.
func capIntString(v *int) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *v)
}

// capQuantumString is capIntString's counterpart for the one quantum-valued
// cap (MaxEpsilon).
func capQuantumString(v *quantum.Q) string {
	if v == nil {
		return "none"
	}
	return v.Canonical()
}

// canonicalBeta renders the DP2 event_type->bound map as a sorted, tagged
// inner object so two bundles differing only in beta never share a digest.
func canonicalBeta(beta map[string]quantum.Q) string {
	keys := make([]string, 0, len(beta))
	for k := range beta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]byte, 0, 16*len(keys)+2)
	out = append(out, '{')
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, quoteJSONKey(k)...)
		out = append(out, ':')
		out = append(out, quoteJSONKey(beta[k].Canonical())...)
	}
	out = append(out, '}')
	return string(out)
}

func quoteJSONKey(s string) string {
	// minimal JSON string quoting sufficient for the ASCII identifiers and
	// hex digests that ever appear here.
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for _, c := range []byte(s) {
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return string(out)
}
