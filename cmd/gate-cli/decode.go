package main

import (
	"fmt"
	"math/big"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/contract"
	"coherence.dev/gate/internal/curvature"
	"coherence.dev/gate/internal/dag"
	"coherence.dev/gate/internal/policy"
	"coherence.dev/gate/internal/quantum"
)

func decodeState(s stateJSON) (canon.State, error) {
	out := canon.NewState(canon.SchemaID(s.SchemaID))
	writes := make(map[canon.FieldID]canon.Atom, len(s.Fields))
	for idHex, atomStr := range s.Fields {
		id, err := canon.ParseFieldID(idHex)
		if err != nil {
			return canon.State{}, fmt.Errorf("state field %q: %w", idHex, err)
		}
		a, err := canon.ParseAtom(atomStr)
		if err != nil {
			return canon.State{}, fmt.Errorf("state field %q value %q: %w", idHex, atomStr, err)
		}
		writes[id] = a
	}
	return out.Patch(writes), nil
}

// decodePayload decodes an arbitrary-keyed atom map: action payloads and
// contract params key by whatever name the consuming kernel or registry
// function expects ("field", "sigma", "target", "disturbance_amount", ...),
// not necessarily a FieldID — a field-valued param carries the FieldID as
// its string atom's payload instead (see canon.ParseFieldID(fieldAtom.Str)
// in the contract registry's built-in functions).
func decodePayload(m map[string]string) (map[string]canon.Atom, error) {
	out := make(map[string]canon.Atom, len(m))
	for key, atomStr := range m {
		a, err := canon.ParseAtom(atomStr)
		if err != nil {
			return nil, fmt.Errorf("payload key %q value %q: %w", key, atomStr, err)
		}
		out[key] = a
	}
	return out, nil
}

func decodeAction(a actionJSON) (canon.Action, error) {
	budget, err := quantum.Parse(a.Budget)
	if err != nil {
		return canon.Action{}, fmt.Errorf("action budget: %w", err)
	}
	payload, err := decodePayload(a.Payload)
	if err != nil {
		return canon.Action{}, err
	}
	out := canon.Action{
		Type: canon.ActionType(a.Type), TargetBlocks: a.TargetBlocks, Payload: payload,
		Budget: budget, DisturbanceTag: a.DisturbanceTag,
	}
	return out.Canonicalize()
}

func decodeFieldIDs(ss []string) ([]canon.FieldID, error) {
	out := make([]canon.FieldID, len(ss))
	for i, s := range ss {
		id, err := canon.ParseFieldID(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func decodeOp(o opJSON, kernelID string) (dag.OpSpec, error) {
	reads, err := decodeFieldIDs(o.Reads)
	if err != nil {
		return dag.OpSpec{}, fmt.Errorf("op %s reads: %w", o.OpID, err)
	}
	writes, err := decodeFieldIDs(o.Writes)
	if err != nil {
		return dag.OpSpec{}, fmt.Errorf("op %s writes: %w", o.OpID, err)
	}
	delta, err := quantum.Parse(o.DeltaBound)
	if err != nil {
		return dag.OpSpec{}, fmt.Errorf("op %s delta_bound: %w", o.OpID, err)
	}
	return dag.OpSpec{
		OpID: o.OpID, KernelID: kernelID, Reads: reads, Writes: writes,
		Block: o.Block, DeltaBound: delta,
	}, nil
}

func decodePlan(p planJSON) (dag.ExecutionPlan, map[string]canon.Action, error) {
	actions := make(map[string]canon.Action, len(p.Actions))
	for opID, aj := range p.Actions {
		a, err := decodeAction(aj)
		if err != nil {
			return dag.ExecutionPlan{}, nil, fmt.Errorf("action for op %s: %w", opID, err)
		}
		actions[opID] = a
	}

	ops := make([]dag.OpSpec, len(p.Ops))
	for i, oj := range p.Ops {
		o, err := decodeOp(oj, "state_update.v1:"+oj.OpID)
		if err != nil {
			return dag.ExecutionPlan{}, nil, err
		}
		if _, ok := actions[o.OpID]; !ok {
			return dag.ExecutionPlan{}, nil, fmt.Errorf("op %s has no action descriptor", o.OpID)
		}
		ops[i] = o
	}

	edges := make([]dag.Edge, len(p.Edges))
	for i, ej := range p.Edges {
		edges[i] = dag.Edge{Pred: ej.Pred, Succ: ej.Succ, Kind: dag.EdgeKind(ej.Kind)}
	}

	plan := dag.ExecutionPlan{
		PlanID: p.PlanID, Ops: ops, Edges: edges,
		MaxParallelWidth: p.MaxParallelWidth, SchedulerRuleID: p.SchedulerRuleID,
	}
	if p.PolicyBundleDigest != "" {
		h, err := canon.ParseHash32(p.PolicyBundleDigest)
		if err != nil {
			return dag.ExecutionPlan{}, nil, fmt.Errorf("policy_bundle_digest: %w", err)
		}
		plan.PolicyBundleDigest = h
	}
	if p.InitialStateHash != "" {
		h, err := canon.ParseHash32(p.InitialStateHash)
		if err != nil {
			return dag.ExecutionPlan{}, nil, fmt.Errorf("initial_state_hash: %w", err)
		}
		plan.InitialStateHash = h
	}
	return plan, actions, nil
}

func decodeBigRat(numStr, denStr string) (num, den *big.Int, err error) {
	num, ok := new(big.Int).SetString(numStr, 10)
	if !ok {
		return nil, nil, fmt.Errorf("bad integer %q", numStr)
	}
	den, ok = new(big.Int).SetString(denStr, 10)
	if !ok {
		return nil, nil, fmt.Errorf("bad integer %q", denStr)
	}
	return num, den, nil
}

func decodeContractSet(cs contractSetJSON) (contract.Set, error) {
	out := make([]contract.Contract, len(cs.Contracts))
	for i, c := range cs.Contracts {
		num, den, err := decodeBigRat(c.WeightNum, c.WeightDen)
		if err != nil {
			return contract.Set{}, fmt.Errorf("contract %d weight: %w", i, err)
		}
		rParams, err := decodePayload(c.ResidualParams)
		if err != nil {
			return contract.Set{}, err
		}
		nParams, err := decodePayload(c.NormalizerParams)
		if err != nil {
			return contract.Set{}, err
		}
		aParams, err := decodePayload(c.ApplicabilityParams)
		if err != nil {
			return contract.Set{}, err
		}
		out[i] = contract.Contract{
			ResidualID: c.ResidualID, ResidualDim: c.ResidualDim, ResidualParams: rParams,
			NormalizerID: c.NormalizerID, NormalizerParams: nParams,
			WeightNum: num, WeightDen: den,
			ApplicabilityID: c.ApplicabilityID, ApplicabilityParams: aParams,
			Version: c.Version,
		}
		if err := out[i].Validate(); err != nil {
			return contract.Set{}, fmt.Errorf("contract %d: %w", i, err)
		}
	}
	return contract.Set{Contracts: out}, nil
}

func decodeMatrix(m matrixJSON) (curvature.Matrix, error) {
	entries := make([]curvature.Entry, len(m.Entries))
	for i, e := range m.Entries {
		num, den, err := decodeBigRat(e.Num, e.Den)
		if err != nil {
			return curvature.Matrix{}, fmt.Errorf("matrix entry %d: %w", i, err)
		}
		entries[i] = curvature.Entry{I: e.I, J: e.J, Num: num, Den: den}
	}
	return curvature.New(curvature.MatrixID(m.ID), m.Version, m.EntryMode, m.SymmetryMode, m.DomainMode, m.BlockCount, entries)
}

func decodeBundle(b bundleJSON, matrixDigest, kernelDigest, genesisPrevHash canon.Hash32) (policy.Bundle, error) {
	mu, err := quantum.Parse(b.ServiceLawMu)
	if err != nil {
		return policy.Bundle{}, fmt.Errorf("service_law_mu: %w", err)
	}
	disturbance := policy.DisturbancePolicy{Class: policy.DisturbanceClass(b.DisturbanceClass)}
	if b.DisturbanceEbar != "" {
		ebar, err := quantum.Parse(b.DisturbanceEbar)
		if err != nil {
			return policy.Bundle{}, fmt.Errorf("disturbance_ebar: %w", err)
		}
		disturbance.Ebar = ebar
	}
	if len(b.DisturbanceBeta) > 0 {
		disturbance.Beta = make(map[string]quantum.Q, len(b.DisturbanceBeta))
		for k, v := range b.DisturbanceBeta {
			q, err := quantum.Parse(v)
			if err != nil {
				return policy.Bundle{}, fmt.Errorf("disturbance_beta[%s]: %w", k, err)
			}
			disturbance.Beta[k] = q
		}
	}

	caps := policy.Caps{MaxParallelWidth: b.MaxParallelWidth, MaxBigintBits: b.MaxBigintBits, MaxFieldsTouchedPerOp: b.MaxFieldsTouched}
	if b.MaxEpsilon != "" {
		eps, err := quantum.Parse(b.MaxEpsilon)
		if err != nil {
			return policy.Bundle{}, fmt.Errorf("max_epsilon: %w", err)
		}
		caps.MaxEpsilon = &eps
	}

	bundle := policy.Bundle{
		ViolationPolicyID: b.ViolationPolicyID,
		ServiceLaw:        policy.ServiceLaw{Kind: policy.ServiceLawKind(b.ServiceLawKind), Mu: mu},
		Disturbance:       disturbance,
		CurvatureMatrixID: b.CurvatureMatrixID, CurvatureMatrixDigest: matrixDigest,
		KernelRegistryDigest: kernelDigest,
		SchedulerRuleID:      b.SchedulerRuleID,
		Caps:                 caps,
		GenesisPrevHash:      genesisPrevHash,
	}
	out, _, err := policy.Genesis(bundle)
	return out, err
}
