package gate

import (
	"fmt"
	"math/big"
	"testing"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/contract"
	"coherence.dev/gate/internal/errs"
	"coherence.dev/gate/internal/kernel"
	"coherence.dev/gate/internal/policy"
	"coherence.dev/gate/internal/quantum"
)

const testField = "00000000000000000000000000000001"

func testFieldID(t *testing.T) canon.FieldID {
	t.Helper()
	id, err := canon.ParseFieldID(testField)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func singleFieldContracts() contract.Set {
	return contract.Set{Contracts: []contract.Contract{{
		ResidualID:       "field_value",
		ResidualDim:      1,
		ResidualParams:   map[string]canon.Atom{"field": canon.AtomS(testField)},
		NormalizerID:     "constant",
		NormalizerParams: map[string]canon.Atom{"sigma": canon.AtomI(1)},
		WeightNum:        big.NewInt(1),
		WeightDen:        big.NewInt(1),
		Version:          "v1",
	}}}
}

func setFieldKernel(id canon.FieldID, value int64) *kernel.Registry {
	r := kernel.NewRegistry()
	r.Register(kernel.Entry{ID: "set_field", Body: func(pre canon.State) (canon.State, error) {
		return pre.With(id, canon.AtomI(value)), nil
	}})
	return r
}

func TestCheckAcceptsAtExactEquality(t *testing.T) {
	f := testFieldID(t)
	x := canon.NewState("schema.v1").With(f, canon.AtomI(0)) // D = 0
	kernels := setFieldKernel(f, 2)                          // D' = 2^2 = 4

	law := policy.ServiceLaw{Kind: policy.ServiceLinearCapped, Mu: quantum.FromInt(1)}
	dist := policy.DisturbancePolicy{Class: policy.DP1, Ebar: quantum.FromInt(10)}

	res, err := Check(x, []canon.FieldID{f}, "set_field", kernels, singleFieldContracts(),
		quantum.FromInt(0), quantum.FromInt(4), "", law, dist, nil, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Errorf("D'=4 <= D(0)-S(0)+E(4)=4 must be accepted at exact equality, got failure code %s", res.FailureCode)
	}
}

func TestCheckRejectsByOneTick(t *testing.T) {
	f := testFieldID(t)
	x := canon.NewState("schema.v1").With(f, canon.AtomI(0))
	kernels := setFieldKernel(f, 2) // D' = 4

	law := policy.ServiceLaw{Kind: policy.ServiceLinearCapped, Mu: quantum.FromInt(1)}
	dist := policy.DisturbancePolicy{Class: policy.DP1, Ebar: quantum.FromInt(10)}

	res, err := Check(x, []canon.FieldID{f}, "set_field", kernels, singleFieldContracts(),
		quantum.FromInt(0), quantum.FromRaw(big.NewInt(3_999_999)), "", law, dist, nil, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Error("D'=4 > rhs=3.999999 (one tick short) must be rejected")
	}
	if res.FailureCode != errs.FailGateEps {
		t.Errorf("FailureCode = %s, want %s", res.FailureCode, errs.FailGateEps)
	}
}

func TestCheckRejectsOnPreconditionFailure(t *testing.T) {
	f := testFieldID(t)
	x := canon.NewState("schema.v1").With(f, canon.AtomI(0))
	kernels := setFieldKernel(f, 2)
	law := policy.ServiceLaw{Kind: policy.ServiceLinearCapped, Mu: quantum.FromInt(1)}
	dist := policy.DisturbancePolicy{Class: policy.DP0}

	failing := func(x canon.State) error { return fmt.Errorf("invariant broken") }
	_, err := Check(x, []canon.FieldID{f}, "set_field", kernels, singleFieldContracts(),
		quantum.FromInt(0), quantum.Zero(), "", law, dist, []Precondition{failing}, "op-1")
	if err == nil {
		t.Error("Check must fail when a precondition is violated")
	}
}

func TestCheckReportsKernelError(t *testing.T) {
	f := testFieldID(t)
	x := canon.NewState("schema.v1").With(f, canon.AtomI(0))
	r := kernel.NewRegistry()
	r.Register(kernel.Entry{ID: "broken", Body: func(pre canon.State) (canon.State, error) {
		return canon.State{}, fmt.Errorf("kernel exploded")
	}})
	law := policy.ServiceLaw{Kind: policy.ServiceLinearCapped, Mu: quantum.FromInt(1)}
	dist := policy.DisturbancePolicy{Class: policy.DP0}

	_, err := Check(x, []canon.FieldID{f}, "broken", r, singleFieldContracts(),
		quantum.FromInt(0), quantum.Zero(), "", law, dist, nil, "op-1")
	if err == nil {
		t.Error("Check must surface a kernel execution error")
	}
}

func TestCheckRejectsOnDisturbancePolicyVeto(t *testing.T) {
	f := testFieldID(t)
	x := canon.NewState("schema.v1").With(f, canon.AtomI(0))
	kernels := setFieldKernel(f, 0) // D' = 0, would otherwise pass the law check

	law := policy.ServiceLaw{Kind: policy.ServiceLinearCapped, Mu: quantum.FromInt(1)}
	dist := policy.DisturbancePolicy{Class: policy.DP1, Ebar: quantum.FromInt(1)}

	res, err := Check(x, []canon.FieldID{f}, "set_field", kernels, singleFieldContracts(),
		quantum.FromInt(0), quantum.FromInt(5), "", law, dist, nil, "op-1") // E=5 > Ebar=1
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Error("a disturbance outside the policy bound must be vetoed regardless of the law check")
	}
	if res.FailureCode != errs.FailPolicyVeto {
		t.Errorf("FailureCode = %s, want %s", res.FailureCode, errs.FailPolicyVeto)
	}
}

func TestCheckComputesDeltaV(t *testing.T) {
	f := testFieldID(t)
	x := canon.NewState("schema.v1").With(f, canon.AtomI(1)) // D = 1
	kernels := setFieldKernel(f, 3)                           // D' = 9

	law := policy.ServiceLaw{Kind: policy.ServiceLinearCapped, Mu: quantum.FromInt(100)}
	dist := policy.DisturbancePolicy{Class: policy.DP1, Ebar: quantum.FromInt(100)}

	res, err := Check(x, []canon.FieldID{f}, "set_field", kernels, singleFieldContracts(),
		quantum.FromInt(1), quantum.FromInt(0), "", law, dist, nil, "op-1")
	if err != nil {
		t.Fatal(err)
	}
	wantDelta := quantum.Sub(quantum.FromInt(9), quantum.FromInt(1))
	if quantum.Cmp(res.DeltaV, wantDelta) != 0 {
		t.Errorf("DeltaV = %s, want %s", res.DeltaV.Canonical(), wantDelta.Canonical())
	}
}
