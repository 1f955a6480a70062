package contract

import (
	"math/big"
	"testing"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/quantum"
)

func quantumFromRat(r *big.Rat) (quantum.Q, error) {
	return quantum.FromRational(r.Num(), r.Denom())
}

func mustFieldID(t *testing.T, s string) canon.FieldID {
	t.Helper()
	id, err := canon.ParseFieldID(s)
	if err != nil {
		t.Fatalf("ParseFieldID(%q): %v", s, err)
	}
	return id
}

func stateWithField(t *testing.T, hexID string, v int64) canon.State {
	t.Helper()
	id := mustFieldID(t, hexID)
	return canon.NewState("schema.v1").With(id, canon.AtomI(v))
}

const testFieldHex = "00000000000000000000000000000001"

func simpleContract(t *testing.T, weightNum, weightDen int64, target, sigma int64) Contract {
	t.Helper()
	return Contract{
		ResidualID:       "field_minus_target",
		ResidualDim:      1,
		ResidualParams:   map[string]canon.Atom{"field": canon.AtomS(testFieldHex), "target": canon.AtomI(target)},
		NormalizerID:     "constant",
		NormalizerParams: map[string]canon.Atom{"sigma": canon.AtomI(sigma)},
		WeightNum:        big.NewInt(weightNum),
		WeightDen:        big.NewInt(weightDen),
		Version:          "v1",
	}
}

func TestValidateAcceptsWellFormedContract(t *testing.T) {
	c := simpleContract(t, 1, 2, 0, 1)
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() failed on a well-formed contract: %v", err)
	}
}

func TestValidateRejectsNonPositiveDenominator(t *testing.T) {
	c := simpleContract(t, 1, 2, 0, 1)
	c.WeightDen = big.NewInt(0)
	if err := c.Validate(); err == nil {
		t.Error("Validate must reject a zero weight denominator")
	}
}

func TestValidateRejectsNegativeNumerator(t *testing.T) {
	c := simpleContract(t, 1, 2, 0, 1)
	c.WeightNum = big.NewInt(-1)
	if err := c.Validate(); err == nil {
		t.Error("Validate must reject a negative weight numerator")
	}
}

func TestValidateRejectsUnreducedWeight(t *testing.T) {
	c := simpleContract(t, 2, 4, 0, 1)
	if err := c.Validate(); err == nil {
		t.Error("Validate must reject an unreduced weight fraction like 2/4")
	}
}

func TestValidateRejectsUnknownResidualNormalizerApplicabilityIDs(t *testing.T) {
	c := simpleContract(t, 1, 1, 0, 1)
	c.ResidualID = "not_a_real_residual"
	if err := c.Validate(); err == nil {
		t.Error("Validate must reject an unallowlisted residual id")
	}

	c = simpleContract(t, 1, 1, 0, 1)
	c.NormalizerID = "not_a_real_normalizer"
	if err := c.Validate(); err == nil {
		t.Error("Validate must reject an unallowlisted normalizer id")
	}

	c = simpleContract(t, 1, 1, 0, 1)
	c.ApplicabilityID = "not_a_real_applicability"
	if err := c.Validate(); err == nil {
		t.Error("Validate must reject an unallowlisted applicability id")
	}
}

func TestEvaluateWeightedSumFieldValue(t *testing.T) {
	// residual = field(5) - target(2) = 3, sigma = 1, weight = 1/2.
	// contribution = (3/1)^2 * 1/2 = 4.5
	c := simpleContract(t, 1, 2, 2, 1)
	set := Set{Contracts: []Contract{c}}
	x := stateWithField(t, testFieldHex, 5)

	v, activations, err := Evaluate(set, x)
	if err != nil {
		t.Fatal(err)
	}
	if activations != 1 {
		t.Errorf("activations = %d, want 1", activations)
	}
	want, err := quantumFromRat(big.NewRat(9, 2))
	if err != nil {
		t.Fatal(err)
	}
	if v.Canonical() != want.Canonical() {
		t.Errorf("Evaluate = %s, want %s", v.Canonical(), want.Canonical())
	}
}

func TestEvaluateInapplicableContractContributesZero(t *testing.T) {
	c := simpleContract(t, 1, 1, 0, 1)
	c.ApplicabilityID = "field_nonzero"
	c.ApplicabilityParams = map[string]canon.Atom{"field": canon.AtomS(testFieldHex)}
	set := Set{Contracts: []Contract{c}}
	x := stateWithField(t, testFieldHex, 0) // field is zero -> inapplicable

	v, activations, err := Evaluate(set, x)
	if err != nil {
		t.Fatal(err)
	}
	if activations != 0 {
		t.Errorf("activations = %d, want 0 since the contract is inapplicable", activations)
	}
	if v.Canonical() != "q:6:0" {
		t.Errorf("inapplicable-only evaluation must be exactly zero, got %s", v.Canonical())
	}
}

func TestEvaluateRejectsNonPositiveNormalizer(t *testing.T) {
	c := simpleContract(t, 1, 1, 0, -1) // sigma = -1
	set := Set{Contracts: []Contract{c}}
	x := stateWithField(t, testFieldHex, 5)
	if _, _, err := Evaluate(set, x); err == nil {
		t.Error("Evaluate must reject a non-positive normalizer")
	}
}

func TestEvaluateSumsMultipleContracts(t *testing.T) {
	c1 := simpleContract(t, 1, 1, 0, 1) // residual 5, sigma 1, weight 1 -> 25
	c2 := simpleContract(t, 1, 1, 5, 1) // residual 0, sigma 1, weight 1 -> 0
	set := Set{Contracts: []Contract{c1, c2}}
	x := stateWithField(t, testFieldHex, 5)

	v, activations, err := Evaluate(set, x)
	if err != nil {
		t.Fatal(err)
	}
	if activations != 2 {
		t.Errorf("activations = %d, want 2", activations)
	}
	want, _ := quantumFromRat(big.NewRat(25, 1))
	if v.Canonical() != want.Canonical() {
		t.Errorf("Evaluate = %s, want %s", v.Canonical(), want.Canonical())
	}
}

func TestSetCanonicalPreservesDeclaredOrder(t *testing.T) {
	c1 := simpleContract(t, 1, 1, 0, 1)
	c2 := simpleContract(t, 1, 2, 1, 1)
	a := Set{Contracts: []Contract{c1, c2}}
	b := Set{Contracts: []Contract{c2, c1}}
	if string(a.Canonical()) == string(b.Canonical()) {
		t.Error("Set.Canonical must preserve declared contract order, not sort it")
	}
}
