package policy

import (
	"testing"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/quantum"
)

func validBundle() Bundle {
	return Bundle{
		ViolationPolicyID: "vp.v1",
		ServiceLaw:        ServiceLaw{Kind: ServiceLinearCapped, Mu: quantum.FromInt(1)},
		Disturbance:       DisturbancePolicy{Class: DP0},
		CurvatureMatrixID: "m1",
		SchedulerRuleID:   AllowedSchedulerRule,
		Caps:              Caps{MaxParallelWidth: 4},
	}
}

func TestGenesisRejectsDisallowedSchedulerRule(t *testing.T) {
	b := validBundle()
	b.SchedulerRuleID = "some.other.rule"
	if _, _, err := Genesis(b); err == nil {
		t.Error("Genesis must reject a scheduler rule other than greedy.curv.v1")
	}
}

func TestGenesisDefaultsFloatPolicyToForbidden(t *testing.T) {
	b := validBundle()
	out, _, err := Genesis(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.FloatPolicy != canon.FloatPolicyForbidden {
		t.Errorf("FloatPolicy = %q, want %q", out.FloatPolicy, canon.FloatPolicyForbidden)
	}
}

func TestGenesisRejectsNonForbiddenFloatPolicy(t *testing.T) {
	b := validBundle()
	b.FloatPolicy = "allowed"
	if _, _, err := Genesis(b); err == nil {
		t.Error("Genesis must reject any float_policy other than forbidden")
	}
}

func TestGenesisRejectsInvalidServiceLaw(t *testing.T) {
	b := validBundle()
	b.ServiceLaw = ServiceLaw{Kind: "bogus"}
	if _, _, err := Genesis(b); err == nil {
		t.Error("Genesis must reject an invalid service law")
	}
}

func TestGenesisRejectsNonPositiveMaxParallelWidth(t *testing.T) {
	b := validBundle()
	b.Caps.MaxParallelWidth = 0
	if _, _, err := Genesis(b); err == nil {
		t.Error("Genesis must reject max_parallel_width <= 0")
	}
}

func TestGenesisReturnsMatchingDigest(t *testing.T) {
	b := validBundle()
	out, digest, err := Genesis(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Digest() != digest {
		t.Error("Genesis must return a digest matching the resulting bundle's own Digest()")
	}
}

func TestBundleDigestSensitiveToGenesisPrevHash(t *testing.T) {
	a := validBundle()
	b := validBundle()
	b.GenesisPrevHash = canon.SHA3([]byte("some prior chain"))

	aOut, _, err := Genesis(a)
	if err != nil {
		t.Fatal(err)
	}
	bOut, _, err := Genesis(b)
	if err != nil {
		t.Fatal(err)
	}
	if aOut.Digest() == bOut.Digest() {
		t.Error("GenesisPrevHash must be part of the bundle's canonical bytes, changing it must change the digest")
	}
}

func TestBundleDigestDeterministic(t *testing.T) {
	b := validBundle()
	out, _, err := Genesis(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Digest() != out.Digest() {
		t.Error("Digest must be deterministic")
	}
}

func TestBundleDigestSensitiveToEachBoundField(t *testing.T) {
	base, _, err := Genesis(validBundle())
	if err != nil {
		t.Fatal(err)
	}

	variants := []func(b *Bundle){
		func(b *Bundle) { b.ViolationPolicyID = "different" },
		func(b *Bundle) { b.CurvatureMatrixDigest = canon.SHA3([]byte("different matrix")) },
		func(b *Bundle) { b.KernelRegistryDigest = canon.SHA3([]byte("different kernels")) },
	}
	for i, mutate := range variants {
		v := base
		mutate(&v)
		if v.Digest() == base.Digest() {
			t.Errorf("variant %d: mutating a canonical field must change Digest()", i)
		}
	}
}

func TestBundleDigestSensitiveToDisturbanceParameters(t *testing.T) {
	base, _, err := Genesis(validBundle())
	if err != nil {
		t.Fatal(err)
	}

	ebarChanged := base
	ebarChanged.Disturbance.Ebar = quantum.FromInt(7)
	if ebarChanged.Digest() == base.Digest() {
		t.Error("changing Disturbance.Ebar must change Digest()")
	}

	betaChanged := base
	betaChanged.Disturbance.Beta = map[string]quantum.Q{"deposit": quantum.FromInt(1)}
	if betaChanged.Digest() == base.Digest() {
		t.Error("changing Disturbance.Beta must change Digest()")
	}

	betaReordered := base
	betaReordered.Disturbance.Beta = map[string]quantum.Q{"withdraw": quantum.FromInt(2), "deposit": quantum.FromInt(1)}
	betaSameKeys := base
	betaSameKeys.Disturbance.Beta = map[string]quantum.Q{"deposit": quantum.FromInt(1), "withdraw": quantum.FromInt(2)}
	if betaReordered.Digest() != betaSameKeys.Digest() {
		t.Error("Beta canonical encoding must be independent of Go map iteration order")
	}
}

func TestBundleDigestSensitiveToEachResourceCap(t *testing.T) {
	base, _, err := Genesis(validBundle())
	if err != nil {
		t.Fatal(err)
	}

	bits := 64
	terms := 100
	fields := 8
	cost := 1000
	eps := quantum.FromInt(5)

	variants := []func(b *Bundle){
		func(b *Bundle) { b.Caps.MaxBigintBits = &bits },
		func(b *Bundle) { b.Caps.MaxMatrixAccumTerms = &terms },
		func(b *Bundle) { b.Caps.MaxFieldsTouchedPerOp = &fields },
		func(b *Bundle) { b.Caps.MaxVEvalCost = &cost },
		func(b *Bundle) { b.Caps.MaxEpsilon = &eps },
	}
	for i, mutate := range variants {
		v := base
		mutate(&v)
		if v.Digest() == base.Digest() {
			t.Errorf("variant %d: setting an optional resource cap must change Digest()", i)
		}
	}
}

func TestBundleDigestDistinguishesUncappedFromCappedAtZero(t *testing.T) {
	base, _, err := Genesis(validBundle())
	if err != nil {
		t.Fatal(err)
	}
	zero := 0
	zeroCapped := base
	zeroCapped.Caps.MaxMatrixAccumTerms = &zero
	if zeroCapped.Digest() == base.Digest() {
		t.Error("a cap explicitly set to 0 must digest differently from an uncapped (nil) cap")
	}
}

func TestIsForbiddenFloat(t *testing.T) {
	b := Bundle{FloatPolicy: canon.FloatPolicyForbidden}
	if !b.IsForbiddenFloat() {
		t.Error("IsForbiddenFloat must be true when FloatPolicy is forbidden")
	}
	b.FloatPolicy = "allowed"
	if b.IsForbiddenFloat() {
		t.Error("IsForbiddenFloat must be false otherwise")
	}
}
