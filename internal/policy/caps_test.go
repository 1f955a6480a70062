package policy

import (
	"testing"

	"coherence.dev/gate/internal/quantum"
)

func intPtr(n int) *int { return &n }

func TestCapsUncappedAlwaysPasses(t *testing.T) {
	c := Caps{}
	if !c.CheckBigintBits(1 << 20) {
		t.Error("nil MaxBigintBits must mean uncapped")
	}
	if !c.CheckMatrixAccumTerms(1 << 20) {
		t.Error("nil MaxMatrixAccumTerms must mean uncapped")
	}
	if !c.CheckFieldsTouched(1 << 20) {
		t.Error("nil MaxFieldsTouchedPerOp must mean uncapped")
	}
	if !c.CheckVEvalCost(1 << 20) {
		t.Error("nil MaxVEvalCost must mean uncapped")
	}
	if !c.CheckEpsilon(quantum.FromInt(1 << 20)) {
		t.Error("nil MaxEpsilon must mean uncapped")
	}
}

func TestCapsEnforceInclusiveBound(t *testing.T) {
	c := Caps{
		MaxBigintBits:         intPtr(64),
		MaxFieldsTouchedPerOp: intPtr(4),
	}
	if !c.CheckBigintBits(64) {
		t.Error("exactly the cap must pass (<=, inclusive)")
	}
	if c.CheckBigintBits(65) {
		t.Error("exceeding the cap must fail")
	}
	if !c.CheckFieldsTouched(4) {
		t.Error("exactly the cap must pass")
	}
	if c.CheckFieldsTouched(5) {
		t.Error("exceeding the cap must fail")
	}
}

func TestCapsCheckEpsilonInclusiveBound(t *testing.T) {
	max := quantum.FromInt(10)
	c := Caps{MaxEpsilon: &max}
	if !c.CheckEpsilon(quantum.FromInt(10)) {
		t.Error("epsilon exactly at the cap must pass")
	}
	if c.CheckEpsilon(quantum.FromInt(11)) {
		t.Error("epsilon exceeding the cap must fail")
	}
	if !c.CheckEpsilon(quantum.FromInt(0)) {
		t.Error("epsilon below the cap must pass")
	}
}
