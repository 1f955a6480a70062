package policy

import "coherence.dev/gate/internal/quantum"

// Caps holds the optional resource caps of spec §4.5. A zero value for any
// *int / *Q pointer means "uncapped"; all caps are enforced as "<=".
type Caps struct {
	MaxBigintBits          *int
	MaxMatrixAccumTerms    *int
	MaxFieldsTouchedPerOp  *int
	MaxVEvalCost           *int
	MaxEpsilon             *quantum.Q
	MaxParallelWidth       int // always present, not optional (spec §4.5)
}

// CheckBigintBits enforces MaxBigintBits against an observed bit length.
func (c Caps) CheckBigintBits(bits int) bool {
	return c.MaxBigintBits == nil || bits <= *c.MaxBigintBits
}

// CheckMatrixAccumTerms enforces MaxMatrixAccumTerms.
func (c Caps) CheckMatrixAccumTerms(terms int) bool {
	return c.MaxMatrixAccumTerms == nil || terms <= *c.MaxMatrixAccumTerms
}

// CheckFieldsTouched enforces MaxFieldsTouchedPerOp.
func (c Caps) CheckFieldsTouched(n int) bool {
	return c.MaxFieldsTouchedPerOp == nil || n <= *c.MaxFieldsTouchedPerOp
}

// CheckVEvalCost enforces MaxVEvalCost.
func (c Caps) CheckVEvalCost(n int) bool {
	return c.MaxVEvalCost == nil || n <= *c.MaxVEvalCost
}

// CheckEpsilon enforces MaxEpsilon.
func (c Caps) CheckEpsilon(eps quantum.Q) bool {
	return c.MaxEpsilon == nil || quantum.Cmp(eps, *c.MaxEpsilon) <= 0
}
