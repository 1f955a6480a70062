// Package quantum implements DebtUnit: an exact signed integer at a fixed
// decimal scale. It is the only scalar type permitted on the authoritative
// path (spec §3, §4.1). All arithmetic is performed with math/big; overflow
// is impossible by construction and floating point never appears.
package quantum

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Scale is the fixed decimal scale shared by every DebtUnit in this build.
// The spec fixes it at 6; it is never parameterized per-value.
const Scale = 6

var scalePow = new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)

// Q is an exact signed fixed-scale integer: the rational value
// Int / 10^Scale. The zero value is the quantum zero.
type Q struct {
	i big.Int
}

// Zero is the additive identity.
func Zero() Q { return Q{} }

// FromInt builds a DebtUnit equal to the integer n (n * 10^Scale raw units).
func FromInt(n int64) Q {
	var q Q
	q.i.Mul(big.NewInt(n), scalePow)
	return q
}

// FromRaw builds a DebtUnit directly from its raw scaled integer (i.e. the
// value v such that the quantum equals v / 10^Scale). Used by decoders that
// have already parsed the canonical q:6:<int> form.
func FromRaw(v *big.Int) Q {
	var q Q
	q.i.Set(v)
	return q
}

// Raw returns the underlying raw scaled integer.
func (q Q) Raw() *big.Int { return new(big.Int).Set(&q.i) }

// FromRational constructs a DebtUnit from p/q by first reducing p/q by
// gcd(p,q) and then half-even rounding p·10^Scale / q (spec §3, §4.1).
// den must be positive.
func FromRational(num, den *big.Int) (Q, error) {
	if den.Sign() <= 0 {
		return Q{}, fmt.Errorf("quantum: denominator must be positive")
	}
	r := new(big.Rat).SetFrac(num, den) // big.Rat reduces internally by gcd
	return fromReducedRat(r), nil
}

func fromReducedRat(r *big.Rat) Q {
	num := r.Num()
	den := r.Denom()
	scaledNum := new(big.Int).Mul(num, scalePow)
	return Q{i: *divHalfEven(scaledNum, den)}
}

// divHalfEven computes round_half_even(num/den) for den > 0. num may be
// negative; the result direction follows num's sign (round toward the
// nearest integer, ties to even), implemented via divmod on the magnitude
// so the half-even tie rule is unambiguous regardless of sign convention.
func divHalfEven(num, den *big.Int) *big.Int {
	neg := num.Sign() < 0
	n := new(big.Int).Abs(num)
	d := new(big.Int).Abs(den)

	quot, rem := new(big.Int), new(big.Int)
	quot.QuoRem(n, d, rem)

	twiceRem := new(big.Int).Lsh(rem, 1)
	cmp := twiceRem.Cmp(d)
	switch {
	case cmp > 0:
		quot.Add(quot, big.NewInt(1))
	case cmp == 0:
		if quot.Bit(0) == 1 { // quot is odd: round up to the even neighbor
			quot.Add(quot, big.NewInt(1))
		}
	}
	if neg {
		quot.Neg(quot)
	}
	return quot
}

// DivInt implements div_int(q,k) from spec §4.1: divide the raw scaled
// integer by positive k using half-even rounding, producing a new DebtUnit
// at the same scale.
func DivInt(q Q, k int64) (Q, error) {
	if k <= 0 {
		return Q{}, fmt.Errorf("quantum: DivInt divisor must be positive")
	}
	return Q{i: *divHalfEven(&q.i, big.NewInt(k))}, nil
}

// MulQ multiplies two DebtUnits, producing a DebtUnit at the same shared
// scale via a single half-even rounding of raw_a*raw_b/10^Scale (since each
// raw integer already carries one factor of 10^Scale, their product carries
// two and must be brought back down to one).
func MulQ(a, b Q) Q {
	prod := new(big.Int).Mul(&a.i, &b.i)
	return Q{i: *divHalfEven(prod, scalePow)}
}

// MulInt multiplies a DebtUnit by an integer scalar exactly.
func MulInt(q Q, k int64) Q {
	var out Q
	out.i.Mul(&q.i, big.NewInt(k))
	return out
}

// Add requires both operands share Scale (always true in this build, since
// Scale is a single package constant); kept as a named op for symmetry with
// the spec's "addition/subtraction require identical scale" invariant.
func Add(a, b Q) Q {
	var out Q
	out.i.Add(&a.i, &b.i)
	return out
}

// Sub subtracts b from a.
func Sub(a, b Q) Q {
	var out Q
	out.i.Sub(&a.i, &b.i)
	return out
}

// Neg negates q.
func Neg(q Q) Q {
	var out Q
	out.i.Neg(&q.i)
	return out
}

// Abs returns the absolute value of q.
func Abs(q Q) Q {
	var out Q
	out.i.Abs(&q.i)
	return out
}

// Cmp compares a and b: -1, 0, or 1.
func Cmp(a, b Q) int { return a.i.Cmp(&b.i) }

// Sign returns the sign of q: -1, 0, or 1.
func (q Q) Sign() int { return q.i.Sign() }

// IsNonNegative reports whether q >= 0, for fields declared nonnegative.
func (q Q) IsNonNegative() bool { return q.i.Sign() >= 0 }

// Min returns the smaller of a and b.
func Min(a, b Q) Q {
	if Cmp(a, b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Q) Q {
	if Cmp(a, b) >= 0 {
		return a
	}
	return b
}

// Canonical renders q in the wire form "q:6:<signed_int>".
func (q Q) Canonical() string {
	return fmt.Sprintf("q:%d:%s", Scale, q.i.String())
}

// BitLen reports the bit length of the raw scaled integer magnitude, used
// to enforce policy.Caps.MaxBigintBits.
func (q Q) BitLen() int { return q.i.BitLen() }

// Parse decodes a canonical "q:<scale>:<signed_int>" string. Only the
// scale matching package Scale is accepted; anything else is a schema
// violation (mixed-scale quanta never arise in this build). Leading zeros
// (other than the literal "0"), a leading "+", scientific notation, and
// any non-digit are rejected.
func Parse(s string) (Q, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "q" {
		return Q{}, fmt.Errorf("quantum: not a canonical quantum string: %q", s)
	}
	scale, err := strconv.Atoi(parts[1])
	if err != nil || scale != Scale {
		return Q{}, fmt.Errorf("quantum: unsupported scale in %q", s)
	}
	if err := validateSignedIntLiteral(parts[2]); err != nil {
		return Q{}, err
	}
	v, ok := new(big.Int).SetString(parts[2], 10)
	if !ok {
		return Q{}, fmt.Errorf("quantum: invalid integer literal %q", parts[2])
	}
	return Q{i: *v}, nil
}

// validateSignedIntLiteral enforces base-10, no leading "+", no leading
// zeros except the literal "0", optional single leading "-".
func validateSignedIntLiteral(s string) error {
	if s == "" {
		return fmt.Errorf("quantum: empty integer literal")
	}
	body := s
	if s[0] == '-' {
		body = s[1:]
	} else if s[0] == '+' {
		return fmt.Errorf("quantum: leading '+' not allowed in %q", s)
	}
	if body == "" {
		return fmt.Errorf("quantum: malformed integer literal %q", s)
	}
	if body != "0" && body[0] == '0' {
		return fmt.Errorf("quantum: leading zero not allowed in %q", s)
	}
	for _, c := range body {
		if c < '0' || c > '9' {
			return fmt.Errorf("quantum: non-digit in integer literal %q", s)
		}
	}
	return nil
}

// FromFloat64 is a convenience constructor permitted only as a convenience
// (spec §4.1): it converts through exact half-even rounding of
// value*10^Scale, and rejects NaN/Inf. Nothing in this module calls it:
// not the authoritative path, the CLI input parsing, or the tests.
func FromFloat64(value float64) (Q, error) {
	if value != value { // NaN
		return Q{}, fmt.Errorf("quantum: NaN not accepted")
	}
	if value > 1e300 || value < -1e300 {
		return Q{}, fmt.Errorf("quantum: infinite or out-of-range value not accepted")
	}
	r := new(big.Rat).SetFloat64(value)
	if r == nil {
		return Q{}, fmt.Errorf("quantum: value not representable")
	}
	return fromReducedRat(r), nil
}
