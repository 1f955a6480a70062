package contract

import (
	"fmt"
	"math/big"
	"sort"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/quantum"
)

// Contract is one entry of the ordered contract set (spec §3).
type Contract struct {
	ResidualID           string
	ResidualDim          int
	ResidualParams       map[string]canon.Atom
	NormalizerID         string
	NormalizerParams     map[string]canon.Atom
	WeightNum, WeightDen *big.Int // reduced: gcd=1, den>0, num>=0
	ApplicabilityID      string   // optional; empty means always applicable
	ApplicabilityParams  map[string]canon.Atom
	Version              string
}

// Validate checks the contract's weight is a properly reduced nonnegative
// rational (spec §3).
func (c Contract) Validate() error {
	if c.WeightDen == nil || c.WeightDen.Sign() <= 0 {
		return fmt.Errorf("contract: weight denominator must be positive")
	}
	if c.WeightNum == nil || c.WeightNum.Sign() < 0 {
		return fmt.Errorf("contract: weight numerator must be nonnegative")
	}
	g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(c.WeightNum), new(big.Int).Abs(c.WeightDen))
	if c.WeightNum.Sign() != 0 && g.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("contract: weight must be a reduced fraction")
	}
	if _, err := lookupResidual(c.ResidualID); err != nil {
		return err
	}
	if _, err := lookupNormalizer(c.NormalizerID); err != nil {
		return err
	}
	if _, err := lookupApplicability(c.ApplicabilityID); err != nil {
		return err
	}
	return nil
}

// Set is the ordered list of contracts plus its identity.
type Set struct {
	Contracts []Contract
}

// Canonical renders the contract set's canonical bytes (order preserved —
// this is a declared ordered list, not a sorted one, per spec §3).
func (s Set) Canonical() []byte {
	parts := make([]string, len(s.Contracts))
	for i, c := range s.Contracts {
		parts[i] = canonicalContract(c)
	}
	out := "[" + joinComma(parts) + "]"
	return []byte(out)
}

// Hash returns the contract set's identity hash.
func (s Set) Hash() canon.Hash32 { return canon.SHA3(s.Canonical()) }

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func canonicalContract(c Contract) string {
	rParams := canonicalAtomMap(c.ResidualParams)
	nParams := canonicalAtomMap(c.NormalizerParams)
	aParams := canonicalAtomMap(c.ApplicabilityParams)
	return "{" +
		`"residual_id":"` + jsonEscape(c.ResidualID) + `",` +
		`"residual_dim":` + itoa(c.ResidualDim) + "," +
		`"residual_params":` + rParams + "," +
		`"normalizer_id":"` + jsonEscape(c.NormalizerID) + `",` +
		`"normalizer_params":` + nParams + "," +
		`"weight_num":` + c.WeightNum.String() + "," +
		`"weight_den":` + c.WeightDen.String() + "," +
		`"applicability_id":"` + jsonEscape(c.ApplicabilityID) + `",` +
		`"applicability_params":` + aParams + "," +
		`"version":"` + jsonEscape(c.Version) + `"` +
		"}"
}

func canonicalAtomMap(m map[string]canon.Atom) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = `["` + jsonEscape(k) + `","` + jsonEscape(m[k].Canonical()) + `"]`
	}
	return "[" + joinComma(parts) + "]"
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

// Evaluate computes V(x) for the contract set on state x (spec §4.3). It
// returns the violation quantum plus the number of contract activations
// that contributed (for policy.Caps.MaxVEvalCost accounting). All
// intermediate bookkeeping is exact big.Rat arithmetic; the one and only
// rounding happens in the final quantum.FromRational call. Applicability is
// evaluated strictly before any residual/normalizer arithmetic runs for
// that contract (spec §4.3: "this is strict").
func Evaluate(s Set, x canon.State) (quantum.Q, int, error) {
	total := new(big.Rat)
	activations := 0
	for _, c := range s.Contracts {
		applicFn, err := lookupApplicability(c.ApplicabilityID)
		if err != nil {
			return quantum.Q{}, 0, err
		}
		if applicFn != nil && !applicFn(x, c.ApplicabilityParams) {
			continue // inapplicable contracts contribute zero, strictly
		}
		activations++

		residualFn, err := lookupResidual(c.ResidualID)
		if err != nil {
			return quantum.Q{}, 0, err
		}
		normFn, err := lookupNormalizer(c.NormalizerID)
		if err != nil {
			return quantum.Q{}, 0, err
		}
		residuals, err := residualFn(x, c.ResidualParams)
		if err != nil {
			return quantum.Q{}, 0, err
		}
		if len(residuals) != c.ResidualDim {
			return quantum.Q{}, 0, fmt.Errorf("contract: residual %q returned dimension %d, want %d", c.ResidualID, len(residuals), c.ResidualDim)
		}
		sigma, err := normFn(x, c.NormalizerParams)
		if err != nil {
			return quantum.Q{}, 0, err
		}
		if sigma.Sign() <= 0 {
			return quantum.Q{}, 0, fmt.Errorf("contract: normalizer for %q must be strictly positive", c.ResidualID)
		}

		sumSq := new(big.Rat)
		for _, r := range residuals {
			sq := new(big.Rat).Mul(r, r)
			sumSq.Add(sumSq, sq)
		}
		sigmaSq := new(big.Rat).Mul(sigma, sigma)
		// exact rational division; big.Rat never loses precision here —
		// this plays the role of the spec's cross-multiplication rule,
		// since Rat internally compares/combines via cross products and
		// reduces by gcd rather than ever performing a floating division.
		term := new(big.Rat).Quo(sumSq, sigmaSq)

		weight := new(big.Rat).SetFrac(c.WeightNum, c.WeightDen)
		weighted := new(big.Rat).Mul(term, weight)
		total.Add(total, weighted)
	}
	q, err := quantum.FromRational(total.Num(), total.Denom())
	if err != nil {
		return quantum.Q{}, 0, err
	}
	return q, activations, nil
}
