// Package policy implements the chain-wide frozen policy bundle (spec §3,
// §4.5): service law instances, disturbance policy variants, resource
// caps, and the one-shot genesis construction. Grounded on the teacher's
// flat-struct config validation (node/config.go DefaultConfig/ValidateConfig).
package policy

import (
	"fmt"

	"coherence.dev/gate/internal/quantum"
)

// ServiceLawKind is the closed tag of service law instances (spec §4.6,
// §9: "a tagged variant with parameters").
type ServiceLawKind string

const (
	ServiceLinearCapped ServiceLawKind = "linear_capped"
)

// ServiceLaw is S(D,B): deterministic, S(D,0)=0, S(0,B)=0, 0<=S(D,B)<=D,
// monotone in both arguments (spec §4.6).
type ServiceLaw struct {
	Kind ServiceLawKind
	Mu   quantum.Q // parameter for linear_capped
}

// Validate checks the law's own parameters are well formed.
func (s ServiceLaw) Validate() error {
	switch s.Kind {
	case ServiceLinearCapped:
		if !s.Mu.IsNonNegative() {
			return fmt.Errorf("policy: linear_capped.mu must be nonnegative")
		}
		return nil
	default:
		return fmt.Errorf("policy: unknown service law kind %q", s.Kind)
	}
}

// Apply computes S(D,B) under this law.
func (s ServiceLaw) Apply(d, b quantum.Q) (quantum.Q, error) {
	switch s.Kind {
	case ServiceLinearCapped:
		if b.Sign() == 0 {
			return quantum.Zero(), nil
		}
		if d.Sign() == 0 {
			return quantum.Zero(), nil
		}
		muB := quantum.MulQ(s.Mu, b)
		return quantum.Min(d, muB), nil
	default:
		return quantum.Q{}, fmt.Errorf("policy: unknown service law kind %q", s.Kind)
	}
}
