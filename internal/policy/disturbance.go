package policy

import (
	"fmt"

	"coherence.dev/gate/internal/quantum"
)

// DisturbanceClass is the closed tag of disturbance policy variants (spec
// §4.6, §9).
type DisturbanceClass string

const (
	DP0 DisturbanceClass = "DP0" // E=0 required
	DP1 DisturbanceClass = "DP1" // 0 <= E <= Ebar
	DP2 DisturbanceClass = "DP2" // E <= beta(event_type)
	DP3 DisturbanceClass = "DP3" // E equals a model-computed value bit-exactly
)

// DisturbancePolicy carries the frozen parameters for whichever class is
// selected at genesis. The variant is decided once and frozen (spec §9).
type DisturbancePolicy struct {
	Class DisturbanceClass
	Ebar  quantum.Q            // DP1 bound
	Beta  map[string]quantum.Q // DP2: event_type -> bound; absent event type -> 0
	// Model is consulted only for DP3; it must be a deterministic pure
	// function of the event label (no RNG, no wall clock).
	Model func(eventLabel string) (quantum.Q, error)
}

// Verify checks a claimed disturbance E against an optional event label,
// per spec §4.6 step 7.
func (p DisturbancePolicy) Verify(e quantum.Q, eventLabel string) error {
	switch p.Class {
	case DP0:
		if e.Sign() != 0 {
			return fmt.Errorf("policy: DP0 requires E=0")
		}
		return nil
	case DP1:
		if e.Sign() < 0 || quantum.Cmp(e, p.Ebar) > 0 {
			return fmt.Errorf("policy: DP1 requires 0<=E<=Ebar")
		}
		return nil
	case DP2:
		bound, ok := p.Beta[eventLabel]
		if !ok {
			bound = quantum.Zero() // beta(absent)=0
		}
		if e.Sign() < 0 || quantum.Cmp(e, bound) > 0 {
			return fmt.Errorf("policy: DP2 requires E<=beta(event_type)")
		}
		return nil
	case DP3:
		if p.Model == nil {
			return fmt.Errorf("policy: DP3 requires a model function")
		}
		want, err := p.Model(eventLabel)
		if err != nil {
			return fmt.Errorf("policy: DP3 model error: %w", err)
		}
		if quantum.Cmp(e, want) != 0 {
			return fmt.Errorf("policy: DP3 requires E to equal the model-computed value bit-exactly")
		}
		return nil
	default:
		return fmt.Errorf("policy: unknown disturbance class %q", p.Class)
	}
}
