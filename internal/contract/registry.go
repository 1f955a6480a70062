// Package contract implements the violation functional V(x) of spec §4.3:
// allowlisted residual, normalizer, and applicability functions dispatched
// by stable id, reduced-rational weights, and exact rational bookkeeping
// with a single half-even rounding at the end. Grounded on the teacher's
// closed covenant-type dispatch (consensus/validate.go, consensus/vault.go)
// generalized from "covenant kind" to "residual/normalizer/applicability
// kind": unknown ids are rejected the same way an unknown covenant type is.
package contract

import (
	"fmt"
	"math/big"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/quantum"
)

// ResidualFunc computes the residual vector r(x) for a contract's declared
// dimension, as exact rationals derived from tagged-atom state fields. It
// is a pure function of state and the contract's declared params.
type ResidualFunc func(s canon.State, params map[string]canon.Atom) ([]*big.Rat, error)

// NormalizerFunc computes sigma(x), which must be strictly positive.
type NormalizerFunc func(s canon.State, params map[string]canon.Atom) (*big.Rat, error)

// ApplicabilityFunc decides whether a contract is active on state x. Per
// spec §9's resolution of the open question, it is a pure function of
// State alone — any "activity" a contract needs must be a declared field.
type ApplicabilityFunc func(s canon.State, params map[string]canon.Atom) bool

var residualRegistry = map[string]ResidualFunc{}
var normalizerRegistry = map[string]NormalizerFunc{}
var applicabilityRegistry = map[string]ApplicabilityFunc{}

// RegisterResidual adds id to the residual allowlist. Intended to be called
// only from package init functions, never at runtime from untrusted input.
func RegisterResidual(id string, fn ResidualFunc) { residualRegistry[id] = fn }

// RegisterNormalizer adds id to the normalizer allowlist.
func RegisterNormalizer(id string, fn NormalizerFunc) { normalizerRegistry[id] = fn }

// RegisterApplicability adds id to the applicability-predicate allowlist.
func RegisterApplicability(id string, fn ApplicabilityFunc) { applicabilityRegistry[id] = fn }

func lookupResidual(id string) (ResidualFunc, error) {
	fn, ok := residualRegistry[id]
	if !ok {
		return nil, fmt.Errorf("contract: residual id %q is not allowlisted", id)
	}
	return fn, nil
}

func lookupNormalizer(id string) (NormalizerFunc, error) {
	fn, ok := normalizerRegistry[id]
	if !ok {
		return nil, fmt.Errorf("contract: normalizer id %q is not allowlisted", id)
	}
	return fn, nil
}

func lookupApplicability(id string) (ApplicabilityFunc, error) {
	if id == "" {
		return nil, nil
	}
	fn, ok := applicabilityRegistry[id]
	if !ok {
		return nil, fmt.Errorf("contract: applicability id %q is not allowlisted", id)
	}
	return fn, nil
}

func init() {
	// "field_value": residual is the raw quantum value of a single declared
	// field, dimension 1. Used directly by the end-to-end scenarios in
	// spec §8 scenario A.
	RegisterResidual("field_value", func(s canon.State, params map[string]canon.Atom) ([]*big.Rat, error) {
		fieldAtom, ok := params["field"]
		if !ok || fieldAtom.Kind != canon.AtomString {
			return nil, fmt.Errorf("contract: field_value requires a string 'field' param")
		}
		id, err := canon.ParseFieldID(fieldAtom.Str)
		if err != nil {
			return nil, err
		}
		v, ok := s.Get(id)
		if !ok {
			return nil, fmt.Errorf("contract: field %q not present in state", fieldAtom.Str)
		}
		r, err := atomToRat(v)
		if err != nil {
			return nil, err
		}
		return []*big.Rat{r}, nil
	})

	// "field_minus_target": residual is field value minus a constant target
	// (both read as exact rationals), dimension 1.
	RegisterResidual("field_minus_target", func(s canon.State, params map[string]canon.Atom) ([]*big.Rat, error) {
		fieldAtom, ok := params["field"]
		if !ok || fieldAtom.Kind != canon.AtomString {
			return nil, fmt.Errorf("contract: field_minus_target requires a string 'field' param")
		}
		targetAtom, ok := params["target"]
		if !ok {
			return nil, fmt.Errorf("contract: field_minus_target requires a 'target' param")
		}
		id, err := canon.ParseFieldID(fieldAtom.Str)
		if err != nil {
			return nil, err
		}
		v, ok := s.Get(id)
		if !ok {
			return nil, fmt.Errorf("contract: field %q not present in state", fieldAtom.Str)
		}
		rv, err := atomToRat(v)
		if err != nil {
			return nil, err
		}
		rt, err := atomToRat(targetAtom)
		if err != nil {
			return nil, err
		}
		out := new(big.Rat).Sub(rv, rt)
		return []*big.Rat{out}, nil
	})

	// "constant": normalizer is a fixed positive constant carried in params.
	RegisterNormalizer("constant", func(s canon.State, params map[string]canon.Atom) (*big.Rat, error) {
		sigmaAtom, ok := params["sigma"]
		if !ok {
			return nil, fmt.Errorf("contract: constant normalizer requires a 'sigma' param")
		}
		r, err := atomToRat(sigmaAtom)
		if err != nil {
			return nil, err
		}
		if r.Sign() <= 0 {
			return nil, fmt.Errorf("contract: normalizer must be strictly positive")
		}
		return r, nil
	})

	// "field_value": normalizer read from a declared state field.
	RegisterNormalizer("field_value", func(s canon.State, params map[string]canon.Atom) (*big.Rat, error) {
		fieldAtom, ok := params["field"]
		if !ok || fieldAtom.Kind != canon.AtomString {
			return nil, fmt.Errorf("contract: field_value normalizer requires a string 'field' param")
		}
		id, err := canon.ParseFieldID(fieldAtom.Str)
		if err != nil {
			return nil, err
		}
		v, ok := s.Get(id)
		if !ok {
			return nil, fmt.Errorf("contract: field %q not present in state", fieldAtom.Str)
		}
		r, err := atomToRat(v)
		if err != nil {
			return nil, err
		}
		if r.Sign() <= 0 {
			return nil, fmt.Errorf("contract: normalizer must be strictly positive")
		}
		return r, nil
	})

	// "always": applicability predicate that is always true (the default
	// when a contract declares no predicate id at all).
	RegisterApplicability("always", func(s canon.State, params map[string]canon.Atom) bool { return true })

	// "field_nonzero": applicable iff a declared field is present and
	// nonzero.
	RegisterApplicability("field_nonzero", func(s canon.State, params map[string]canon.Atom) bool {
		fieldAtom, ok := params["field"]
		if !ok || fieldAtom.Kind != canon.AtomString {
			return false
		}
		id, err := canon.ParseFieldID(fieldAtom.Str)
		if err != nil {
			return false
		}
		v, ok := s.Get(id)
		if !ok {
			return false
		}
		r, err := atomToRat(v)
		if err != nil {
			return false
		}
		return r.Sign() != 0
	})
}

// atomToRat converts an int or quantum atom to an exact big.Rat. String and
// bytes atoms have no numeric interpretation and are rejected.
func atomToRat(a canon.Atom) (*big.Rat, error) {
	switch a.Kind {
	case canon.AtomInt:
		return new(big.Rat).SetInt(a.Int), nil
	case canon.AtomQuantum:
		den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quantum.Scale)), nil)
		return new(big.Rat).SetFrac(a.Quant.Raw(), den), nil
	default:
		return nil, fmt.Errorf("contract: atom kind is not numeric")
	}
}
