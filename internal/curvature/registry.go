package curvature

import (
	"fmt"

	"coherence.dev/gate/internal/canon"
)

// Registry is an allowlist of validated matrices keyed by MatrixID,
// constructed once at chain genesis and read-only thereafter (spec §5).
type Registry struct {
	byID map[MatrixID]Matrix
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry { return &Registry{byID: map[MatrixID]Matrix{}} }

// Register validates and adds m, rejecting a duplicate id.
func (r *Registry) Register(m Matrix) error {
	if _, dup := r.byID[m.ID]; dup {
		return fmt.Errorf("curvature: matrix id %q already registered", m.ID)
	}
	r.byID[m.ID] = m
	return nil
}

// Lookup returns the registered matrix and its hash, or an error if unknown.
func (r *Registry) Lookup(id MatrixID) (Matrix, canon.Hash32, error) {
	m, ok := r.byID[id]
	if !ok {
		return Matrix{}, canon.Hash32{}, fmt.Errorf("curvature: unknown matrix id %q", id)
	}
	return m, m.Hash(), nil
}
