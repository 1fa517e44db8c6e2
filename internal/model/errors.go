package model

import (
	"errors"
	"fmt"
)

// Domain errors for the solver engine.
var (
	// ErrConvergence indicates a nonlinear solve exceeded maxiter
	// without meeting tolerance.
	ErrConvergence = errors.New("model: nonlinear solver failed to converge")

	// ErrLinearSolve indicates an iterative linear solver diverged or
	// exceeded maxiter.
	ErrLinearSolve = errors.New("model: linear solver failed")

	// ErrSingular indicates a singular or near-singular direct
	// factorization.
	ErrSingular = errors.New("model: singular jacobian")

	// ErrConfiguration indicates an incompatible solver or jacobian
	// assignment, or mismatched declared shapes.
	ErrConfiguration = errors.New("model: invalid configuration")

	// ErrNotFinalized indicates use of a tree before Finalize.
	ErrNotFinalized = errors.New("model: tree not finalized")
)

// SolveError wraps a solver failure with the node path and the
// diagnostics the caller needs to decide whether it is fatal.
type SolveError struct {
	Path       string
	Solver     string
	Iterations int
	Residual   float64
	Wrapped    error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("%s at %q: %v (iterations=%d residual=%.3e)",
		e.Solver, e.Path, e.Wrapped, e.Iterations, e.Residual)
}

func (e *SolveError) Unwrap() error {
	return e.Wrapped
}
