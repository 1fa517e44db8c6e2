package model

import "context"

// Mode selects the direction of a linear solve.
type Mode int

const (
	// Forward solves J x = b: one solve per design variable.
	Forward Mode = iota
	// Reverse solves Jᵀ x = b: one solve per response (adjoint).
	Reverse
)

func (m Mode) String() string {
	if m == Reverse {
		return "rev"
	}
	return "fwd"
}

// SolveReport is the diagnostic record every solver returns, success
// or failure.
type SolveReport struct {
	Path       string
	Solver     string
	Converged  bool
	Iterations int
	Residual0  float64
	Residual   float64
	History    []float64
}

// NonlinearSolver drives one node (and recursively its children) to a
// converged residual. It is the sole writer of state values.
type NonlinearSolver interface {
	Solve(ctx context.Context, n *Node) (SolveReport, error)
	Name() string
}

// LinearSolver solves J x = b (or Jᵀ x = b) over one node's subtree
// states at the current linearization point. b and x have length
// n.Size(). Implementations only read node state via matrix-vector
// products or local solves; they never mutate it.
type LinearSolver interface {
	Solve(n *Node, mode Mode, b, x Vector) (SolveReport, error)
	Name() string
}

// IterObserver receives per-iteration records from solvers that accept
// one, e.g. for live terminal views.
type IterObserver interface {
	OnIteration(path string, iter int, residual float64)
}
