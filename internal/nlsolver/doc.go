// Package nlsolver implements the nonlinear solvers that drive a model
// subtree to a converged residual.
//
//   - [BlockGS]: fixed-point sweeps over children in declared order,
//     each child evaluated against the latest sibling values.
//   - [Newton]: full-subtree linearization and linear solve per
//     iteration, with optional damping and backtracking.
//
// Both stop on ‖r‖ ≤ atol or ‖r‖ ≤ rtol·‖r₀‖ and report failure past
// maxiter; the caller decides whether that is fatal.
package nlsolver
