// Package lnsolver implements the linear-solver hierarchy over model
// subtree Jacobians.
//
//   - [Direct]: assembles the subtree Jacobian (dense or sparse) and
//     solves by LU back-substitution.
//   - [GMRES]: matrix-free Krylov iteration using only subtree
//     matvecs, with an optional preconditioner that is itself any
//     [model.LinearSolver].
//   - [BlockGS]: block fixed-point sweeps where each child solves its
//     own local system with its own attached solver.
//
// All variants support forward and transpose (reverse/adjoint)
// application, and any mix of them across tree levels yields the same
// solution within tolerance.
package lnsolver
