// Package model provides the core tree primitives for coupled-system
// solves and total derivatives.
//
// The package defines the fundamental types and interfaces:
//
//   - [Vector]: flat state/seed vector
//   - [Variable]: named buffer owned by one leaf, wired by connections
//   - [Node]: closed variant set {LeafExplicit, LeafImplicit, Composite}
//   - [NonlinearSolver], [LinearSolver]: solver interfaces implemented
//     by internal/nlsolver and internal/lnsolver
//   - [SolveReport]: per-solve diagnostic record
//
// # Example
//
//	x := model.NewVarVal("x", 1.0)
//	leaf := model.NewExplicit("square", []*model.Variable{x},
//		[]*model.Variable{model.NewVar("y", 1)},
//		func(in, out model.Values) { out["y"][0] = in["x"][0] * in["x"][0] })
//	root := model.NewComposite("", model.NewIndepVar("px", x), leaf)
//	root.Connect("px.x", "square.x")
//	err := root.Finalize()
//
// # Thread Safety
//
// A tree is NOT safe for concurrent solves. Each leaf's compute,
// linearize, and apply-linear operations read only its own inputs and
// write only its own outputs, partials, and scratch, so siblings with
// no data dependency may be evaluated in parallel by an external
// substrate.
package model
