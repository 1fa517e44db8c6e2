package lnsolver

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/gradflow/internal/model"
)

// Options are the shared stopping controls for iterative linear
// solvers.
type Options struct {
	Atol    float64
	Rtol    float64
	MaxIter int
}

func DefaultOptions() Options {
	return Options{Atol: 1e-12, Rtol: 1e-10, MaxIter: 100}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Atol == 0 {
		o.Atol = d.Atol
	}
	if o.Rtol == 0 {
		o.Rtol = d.Rtol
	}
	if o.MaxIter == 0 {
		o.MaxIter = d.MaxIter
	}
	return o
}

// units returns the block partition a composite-level sweep iterates
// over: each child that is a leaf or carries its own linear solver is
// one block; solverless composites dissolve into their children.
func units(n *model.Node) []*model.Node {
	if n.IsLeaf() {
		return []*model.Node{n}
	}
	var out []*model.Node
	for _, c := range n.Children() {
		if c.IsLeaf() || c.Linear != nil {
			out = append(out, c)
			continue
		}
		out = append(out, units(c)...)
	}
	return out
}

// solveUnit solves one block's local system, delegating to the block's
// attached solver when it has one. Leaves without a solver get the
// builtin behavior: identity for explicit leaves (their local diagonal
// is I), a dense solve of the ∂R/∂state block for implicit leaves.
func solveUnit(u *model.Node, mode model.Mode, b, x model.Vector) error {
	if u.Linear != nil {
		_, err := u.Linear.Solve(u, mode, b, x)
		return err
	}
	switch u.Kind() {
	case model.LeafExplicit:
		copy(x, b)
		return nil
	case model.LeafImplicit:
		return solveImplicitDiag(u, mode, b, x)
	default:
		return fmt.Errorf("%w: composite %q needs a linear solver for block sweeps",
			model.ErrConfiguration, u.Path())
	}
}

func solveImplicitDiag(u *model.Node, mode model.Mode, b, x model.Vector) error {
	k := u.Size()
	a := mat.NewDense(k, k, nil)
	lo := u.Offset()
	for _, of := range u.Outputs() {
		for _, wrt := range u.Outputs() {
			blk, ok := u.Partials().Block(of.Name, wrt.Name)
			if !ok {
				continue
			}
			for i := 0; i < blk.Rows; i++ {
				for j := 0; j < blk.Cols; j++ {
					a.Set(of.Offset()-lo+i, wrt.Offset()-lo+j, blk.At(i, j))
				}
			}
		}
	}
	var lu mat.LU
	lu.Factorize(a)
	if err := lu.SolveVecTo(mat.NewVecDense(k, x), mode == model.Reverse, mat.NewVecDense(k, b.Clone())); err != nil {
		return &model.SolveError{Path: u.Path(), Solver: "local", Wrapped: fmt.Errorf("%w: %v", model.ErrSingular, err)}
	}
	return nil
}
