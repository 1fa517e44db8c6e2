package lnsolver

import (
	"fmt"

	"github.com/san-kum/gradflow/internal/jacobian"
	"github.com/san-kum/gradflow/internal/model"
)

// Direct assembles the node's subtree Jacobian and solves by LU
// factorization: dense or sparse depending on the node's declared
// format (dense when undeclared). Deterministic; fails loudly on a
// singular or near-singular factorization.
type Direct struct{}

func NewDirect() *Direct { return &Direct{} }

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Solve(n *model.Node, mode model.Mode, b, x model.Vector) (model.SolveReport, error) {
	rep := model.SolveReport{Path: n.Path(), Solver: d.Name(), Iterations: 1}
	if n.AssembledFormat() == jacobian.FormatNone {
		n.SetAssembledFormat(jacobian.FormatDense)
	}
	asm, err := n.RefreshAssembled()
	if err != nil {
		return rep, err
	}
	if !asm.Factored() {
		if err := asm.Factorize(); err != nil {
			return rep, &model.SolveError{
				Path: n.Path(), Solver: d.Name(),
				Wrapped: fmt.Errorf("%w: %v", model.ErrSingular, err),
			}
		}
	}
	if err := asm.Solve(mode == model.Reverse, b, x); err != nil {
		return rep, &model.SolveError{
			Path: n.Path(), Solver: d.Name(),
			Wrapped: fmt.Errorf("%w: %v", model.ErrSingular, err),
		}
	}
	rep.Converged = true
	return rep, nil
}
