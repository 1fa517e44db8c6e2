package lnsolver

import (
	"fmt"
	"math"

	"github.com/san-kum/gradflow/internal/model"
)

// BlockGS is the linear block Gauss-Seidel solver: fixed-point sweeps
// over the node's children where each block solves its own local
// system with its own attached solver, using the latest sibling
// values.
type BlockGS struct {
	Opts Options
}

func NewBlockGS(opts Options) *BlockGS {
	o := opts.withDefaults()
	if opts.MaxIter == 0 {
		o.MaxIter = 50
	}
	return &BlockGS{Opts: o}
}

func (s *BlockGS) Name() string { return "block_gs" }

func (s *BlockGS) Solve(n *model.Node, mode model.Mode, b, x model.Vector) (model.SolveReport, error) {
	rep := model.SolveReport{Path: n.Path(), Solver: s.Name()}
	x.Zero()
	if n.IsLeaf() {
		if err := solveUnit(n, mode, b, x); err != nil {
			return rep, err
		}
		rep.Converged = true
		rep.Iterations = 1
		return rep, nil
	}

	blocks := units(n)
	size := n.Size()
	lo := n.Offset()
	ax := make(model.Vector, size)
	r := make(model.Vector, size)
	du := make(model.Vector, size)

	rep.Residual0 = b.Norm()
	if rep.Residual0 == 0 {
		rep.Converged = true
		return rep, nil
	}
	tol := math.Max(s.Opts.Atol, s.Opts.Rtol*rep.Residual0)

	for iter := 1; iter <= s.Opts.MaxIter; iter++ {
		for _, u := range blocks {
			n.ApplyLinear(mode, x, ax)
			for i := range r {
				r[i] = b[i] - ax[i]
			}
			ui, uj := u.Offset()-lo, u.Offset()-lo+u.Size()
			if err := solveUnit(u, mode, r[ui:uj], du[ui:uj]); err != nil {
				return rep, err
			}
			for i := ui; i < uj; i++ {
				x[i] += du[i]
			}
		}
		n.ApplyLinear(mode, x, ax)
		res := 0.0
		for i := range r {
			d := b[i] - ax[i]
			res += d * d
		}
		res = math.Sqrt(res)
		rep.Iterations = iter
		rep.Residual = res
		rep.History = append(rep.History, res)
		if res <= tol {
			rep.Converged = true
			return rep, nil
		}
	}
	return rep, &model.SolveError{
		Path: n.Path(), Solver: s.Name(), Iterations: rep.Iterations, Residual: rep.Residual,
		Wrapped: fmt.Errorf("%w: tolerance %.3e not met after %d sweeps", model.ErrLinearSolve, tol, s.Opts.MaxIter),
	}
}
