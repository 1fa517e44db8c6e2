package nlsolver

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/gradflow/internal/model"
)

// Options are the shared stopping controls for nonlinear solvers.
type Options struct {
	Atol    float64
	Rtol    float64
	MaxIter int
}

func DefaultOptions() Options {
	return Options{Atol: 1e-10, Rtol: 1e-10, MaxIter: 25}
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

// BlockGS is the nonlinear block Gauss-Seidel solver: children are
// swept in declared order, each evaluated (or recursively converged,
// when it carries its own solver) against the latest sibling values.
type BlockGS struct {
	Opts     Options
	Observer model.IterObserver
}

func NewBlockGS(opts Options) *BlockGS {
	return &BlockGS{Opts: opts.withDefaults()}
}

func (s *BlockGS) Name() string { return "nl_block_gs" }

func (s *BlockGS) Solve(ctx context.Context, n *model.Node) (model.SolveReport, error) {
	rep := model.SolveReport{Path: n.Path(), Solver: s.Name()}
	r := make(model.Vector, n.Size())
	n.EvalResidual(r)
	rep.Residual0 = r.Norm()
	rep.Residual = rep.Residual0
	if rep.Residual0 <= s.Opts.Atol {
		// Already converged; leave state untouched.
		rep.Converged = true
		return rep, nil
	}
	tol := math.Max(s.Opts.Atol, s.Opts.Rtol*rep.Residual0)

	targets := n.Children()
	if n.IsLeaf() {
		targets = []*model.Node{n}
	}
	for iter := 1; iter <= s.Opts.MaxIter; iter++ {
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		default:
		}
		for _, c := range targets {
			if c.Nonlinear != nil {
				if _, err := c.Nonlinear.Solve(ctx, c); err != nil {
					return rep, err
				}
				continue
			}
			if err := c.RunOnce(ctx); err != nil {
				return rep, err
			}
		}
		n.EvalResidual(r)
		res := r.Norm()
		rep.Iterations = iter
		rep.Residual = res
		rep.History = append(rep.History, res)
		if s.Observer != nil {
			s.Observer.OnIteration(n.Path(), iter, res)
		}
		if !r.IsValid() {
			return rep, &model.SolveError{
				Path: n.Path(), Solver: s.Name(), Iterations: iter, Residual: res,
				Wrapped: fmt.Errorf("%w: residual is NaN/Inf", model.ErrConvergence),
			}
		}
		if res <= tol {
			rep.Converged = true
			return rep, nil
		}
	}
	return rep, &model.SolveError{
		Path: n.Path(), Solver: s.Name(), Iterations: rep.Iterations, Residual: rep.Residual,
		Wrapped: model.ErrConvergence,
	}
}
