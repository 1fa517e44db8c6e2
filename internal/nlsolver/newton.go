package nlsolver

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/gradflow/internal/lnsolver"
	"github.com/san-kum/gradflow/internal/model"
)

// Newton converges a subtree by solving J·Δ = -r with the node's
// attached linear solver each iteration and applying the update as one
// atomic state vector write. MaxStep bounds ‖Δ‖; LineSearch backtracks
// when a full step grows the residual.
type Newton struct {
	Opts       Options
	MaxStep    float64 // 0 = unbounded
	Relax      float64 // fixed damping factor, 0 = 1.0
	LineSearch bool
	Observer   model.IterObserver
}

func NewNewton(opts Options) *Newton {
	return &Newton{Opts: opts.withDefaults()}
}

func (s *Newton) Name() string { return "newton" }

const maxBacktracks = 5

func (s *Newton) Solve(ctx context.Context, n *model.Node) (model.SolveReport, error) {
	rep := model.SolveReport{Path: n.Path(), Solver: s.Name()}
	linear := n.Linear
	if linear == nil {
		linear = lnsolver.NewDirect()
	}

	size := n.Size()
	r := make(model.Vector, size)
	n.EvalResidual(r)
	rep.Residual0 = r.Norm()
	rep.Residual = rep.Residual0
	if rep.Residual0 <= s.Opts.Atol {
		rep.Converged = true
		return rep, nil
	}
	tol := math.Max(s.Opts.Atol, s.Opts.Rtol*rep.Residual0)

	rhs := make(model.Vector, size)
	dx := make(model.Vector, size)
	base := make(model.Vector, size)
	prev := rep.Residual0

	for iter := 1; iter <= s.Opts.MaxIter; iter++ {
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		default:
		}
		if err := n.Linearize(); err != nil {
			return rep, err
		}
		copy(rhs, r)
		rhs.Scale(-1)
		if _, err := linear.Solve(n, model.Forward, rhs, dx); err != nil {
			// A failed linear solve leaves no step to damp; re-raise.
			return rep, err
		}
		if s.MaxStep > 0 {
			if norm := dx.Norm(); norm > s.MaxStep {
				dx.Scale(s.MaxStep / norm)
			}
		}
		alpha := s.Relax
		if alpha == 0 {
			alpha = 1
		}

		n.GatherStates(base)
		res := prev
		for bt := 0; ; bt++ {
			n.ScatterStates(base)
			trial := base.Clone()
			trial.AddScaled(alpha, dx)
			n.ScatterStates(trial)
			n.EvalResidual(r)
			res = r.Norm()
			if !s.LineSearch || bt >= maxBacktracks || (res < prev && r.IsValid()) {
				break
			}
			alpha /= 2
		}

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
		prev = res
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
