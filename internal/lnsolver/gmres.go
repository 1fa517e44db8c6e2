package lnsolver

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/gradflow/internal/jacobian"
	"github.com/san-kum/gradflow/internal/model"
)

// GMRES is a matrix-free Krylov solver: each iteration costs one
// linearized pass through the subtree (or one assembled matvec when
// the node exposes an assembled Jacobian) and never needs the matrix
// itself. The optional Precon may be any linear solver over the same
// node; it changes the iteration count, not the converged answer. The
// flexible (FGMRES) formulation keeps that true even for iterative
// preconditioners.
type GMRES struct {
	Opts   Options
	Precon model.LinearSolver
}

func NewGMRES(opts Options) *GMRES {
	return &GMRES{Opts: opts.withDefaults()}
}

func (g *GMRES) Name() string { return "gmres" }

func (g *GMRES) Solve(n *model.Node, mode model.Mode, b, x model.Vector) (model.SolveReport, error) {
	rep := model.SolveReport{Path: n.Path(), Solver: g.Name()}
	size := n.Size()
	x.Zero()

	matvec, err := g.operator(n, mode)
	if err != nil {
		return rep, err
	}

	beta := b.Norm()
	rep.Residual0 = beta
	if beta == 0 {
		rep.Converged = true
		return rep, nil
	}
	tol := math.Max(g.Opts.Atol, g.Opts.Rtol*beta)

	m := g.Opts.MaxIter
	if m > size {
		m = size
	}
	v := make([]model.Vector, 1, m+1)
	v[0] = b.Clone()
	v[0].Scale(1 / beta)
	z := make([]model.Vector, 0, m)
	h := make([][]float64, m+1)
	for i := range h {
		h[i] = make([]float64, m)
	}
	cs := make([]float64, m)
	sn := make([]float64, m)
	gv := make(model.Vector, m+1)
	gv[0] = beta

	res := beta
	k := 0
	w := make(model.Vector, size)
	for j := 0; j < m; j++ {
		zj := v[j].Clone()
		if g.Precon != nil {
			zj = make(model.Vector, size)
			if _, err := g.Precon.Solve(n, mode, v[j], zj); err != nil {
				// An approximate preconditioner application is still a
				// valid preconditioner; only hard failures propagate.
				if !errors.Is(err, model.ErrLinearSolve) {
					return rep, err
				}
			}
		}
		z = append(z, zj)
		matvec(zj, w)

		for i := 0; i <= j; i++ {
			h[i][j] = w.Dot(v[i])
			w.AddScaled(-h[i][j], v[i])
		}
		h[j+1][j] = w.Norm()
		breakdown := h[j+1][j] <= 1e-300
		if !breakdown {
			vn := w.Clone()
			vn.Scale(1 / h[j+1][j])
			v = append(v, vn)
		}

		for i := 0; i < j; i++ {
			t := cs[i]*h[i][j] + sn[i]*h[i+1][j]
			h[i+1][j] = -sn[i]*h[i][j] + cs[i]*h[i+1][j]
			h[i][j] = t
		}
		cs[j], sn[j] = givens(h[j][j], h[j+1][j])
		h[j][j] = cs[j]*h[j][j] + sn[j]*h[j+1][j]
		h[j+1][j] = 0
		gv[j+1] = -sn[j] * gv[j]
		gv[j] *= cs[j]

		res = math.Abs(gv[j+1])
		k = j + 1
		rep.History = append(rep.History, res)
		if res <= tol || breakdown {
			break
		}
	}

	// Back-substitute y over the k-column triangle and expand through
	// the preconditioned basis.
	y := make(model.Vector, k)
	for i := k - 1; i >= 0; i-- {
		s := gv[i]
		for l := i + 1; l < k; l++ {
			s -= h[i][l] * y[l]
		}
		if h[i][i] == 0 {
			return rep, &model.SolveError{
				Path: n.Path(), Solver: g.Name(), Iterations: k, Residual: res,
				Wrapped: model.ErrSingular,
			}
		}
		y[i] = s / h[i][i]
	}
	for i := 0; i < k; i++ {
		x.AddScaled(y[i], z[i])
	}

	rep.Iterations = k
	rep.Residual = res
	if res > tol {
		return rep, &model.SolveError{
			Path: n.Path(), Solver: g.Name(), Iterations: k, Residual: res,
			Wrapped: fmt.Errorf("%w: tolerance %.3e not met", model.ErrLinearSolve, tol),
		}
	}
	rep.Converged = true
	return rep, nil
}

// operator picks the subtree matvec: assembled when the node carries
// an assembled Jacobian, otherwise the matrix-free linearized pass.
func (g *GMRES) operator(n *model.Node, mode model.Mode) (func(in, out model.Vector), error) {
	if n.AssembledFormat() != jacobian.FormatNone {
		asm, err := n.RefreshAssembled()
		if err != nil {
			return nil, err
		}
		return func(in, out model.Vector) {
			asm.MatVec(mode == model.Reverse, in, out)
		}, nil
	}
	return func(in, out model.Vector) {
		n.ApplyLinear(mode, in, out)
	}, nil
}

func givens(a, b float64) (c, s float64) {
	r := math.Hypot(a, b)
	if r == 0 {
		return 1, 0
	}
	return a / r, b / r
}
