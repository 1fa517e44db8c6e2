// Package driver orchestrates seeded linear solves across the model
// tree to produce total derivatives of responses with respect to
// design variables, in forward or reverse (adjoint) mode.
package driver

import (
	"context"
	"fmt"

	"github.com/san-kum/gradflow/internal/lnsolver"
	"github.com/san-kum/gradflow/internal/model"
)

// Key identifies one total-derivative block.
type Key struct {
	Response  string
	DesignVar string
}

// Totals maps (response, design variable) pairs to dense derivative
// blocks, rows over the response and columns over the design variable.
type Totals struct {
	Mode model.Mode
	J    map[Key][][]float64
}

// Get returns the block for (response, designVar), or nil.
func (t *Totals) Get(response, designVar string) [][]float64 {
	return t.J[Key{Response: response, DesignVar: designVar}]
}

// Scalar returns entry (0, 0) of the block for scalar pairs.
func (t *Totals) Scalar(response, designVar string) float64 {
	return t.J[Key{Response: response, DesignVar: designVar}][0][0]
}

// Diagnostics records everything a caller (or case recorder) needs
// about one ComputeTotals call.
type Diagnostics struct {
	Mode     model.Mode
	Seeds    int
	Solves   []model.SolveReport
	Warnings []model.Diag
}

// ComputeTotals linearizes the tree at the current (converged) point
// and solves one seeded linear system per design-variable column
// (forward) or per response row (reverse), delegating each solve to
// the root's configured linear-solver hierarchy. Design variables and
// responses must name outputs. A failed solve aborts the whole call:
// no partially wrong Jacobian is ever returned.
func ComputeTotals(ctx context.Context, root *model.Node, designVars, responses []string, mode model.Mode) (*Totals, *Diagnostics, error) {
	diag := &Diagnostics{Mode: mode}
	dvs, err := resolveOutputs(root, designVars)
	if err != nil {
		return nil, diag, err
	}
	resps, err := resolveOutputs(root, responses)
	if err != nil {
		return nil, diag, err
	}
	linear := root.Linear
	if linear == nil {
		linear = lnsolver.NewDirect()
	}
	if err := root.Linearize(); err != nil {
		return nil, diag, err
	}

	totals := &Totals{Mode: mode, J: make(map[Key][][]float64, len(dvs)*len(resps))}
	for ri, r := range resps {
		for di, d := range dvs {
			block := make([][]float64, r.Size)
			for i := range block {
				block[i] = make([]float64, d.Size)
			}
			totals.J[Key{Response: responses[ri], DesignVar: designVars[di]}] = block
		}
	}

	size := root.Size()
	b := make(model.Vector, size)
	x := make(model.Vector, size)

	solveSeed := func(seedOff int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b.Zero()
		b[seedOff] = 1
		rep, err := linear.Solve(root, mode, b, x)
		diag.Solves = append(diag.Solves, rep)
		diag.Seeds++
		if err != nil {
			return fmt.Errorf("compute_totals (%s mode): %w", mode, err)
		}
		return nil
	}

	if mode == model.Forward {
		for di, d := range dvs {
			for j := 0; j < d.Size; j++ {
				if err := solveSeed(d.Offset() + j); err != nil {
					diag.Warnings = model.DrainDiags()
					return nil, diag, err
				}
				for ri, r := range resps {
					block := totals.J[Key{Response: responses[ri], DesignVar: designVars[di]}]
					for i := 0; i < r.Size; i++ {
						block[i][j] = x[r.Offset()+i]
					}
				}
			}
		}
	} else {
		for ri, r := range resps {
			for i := 0; i < r.Size; i++ {
				if err := solveSeed(r.Offset() + i); err != nil {
					diag.Warnings = model.DrainDiags()
					return nil, diag, err
				}
				for di, d := range dvs {
					block := totals.J[Key{Response: responses[ri], DesignVar: designVars[di]}]
					for j := 0; j < d.Size; j++ {
						block[i][j] = x[d.Offset()+j]
					}
				}
			}
		}
	}
	diag.Warnings = model.DrainDiags()
	return totals, diag, nil
}

func resolveOutputs(root *model.Node, paths []string) ([]*model.Variable, error) {
	out := make([]*model.Variable, 0, len(paths))
	for _, p := range paths {
		v := root.FindVar(p)
		if v == nil {
			return nil, fmt.Errorf("%w: unknown variable %q", model.ErrConfiguration, p)
		}
		if v.Offset() < 0 {
			return nil, fmt.Errorf("%w: %q is an input; design variables and responses must be outputs (wrap free inputs in an IndepVar leaf)",
				model.ErrConfiguration, p)
		}
		out = append(out, v)
	}
	return out, nil
}
