package config

import (
	"fmt"

	"github.com/san-kum/gradflow/internal/disciplines"
	"github.com/san-kum/gradflow/internal/lnsolver"
	"github.com/san-kum/gradflow/internal/model"
	"github.com/san-kum/gradflow/internal/nlsolver"
)

// Registry maps the names used in config files onto model builders
// and solver constructors.
type Registry struct {
	models    map[string]func(disciplines.Variant) (*model.Node, error)
	nonlinear map[string]func(SolverConfig) model.NonlinearSolver
	linear    map[string]func(SolverConfig) model.LinearSolver
}

func NewRegistry() *Registry {
	r := &Registry{
		models:    make(map[string]func(disciplines.Variant) (*model.Node, error)),
		nonlinear: make(map[string]func(SolverConfig) model.NonlinearSolver),
		linear:    make(map[string]func(SolverConfig) model.LinearSolver),
	}

	r.models["sellar"] = disciplines.NewSellar
	r.models["sellar_grouped"] = disciplines.NewSellarGrouped
	r.models["sellar_implicit"] = func(disciplines.Variant) (*model.Node, error) {
		return disciplines.NewSellarImplicit()
	}
	r.models["double_sellar"] = disciplines.NewDoubleSellar

	r.nonlinear["nlbgs"] = func(sc SolverConfig) model.NonlinearSolver {
		return nlsolver.NewBlockGS(nlOptions(sc))
	}
	r.nonlinear["newton"] = func(sc SolverConfig) model.NonlinearSolver {
		s := nlsolver.NewNewton(nlOptions(sc))
		s.LineSearch = true
		return s
	}

	r.linear["direct"] = func(SolverConfig) model.LinearSolver {
		return lnsolver.NewDirect()
	}
	r.linear["gmres"] = func(sc SolverConfig) model.LinearSolver {
		return lnsolver.NewGMRES(lnOptions(sc))
	}
	r.linear["lnbgs"] = func(sc SolverConfig) model.LinearSolver {
		return lnsolver.NewBlockGS(lnOptions(sc))
	}

	return r
}

// GetModel builds a fresh, finalized model tree by name.
func (r *Registry) GetModel(name string, variant disciplines.Variant) (*model.Node, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", model.ErrConfiguration, name)
	}
	return fn(variant)
}

func (r *Registry) GetNonlinear(name string, sc SolverConfig) (model.NonlinearSolver, error) {
	fn, ok := r.nonlinear[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown nonlinear solver %q", model.ErrConfiguration, name)
	}
	return fn(sc), nil
}

func (r *Registry) GetLinear(name string, sc SolverConfig) (model.LinearSolver, error) {
	fn, ok := r.linear[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown linear solver %q", model.ErrConfiguration, name)
	}
	ln := fn(sc)
	if sc.Precon != "" {
		g, ok := ln.(*lnsolver.GMRES)
		if !ok {
			return nil, fmt.Errorf("%w: precon is only valid with the gmres solver", model.ErrConfiguration)
		}
		pfn, ok := r.linear[sc.Precon]
		if !ok || sc.Precon == "gmres" {
			return nil, fmt.Errorf("%w: unknown preconditioner %q", model.ErrConfiguration, sc.Precon)
		}
		pc := SolverConfig{MaxIter: 2}
		g.Precon = pfn(pc)
	}
	return ln, nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

// ParseVariant maps a config variant string to a discipline variant.
func ParseVariant(name string) (disciplines.Variant, error) {
	switch name {
	case "", "analytic":
		return disciplines.Analytic, nil
	case "fd":
		return disciplines.FiniteDifference, nil
	case "cs":
		return disciplines.ComplexStep, nil
	default:
		return 0, fmt.Errorf("%w: unknown variant %q", model.ErrConfiguration, name)
	}
}

func nlOptions(sc SolverConfig) nlsolver.Options {
	o := nlsolver.Options{Atol: sc.Atol, Rtol: sc.Rtol, MaxIter: sc.MaxIter}
	if o.Atol == 0 {
		o.Atol = DefaultAtol
	}
	if o.Rtol == 0 {
		o.Rtol = DefaultRtol
	}
	if o.MaxIter == 0 {
		o.MaxIter = DefaultMaxIter
	}
	return o
}

func lnOptions(sc SolverConfig) lnsolver.Options {
	return lnsolver.Options{Atol: sc.Atol, Rtol: sc.Rtol, MaxIter: sc.MaxIter}
}
