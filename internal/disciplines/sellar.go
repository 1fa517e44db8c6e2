// Package disciplines provides benchmark model components for the
// solver engine: the two-discipline Sellar problem and its variants.
//
// Sellar, R. S., Batill, S. M., and Renaud, J. E., "Response Surface
// Based, Concurrent Subspace Optimization for Multidisciplinary System
// Design," 34th AIAA Aerospace Sciences Meeting and Exhibit, 1996.
package disciplines

import (
	"math"
	"math/cmplx"

	"github.com/san-kum/gradflow/internal/jacobian"
	"github.com/san-kum/gradflow/internal/model"
)

// Variant selects how a discipline's partials are obtained.
type Variant int

const (
	Analytic Variant = iota
	FiniteDifference
	ComplexStep
)

// NewDis1 builds discipline 1: y1 = z1² + z2 + x − 0.2·y2.
func NewDis1(variant Variant) *model.Node {
	n := model.NewExplicit("d1",
		[]*model.Variable{
			model.NewVarVal("z", 5.0, 2.0),
			model.NewVarVal("x", 1.0),
			model.NewVarVal("y2", 1.0),
		},
		[]*model.Variable{model.NewVarVal("y1", 1.0)},
		func(in, out model.Values) {
			out["y1"][0] = in["z"][0]*in["z"][0] + in["z"][1] + in["x"][0] - 0.2*in["y2"][0]
		})
	n.SetComplex(func(in, out model.ValuesC) {
		out["y1"][0] = in["z"][0]*in["z"][0] + in["z"][1] + in["x"][0] - 0.2*in["y2"][0]
	})
	switch variant {
	case Analytic:
		n.SetPartials(func(in, out model.Values, p *jacobian.Partials) {
			p.Set("y1", "z", 1, 2, []float64{2 * in["z"][0], 1})
			p.SetScalar("y1", "x", 1)
			p.SetScalar("y1", "y2", -0.2)
		})
	case FiniteDifference:
		n.UseFD(1e-6, false)
	case ComplexStep:
		n.UseCS(1e-30)
	}
	return n
}

// NewDis2 builds discipline 2: y2 = sqrt(y1) + z1 + z2.
//
// y1 may go negative before the coupled system converges; the callback
// flips the sign instead of taking a magnitude so the evaluation stays
// analytic under complex-step perturbation.
func NewDis2(variant Variant) *model.Node {
	n := model.NewExplicit("d2",
		[]*model.Variable{
			model.NewVarVal("z", 5.0, 2.0),
			model.NewVarVal("y1", 1.0),
		},
		[]*model.Variable{model.NewVarVal("y2", 1.0)},
		func(in, out model.Values) {
			y1 := in["y1"][0]
			if y1 < 0 {
				y1 = -y1
			}
			out["y2"][0] = math.Sqrt(y1) + in["z"][0] + in["z"][1]
		})
	n.SetComplex(func(in, out model.ValuesC) {
		y1 := in["y1"][0]
		if real(y1) < 0 {
			y1 = -y1
		}
		out["y2"][0] = cmplx.Sqrt(y1) + in["z"][0] + in["z"][1]
	})
	switch variant {
	case Analytic:
		n.SetPartials(func(in, out model.Values, p *jacobian.Partials) {
			y1 := in["y1"][0]
			if y1 < 0 {
				y1 = -y1
			}
			p.SetScalar("y2", "y1", 0.5/math.Sqrt(y1))
			p.Set("y2", "z", 1, 2, []float64{1, 1})
		})
	case FiniteDifference:
		n.UseFD(1e-6, false)
	case ComplexStep:
		n.UseCS(1e-30)
	}
	return n
}

// NewImplicitDis1 builds discipline 1 in implicit form:
// R(y1) = z1² + z2 + x − 0.2·y2 − y1 = 0, with a local solve.
func NewImplicitDis1() *model.Node {
	n := model.NewImplicit("d1",
		[]*model.Variable{
			model.NewVarVal("z", 5.0, 2.0),
			model.NewVarVal("x", 1.0),
			model.NewVarVal("y2", 1.0),
		},
		[]*model.Variable{model.NewVarVal("y1", 1.0)},
		func(in, out, res model.Values) {
			res["y1"][0] = in["z"][0]*in["z"][0] + in["z"][1] + in["x"][0] - 0.2*in["y2"][0] - out["y1"][0]
		})
	n.SetPartials(func(in, out model.Values, p *jacobian.Partials) {
		p.Set("y1", "z", 1, 2, []float64{2 * in["z"][0], 1})
		p.SetScalar("y1", "x", 1)
		p.SetScalar("y1", "y2", -0.2)
		p.SetScalar("y1", "y1", -1)
	})
	n.SetSolve(func(in, out model.Values) error {
		out["y1"][0] = in["z"][0]*in["z"][0] + in["z"][1] + in["x"][0] - 0.2*in["y2"][0]
		return nil
	})
	return n
}

// NewObjective builds obj = x² + z2 + y1 + exp(−y2).
func NewObjective() *model.Node {
	n := model.NewExplicit("obj_cmp",
		[]*model.Variable{
			model.NewVarVal("x", 0.0),
			model.NewVarVal("z", 0.0, 0.0),
			model.NewVarVal("y1", 0.0),
			model.NewVarVal("y2", 0.0),
		},
		[]*model.Variable{model.NewVar("obj", 1)},
		func(in, out model.Values) {
			out["obj"][0] = in["x"][0]*in["x"][0] + in["z"][1] + in["y1"][0] + math.Exp(-in["y2"][0])
		})
	n.SetPartials(func(in, out model.Values, p *jacobian.Partials) {
		p.SetScalar("obj", "x", 2*in["x"][0])
		p.Set("obj", "z", 1, 2, []float64{0, 1})
		p.SetScalar("obj", "y1", 1)
		p.SetScalar("obj", "y2", -math.Exp(-in["y2"][0]))
	})
	n.SetComplex(func(in, out model.ValuesC) {
		out["obj"][0] = in["x"][0]*in["x"][0] + in["z"][1] + in["y1"][0] + cmplx.Exp(-in["y2"][0])
	})
	return n
}

// NewCon1 builds con1 = 3.16 − y1.
func NewCon1() *model.Node {
	n := model.NewExplicit("con_cmp1",
		[]*model.Variable{model.NewVar("y1", 1)},
		[]*model.Variable{model.NewVar("con1", 1)},
		func(in, out model.Values) { out["con1"][0] = 3.16 - in["y1"][0] })
	n.SetPartials(func(in, out model.Values, p *jacobian.Partials) {
		p.SetScalar("con1", "y1", -1)
	})
	return n
}

// NewCon2 builds con2 = y2 − 24.
func NewCon2() *model.Node {
	n := model.NewExplicit("con_cmp2",
		[]*model.Variable{model.NewVar("y2", 1)},
		[]*model.Variable{model.NewVar("con2", 1)},
		func(in, out model.Values) { out["con2"][0] = in["y2"][0] - 24.0 })
	n.SetPartials(func(in, out model.Values, p *jacobian.Partials) {
		p.SetScalar("con2", "y2", 1)
	})
	return n
}

// NewSellar builds the flat Sellar MDA: independent x and z feed the
// two coupled disciplines, the objective, and both constraints.
func NewSellar(variant Variant) (*model.Node, error) {
	root := model.NewComposite("",
		model.NewIndepVar("px", model.NewVarVal("x", 1.0)),
		model.NewIndepVar("pz", model.NewVarVal("z", 5.0, 2.0)),
		NewDis1(variant),
		NewDis2(variant),
		NewObjective(),
		NewCon1(),
		NewCon2(),
	)
	root.Connect("px.x", "d1.x", "obj_cmp.x")
	root.Connect("pz.z", "d1.z", "d2.z", "obj_cmp.z")
	root.Connect("d1.y1", "d2.y1", "obj_cmp.y1", "con_cmp1.y1")
	root.Connect("d2.y2", "d1.y2", "obj_cmp.y2", "con_cmp2.y2")
	if err := root.Finalize(); err != nil {
		return nil, err
	}
	return root, nil
}

// NewSellarGrouped builds the Sellar MDA with the coupled disciplines
// inside a "cycle" composite, so the cycle can carry its own solvers.
func NewSellarGrouped(variant Variant) (*model.Node, error) {
	cycle := model.NewComposite("cycle", NewDis1(variant), NewDis2(variant))
	cycle.Connect("d1.y1", "d2.y1")
	cycle.Connect("d2.y2", "d1.y2")
	root := model.NewComposite("",
		model.NewIndepVar("px", model.NewVarVal("x", 1.0)),
		model.NewIndepVar("pz", model.NewVarVal("z", 5.0, 2.0)),
		cycle,
		NewObjective(),
		NewCon1(),
		NewCon2(),
	)
	root.Connect("px.x", "cycle.d1.x", "obj_cmp.x")
	root.Connect("pz.z", "cycle.d1.z", "cycle.d2.z", "obj_cmp.z")
	root.Connect("cycle.d1.y1", "obj_cmp.y1", "con_cmp1.y1")
	root.Connect("cycle.d2.y2", "obj_cmp.y2", "con_cmp2.y2")
	if err := root.Finalize(); err != nil {
		return nil, err
	}
	return root, nil
}

// NewSellarImplicit is the grouped MDA with discipline 1 in implicit
// form, exercising Newton over implicit states.
func NewSellarImplicit() (*model.Node, error) {
	cycle := model.NewComposite("cycle", NewImplicitDis1(), NewDis2(Analytic))
	cycle.Connect("d1.y1", "d2.y1")
	cycle.Connect("d2.y2", "d1.y2")
	root := model.NewComposite("",
		model.NewIndepVar("px", model.NewVarVal("x", 1.0)),
		model.NewIndepVar("pz", model.NewVarVal("z", 5.0, 2.0)),
		cycle,
		NewObjective(),
		NewCon1(),
		NewCon2(),
	)
	root.Connect("px.x", "cycle.d1.x", "obj_cmp.x")
	root.Connect("pz.z", "cycle.d1.z", "cycle.d2.z", "obj_cmp.z")
	root.Connect("cycle.d1.y1", "obj_cmp.y1", "con_cmp1.y1")
	root.Connect("cycle.d2.y2", "obj_cmp.y2", "con_cmp2.y2")
	if err := root.Finalize(); err != nil {
		return nil, err
	}
	return root, nil
}
