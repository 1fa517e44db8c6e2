package model

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/gradflow/internal/jacobian"
)

// cube builds src -> c where c.y = x^3, optionally with analytic and
// complex callbacks.
func cube(t *testing.T, analytic, withComplex bool) *Node {
	t.Helper()
	src := NewIndepVar("src", NewVarVal("v", 1.5))
	c := NewExplicit("c",
		[]*Variable{NewVar("x", 1)},
		[]*Variable{NewVar("y", 1)},
		func(in, out Values) { out["y"][0] = in["x"][0] * in["x"][0] * in["x"][0] })
	if analytic {
		c.SetPartials(func(in, out Values, p *jacobian.Partials) {
			p.SetScalar("y", "x", 3*in["x"][0]*in["x"][0])
		})
	}
	if withComplex {
		c.SetComplex(func(in, out ValuesC) {
			out["y"][0] = in["x"][0] * in["x"][0] * in["x"][0]
		})
	}
	root := NewComposite("", src, c)
	root.Connect("src.v", "c.x")
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	return root
}

func leafBlock(t *testing.T, root *Node, path, of, wrt string) *jacobian.Block {
	t.Helper()
	leaf := root.FindNode(path)
	if leaf == nil {
		t.Fatalf("no node at %q", path)
	}
	b, ok := leaf.Partials().Block(of, wrt)
	if !ok {
		t.Fatalf("no partial (%s, %s) on %q", of, wrt, path)
	}
	return b
}

func TestLinearizeAnalytic(t *testing.T) {
	root := cube(t, true, false)
	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
	b := leafBlock(t, root, "c", "y", "x")
	if math.Abs(b.At(0, 0)-6.75) > 1e-14 {
		t.Errorf("expected dy/dx=6.75, got %f", b.At(0, 0))
	}
	if b.Approx {
		t.Error("analytic block should not be marked approximated")
	}
}

func TestLinearizeFDFallback(t *testing.T) {
	root := cube(t, false, false)
	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
	b := leafBlock(t, root, "c", "y", "x")
	if math.Abs(b.At(0, 0)-6.75) > 1e-4 {
		t.Errorf("expected dy/dx~6.75, got %f", b.At(0, 0))
	}
	if !b.Approx {
		t.Error("finite-difference block should be marked approximated")
	}
}

func TestLinearizeComplexStep(t *testing.T) {
	root := cube(t, false, true)
	root.FindNode("c").UseCS(1e-30)
	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
	b := leafBlock(t, root, "c", "y", "x")
	if math.Abs(b.At(0, 0)-6.75) > 1e-12 {
		t.Errorf("expected dy/dx=6.75 to machine precision, got %.15f", b.At(0, 0))
	}
}

func TestComplexStepRequiresCallback(t *testing.T) {
	root := cube(t, false, false)
	root.FindNode("c").UseCS(1e-30)
	err := root.Linearize()
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration without complex callback, got %v", err)
	}
}

func TestAnalyticShapeValidation(t *testing.T) {
	src := NewIndepVar("src", NewVarVal("v", 1.0, 2.0))
	bad := NewExplicit("bad",
		[]*Variable{NewVar("x", 2)},
		[]*Variable{NewVar("y", 1)},
		func(in, out Values) { out["y"][0] = in["x"][0] + in["x"][1] })
	bad.SetPartials(func(in, out Values, p *jacobian.Partials) {
		p.SetScalar("y", "x", 1) // should be 1x2
	})
	root := NewComposite("", src, bad)
	root.Connect("src.v", "bad.x")
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	err := root.Linearize()
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for shape mismatch, got %v", err)
	}
}

func TestFDNaNRetryWarns(t *testing.T) {
	DrainDiags()
	src := NewIndepVar("src", NewVarVal("v", 1e-8))
	s := NewExplicit("s",
		[]*Variable{NewVar("x", 1)},
		[]*Variable{NewVar("y", 1)},
		func(in, out Values) { out["y"][0] = math.Sqrt(1e-7 - in["x"][0]) })
	root := NewComposite("", src, s)
	root.Connect("src.v", "s.x")
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	// Default step 1e-6 pushes the argument negative; both the first
	// attempt and the widened retry go NaN.
	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
	found := false
	for _, d := range DrainDiags() {
		if d.Kind == DiagNumerical && d.Path == "s" {
			found = true
		}
	}
	if !found {
		t.Error("expected a numerical diagnostic for the NaN column")
	}
}

func TestImplicitLinearizeStates(t *testing.T) {
	// R(y) = x - y^2, state partials wrt both input and state.
	src := NewIndepVar("src", NewVarVal("v", 4.0))
	imp := NewImplicit("imp",
		[]*Variable{NewVar("x", 1)},
		[]*Variable{NewVarVal("y", 2.0)},
		func(in, out, res Values) { res["y"][0] = in["x"][0] - out["y"][0]*out["y"][0] })
	imp.SetComplexResidual(func(in, out, res ValuesC) {
		res["y"][0] = in["x"][0] - out["y"][0]*out["y"][0]
	})
	imp.UseCS(1e-30)
	root := NewComposite("", src, imp)
	root.Connect("src.v", "imp.x")
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}

	dRdy := leafBlock(t, root, "imp", "y", "y")
	if math.Abs(dRdy.At(0, 0)-(-4.0)) > 1e-12 {
		t.Errorf("expected dR/dy=-4, got %f", dRdy.At(0, 0))
	}
	dRdx := leafBlock(t, root, "imp", "y", "x")
	if math.Abs(dRdx.At(0, 0)-1.0) > 1e-12 {
		t.Errorf("expected dR/dx=1, got %f", dRdx.At(0, 0))
	}
}
