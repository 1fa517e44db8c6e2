package model

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/gradflow/internal/jacobian"
)

// coupled builds a two-leaf feedback system:
//
//	a.y = 2*a.x     with a.x <- b.y
//	b.y = 0.5*b.x   with b.x <- a.y
func coupled(t *testing.T) *Node {
	t.Helper()
	a := NewExplicit("a",
		[]*Variable{NewVar("x", 1)},
		[]*Variable{NewVarVal("y", 1.0)},
		func(in, out Values) { out["y"][0] = 2 * in["x"][0] })
	a.SetPartials(func(in, out Values, p *jacobian.Partials) {
		p.SetScalar("y", "x", 2)
	})
	b := NewExplicit("b",
		[]*Variable{NewVar("x", 1)},
		[]*Variable{NewVarVal("y", 1.0)},
		func(in, out Values) { out["y"][0] = 0.5 * in["x"][0] })
	b.SetPartials(func(in, out Values, p *jacobian.Partials) {
		p.SetScalar("y", "x", 0.5)
	})
	root := NewComposite("", a, b)
	root.Connect("b.y", "a.x")
	root.Connect("a.y", "b.x")
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
	return root
}

func TestApplyLinearForward(t *testing.T) {
	root := coupled(t)
	ay := root.FindVar("a.y").Offset()
	by := root.FindVar("b.y").Offset()

	// J = I - dF/dy: row a.y has -2 against b.y, row b.y has -0.5
	// against a.y.
	d := make(Vector, 2)
	out := make(Vector, 2)
	d[ay] = 1
	root.ApplyLinear(Forward, d, out)
	if math.Abs(out[ay]-1) > 1e-14 || math.Abs(out[by]-(-0.5)) > 1e-14 {
		t.Errorf("unexpected J column: out[a.y]=%f out[b.y]=%f", out[ay], out[by])
	}

	d.Zero()
	d[by] = 1
	root.ApplyLinear(Forward, d, out)
	if math.Abs(out[ay]-(-2)) > 1e-14 || math.Abs(out[by]-1) > 1e-14 {
		t.Errorf("unexpected J column: out[a.y]=%f out[b.y]=%f", out[ay], out[by])
	}
}

func TestApplyLinearAdjointIdentity(t *testing.T) {
	root := coupled(t)
	u := Vector{0.3, -1.2}
	v := Vector{2.0, 0.7}

	ju := make(Vector, 2)
	jtv := make(Vector, 2)
	root.ApplyLinear(Forward, u, ju)
	root.ApplyLinear(Reverse, v, jtv)

	// <Ju, v> must equal <u, J^T v>.
	if math.Abs(ju.Dot(v)-u.Dot(jtv)) > 1e-13 {
		t.Errorf("adjoint identity violated: %f vs %f", ju.Dot(v), u.Dot(jtv))
	}
}

func TestApplyLinearScopedSubtree(t *testing.T) {
	root := coupled(t)
	a := root.FindNode("a")

	// Seen from a alone, b.y is outside scope, so a's Jacobian is just
	// the identity on its own output.
	d := Vector{1}
	out := Vector{0}
	a.ApplyLinear(Forward, d, out)
	if math.Abs(out[0]-1) > 1e-14 {
		t.Errorf("expected scoped identity, got %f", out[0])
	}
}

func TestRefreshAssembledMatchesApplyLinear(t *testing.T) {
	for _, format := range []jacobian.Format{jacobian.FormatDense, jacobian.FormatSparse} {
		root := coupled(t)
		root.SetAssembledFormat(format)
		asm, err := root.RefreshAssembled()
		if err != nil {
			t.Fatalf("%s refresh failed: %v", format, err)
		}

		d := []float64{0.7, -0.4}
		fromAsm := make([]float64, 2)
		fromOp := make(Vector, 2)
		asm.MatVec(false, d, fromAsm)
		root.ApplyLinear(Forward, Vector(d), fromOp)
		for i := range fromOp {
			if math.Abs(fromAsm[i]-fromOp[i]) > 1e-14 {
				t.Errorf("%s entry %d: assembled %f vs matrix-free %f", format, i, fromAsm[i], fromOp[i])
			}
		}
	}
}

func TestRefreshAssembledEpochCache(t *testing.T) {
	root := coupled(t)
	root.SetAssembledFormat(jacobian.FormatDense)

	a1, err := root.RefreshAssembled()
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	epoch := a1.ValueEpoch

	// No new linearization: the refresh must be a no-op.
	a2, _ := root.RefreshAssembled()
	if a2 != a1 || a2.ValueEpoch != epoch {
		t.Error("expected cached assembled jacobian without relinearization")
	}

	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
	a3, _ := root.RefreshAssembled()
	if a3.ValueEpoch == epoch {
		t.Error("expected value refresh after new linearization")
	}
}

func TestRefreshAssembledRequiresFormat(t *testing.T) {
	root := coupled(t)
	if _, err := root.RefreshAssembled(); err == nil {
		t.Error("expected error without a declared format")
	}
}

func TestRunOnceRespectsContext(t *testing.T) {
	root := coupled(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := root.RunOnce(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}
