package disciplines

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/gradflow/internal/model"
)

func TestDis1Compute(t *testing.T) {
	d1 := NewDis1(Analytic)
	root := model.NewComposite("", d1)
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	// Free inputs keep their defaults: z=[5,2], x=1, y2=1.
	if err := root.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := 25.0 + 2.0 + 1.0 - 0.2
	got := root.FindVar("d1.y1").Scalar()
	if math.Abs(got-want) > 1e-14 {
		t.Errorf("expected y1=%f, got %f", want, got)
	}
}

func TestDis2NegativeCoupling(t *testing.T) {
	d2 := NewDis2(Analytic)
	root := model.NewComposite("", d2)
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	// A negative y1 passed in mid-convergence must not produce NaN.
	root.FindVar("d2.y1").Set(-4.0)
	if err := root.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	got := root.FindVar("d2.y2").Scalar()
	want := 2.0 + 5.0 + 2.0
	if math.Abs(got-want) > 1e-14 {
		t.Errorf("expected y2=%f for flipped argument, got %f", want, got)
	}
	if err := root.Linearize(); err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
}

func TestImplicitDis1ResidualAtSolve(t *testing.T) {
	d1 := NewImplicitDis1()
	root := model.NewComposite("", d1)
	if err := root.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if err := root.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	r := make(model.Vector, root.Size())
	root.EvalResidual(r)
	if r.Norm() > 1e-14 {
		t.Errorf("local solve should zero the residual, got %e", r.Norm())
	}
}

func TestSellarBuilders(t *testing.T) {
	builders := map[string]func() (*model.Node, error){
		"flat":     func() (*model.Node, error) { return NewSellar(Analytic) },
		"grouped":  func() (*model.Node, error) { return NewSellarGrouped(Analytic) },
		"implicit": NewSellarImplicit,
		"double":   func() (*model.Node, error) { return NewDoubleSellar(Analytic) },
	}
	for name, build := range builders {
		root, err := build()
		if err != nil {
			t.Fatalf("%s: build failed: %v", name, err)
		}
		if root.Size() == 0 {
			t.Errorf("%s: expected nonzero state size", name)
		}
		if err := root.RunOnce(context.Background()); err != nil {
			t.Errorf("%s: run failed: %v", name, err)
		}
	}
}

func TestDoubleSellarCrossCoupling(t *testing.T) {
	root, err := NewDoubleSellar(Analytic)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	g1x := root.FindVar("g1.d1.x")
	if g1x.Source() == nil || g1x.Source().Path() != "g2.d2.y2" {
		t.Error("expected g1.d1.x to be driven by g2.d2.y2")
	}
	g2x := root.FindVar("g2.d1.x")
	if g2x.Source() == nil || g2x.Source().Path() != "g1.d2.y2" {
		t.Error("expected g2.d1.x to be driven by g1.d2.y2")
	}
}
