package jacobian

import (
	"testing"
)

func TestSetAndBlock(t *testing.T) {
	p := NewPartials()

	if err := p.Set("y", "x", 2, 3, []float64{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, ok := p.Block("y", "x")
	if !ok {
		t.Fatal("expected block, got none")
	}
	if b.Rows != 2 || b.Cols != 3 {
		t.Errorf("expected 2x3, got %dx%d", b.Rows, b.Cols)
	}
	if b.At(1, 2) != 6 {
		t.Errorf("expected entry 6, got %f", b.At(1, 2))
	}
}

func TestSetCopiesData(t *testing.T) {
	p := NewPartials()
	data := []float64{1, 2}
	p.Set("y", "x", 1, 2, data)

	data[0] = 99
	b, _ := p.Block("y", "x")
	if b.At(0, 0) != 1 {
		t.Errorf("block aliased caller data: got %f", b.At(0, 0))
	}
}

func TestSetWrongLength(t *testing.T) {
	p := NewPartials()
	if err := p.Set("y", "x", 2, 2, []float64{1, 2, 3}); err == nil {
		t.Error("expected error for mismatched data length")
	}
}

func TestRedeclareDifferentShape(t *testing.T) {
	p := NewPartials()
	p.Set("y", "x", 1, 2, []float64{1, 2})
	if err := p.Set("y", "x", 2, 1, []float64{1, 2}); err == nil {
		t.Error("expected error for redeclared dimensions")
	}
}

func TestRedeclareSameShapeReuses(t *testing.T) {
	p := NewPartials()
	p.Set("y", "x", 1, 2, []float64{1, 2})
	b1, _ := p.Block("y", "x")
	p.Set("y", "x", 1, 2, []float64{3, 4})
	b2, _ := p.Block("y", "x")

	if b1 != b2 {
		t.Error("expected block buffer to be reused")
	}
	if b2.At(0, 1) != 4 {
		t.Errorf("expected updated value 4, got %f", b2.At(0, 1))
	}
}

func TestDeclareZero(t *testing.T) {
	p := NewPartials()
	p.DeclareZero("y", "x")

	if !p.IsZero("y", "x") {
		t.Error("expected (y, x) to be structurally zero")
	}
	if _, ok := p.Block("y", "x"); ok {
		t.Error("structural zero should not be returned as a block")
	}
	if len(p.Keys()) != 1 {
		t.Errorf("expected 1 declared key, got %d", len(p.Keys()))
	}
}

func TestKeysDeclarationOrder(t *testing.T) {
	p := NewPartials()
	p.SetScalar("a", "x", 1)
	p.SetScalar("b", "x", 2)
	p.SetScalar("a", "z", 3)

	keys := p.Keys()
	want := [][2]string{{"a", "x"}, {"b", "x"}, {"a", "z"}}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d: expected %v, got %v", i, k, keys[i])
		}
	}
}
