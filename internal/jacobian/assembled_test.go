package jacobian

import (
	"errors"
	"math"
	"testing"
)

// 4x4 test matrix with an asymmetric pattern and a zero diagonal
// entry, so pivoting actually matters.
func buildTestMatrix(format Format) *Assembled {
	a := NewAssembled(4, format)
	entries := [][3]float64{
		{0, 1, 2}, {0, 3, 1},
		{1, 0, 3}, {1, 1, -1},
		{2, 2, 4}, {2, 0, 1},
		{3, 3, 2}, {3, 1, 5},
	}
	for _, e := range entries {
		a.Add(int(e[0]), int(e[1]), e[2])
	}
	a.Freeze()
	return a
}

func TestMatVec(t *testing.T) {
	for _, format := range []Format{FormatDense, FormatSparse} {
		a := buildTestMatrix(format)
		v := []float64{1, 2, 3, 4}
		out := make([]float64, 4)

		a.MatVec(false, v, out)
		want := []float64{8, 1, 13, 18}
		for i := range want {
			if math.Abs(out[i]-want[i]) > 1e-14 {
				t.Errorf("%s matvec[%d]: expected %f, got %f", format, i, want[i], out[i])
			}
		}

		a.MatVec(true, v, out)
		wantT := []float64{9, 20, 12, 9}
		for i := range wantT {
			if math.Abs(out[i]-wantT[i]) > 1e-14 {
				t.Errorf("%s matvec^T[%d]: expected %f, got %f", format, i, wantT[i], out[i])
			}
		}
	}
}

func TestSolveDenseVsSparse(t *testing.T) {
	dense := buildTestMatrix(FormatDense)
	sparse := buildTestMatrix(FormatSparse)
	b := []float64{1, -2, 0.5, 3}

	xd := make([]float64, 4)
	xs := make([]float64, 4)
	if err := dense.Solve(false, b, xd); err != nil {
		t.Fatalf("dense solve failed: %v", err)
	}
	if err := sparse.Solve(false, b, xs); err != nil {
		t.Fatalf("sparse solve failed: %v", err)
	}
	for i := range xd {
		if math.Abs(xd[i]-xs[i]) > 1e-10 {
			t.Errorf("x[%d]: dense %g vs sparse %g", i, xd[i], xs[i])
		}
	}

	// A x should reproduce b.
	check := make([]float64, 4)
	sparse.MatVec(false, xs, check)
	for i := range b {
		if math.Abs(check[i]-b[i]) > 1e-10 {
			t.Errorf("residual[%d]: expected %f, got %f", i, b[i], check[i])
		}
	}
}

func TestSolveTranspose(t *testing.T) {
	for _, format := range []Format{FormatDense, FormatSparse} {
		a := buildTestMatrix(format)
		b := []float64{2, 1, -1, 0.25}
		x := make([]float64, 4)
		if err := a.Solve(true, b, x); err != nil {
			t.Fatalf("%s transpose solve failed: %v", format, err)
		}
		check := make([]float64, 4)
		a.MatVec(true, x, check)
		for i := range b {
			if math.Abs(check[i]-b[i]) > 1e-10 {
				t.Errorf("%s A^T residual[%d]: expected %f, got %f", format, i, b[i], check[i])
			}
		}
	}
}

func TestValueRefreshKeepsStructure(t *testing.T) {
	a := buildTestMatrix(FormatSparse)
	b := []float64{1, 1, 1, 1}
	x1 := make([]float64, 4)
	if err := a.Solve(false, b, x1); err != nil {
		t.Fatalf("first solve failed: %v", err)
	}

	// Refresh the same pattern with scaled values.
	a.Reset()
	entries := [][3]float64{
		{0, 1, 4}, {0, 3, 2},
		{1, 0, 6}, {1, 1, -2},
		{2, 2, 8}, {2, 0, 2},
		{3, 3, 4}, {3, 1, 10},
	}
	for _, e := range entries {
		a.Add(int(e[0]), int(e[1]), e[2])
	}
	x2 := make([]float64, 4)
	if err := a.Solve(false, b, x2); err != nil {
		t.Fatalf("refreshed solve failed: %v", err)
	}
	// 2A x = b implies x = x1/2.
	for i := range x1 {
		if math.Abs(x2[i]-x1[i]/2) > 1e-10 {
			t.Errorf("x[%d]: expected %g, got %g", i, x1[i]/2, x2[i])
		}
	}
}

func TestSparseSingular(t *testing.T) {
	a := NewAssembled(2, FormatSparse)
	a.Add(0, 0, 1)
	a.Add(0, 1, 2)
	a.Add(1, 0, 2)
	a.Add(1, 1, 4)
	a.Freeze()

	x := make([]float64, 2)
	err := a.Solve(false, []float64{1, 1}, x)
	if !errors.Is(err, ErrSingular) {
		t.Errorf("expected ErrSingular, got %v", err)
	}
}

func TestAccumulateDuplicateEntries(t *testing.T) {
	a := NewAssembled(1, FormatDense)
	a.Add(0, 0, 1.5)
	a.Add(0, 0, 0.5)
	a.Freeze()

	out := make([]float64, 1)
	a.MatVec(false, []float64{2}, out)
	if math.Abs(out[0]-4) > 1e-14 {
		t.Errorf("expected accumulated 4, got %f", out[0])
	}
}
