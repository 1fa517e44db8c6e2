package jacobian

import (
	"fmt"
	"math"
	"sort"
)

// csrMatrix is the compressed-sparse-row pattern for one Assembled
// matrix. Values stay in the owner's coordinate slice; perm maps each
// CSR position back to its coordinate slot so pattern and values can
// refresh independently.
type csrMatrix struct {
	n      int
	indptr []int
	indice []int
	perm   []int
}

func newCSR(n int, rows, cols []int) *csrMatrix {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if rows[ka] != rows[kb] {
			return rows[ka] < rows[kb]
		}
		return cols[ka] < cols[kb]
	})
	c := &csrMatrix{
		n:      n,
		indptr: make([]int, n+1),
		indice: make([]int, len(order)),
		perm:   order,
	}
	for i, k := range order {
		c.indice[i] = cols[k]
		c.indptr[rows[k]+1]++
	}
	for i := 0; i < n; i++ {
		c.indptr[i+1] += c.indptr[i]
	}
	return c
}

func (c *csrMatrix) matVec(vals []float64, transpose bool, v, out []float64) {
	for i := 0; i < c.n; i++ {
		for p := c.indptr[i]; p < c.indptr[i+1]; p++ {
			val := vals[c.perm[p]]
			if transpose {
				out[c.indice[p]] += val * v[i]
			} else {
				out[i] += val * v[c.indice[p]]
			}
		}
	}
}

// sparseLU holds factors from row-map Gaussian elimination with partial
// pivoting: PA = LU, rows stored as column->value maps with L
// multipliers below the diagonal and U on and above it.
type sparseLU struct {
	n    int
	rows []map[int]float64
	p    []int // p[i] = source row of permuted row i
}

const pivotTol = 1e-13

func factorizeSparse(n int, rows, cols []int, vals []float64) (*sparseLU, error) {
	work := make([]map[int]float64, n)
	for i := range work {
		work[i] = make(map[int]float64, 4)
	}
	scale := 0.0
	for k := range vals {
		work[rows[k]][cols[k]] += vals[k]
		if a := math.Abs(vals[k]); a > scale {
			scale = a
		}
	}
	if scale == 0 {
		scale = 1
	}
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for k := 0; k < n; k++ {
		// Partial pivoting on column k.
		piv, pmax := -1, pivotTol*scale
		for i := k; i < n; i++ {
			if a := math.Abs(work[i][k]); a > pmax {
				piv, pmax = i, a
			}
		}
		if piv < 0 {
			return nil, fmt.Errorf("%w: zero pivot in column %d", ErrSingular, k)
		}
		work[k], work[piv] = work[piv], work[k]
		p[k], p[piv] = p[piv], p[k]
		akk := work[k][k]
		for i := k + 1; i < n; i++ {
			aik, ok := work[i][k]
			if !ok || aik == 0 {
				continue
			}
			m := aik / akk
			work[i][k] = m
			for j, akj := range work[k] {
				if j <= k {
					continue
				}
				work[i][j] -= m * akj
			}
		}
	}
	return &sparseLU{n: n, rows: work, p: p}, nil
}

// solve computes x = A⁻¹b, or x = A⁻ᵀb with transpose set.
//
// With PA = LU: forward is Ly = Pb then Ux = y. Transpose uses
// Aᵀ = UᵀLᵀP, so Uᵀy = b (forward sub), Lᵀw = y (back sub), x = Pᵀw.
func (f *sparseLU) solve(transpose bool, b, x []float64) error {
	n := f.n
	y := make([]float64, n)
	if !transpose {
		for i := 0; i < n; i++ {
			s := b[f.p[i]]
			for j, v := range f.rows[i] {
				if j < i {
					s -= v * y[j]
				}
			}
			y[i] = s
		}
		for i := n - 1; i >= 0; i-- {
			s := y[i]
			for j, v := range f.rows[i] {
				if j > i {
					s -= v * x[j]
				}
			}
			x[i] = s / f.rows[i][i]
		}
		return nil
	}
	// Uᵀ forward substitution: column i of U is row entries j<=i of
	// permuted rows, i.e. Uᵀ[i][j] = U[j][i] for j <= i.
	for i := 0; i < n; i++ {
		s := b[i]
		for j := 0; j < i; j++ {
			if v, ok := f.rows[j][i]; ok {
				s -= v * y[j]
			}
		}
		y[i] = s / f.rows[i][i]
	}
	w := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		s := y[i]
		for j := i + 1; j < n; j++ {
			if v, ok := f.rows[j][i]; ok {
				s -= v * w[j]
			}
		}
		w[i] = s
	}
	for i := 0; i < n; i++ {
		x[f.p[i]] = w[i]
	}
	return nil
}
