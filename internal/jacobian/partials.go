package jacobian

import "fmt"

// Block is one dense derivative sub-matrix d(of)/d(wrt), row-major.
type Block struct {
	Rows, Cols int
	Data       []float64
	Zero       bool // declared structurally zero
	Approx     bool // filled by FD/complex-step rather than analytically
}

// At returns the entry at (i, j).
func (b *Block) At(i, j int) float64 {
	return b.Data[i*b.Cols+j]
}

// Partials holds one node's derivative blocks keyed by (of, wrt)
// variable name. Blocks keep their backing buffers across refreshes so
// repeated linearization does not allocate.
type Partials struct {
	blocks map[[2]string]*Block
	keys   [][2]string
}

func NewPartials() *Partials {
	return &Partials{blocks: make(map[[2]string]*Block)}
}

// Set stores a rows x cols block for d(of)/d(wrt), copying data.
// Re-declaring an existing block with different dimensions is an error.
func (p *Partials) Set(of, wrt string, rows, cols int, data []float64) error {
	if len(data) != rows*cols {
		return fmt.Errorf("jacobian: block (%s, %s) has %d values, want %dx%d", of, wrt, len(data), rows, cols)
	}
	key := [2]string{of, wrt}
	b, ok := p.blocks[key]
	if !ok {
		b = &Block{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
		p.blocks[key] = b
		p.keys = append(p.keys, key)
	} else if b.Rows != rows || b.Cols != cols {
		return fmt.Errorf("jacobian: block (%s, %s) redeclared as %dx%d, was %dx%d", of, wrt, rows, cols, b.Rows, b.Cols)
	}
	copy(b.Data, data)
	b.Zero = false
	b.Approx = false
	return nil
}

// SetScalar stores a 1x1 block.
func (p *Partials) SetScalar(of, wrt string, v float64) error {
	return p.Set(of, wrt, 1, 1, []float64{v})
}

// DeclareZero marks d(of)/d(wrt) structurally zero so approximation
// schemes skip it entirely.
func (p *Partials) DeclareZero(of, wrt string) {
	key := [2]string{of, wrt}
	if _, ok := p.blocks[key]; !ok {
		p.blocks[key] = &Block{Zero: true}
		p.keys = append(p.keys, key)
	} else {
		p.blocks[key].Zero = true
	}
}

// Block returns the stored block for (of, wrt), if any. Structural
// zeros report ok=false so callers can skip them uniformly with
// never-declared pairs.
func (p *Partials) Block(of, wrt string) (*Block, bool) {
	b, ok := p.blocks[[2]string{of, wrt}]
	if !ok || b.Zero {
		return nil, false
	}
	return b, true
}

// IsZero reports whether (of, wrt) was declared structurally zero.
func (p *Partials) IsZero(of, wrt string) bool {
	b, ok := p.blocks[[2]string{of, wrt}]
	return ok && b.Zero
}

// Keys returns the declared (of, wrt) pairs in declaration order.
func (p *Partials) Keys() [][2]string {
	return p.keys
}

// MarkApprox tags (of, wrt) as filled by an approximation scheme.
func (p *Partials) MarkApprox(of, wrt string) {
	if b, ok := p.blocks[[2]string{of, wrt}]; ok {
		b.Approx = true
	}
}
