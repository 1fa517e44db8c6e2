package model

import (
	"fmt"

	"github.com/san-kum/gradflow/internal/jacobian"
)

// ApplyLinear computes out = J*d (Forward) or out = Jᵀ*d (Reverse),
// where J is the residual Jacobian over this subtree's states at the
// current linearization. Connections whose source lies outside the
// subtree contribute nothing: an ancestor owns those couplings.
//
// Explicit leaves contribute rows of I - ∂f/∂(source); implicit leaves
// rows of ∂R/∂(state|source). The product needs no assembled matrix,
// so any ancestor can treat this subtree as a matvec oracle.
func (n *Node) ApplyLinear(mode Mode, d, out Vector) {
	out.Zero()
	lo, hi := n.off, n.off+n.size
	for _, leaf := range n.Leaves() {
		if leaf.kind == LeafExplicit {
			for _, y := range leaf.outputs {
				ly := y.off - lo
				for k := 0; k < y.Size; k++ {
					out[ly+k] += d[ly+k]
				}
			}
			for _, u := range leaf.inputs {
				s := u.src
				if s == nil || s.off < lo || s.off >= hi {
					continue
				}
				for _, y := range leaf.outputs {
					b, ok := leaf.partials.Block(y.Name, u.Name)
					if !ok {
						continue
					}
					addBlock(mode, b, y.off-lo, s.off-lo, -1, d, out)
				}
			}
			continue
		}
		for _, y := range leaf.outputs {
			ly := y.off - lo
			for _, w := range leaf.outputs {
				if b, ok := leaf.partials.Block(y.Name, w.Name); ok {
					addBlock(mode, b, ly, w.off-lo, 1, d, out)
				}
			}
			for _, u := range leaf.inputs {
				s := u.src
				if s == nil || s.off < lo || s.off >= hi {
					continue
				}
				if b, ok := leaf.partials.Block(y.Name, u.Name); ok {
					addBlock(mode, b, ly, s.off-lo, 1, d, out)
				}
			}
		}
	}
}

func addBlock(mode Mode, b *jacobian.Block, row, col int, sign float64, d, out Vector) {
	for i := 0; i < b.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			v := sign * b.At(i, j)
			if mode == Forward {
				out[row+i] += v * d[col+j]
			} else {
				out[col+j] += v * d[row+i]
			}
		}
	}
}

// RefreshAssembled builds or value-refreshes this node's assembled
// subtree Jacobian. The sparsity structure is built once and reused;
// only values change between linearizations.
func (n *Node) RefreshAssembled() (*jacobian.Assembled, error) {
	if n.asmFormat == jacobian.FormatNone {
		return nil, fmt.Errorf("%w: node %q has no assembled jacobian format", ErrConfiguration, n.path)
	}
	epoch := n.LinEpoch()
	if n.asm != nil && n.asm.ValueEpoch == epoch {
		return n.asm, nil
	}
	if n.asm == nil {
		n.asm = jacobian.NewAssembled(n.size, n.asmFormat)
		n.asm.ValueEpoch = -1
	}
	n.asm.Reset()
	lo, hi := n.off, n.off+n.size
	for _, leaf := range n.Leaves() {
		if leaf.kind == LeafExplicit {
			for _, y := range leaf.outputs {
				ly := y.off - lo
				for k := 0; k < y.Size; k++ {
					n.asm.Add(ly+k, ly+k, 1)
				}
			}
			for _, u := range leaf.inputs {
				s := u.src
				if s == nil || s.off < lo || s.off >= hi {
					continue
				}
				for _, y := range leaf.outputs {
					if b, ok := leaf.partials.Block(y.Name, u.Name); ok {
						asmBlock(n.asm, b, y.off-lo, s.off-lo, -1)
					}
				}
			}
			continue
		}
		for _, y := range leaf.outputs {
			ly := y.off - lo
			for _, w := range leaf.outputs {
				if b, ok := leaf.partials.Block(y.Name, w.Name); ok {
					asmBlock(n.asm, b, ly, w.off-lo, 1)
				}
			}
			for _, u := range leaf.inputs {
				s := u.src
				if s == nil || s.off < lo || s.off >= hi {
					continue
				}
				if b, ok := leaf.partials.Block(y.Name, u.Name); ok {
					asmBlock(n.asm, b, ly, s.off-lo, 1)
				}
			}
		}
	}
	n.asm.Freeze()
	n.asm.ValueEpoch = epoch
	return n.asm, nil
}

func asmBlock(a *jacobian.Assembled, b *jacobian.Block, row, col int, sign float64) {
	for i := 0; i < b.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			a.Add(row+i, col+j, sign*b.At(i, j))
		}
	}
}

// Assembled returns the cached assembled Jacobian, or nil.
func (n *Node) Assembled() *jacobian.Assembled { return n.asm }
