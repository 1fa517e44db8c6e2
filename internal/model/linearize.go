package model

import (
	"fmt"
	"math"
)

// Linearize refreshes the partial blocks of every leaf under n at the
// current variable values, transferring inputs first. Leaves with an
// analytic callback use it; everything else falls back to the leaf's
// configured approximation scheme (finite difference by default).
func (n *Node) Linearize() error {
	root := n.Root()
	if !root.finalized {
		return ErrNotFinalized
	}
	for _, leaf := range n.Leaves() {
		leaf.transferIn()
		var err error
		switch {
		case leaf.approx == ApproxCS:
			err = leaf.linearizeCS()
		case leaf.approx == ApproxFD || leaf.partialsFn == nil:
			err = leaf.linearizeFD()
		default:
			err = leaf.linearizeAnalytic()
		}
		if err != nil {
			return err
		}
	}
	root.linEpoch++
	return nil
}

// LinEpoch identifies the most recent linearization pass; assembled
// jacobians use it to skip redundant value refreshes.
func (n *Node) LinEpoch() int { return n.Root().linEpoch }

// wrtVars lists the variables a leaf's partials may be taken with
// respect to: inputs, plus the leaf's own states for implicit leaves.
func (n *Node) wrtVars() []*Variable {
	if n.kind == LeafImplicit {
		return append(append([]*Variable{}, n.inputs...), n.outputs...)
	}
	return n.inputs
}

func (n *Node) linearizeAnalytic() error {
	n.partialsFn(n.inVals, n.outVals, n.partials)
	for _, key := range n.partials.Keys() {
		b, ok := n.partials.Block(key[0], key[1])
		if !ok {
			continue
		}
		of := n.findLocal(n.outputs, key[0])
		wrt := n.findLocal(n.wrtVars(), key[1])
		if of == nil || wrt == nil {
			return fmt.Errorf("%w: leaf %q declared partial (%s, %s) over unknown variables",
				ErrConfiguration, n.path, key[0], key[1])
		}
		if b.Rows != of.Size || b.Cols != wrt.Size {
			return fmt.Errorf("%w: leaf %q partial (%s, %s) is %dx%d, want %dx%d",
				ErrConfiguration, n.path, key[0], key[1], b.Rows, b.Cols, of.Size, wrt.Size)
		}
	}
	return nil
}

func (n *Node) findLocal(vars []*Variable, name string) *Variable {
	for _, v := range vars {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// evalForApprox runs the leaf's value callback into dst without
// touching the stored outputs.
func (n *Node) evalForApprox(dst Values) {
	if n.kind == LeafImplicit {
		n.residualFn(n.inVals, n.outVals, dst)
	} else {
		n.computeFn(n.inVals, dst)
	}
}

func (n *Node) linearizeFD() error {
	n.evalForApprox(n.resScratch)
	for _, wrt := range n.wrtVars() {
		for j := 0; j < wrt.Size; j++ {
			save := wrt.Val[j]
			h := n.fdStep
			if n.fdRelative && save != 0 {
				h = n.fdStep * math.Abs(save)
			}
			ok := n.fdColumn(wrt, j, save, h)
			if !ok {
				// Step-size retry before surfacing the warning.
				Warn(DiagNumerical, n.path,
					"finite-difference of %q column %d produced NaN/Inf at h=%.2e, retrying", wrt.Name, j, h)
				if !n.fdColumn(wrt, j, save, h*10) {
					Warn(DiagNumerical, n.path,
						"finite-difference of %q column %d still invalid at h=%.2e", wrt.Name, j, h*10)
				}
			}
		}
	}
	return n.storeApproxColumns()
}

// fdColumn perturbs one scalar, re-evaluates, and stashes the divided
// difference into the approx column buffers. Reports false on NaN/Inf.
func (n *Node) fdColumn(wrt *Variable, j int, save, h float64) bool {
	wrt.Val[j] = save + h
	n.evalForApprox(n.pertScratch)
	wrt.Val[j] = save
	valid := true
	for _, of := range n.outputs {
		base := n.resScratch[of.Name]
		pert := n.pertScratch[of.Name]
		col := n.approxCol(of, wrt)
		for i := 0; i < of.Size; i++ {
			d := (pert[i] - base[i]) / h
			if math.IsNaN(d) || math.IsInf(d, 0) {
				valid = false
			}
			col[i*wrt.Size+j] = d
		}
	}
	return valid
}

func (n *Node) linearizeCS() error {
	if n.kind == LeafImplicit && n.residualCFn == nil || n.kind == LeafExplicit && n.computeCFn == nil {
		return fmt.Errorf("%w: leaf %q uses complex-step but has no complex callback", ErrConfiguration, n.path)
	}
	cin := make(ValuesC, len(n.inputs))
	for _, v := range n.inputs {
		cin[v.Name] = complexify(v.Val)
	}
	cout := make(ValuesC, len(n.outputs))
	cres := make(ValuesC, len(n.outputs))
	for _, v := range n.outputs {
		cout[v.Name] = complexify(v.Val)
		cres[v.Name] = make([]complex128, v.Size)
	}
	h := n.csStep
	for _, wrt := range n.wrtVars() {
		buf := cin[wrt.Name]
		if n.kind == LeafImplicit {
			if b, ok := cout[wrt.Name]; wrt.off >= 0 && ok {
				buf = b
			}
		}
		for j := 0; j < wrt.Size; j++ {
			buf[j] += complex(0, h)
			if n.kind == LeafImplicit {
				n.residualCFn(cin, cout, cres)
			} else {
				n.computeCFn(cin, cres)
			}
			buf[j] = complex(real(buf[j]), 0)
			for _, of := range n.outputs {
				col := n.approxCol(of, wrt)
				res := cres[of.Name]
				for i := 0; i < of.Size; i++ {
					col[i*wrt.Size+j] = imag(res[i]) / h
				}
			}
		}
	}
	return n.storeApproxColumns()
}

func complexify(v Vector) []complex128 {
	c := make([]complex128, len(v))
	for i, x := range v {
		c[i] = complex(x, 0)
	}
	return c
}

// approxCol returns (allocating on first use) the row-major accumulation
// buffer for the (of, wrt) approximated block.
func (n *Node) approxCol(of, wrt *Variable) []float64 {
	if n.approxBufs == nil {
		n.approxBufs = make(map[[2]string][]float64)
	}
	key := [2]string{of.Name, wrt.Name}
	buf, ok := n.approxBufs[key]
	if !ok {
		buf = make([]float64, of.Size*wrt.Size)
		n.approxBufs[key] = buf
	}
	return buf
}

// storeApproxColumns moves the accumulated buffers into the partials
// store, skipping declared structural zeros.
func (n *Node) storeApproxColumns() error {
	for _, of := range n.outputs {
		for _, wrt := range n.wrtVars() {
			if n.partials.IsZero(of.Name, wrt.Name) {
				continue
			}
			key := [2]string{of.Name, wrt.Name}
			buf, ok := n.approxBufs[key]
			if !ok {
				continue
			}
			if err := n.partials.Set(of.Name, wrt.Name, of.Size, wrt.Size, buf); err != nil {
				return fmt.Errorf("leaf %q: %w", n.path, err)
			}
			n.partials.MarkApprox(of.Name, wrt.Name)
		}
	}
	return nil
}
