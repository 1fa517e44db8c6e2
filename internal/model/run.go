package model

import "context"

// transferIn copies connected source values into this leaf's inputs,
// using the latest sibling values (Gauss-Seidel semantics).
func (n *Node) transferIn() {
	for _, v := range n.inputs {
		if v.src != nil {
			copy(v.Val, v.src.Val)
		}
	}
}

// Transfer refreshes inputs of every leaf under n from their sources.
func (n *Node) Transfer() {
	for _, leaf := range n.Leaves() {
		leaf.transferIn()
	}
}

// RunOnce executes the subtree once in declared order: explicit leaves
// compute, implicit leaves apply their local solve if they have one,
// and children with attached nonlinear solvers converge themselves.
func (n *Node) RunOnce(ctx context.Context) error {
	switch n.kind {
	case LeafExplicit:
		n.transferIn()
		n.computeFn(n.inVals, n.outVals)
	case LeafImplicit:
		n.transferIn()
		if n.solveFn != nil {
			if err := n.solveFn(n.inVals, n.outVals); err != nil {
				return &SolveError{Path: n.path, Solver: "local", Wrapped: err}
			}
		}
	case Composite:
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for _, c := range n.children {
			if c.Nonlinear != nil {
				if _, err := c.Nonlinear.Solve(ctx, c); err != nil {
					return err
				}
				continue
			}
			if err := c.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvalResidual writes the subtree residual into r (length n.Size()),
// transferring inputs as it sweeps. Explicit leaves contribute
// r = y - f(inputs); implicit leaves contribute R(inputs, states).
func (n *Node) EvalResidual(r Vector) {
	lo := n.off
	for _, leaf := range n.Leaves() {
		leaf.transferIn()
		switch leaf.kind {
		case LeafExplicit:
			leaf.computeFn(leaf.inVals, leaf.outScratch)
			for _, v := range leaf.outputs {
				f := leaf.outScratch[v.Name]
				base := v.off - lo
				for k := 0; k < v.Size; k++ {
					r[base+k] = v.Val[k] - f[k]
				}
			}
		case LeafImplicit:
			leaf.residualFn(leaf.inVals, leaf.outVals, leaf.resScratch)
			for _, v := range leaf.outputs {
				copy(r[v.off-lo:v.off-lo+v.Size], leaf.resScratch[v.Name])
			}
		}
	}
}

// GatherStates copies the subtree's output/state values into v.
func (n *Node) GatherStates(v Vector) {
	lo := n.off
	for _, leaf := range n.Leaves() {
		for _, out := range leaf.outputs {
			copy(v[out.off-lo:out.off-lo+out.Size], out.Val)
		}
	}
}

// ScatterStates copies v back into the subtree's output/state values.
func (n *Node) ScatterStates(v Vector) {
	lo := n.off
	for _, leaf := range n.Leaves() {
		for _, out := range leaf.outputs {
			copy(out.Val, v[out.off-lo:out.off-lo+out.Size])
		}
	}
}
