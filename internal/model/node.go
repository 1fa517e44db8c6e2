package model

import (
	"fmt"
	"strings"

	"github.com/san-kum/gradflow/internal/jacobian"
)

// Kind is the closed variant set for model nodes.
type Kind int

const (
	// LeafExplicit computes outputs directly: y = f(inputs).
	LeafExplicit Kind = iota
	// LeafImplicit defines states through residuals: R(inputs, states) = 0.
	LeafImplicit
	// Composite owns an ordered set of children and a connection map.
	Composite
)

func (k Kind) String() string {
	switch k {
	case LeafExplicit:
		return "explicit"
	case LeafImplicit:
		return "implicit"
	default:
		return "composite"
	}
}

// ApproxScheme selects how a leaf's partials are obtained.
type ApproxScheme int

const (
	ApproxNone ApproxScheme = iota // analytic callback
	ApproxFD                       // finite difference
	ApproxCS                       // complex step
)

func (s ApproxScheme) String() string {
	switch s {
	case ApproxFD:
		return "fd"
	case ApproxCS:
		return "cs"
	default:
		return "analytic"
	}
}

// Callback signatures supplied by the model-definition collaborator.
type (
	ComputeFunc   func(in, out Values)
	ResidualFunc  func(in, out, res Values)
	PartialsFunc  func(in, out Values, p *jacobian.Partials)
	SolveFunc     func(in, out Values) error
	ComputeCFunc  func(in, out ValuesC)
	ResidualCFunc func(in, out, res ValuesC)
)

type connection struct {
	src  string
	dsts []string
}

// Node is one unit of the model tree: an explicit leaf, an implicit
// leaf, or a composite of children. Structure is fixed by Finalize;
// values and jacobians mutate across solves.
type Node struct {
	name   string
	kind   Kind
	parent *Node
	root   *Node
	path   string

	children []*Node
	inputs   []*Variable
	outputs  []*Variable
	pending  []connection

	computeFn   ComputeFunc
	residualFn  ResidualFunc
	partialsFn  PartialsFunc
	solveFn     SolveFunc
	computeCFn  ComputeCFunc
	residualCFn ResidualCFunc

	approx     ApproxScheme
	fdStep     float64
	fdRelative bool
	csStep     float64

	partials   *jacobian.Partials
	approxBufs map[[2]string][]float64
	asmFormat  jacobian.Format
	asm        *jacobian.Assembled

	// Per-leaf scratch owned exclusively by this node, so sibling
	// evaluation is isolated and safe to parallelize externally.
	inVals      Values
	outVals     Values
	outScratch  Values
	resScratch  Values
	pertScratch Values

	off, size int
	finalized bool
	leafCache []*Node
	linEpoch  int // root only: bumped per linearization pass

	// Nonlinear and Linear are the solvers attached to this node. Nil
	// means the driving solver applies default behavior: a single
	// recursive sweep for nonlinear, a local diagonal-block solve for
	// linear.
	Nonlinear NonlinearSolver
	Linear    LinearSolver
}

// NewExplicit creates an explicit leaf with y = fn(inputs).
func NewExplicit(name string, inputs, outputs []*Variable, fn ComputeFunc) *Node {
	return &Node{
		name: name, kind: LeafExplicit,
		inputs: inputs, outputs: outputs,
		computeFn: fn,
		partials:  jacobian.NewPartials(),
		fdStep:    1e-6, csStep: 1e-30,
	}
}

// NewImplicit creates an implicit leaf with states defined by
// R(inputs, states) = 0.
func NewImplicit(name string, inputs, outputs []*Variable, fn ResidualFunc) *Node {
	n := NewExplicit(name, inputs, outputs, nil)
	n.kind = LeafImplicit
	n.residualFn = fn
	return n
}

// NewIndepVar creates an outputs-only explicit leaf holding independent
// values: the anchor for design variables. Its Jacobian row is the
// identity.
func NewIndepVar(name string, vars ...*Variable) *Node {
	n := NewExplicit(name, nil, vars, func(in, out Values) {
		for _, v := range vars {
			copy(out[v.Name], v.Val)
		}
	})
	return n
}

// NewComposite creates a composite node over ordered children.
func NewComposite(name string, children ...*Node) *Node {
	return &Node{name: name, kind: Composite, children: children}
}

// SetPartials attaches the analytic partial-derivative callback.
func (n *Node) SetPartials(fn PartialsFunc) { n.partialsFn = fn }

// SetSolve attaches a local nonlinear solve for an implicit leaf.
func (n *Node) SetSolve(fn SolveFunc) { n.solveFn = fn }

// SetComplex attaches the complex-arithmetic compute used by
// complex-step approximation. The callback must preserve analytic
// continuation: branch on real-part signs, never on magnitudes.
func (n *Node) SetComplex(fn ComputeCFunc) { n.computeCFn = fn }

// SetComplexResidual is the implicit-leaf analogue of SetComplex.
func (n *Node) SetComplexResidual(fn ResidualCFunc) { n.residualCFn = fn }

// UseFD switches the leaf to finite-difference partials with the given
// step, optionally scaled by the magnitude of the perturbed value.
func (n *Node) UseFD(step float64, relative bool) {
	n.approx = ApproxFD
	if step > 0 {
		n.fdStep = step
	}
	n.fdRelative = relative
}

// UseCS switches the leaf to complex-step partials.
func (n *Node) UseCS(step float64) {
	n.approx = ApproxCS
	if step > 0 {
		n.csStep = step
	}
}

// UseAnalytic switches the leaf back to its analytic partials
// callback.
func (n *Node) UseAnalytic() { n.approx = ApproxNone }

// HasAnalytic reports whether the leaf declares analytic partials.
func (n *Node) HasAnalytic() bool { return n.partialsFn != nil }

// HasComplex reports whether the leaf supplies a complex-arithmetic
// callback for complex-step differentiation.
func (n *Node) HasComplex() bool { return n.computeCFn != nil || n.residualCFn != nil }

// DeclareZero marks d(of)/d(wrt) structurally zero for this leaf.
func (n *Node) DeclareZero(of, wrt string) { n.partials.DeclareZero(of, wrt) }

// SetAssembledFormat opts this node into an assembled subtree Jacobian.
func (n *Node) SetAssembledFormat(f jacobian.Format) {
	n.asmFormat = f
	n.asm = nil
}

func (n *Node) Name() string                     { return n.name }
func (n *Node) Kind() Kind                       { return n.kind }
func (n *Node) Parent() *Node                    { return n.parent }
func (n *Node) Children() []*Node                { return n.children }
func (n *Node) Inputs() []*Variable              { return n.inputs }
func (n *Node) Outputs() []*Variable             { return n.outputs }
func (n *Node) IsLeaf() bool                     { return n.kind != Composite }
func (n *Node) Partials() *jacobian.Partials     { return n.partials }
func (n *Node) AssembledFormat() jacobian.Format { return n.asmFormat }
func (n *Node) Approx() ApproxScheme             { return n.approx }

// Size returns the subtree state-vector length; Offset its first index
// in the global ordering. Valid after Finalize.
func (n *Node) Size() int   { return n.size }
func (n *Node) Offset() int { return n.off }

// Path returns the dot-joined path from the root, which itself has the
// empty path.
func (n *Node) Path() string { return n.path }

// Root returns the tree root.
func (n *Node) Root() *Node {
	if n.root != nil {
		return n.root
	}
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Connect wires a source output to one or more target inputs, both
// given as paths relative to this composite. Resolution happens at
// Finalize.
func (n *Node) Connect(src string, dsts ...string) {
	n.pending = append(n.pending, connection{src: src, dsts: dsts})
}

// FindNode resolves a relative dot path to a descendant node, or nil.
func (n *Node) FindNode(path string) *Node {
	if path == "" {
		return n
	}
	cur := n
	for _, part := range strings.Split(path, ".") {
		var next *Node
		for _, c := range cur.children {
			if c.name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// FindVar resolves a relative dot path to a variable, or nil. The last
// segment names the variable; outputs shadow inputs.
func (n *Node) FindVar(path string) *Variable {
	i := strings.LastIndex(path, ".")
	node, name := n, path
	if i >= 0 {
		node = n.FindNode(path[:i])
		name = path[i+1:]
	}
	if node == nil {
		return nil
	}
	for _, v := range node.outputs {
		if v.Name == name {
			return v
		}
	}
	for _, v := range node.inputs {
		if v.Name == name {
			return v
		}
	}
	// Variable may live on a leaf child when the path omits it only in
	// flat lookups; no promotion resolution happens here.
	return nil
}

// Leaves returns the leaf nodes under n in state order.
func (n *Node) Leaves() []*Node {
	if n.leafCache != nil {
		return n.leafCache
	}
	if n.IsLeaf() {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.children {
		out = append(out, c.Leaves()...)
	}
	return out
}

func (n *Node) cacheLeaves() []*Node {
	if n.IsLeaf() {
		n.leafCache = []*Node{n}
	} else {
		n.leafCache = nil
		for _, c := range n.children {
			n.leafCache = append(n.leafCache, c.cacheLeaves()...)
		}
	}
	return n.leafCache
}

// Finalize freezes the tree structure: paths, kind checks, the global
// state ordering, and connection resolution. Must be called on the
// root, exactly once, before any solve.
func (n *Node) Finalize() error {
	if n.parent != nil {
		return fmt.Errorf("%w: Finalize must be called on the root, not %q", ErrConfiguration, n.name)
	}
	if n.finalized {
		return nil
	}
	if err := n.wire(nil, ""); err != nil {
		return err
	}
	n.cacheLeaves()
	off := 0
	for _, leaf := range n.Leaves() {
		leaf.off = off
		for _, v := range leaf.outputs {
			v.off = off
			off += v.Size
		}
		leaf.size = off - leaf.off
		leaf.initScratch()
	}
	n.sizeComposites()
	if err := n.resolveConnections(); err != nil {
		return err
	}
	n.finalized = true
	return nil
}

func (n *Node) wire(parent *Node, prefix string) error {
	n.parent = parent
	if parent == nil {
		n.root = n
		n.path = ""
	} else {
		n.root = parent.root
		n.path = prefix + n.name
	}
	switch n.kind {
	case LeafExplicit:
		if n.computeFn == nil {
			return fmt.Errorf("%w: explicit leaf %q has no compute callback", ErrConfiguration, n.path)
		}
	case LeafImplicit:
		if n.residualFn == nil {
			return fmt.Errorf("%w: implicit leaf %q has no residual callback", ErrConfiguration, n.path)
		}
	case Composite:
		if len(n.children) == 0 {
			return fmt.Errorf("%w: composite %q has no children", ErrConfiguration, n.path)
		}
	}
	if n.IsLeaf() && len(n.outputs) == 0 {
		return fmt.Errorf("%w: leaf %q has no outputs", ErrConfiguration, n.path)
	}
	seen := make(map[string]bool)
	for _, c := range n.children {
		if seen[c.name] {
			return fmt.Errorf("%w: duplicate child name %q under %q", ErrConfiguration, c.name, n.path)
		}
		seen[c.name] = true
		childPrefix := n.path + "."
		if parent == nil {
			childPrefix = ""
		}
		if err := c.wire(n, childPrefix); err != nil {
			return err
		}
	}
	for _, v := range n.inputs {
		v.owner = n
	}
	for _, v := range n.outputs {
		v.owner = n
	}
	return nil
}

func (n *Node) sizeComposites() {
	if n.IsLeaf() {
		return
	}
	for _, c := range n.children {
		c.sizeComposites()
	}
	n.off = n.children[0].off
	last := n.children[len(n.children)-1]
	n.size = last.off + last.size - n.off
}

func (n *Node) resolveConnections() error {
	for _, conn := range n.pending {
		src := n.FindVar(conn.src)
		if src == nil {
			return fmt.Errorf("%w: unknown connection source %q under %q", ErrConfiguration, conn.src, n.path)
		}
		if src.off < 0 {
			return fmt.Errorf("%w: connection source %q is not an output", ErrConfiguration, src.Path())
		}
		for _, d := range conn.dsts {
			dst := n.FindVar(d)
			if dst == nil {
				return fmt.Errorf("%w: unknown connection target %q under %q", ErrConfiguration, d, n.path)
			}
			if dst.off >= 0 {
				return fmt.Errorf("%w: connection target %q is an output", ErrConfiguration, dst.Path())
			}
			if dst.src != nil {
				return fmt.Errorf("%w: input %q already has a source", ErrConfiguration, dst.Path())
			}
			if dst.Size != src.Size {
				return fmt.Errorf("%w: connection %q -> %q has mismatched sizes %d and %d",
					ErrConfiguration, src.Path(), dst.Path(), src.Size, dst.Size)
			}
			dst.src = src
		}
	}
	for _, c := range n.children {
		if err := c.resolveConnections(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) initScratch() {
	n.inVals = make(Values, len(n.inputs))
	for _, v := range n.inputs {
		n.inVals[v.Name] = v.Val
	}
	n.outVals = make(Values, len(n.outputs))
	n.outScratch = make(Values, len(n.outputs))
	n.resScratch = make(Values, len(n.outputs))
	n.pertScratch = make(Values, len(n.outputs))
	for _, v := range n.outputs {
		n.outVals[v.Name] = v.Val
		n.outScratch[v.Name] = make(Vector, v.Size)
		n.resScratch[v.Name] = make(Vector, v.Size)
		n.pertScratch[v.Name] = make(Vector, v.Size)
	}
}
