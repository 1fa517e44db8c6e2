package model

// Variable is a named numeric buffer owned by exactly one leaf node.
// Outputs (and implicit states) occupy a slice of the global state
// ordering once the tree is finalized; inputs either track a connected
// source output or hold free values.
type Variable struct {
	Name string
	Size int
	Val  Vector

	owner *Node
	src   *Variable
	off   int
}

// NewVar creates a variable of the given size, zero-initialized.
func NewVar(name string, size int) *Variable {
	return &Variable{Name: name, Size: size, Val: make(Vector, size), off: -1}
}

// NewVarVal creates a variable initialized with the given values.
func NewVarVal(name string, vals ...float64) *Variable {
	v := NewVar(name, len(vals))
	copy(v.Val, vals)
	return v
}

// Set overwrites the variable's values.
func (v *Variable) Set(vals ...float64) {
	copy(v.Val, vals)
}

// Scalar returns the first component.
func (v *Variable) Scalar() float64 { return v.Val[0] }

// Owner returns the leaf node that owns this variable.
func (v *Variable) Owner() *Node { return v.owner }

// Source returns the connected source output, or nil for free inputs
// and for outputs.
func (v *Variable) Source() *Variable { return v.src }

// Offset returns the variable's position in the global state ordering;
// -1 for inputs.
func (v *Variable) Offset() int { return v.off }

// Path returns "<owner path>.<name>".
func (v *Variable) Path() string {
	if v.owner == nil || v.owner.Path() == "" {
		return v.Name
	}
	return v.owner.Path() + "." + v.Name
}

// Values is a named view over variable buffers handed to compute and
// residual callbacks. The slices alias the variables' storage.
type Values map[string]Vector

// ValuesC is the complex-arithmetic analogue used by complex-step
// evaluation.
type ValuesC map[string][]complex128
