package driver

import (
	"math"

	"github.com/san-kum/gradflow/internal/model"
)

// PartialCheck compares one analytic partial block against a
// perturbation reference.
type PartialCheck struct {
	Path      string
	Of, Wrt   string
	Scheme    model.ApproxScheme
	MaxAbsErr float64
}

// CheckPartials re-linearizes every leaf that declares analytic
// partials with a perturbation reference (complex-step when the leaf
// has a complex callback, finite difference otherwise) and reports the
// worst entry disagreement per block. The tree's values and approx
// scheme are left as found.
func CheckPartials(root *model.Node, fdStep float64) ([]PartialCheck, error) {
	if fdStep <= 0 {
		fdStep = 1e-6
	}
	var checks []PartialCheck
	for _, leaf := range root.Leaves() {
		if leaf.Approx() != model.ApproxNone || !leaf.HasAnalytic() {
			continue // nothing analytic to check against
		}
		if err := leaf.Linearize(); err != nil {
			return nil, err
		}
		analytic := snapshotBlocks(leaf)
		if len(analytic) == 0 {
			continue
		}

		refScheme := model.ApproxFD
		if leaf.HasComplex() {
			leaf.UseCS(0)
			refScheme = model.ApproxCS
		} else {
			leaf.UseFD(fdStep, false)
		}
		err := leaf.Linearize()
		leaf.UseAnalytic()
		if err != nil {
			return nil, err
		}

		for key, vals := range analytic {
			ref, ok := leaf.Partials().Block(key[0], key[1])
			check := PartialCheck{Path: leaf.Path(), Of: key[0], Wrt: key[1], Scheme: refScheme}
			for i, v := range vals {
				var d float64
				if ok {
					d = math.Abs(v - ref.Data[i])
				} else {
					d = math.Abs(v)
				}
				if d > check.MaxAbsErr {
					check.MaxAbsErr = d
				}
			}
			checks = append(checks, check)
		}
		// Restore analytic values for any later solve.
		if err := leaf.Linearize(); err != nil {
			return nil, err
		}
	}
	return checks, nil
}

func snapshotBlocks(leaf *model.Node) map[[2]string][]float64 {
	out := make(map[[2]string][]float64)
	for _, key := range leaf.Partials().Keys() {
		if b, ok := leaf.Partials().Block(key[0], key[1]); ok {
			out[key] = append([]float64(nil), b.Data...)
		}
	}
	return out
}
