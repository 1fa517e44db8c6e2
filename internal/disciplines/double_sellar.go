package disciplines

import "github.com/san-kum/gradflow/internal/model"

// NewSubSellar builds one Sellar coupling pair as a named group. The
// group's x input is left unconnected so a parent can drive it.
func NewSubSellar(name string, variant Variant) *model.Node {
	g := model.NewComposite(name, NewDis1(variant), NewDis2(variant))
	g.Connect("d1.y1", "d2.y1")
	g.Connect("d2.y2", "d1.y2")
	return g
}

// NewDoubleSellar cross-couples two Sellar groups: each group's y2
// drives the other group's x, creating an outer cycle around the two
// inner cycles. Used to exercise mixed solver hierarchies.
func NewDoubleSellar(variant Variant) (*model.Node, error) {
	root := model.NewComposite("",
		model.NewIndepVar("pz", model.NewVarVal("z", 1.0, 1.0)),
		NewSubSellar("g1", variant),
		NewSubSellar("g2", variant),
	)
	root.Connect("pz.z", "g1.d1.z", "g1.d2.z", "g2.d1.z", "g2.d2.z")
	root.Connect("g1.d2.y2", "g2.d1.x")
	root.Connect("g2.d2.y2", "g1.d1.x")
	if err := root.Finalize(); err != nil {
		return nil, err
	}
	return root, nil
}
