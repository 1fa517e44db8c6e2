package driver_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/gradflow/internal/disciplines"
	"github.com/san-kum/gradflow/internal/driver"
	"github.com/san-kum/gradflow/internal/jacobian"
	"github.com/san-kum/gradflow/internal/lnsolver"
	"github.com/san-kum/gradflow/internal/model"
	"github.com/san-kum/gradflow/internal/nlsolver"
)

func solveSellar(variant disciplines.Variant) *model.Node {
	root, err := disciplines.NewSellar(variant)
	Expect(err).NotTo(HaveOccurred())
	_, err = nlsolver.NewBlockGS(nlsolver.Options{}).Solve(context.Background(), root)
	Expect(err).NotTo(HaveOccurred())
	return root
}

var _ = Describe("ComputeTotals on the Sellar problem", func() {
	dvs := []string{"px.x", "pz.z"}
	resps := []string{"obj_cmp.obj", "con_cmp1.con1", "con_cmp2.con2"}

	expectKnownTotals := func(totals *driver.Totals, tol float64) {
		Expect(totals.Scalar("obj_cmp.obj", "px.x")).To(BeNumerically("~", 2.98061392, tol))
		Expect(totals.Get("obj_cmp.obj", "pz.z")[0][0]).To(BeNumerically("~", 9.61001056, tol))
		Expect(totals.Get("obj_cmp.obj", "pz.z")[0][1]).To(BeNumerically("~", 1.78448534, tol))
		Expect(totals.Scalar("con_cmp1.con1", "px.x")).To(BeNumerically("~", -0.98061448, tol))
		Expect(totals.Get("con_cmp1.con1", "pz.z")[0][0]).To(BeNumerically("~", -9.61002285, tol))
		Expect(totals.Get("con_cmp1.con1", "pz.z")[0][1]).To(BeNumerically("~", -0.78449158, tol))
		Expect(totals.Scalar("con_cmp2.con2", "px.x")).To(BeNumerically("~", 0.09692762, tol))
		Expect(totals.Get("con_cmp2.con2", "pz.z")[0][0]).To(BeNumerically("~", 1.94989079, tol))
		Expect(totals.Get("con_cmp2.con2", "pz.z")[0][1]).To(BeNumerically("~", 1.07754214, tol))
	}

	It("matches the known totals in forward mode", func() {
		root := solveSellar(disciplines.Analytic)
		totals, diags, err := driver.ComputeTotals(context.Background(), root, dvs, resps, model.Forward)
		Expect(err).NotTo(HaveOccurred())
		expectKnownTotals(totals, 1e-6)
		// One seed per design-variable column.
		Expect(diags.Seeds).To(Equal(3))
	})

	It("matches the known totals in reverse mode", func() {
		root := solveSellar(disciplines.Analytic)
		totals, diags, err := driver.ComputeTotals(context.Background(), root, dvs, resps, model.Reverse)
		Expect(err).NotTo(HaveOccurred())
		expectKnownTotals(totals, 1e-6)
		// One seed per response row.
		Expect(diags.Seeds).To(Equal(3))
	})

	It("agrees between forward and reverse to 7 decimals", func() {
		root := solveSellar(disciplines.Analytic)
		fwd, _, err := driver.ComputeTotals(context.Background(), root, dvs, resps, model.Forward)
		Expect(err).NotTo(HaveOccurred())
		rev, _, err := driver.ComputeTotals(context.Background(), root, dvs, resps, model.Reverse)
		Expect(err).NotTo(HaveOccurred())
		for key, block := range fwd.J {
			for i := range block {
				for j := range block[i] {
					Expect(rev.J[key][i][j]).To(BeNumerically("~", block[i][j], 1e-7),
						"entry (%d,%d) of %v", i, j, key)
				}
			}
		}
	})

	It("reproduces analytic totals with complex-step partials", func() {
		root := solveSellar(disciplines.ComplexStep)
		totals, _, err := driver.ComputeTotals(context.Background(), root, dvs, resps, model.Forward)
		Expect(err).NotTo(HaveOccurred())
		expectKnownTotals(totals, 1e-6)
	})

	It("reproduces analytic totals with finite-difference partials", func() {
		root := solveSellar(disciplines.FiniteDifference)
		totals, _, err := driver.ComputeTotals(context.Background(), root, dvs, resps, model.Forward)
		Expect(err).NotTo(HaveOccurred())
		expectKnownTotals(totals, 1e-4)
	})

	It("rejects design variables that are not outputs", func() {
		root := solveSellar(disciplines.Analytic)
		_, _, err := driver.ComputeTotals(context.Background(), root, []string{"d1.x"}, resps, model.Forward)
		Expect(err).To(MatchError(model.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("IndepVar"))
	})
})

var _ = Describe("solver-mix invariance on the double Sellar problem", func() {
	dvs := []string{"pz.z"}
	resps := []string{"g1.d1.y1"}

	baseline := func(mode model.Mode) *driver.Totals {
		root, err := disciplines.NewDoubleSellar(disciplines.Analytic)
		Expect(err).NotTo(HaveOccurred())
		root.Nonlinear = nlsolver.NewNewton(nlsolver.Options{})
		root.Linear = lnsolver.NewDirect()
		_, err = root.Nonlinear.Solve(context.Background(), root)
		Expect(err).NotTo(HaveOccurred())
		totals, _, err := driver.ComputeTotals(context.Background(), root, dvs, resps, mode)
		Expect(err).NotTo(HaveOccurred())
		return totals
	}

	mixed := func(mode model.Mode) *driver.Totals {
		root, err := disciplines.NewDoubleSellar(disciplines.Analytic)
		Expect(err).NotTo(HaveOccurred())

		g1 := root.FindNode("g1")
		g1.SetAssembledFormat(jacobian.FormatSparse)
		g1.Nonlinear = nlsolver.NewNewton(nlsolver.Options{})
		g1.Linear = lnsolver.NewDirect()

		g2 := root.FindNode("g2")
		g2.SetAssembledFormat(jacobian.FormatDense)
		g2.Nonlinear = nlsolver.NewNewton(nlsolver.Options{})
		g2.Linear = lnsolver.NewDirect()

		krylov := lnsolver.NewGMRES(lnsolver.Options{Atol: 1e-14, Rtol: 1e-14})
		krylov.Precon = lnsolver.NewBlockGS(lnsolver.Options{MaxIter: 2})
		root.Nonlinear = nlsolver.NewBlockGS(nlsolver.Options{})
		root.Linear = krylov

		_, err = root.Nonlinear.Solve(context.Background(), root)
		Expect(err).NotTo(HaveOccurred())
		totals, _, err := driver.ComputeTotals(context.Background(), root, dvs, resps, mode)
		Expect(err).NotTo(HaveOccurred())
		return totals
	}

	for _, mode := range []model.Mode{model.Forward, model.Reverse} {
		mode := mode
		It("matches the all-direct baseline to 7 decimals in "+mode.String()+" mode", func() {
			base := baseline(mode)
			got := mixed(mode)
			for j := 0; j < 2; j++ {
				Expect(got.Get("g1.d1.y1", "pz.z")[0][j]).To(
					BeNumerically("~", base.Get("g1.d1.y1", "pz.z")[0][j], 1e-7))
			}
		})
	}
})

var _ = Describe("failure surfacing", func() {
	It("names the failing node and aborts the whole call", func() {
		// A residual that ignores its own state is structurally
		// singular.
		imp := model.NewImplicit("stuck",
			nil,
			[]*model.Variable{model.NewVarVal("y", 1.0)},
			func(in, out, res model.Values) { res["y"][0] = 0 })
		imp.SetPartials(func(in, out model.Values, p *jacobian.Partials) {
			p.SetScalar("y", "y", 0)
		})
		root := model.NewComposite("",
			model.NewIndepVar("p", model.NewVarVal("v", 1.0)),
			imp)
		Expect(root.Finalize()).To(Succeed())

		_, _, err := driver.ComputeTotals(context.Background(), root,
			[]string{"p.v"}, []string{"stuck.y"}, model.Forward)
		Expect(err).To(MatchError(model.ErrSingular))

		var se *model.SolveError
		Expect(errors.As(err, &se)).To(BeTrue())
	})
})
