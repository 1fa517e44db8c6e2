package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/gradflow/internal/config"
	"github.com/san-kum/gradflow/internal/driver"
	"github.com/san-kum/gradflow/internal/export"
	"github.com/san-kum/gradflow/internal/model"
	"github.com/san-kum/gradflow/internal/nlsolver"
	"github.com/san-kum/gradflow/internal/report"
	"github.com/san-kum/gradflow/internal/storage"
	"github.com/san-kum/gradflow/internal/tui"
)

var (
	configFile string
	preset     string
	modelName  string
	variant    string
	modeName   string
	wrt        []string
	of         []string
	checkTol   float64
	fdStep     float64
	dataDir    string
	record     bool
	svgPath    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gradflow",
		Short: "coupled-model solver and derivative engine",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "preset name (family/name)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "model name")
	rootCmd.PersistentFlags().StringVar(&variant, "variant", "", "partials variant (analytic|fd|cs)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".gradflow", "case data directory")
	rootCmd.PersistentFlags().BoolVar(&record, "record", false, "record the case to the data directory")

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "converge the coupled model and print its outputs",
		RunE:  runSolve,
	}
	solveCmd.Flags().StringVar(&svgPath, "svg", "", "write the convergence history as SVG")

	totalsCmd := &cobra.Command{
		Use:   "totals",
		Short: "compute total derivatives of responses wrt design variables",
		RunE:  runTotals,
	}
	totalsCmd.Flags().StringSliceVar(&wrt, "wrt", []string{"px.x", "pz.z"}, "design variables")
	totalsCmd.Flags().StringSliceVar(&of, "of", []string{"obj_cmp.obj", "con_cmp1.con1", "con_cmp2.con2"}, "responses")
	totalsCmd.Flags().StringVar(&modeName, "mode", "", "derivative direction (fwd|rev)")

	partialsCmd := &cobra.Command{
		Use:   "partials",
		Short: "verify analytic partials against an approximation",
		RunE:  runPartials,
	}
	partialsCmd.Flags().Float64Var(&checkTol, "tol", 1e-5, "mismatch tolerance")
	partialsCmd.Flags().Float64Var(&fdStep, "step", 1e-6, "finite-difference step")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "converge the model with a live residual view",
		RunE:  runLive,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [family]",
		Short: "list available presets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListPresets(args[0])
			if len(names) == 0 {
				fmt.Printf("no presets for family: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, name := range names {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := storage.New(dataDir).List()
			if err != nil {
				return err
			}
			for _, c := range cases {
				status := "converged"
				if !c.Converged {
					status = "FAILED"
				}
				fmt.Printf("%s  %s  %s  %d iters  residual %.3e\n",
					c.ID, c.Timestamp.Format("2006-01-02 15:04:05"), status, c.Iters, c.Residual)
			}
			return nil
		},
	}

	rootCmd.AddCommand(solveCmd, totalsCmd, partialsCmd, liveCmd, presetsCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the preset, config file, and flag overrides in
// that order.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		family, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset must be family/name, got %q", preset)
		}
		p := config.GetPreset(family, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(family))
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if modelName != "" {
		cfg.Model = modelName
	}
	if variant != "" {
		cfg.Variant = variant
	}
	if modeName != "" {
		cfg.Mode = modeName
	}
	return cfg, nil
}

func buildModel(cfg *config.Config) (*model.Node, error) {
	reg := config.NewRegistry()
	v, err := config.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	root, err := reg.GetModel(cfg.Model, v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(root, reg); err != nil {
		return nil, err
	}
	if root.Nonlinear == nil {
		root.Nonlinear = nlsolver.NewBlockGS(nlsolver.Options{})
	}
	return root, nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := buildModel(cfg)
	if err != nil {
		return err
	}
	rep, err := root.Nonlinear.Solve(context.Background(), root)
	if err != nil {
		return err
	}
	fmt.Printf("converged in %d iterations, residual %.3e\n\n", rep.Iterations, rep.Residual)
	for _, leaf := range root.Leaves() {
		for _, out := range leaf.Outputs() {
			fmt.Printf("  %-20s %v\n", out.Path(), []float64(out.Val))
		}
	}
	if plot := report.ResidualPlot(rep); plot != "" {
		fmt.Println(plot)
	}
	if svgPath != "" {
		if err := export.WriteConvergenceSVG(svgPath, rep.History); err != nil {
			return err
		}
		fmt.Println("wrote", svgPath)
	}
	if record {
		return recordCase(cfg.Model, rep, nil, nil)
	}
	return nil
}

func recordCase(modelName string, rep model.SolveReport, totals *driver.Totals, diags *driver.Diagnostics) error {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(modelName, rep, totals, diags)
	if err != nil {
		return err
	}
	fmt.Println("recorded case", id)
	return nil
}

func runTotals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := buildModel(cfg)
	if err != nil {
		return err
	}
	mode, err := cfg.GetMode()
	if err != nil {
		return err
	}
	ctx := context.Background()
	rep, err := root.Nonlinear.Solve(ctx, root)
	if err != nil {
		return err
	}
	totals, diags, err := driver.ComputeTotals(ctx, root, wrt, of, mode)
	if err != nil {
		return err
	}
	if err := report.WriteTotals(os.Stdout, totals); err != nil {
		return err
	}
	fmt.Println()
	report.WriteSolves(os.Stdout, diags)
	if record {
		return recordCase(cfg.Model, rep, totals, diags)
	}
	return nil
}

func runPartials(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := buildModel(cfg)
	if err != nil {
		return err
	}
	if _, err := root.Nonlinear.Solve(context.Background(), root); err != nil {
		return err
	}
	checks, err := driver.CheckPartials(root, fdStep)
	if err != nil {
		return err
	}
	if err := report.WriteChecks(os.Stdout, checks, checkTol); err != nil {
		return err
	}
	for _, c := range checks {
		if c.MaxAbsErr > checkTol {
			return fmt.Errorf("partials mismatch in %s: d(%s)/d(%s) off by %.3e", c.Path, c.Of, c.Wrt, c.MaxAbsErr)
		}
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := buildModel(cfg)
	if err != nil {
		return err
	}
	monitor := tui.NewMonitor()
	attachObserver(root, monitor)

	go func() {
		_, err := root.Nonlinear.Solve(context.Background(), root)
		monitor.Finish(err)
	}()

	m := tui.NewModel(cfg.Model, monitor)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(tui.Model); ok {
		return fm.Err()
	}
	return nil
}

// attachObserver wires the monitor into every nonlinear solver in the
// tree that exposes an observer hook.
func attachObserver(n *model.Node, obs model.IterObserver) {
	switch s := n.Nonlinear.(type) {
	case *nlsolver.BlockGS:
		s.Observer = obs
	case *nlsolver.Newton:
		s.Observer = obs
	}
	for _, child := range n.Children() {
		attachObserver(child, obs)
	}
}
