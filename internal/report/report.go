// Package report renders totals tables, solver summaries, and
// residual-history plots for terminal output.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/gradflow/internal/driver"
	"github.com/san-kum/gradflow/internal/model"
)

var (
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	convergedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	graphStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
)

// WriteTotals prints the total-derivative matrix as one table row per
// (response, design variable) entry.
func WriteTotals(w io.Writer, t *driver.Totals) error {
	keys := make([]driver.Key, 0, len(t.J))
	for k := range t.J {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Response != keys[j].Response {
			return keys[i].Response < keys[j].Response
		}
		return keys[i].DesignVar < keys[j].DesignVar
	})

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("TOTAL DERIVATIVES (%s mode)", t.Mode)))
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "of\twrt\tvalue\t")
	for _, k := range keys {
		block := t.J[k]
		for i := range block {
			cells := make([]string, len(block[i]))
			for j, v := range block[i] {
				cells[j] = fmt.Sprintf("% .8e", v)
			}
			of := ""
			if i == 0 {
				of = k.Response
			}
			wrt := ""
			if i == 0 {
				wrt = k.DesignVar
			}
			fmt.Fprintf(tw, "%s\t%s\t[%s]\t\n", of, wrt, strings.Join(cells, ", "))
		}
	}
	return tw.Flush()
}

// WriteSolves prints one line per linear solve performed while
// computing totals, plus any collected warnings.
func WriteSolves(w io.Writer, d *driver.Diagnostics) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("LINEAR SOLVES (%d seeds)", d.Seeds)))
	for _, rep := range d.Solves {
		status := convergedStyle.Render("ok")
		if !rep.Converged {
			status = failedStyle.Render("FAILED")
		}
		path := rep.Path
		if path == "" {
			path = "(root)"
		}
		fmt.Fprintf(w, "  %s  %s %s  %s\n",
			status,
			labelStyle.Render(path),
			labelStyle.Render(rep.Solver),
			valueStyle.Render(fmt.Sprintf("%d iters, residual %.3e", rep.Iterations, rep.Residual)))
	}
	for _, diag := range d.Warnings {
		fmt.Fprintln(w, warnStyle.Render("  warning: "+diag.Message))
	}
}

// WriteChecks prints the partial-derivative verification table.
func WriteChecks(w io.Writer, checks []driver.PartialCheck, tol float64) error {
	fmt.Fprintln(w, titleStyle.Render("PARTIAL CHECKS"))
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "component\tof\twrt\tscheme\tmax abs err\t\t")
	for _, c := range checks {
		status := convergedStyle.Render("ok")
		if c.MaxAbsErr > tol {
			status = failedStyle.Render("MISMATCH")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3e\t%s\t\n",
			c.Path, c.Of, c.Wrt, c.Scheme, c.MaxAbsErr, status)
	}
	return tw.Flush()
}

// ResidualPlot renders a convergence history on a log10 axis. Returns
// the empty string when the history is too short to plot.
func ResidualPlot(rep model.SolveReport) string {
	if len(rep.History) < 2 {
		return ""
	}
	logs := make([]float64, len(rep.History))
	for i, r := range rep.History {
		if r <= 0 {
			r = 1e-16
		}
		logs[i] = math.Log10(r)
	}
	chart := asciigraph.Plot(logs,
		asciigraph.Height(8),
		asciigraph.Width(50),
		asciigraph.Caption(fmt.Sprintf("log10 residual, %s", rep.Solver)))
	return graphStyle.Render(chart)
}
