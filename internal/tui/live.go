// Package tui provides a live terminal view of nonlinear solver
// convergence, fed by the solver iteration observer hook.
package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const historyCapacity = 400

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// IterMsg carries one solver iteration into the UI loop.
type IterMsg struct {
	Path     string
	Iter     int
	Residual float64
}

// DoneMsg signals that the solve goroutine has finished.
type DoneMsg struct {
	Err error
}

// Monitor adapts the solver observer callback to the bubbletea
// message loop. A full channel drops iterations rather than stalling
// the solver.
type Monitor struct {
	ch chan tea.Msg
}

func NewMonitor() *Monitor {
	return &Monitor{ch: make(chan tea.Msg, 256)}
}

func (m *Monitor) OnIteration(path string, iter int, res float64) {
	select {
	case m.ch <- IterMsg{Path: path, Iter: iter, Residual: res}:
	default:
	}
}

// Finish reports the solve outcome to the UI. Unlike iterations it
// must not be dropped, so it blocks until the loop picks it up.
func (m *Monitor) Finish(err error) {
	m.ch <- DoneMsg{Err: err}
}

func (m *Monitor) wait() tea.Cmd {
	return func() tea.Msg { return <-m.ch }
}

// Model renders per-node residual histories while a solve runs.
type Model struct {
	monitor   *Monitor
	title     string
	histories map[string][]float64
	iters     map[string]int
	order     []string
	selected  int
	done      bool
	err       error
}

func NewModel(title string, monitor *Monitor) Model {
	return Model{
		monitor:   monitor,
		title:     title,
		histories: make(map[string][]float64),
		iters:     make(map[string]int),
	}
}

func (m Model) Init() tea.Cmd {
	return m.monitor.wait()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			if len(m.order) > 0 {
				m.selected = (m.selected + 1) % len(m.order)
			}
		}
	case IterMsg:
		m.record(msg)
		return m, m.monitor.wait()
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, nil
	}
	return m, nil
}

func (m *Model) record(msg IterMsg) {
	if _, ok := m.histories[msg.Path]; !ok {
		m.order = append(m.order, msg.Path)
	}
	h := append(m.histories[msg.Path], msg.Residual)
	if len(h) > historyCapacity {
		h = h[1:]
	}
	m.histories[msg.Path] = h
	m.iters[msg.Path] = msg.Iter
}

// Err returns the solve error reported through the monitor, if any.
func (m Model) Err() error { return m.err }

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	if m.done {
		if m.err != nil {
			s.WriteString(failStyle.Render("FAILED: "+m.err.Error()) + "\n\n")
		} else {
			s.WriteString(okStyle.Render("CONVERGED") + "\n\n")
		}
	} else {
		s.WriteString(valueStyle.Render("solving...") + "\n\n")
	}

	for i, path := range m.order {
		name := path
		if name == "" {
			name = "(root)"
		}
		marker := "  "
		if i == m.selected {
			marker = "> "
		}
		hist := m.histories[path]
		res := hist[len(hist)-1]
		s.WriteString(marker + labelStyle.Render(name) +
			valueStyle.Render(fmt.Sprintf("iter %3d  residual %.3e", m.iters[path], res)) + "\n")
	}

	if len(m.order) > 0 {
		hist := m.histories[m.order[m.selected]]
		if len(hist) > 1 {
			logs := make([]float64, len(hist))
			for i, r := range hist {
				if r <= 0 {
					r = 1e-16
				}
				logs[i] = math.Log10(r)
			}
			chart := asciigraph.Plot(logs,
				asciigraph.Height(8),
				asciigraph.Width(50),
				asciigraph.Caption("log10 residual"))
			s.WriteString(graphStyle.Render(chart) + "\n")
		}
	}

	s.WriteString(helpStyle.Render("Tab:Node Q:Quit"))
	return s.String()
}
