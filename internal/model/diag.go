package model

import (
	"fmt"
	"sync"
)

// DiagKind is the closed set of diagnostic categories. Each kind
// carries a default action fixed at process start; there is no runtime
// discovery of new kinds.
type DiagKind int

const (
	DiagSetup DiagKind = iota
	DiagSolver
	DiagNumerical
	DiagDerivatives
)

func (k DiagKind) String() string {
	switch k {
	case DiagSetup:
		return "setup"
	case DiagSolver:
		return "solver"
	case DiagNumerical:
		return "numerical"
	case DiagDerivatives:
		return "derivatives"
	default:
		return "unknown"
	}
}

// DiagAction controls what happens to diagnostics of a kind.
type DiagAction int

const (
	DiagCollect DiagAction = iota
	DiagIgnore
)

// Diag is one non-fatal diagnostic event, e.g. a NaN produced during a
// finite-difference perturbation.
type Diag struct {
	Kind    DiagKind
	Path    string
	Message string
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Kind, d.Path, d.Message)
}

type diagRegistry struct {
	mu      sync.Mutex
	actions map[DiagKind]DiagAction
	events  []Diag
}

var diags = &diagRegistry{
	actions: map[DiagKind]DiagAction{
		DiagSetup:       DiagCollect,
		DiagSolver:      DiagCollect,
		DiagNumerical:   DiagCollect,
		DiagDerivatives: DiagCollect,
	},
}

// SetDiagAction changes the filter action for one kind.
func SetDiagAction(kind DiagKind, action DiagAction) {
	diags.mu.Lock()
	defer diags.mu.Unlock()
	diags.actions[kind] = action
}

// Warn records a non-fatal diagnostic against a node path.
func Warn(kind DiagKind, path, format string, args ...any) {
	diags.mu.Lock()
	defer diags.mu.Unlock()
	if diags.actions[kind] == DiagIgnore {
		return
	}
	diags.events = append(diags.events, Diag{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)})
}

// DrainDiags returns and clears all collected diagnostics.
func DrainDiags() []Diag {
	diags.mu.Lock()
	defer diags.mu.Unlock()
	out := diags.events
	diags.events = nil
	return out
}
