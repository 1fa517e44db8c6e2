package config

import "sort"

// GetPreset returns a named preset for a model family, or nil.
func GetPreset(family, name string) *Config {
	group, ok := Presets[family]
	if !ok {
		return nil
	}
	return group[name]
}

// ListPresets returns the preset names for a model family.
func ListPresets(family string) []string {
	names := make([]string, 0, len(Presets[family]))
	for name := range Presets[family] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var Presets = map[string]map[string]*Config{
	"sellar": {
		"gs": {
			Model: "sellar", Variant: "analytic", Mode: "fwd",
			Solvers: map[string]SolverConfig{
				"": {Nonlinear: "nlbgs", Linear: "direct"},
			},
		},
		"newton": {
			Model: "sellar_grouped", Variant: "analytic", Mode: "rev",
			Solvers: map[string]SolverConfig{
				"":      {Nonlinear: "nlbgs", Linear: "direct"},
				"cycle": {Nonlinear: "newton", Linear: "direct", AssembledJac: "sparse"},
			},
		},
		"matfree": {
			Model: "sellar_grouped", Variant: "cs", Mode: "fwd",
			Solvers: map[string]SolverConfig{
				"": {Nonlinear: "nlbgs", Linear: "gmres", Precon: "lnbgs"},
			},
		},
	},
	"double_sellar": {
		"nested": {
			Model: "double_sellar", Variant: "analytic", Mode: "rev",
			Solvers: map[string]SolverConfig{
				"":   {Nonlinear: "nlbgs", Linear: "lnbgs"},
				"g1": {Nonlinear: "newton", Linear: "direct", AssembledJac: "dense"},
				"g2": {Nonlinear: "newton", Linear: "gmres"},
			},
		},
		"direct": {
			Model: "double_sellar", Variant: "analytic", Mode: "fwd",
			Solvers: map[string]SolverConfig{
				"": {Nonlinear: "newton", Linear: "direct", AssembledJac: "sparse"},
			},
		},
	},
	"implicit": {
		"newton": {
			Model: "sellar_implicit", Variant: "analytic", Mode: "fwd",
			Solvers: map[string]SolverConfig{
				"":      {Nonlinear: "nlbgs", Linear: "direct"},
				"cycle": {Nonlinear: "newton", Linear: "direct", AssembledJac: "dense"},
			},
		},
	},
}
