package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/gradflow/internal/jacobian"
	"github.com/san-kum/gradflow/internal/model"
)

const (
	DefaultAtol    = 1e-10
	DefaultRtol    = 1e-10
	DefaultMaxIter = 25
)

// Config describes a model plus the solver stack to attach to it.
// Solver settings are keyed by node path; the empty key (or "root")
// addresses the model root.
type Config struct {
	Model   string                  `yaml:"model"`
	Variant string                  `yaml:"variant"`
	Mode    string                  `yaml:"mode"`
	Solvers map[string]SolverConfig `yaml:"solvers"`
}

// SolverConfig selects the nonlinear and linear solvers for one node.
type SolverConfig struct {
	Nonlinear    string  `yaml:"nonlinear"`
	Linear       string  `yaml:"linear"`
	AssembledJac string  `yaml:"assembled_jac"`
	Precon       string  `yaml:"precon"`
	Atol         float64 `yaml:"atol"`
	Rtol         float64 `yaml:"rtol"`
	MaxIter      int     `yaml:"max_iter"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:   "sellar",
		Variant: "analytic",
		Mode:    "fwd",
		Solvers: map[string]SolverConfig{
			"": {Nonlinear: "nlbgs", Linear: "direct"},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetMode maps the config's mode string onto a derivative direction.
func (c *Config) GetMode() (model.Mode, error) {
	switch c.Mode {
	case "", "fwd", "forward":
		return model.Forward, nil
	case "rev", "reverse":
		return model.Reverse, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", model.ErrConfiguration, c.Mode)
	}
}

// Apply attaches the configured solvers to the model tree. Unknown
// solver names, unknown node paths, and incompatible pairings all
// surface as ErrConfiguration.
func (c *Config) Apply(root *model.Node, reg *Registry) error {
	for path, sc := range c.Solvers {
		if path == "root" {
			path = ""
		}
		n := root.FindNode(path)
		if n == nil {
			return fmt.Errorf("%w: no node at path %q", model.ErrConfiguration, path)
		}
		if err := applySolvers(n, sc, reg); err != nil {
			return fmt.Errorf("node %q: %w", path, err)
		}
	}
	return nil
}

func applySolvers(n *model.Node, sc SolverConfig, reg *Registry) error {
	format, err := parseFormat(sc.AssembledJac)
	if err != nil {
		return err
	}
	if sc.Linear == "direct" && sc.AssembledJac == "none" {
		return fmt.Errorf("%w: direct solver requires an assembled jacobian", model.ErrConfiguration)
	}
	if sc.Precon != "" && sc.Linear != "gmres" {
		return fmt.Errorf("%w: precon is only valid with the gmres solver", model.ErrConfiguration)
	}
	if sc.AssembledJac != "" {
		n.SetAssembledFormat(format)
	}
	if sc.Nonlinear != "" {
		nl, err := reg.GetNonlinear(sc.Nonlinear, sc)
		if err != nil {
			return err
		}
		n.Nonlinear = nl
	}
	if sc.Linear != "" {
		ln, err := reg.GetLinear(sc.Linear, sc)
		if err != nil {
			return err
		}
		n.Linear = ln
	}
	return nil
}

func parseFormat(name string) (jacobian.Format, error) {
	switch name {
	case "", "none":
		return jacobian.FormatNone, nil
	case "dense":
		return jacobian.FormatDense, nil
	case "sparse":
		return jacobian.FormatSparse, nil
	default:
		return jacobian.FormatNone, fmt.Errorf("%w: unknown assembled_jac %q", model.ErrConfiguration, name)
	}
}
