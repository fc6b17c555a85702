package config

import (
	"math"
	"sort"
)

// Presets are named configurations grouped by model.
var Presets = map[string]map[string]*Config{
	"unicycle": {
		"default": DefaultConfig(),
		"casadi":  casadi(),
		"rk4":     withIntegrator(DefaultConfig(), "rk4"),
		"cautious": func() *Config {
			c := DefaultConfig()
			c.RefSpeed = 0.25
			c.Bounds.ControlMin = []float64{-0.5, -0.8}
			c.Bounds.ControlMax = []float64{0.5, 0.8}
			c.Fault.Policy = "decay"
			return c
		}(),
	},
	"omni": {
		"default": omni(),
	},
}

// casadi reproduces the ROS node this controller replaces: N=20,
// Q=diag(1,1,0.1), R=diag(0.1,0.1), Qf=Q, a 10x10 m arena and unit limits.
func casadi() *Config {
	c := DefaultConfig()
	c.Horizon = 20
	c.Weights = WeightsConfig{
		Q:  []float64{1, 1, 0.1},
		Qf: []float64{1, 1, 0.1},
		R:  []float64{0.1, 0.1},
		S:  []float64{0, 0},
	}
	c.Bounds = BoundsConfig{
		ControlMin: []float64{-1, -1},
		ControlMax: []float64{1, 1},
		StateMin:   []float64{0, 0, -math.Pi},
		StateMax:   []float64{10, 10, math.Pi},
	}
	c.Sim.Start = PoseConfig{X: 1, Y: 1}
	c.Sim.Goal = PoseConfig{X: 6, Y: 4}
	return c
}

func omni() *Config {
	c := DefaultConfig()
	c.Model = "omni"
	c.Weights.R = []float64{0.05, 0.05, 0.05}
	c.Weights.S = []float64{0.1, 0.1, 0.1}
	c.Bounds.ControlMin = []float64{-1, -1, -1.5}
	c.Bounds.ControlMax = []float64{1, 1, 1.5}
	return c
}

func withIntegrator(c *Config, name string) *Config {
	c.Integrator = name
	return c
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindPreset looks a preset up by name across all models.
func FindPreset(name string) *Config {
	models := make([]string, 0, len(Presets))
	for m := range Presets {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		if cfg := GetPreset(m, name); cfg != nil {
			return cfg
		}
	}
	return nil
}
