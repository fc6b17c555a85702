package experiment

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/physics"
	"github.com/san-kum/nmpc/internal/solver"
	"github.com/san-kum/nmpc/internal/solver/nloptsolver"
)

// BackendFactory builds a solver backend from its settings.
type BackendFactory func(settings solver.Settings, logger *zap.SugaredLogger) (solver.Solver, error)

type Registry struct {
	models      map[string]func() dynamo.System
	integrators map[string]func() dynamo.Integrator
	backends    map[string]BackendFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func() dynamo.System),
		integrators: make(map[string]func() dynamo.Integrator),
		backends:    make(map[string]BackendFactory),
	}

	r.models["unicycle"] = func() dynamo.System { return physics.NewUnicycle() }
	r.models["omni"] = func() dynamo.System { return physics.NewOmni() }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	r.backends["auglag"] = func(s solver.Settings, l *zap.SugaredLogger) (solver.Solver, error) {
		return solver.NewAugLag(s, l), nil
	}
	r.backends["slsqp"] = nloptsolver.New

	return r
}

func (r *Registry) GetModel(name string) (dynamo.System, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", dynamo.ErrConfigInvalid, name)
	}
	return fn(), nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown integrator %q", dynamo.ErrConfigInvalid, name)
	}
	return fn(), nil
}

func (r *Registry) GetBackend(name string, settings solver.Settings, logger *zap.SugaredLogger) (solver.Solver, error) {
	fn, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown solver backend %q", dynamo.ErrConfigInvalid, name)
	}
	return fn(settings, logger)
}

// RegisterBackend adds or replaces a backend.
func (r *Registry) RegisterBackend(name string, fn BackendFactory) {
	r.backends[name] = fn
}

func (r *Registry) ListModels() []string      { return keys(r.models) }
func (r *Registry) ListIntegrators() []string { return keys(r.integrators) }
func (r *Registry) ListBackends() []string    { return keys(r.backends) }

// DefaultMetrics are the simulation metrics recorded for every run.
func (r *Registry) DefaultMetrics(path dynamo.Path, goal dynamo.Pose) []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewTrackingError(path),
		metrics.NewGoalDistance(goal),
		metrics.NewControlEffort(),
		metrics.NewControlRate(),
	}
}

func keys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
