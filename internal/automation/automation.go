// Package automation runs scripted batches of closed-loop simulations.
package automation

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/experiment"
	"github.com/san-kum/nmpc/internal/optim"
	"github.com/san-kum/nmpc/internal/sim"
	"github.com/san-kum/nmpc/internal/storage"
)

// Batch is a named list of scenarios read from YAML.
type Batch struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one scenario. Unset fields keep the values of the preset.
type Step struct {
	Name         string             `yaml:"name"`
	Model        string             `yaml:"model"`
	Preset       string             `yaml:"preset"`
	Start        *config.PoseConfig `yaml:"start"`
	Goal         *config.PoseConfig `yaml:"goal"`
	Duration     float64            `yaml:"duration"`
	SolveLatency time.Duration      `yaml:"solve_latency"`
	Weights      map[string]float64 `yaml:"weights"`
	Save         bool               `yaml:"save"`
}

func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read batch")
	}

	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrapf(err, "parse batch %s", path)
	}
	if len(b.Steps) == 0 {
		return nil, errors.Wrapf(dynamo.ErrConfigInvalid, "batch %s has no steps", path)
	}
	return &b, nil
}

// Config resolves the step into a validated configuration. Without a model
// the preset is looked up across all models; an empty preset means
// "default".
func (s Step) Config() (*config.Config, error) {
	preset := s.Preset
	if preset == "" {
		preset = "default"
	}
	var base *config.Config
	if s.Model != "" {
		base = config.GetPreset(s.Model, preset)
	} else {
		base = config.FindPreset(preset)
	}
	if base == nil {
		return nil, errors.Wrapf(dynamo.ErrConfigInvalid, "unknown preset %q for model %q", preset, s.Model)
	}
	if s.Start != nil {
		base.Sim.Start = *s.Start
	}
	if s.Goal != nil {
		base.Sim.Goal = *s.Goal
	}
	if s.Duration > 0 {
		base.Sim.Duration = s.Duration
	}
	if s.SolveLatency > 0 {
		base.Sim.SolveLatency = s.SolveLatency
	}
	return optim.Apply(base, s.Weights)
}

// StepResult is the outcome of one step. RunID is empty unless the step
// was saved.
type StepResult struct {
	Name   string
	RunID  string
	Result *sim.Result
}

type Runner struct {
	registry *experiment.Registry
	store    *storage.Store
	logger   *zap.SugaredLogger
}

// NewRunner builds a runner. A nil store refuses steps marked save.
func NewRunner(reg *experiment.Registry, store *storage.Store, logger *zap.SugaredLogger) *Runner {
	if reg == nil {
		reg = experiment.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{registry: reg, store: store, logger: logger}
}

// Run executes the steps in order and stops at the first error.
func (r *Runner) Run(ctx context.Context, b *Batch) ([]StepResult, error) {
	results := make([]StepResult, 0, len(b.Steps))
	for i, step := range b.Steps {
		name := step.Name
		if name == "" {
			name = step.Preset
		}
		r.logger.Infow("batch step", "step", i+1, "of", len(b.Steps), "name", name)

		cfg, err := step.Config()
		if err != nil {
			return results, errors.Wrapf(err, "step %d", i+1)
		}
		res, err := experiment.New(cfg, r.registry, r.logger).Run(ctx)
		if err != nil {
			return results, errors.Wrapf(err, "step %d run", i+1)
		}

		sr := StepResult{Name: name, Result: res}
		if step.Save {
			if r.store == nil {
				return results, errors.Errorf("step %d: no store to save into", i+1)
			}
			if sr.RunID, err = r.store.Save(cfg, step.Preset, res); err != nil {
				return results, errors.Wrapf(err, "step %d save", i+1)
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

// MonteCarlo perturbs the start pose of a scenario.
type MonteCarlo struct {
	Trials       int
	Perturbation float64 // half-width of the uniform noise on x, y and heading
	Seed         int64   // zero seeds from the wall clock
	Workers      int
}

// Trial is one perturbed run.
type Trial struct {
	ID      int
	Start   dynamo.State
	Final   dynamo.State
	Reached bool
	Result  *sim.Result
}

// RunMonteCarlo runs the scenario of cfg from perturbed starts, up to
// Workers at a time.
func (r *Runner) RunMonteCarlo(ctx context.Context, cfg *config.Config, mc MonteCarlo) ([]Trial, error) {
	if mc.Trials <= 0 {
		return nil, errors.Wrap(dynamo.ErrConfigInvalid, "monte carlo needs at least one trial")
	}
	seed := mc.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	base := experiment.Scenario(cfg)
	starts := make([]dynamo.State, mc.Trials)
	for i := range starts {
		s := base.Start.Clone()
		for j := 0; j < 3 && j < len(s); j++ {
			s[j] += (rng.Float64() - 0.5) * 2 * mc.Perturbation
		}
		starts[i] = s
	}

	factory := func(i int) (*sim.Simulator, sim.Config, error) {
		sc := base
		sc.Start = starts[i]
		s, err := experiment.New(cfg, r.registry, r.logger).Simulator(sc)
		return s, sc, err
	}
	results, err := sim.NewEnsemble(factory, mc.Trials, mc.Workers).Run(ctx)
	if err != nil {
		return nil, err
	}

	trials := make([]Trial, mc.Trials)
	for i, res := range results {
		trials[i] = Trial{
			ID:      i,
			Start:   starts[i],
			Final:   res.Final(),
			Reached: res.Reached,
			Result:  res,
		}
	}
	return trials, nil
}

// Summary counts the trials that reached the goal.
func Summary(trials []Trial) (reached, missed int) {
	for _, t := range trials {
		if t.Reached {
			reached++
		} else {
			missed++
		}
	}
	return reached, missed
}
