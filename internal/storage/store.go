// Package storage keeps recorded simulation runs on disk, one directory per
// run holding metadata.json and states.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/sim"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
	configFile   = "config.yaml"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	Preset     string                  `json:"preset,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
	Dt         float64                 `json:"dt"`
	Horizon    int                     `json:"horizon"`
	Duration   float64                 `json:"duration"`
	Integrator string                  `json:"integrator"`
	Backend    string                  `json:"backend"`
	Policy     string                  `json:"policy"`
	Goal       dynamo.Pose             `json:"goal"`
	Reached    bool                    `json:"reached"`
	Metrics    map[string]float64      `json:"metrics"`
	Counters   metrics.CounterSnapshot `json:"counters"`
}

// Run is a recorded run read back from disk.
type Run struct {
	Times    []float64
	States   []dynamo.State
	Controls []dynamo.Control
	Outcomes []string
	Modes    []string
}

// Save writes a run and returns its id. The configuration is stored next to
// the results so the run can be reproduced.
func (s *Store) Save(cfg *config.Config, preset string, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("%s_%s", cfg.Model, uuid.NewString())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrap(err, "create run directory")
	}

	meta := RunMetadata{
		ID:         runID,
		Model:      cfg.Model,
		Preset:     preset,
		Timestamp:  time.Now(),
		Dt:         cfg.Dt,
		Horizon:    cfg.Horizon,
		Duration:   cfg.Sim.Duration,
		Integrator: cfg.Integrator,
		Backend:    cfg.Solver.Backend,
		Policy:     cfg.Fault.Policy,
		Goal:       cfg.Sim.Goal.Pose(),
		Reached:    result.Reached,
		Metrics:    result.Metrics,
		Counters:   result.Counters,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, statesFile), result); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create metadata")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encode metadata")
}

// writeStates writes one row per recorded state. The final state has no
// command, so its control and outcome columns are empty.
func writeStates(path string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create states")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(result.States) == 0 {
		w.Flush()
		return w.Error()
	}

	nx := len(result.States[0])
	nu := 0
	if len(result.Controls) > 0 {
		nu = len(result.Controls[0])
	}

	header := []string{"time"}
	for i := 0; i < nx; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	for i := 0; i < nu; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	header = append(header, "outcome", "mode")
	if err := w.Write(header); err != nil {
		return err
	}

	for i, x := range result.States {
		row := make([]string, 0, len(header))
		row = append(row, formatFloat(result.Times[i]))
		for _, v := range x {
			row = append(row, formatFloat(v))
		}
		if i < len(result.Controls) {
			for _, v := range result.Controls[i] {
				row = append(row, formatFloat(v))
			}
			row = append(row, result.Outcomes[i], result.Modes[i])
		} else {
			for j := 0; j < nu+2; j++ {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "run %s metadata", runID)
	}
	return &meta, nil
}

// LoadConfig reads the configuration a run was recorded with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

// LoadRun reads the recorded trajectory of a run.
func (s *Store) LoadRun(runID string) (*Run, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "run %s states", runID)
	}

	run := &Run{}
	if len(records) < 2 {
		return run, nil
	}

	var nx, nu int
	for _, col := range records[0][1:] {
		switch col[0] {
		case 'x':
			nx++
		case 'u':
			nu++
		}
	}

	for i, record := range records[1:] {
		if len(record) < 1+nx+nu+2 {
			return nil, errors.Errorf("run %s: row %d has %d columns", runID, i+1, len(record))
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "run %s: row %d time", runID, i+1)
		}
		x, err := parseFloats(record[1 : 1+nx])
		if err != nil {
			return nil, errors.Wrapf(err, "run %s: row %d state", runID, i+1)
		}
		run.Times = append(run.Times, t)
		run.States = append(run.States, x)

		if record[1+nx] == "" && nu > 0 {
			continue // final state
		}
		u, err := parseFloats(record[1+nx : 1+nx+nu])
		if err != nil {
			return nil, errors.Wrapf(err, "run %s: row %d control", runID, i+1)
		}
		run.Controls = append(run.Controls, dynamo.Control(u))
		run.Outcomes = append(run.Outcomes, record[1+nx+nu])
		run.Modes = append(run.Modes, record[1+nx+nu+1])
	}
	return run, nil
}

func parseFloats(fields []string) (dynamo.State, error) {
	out := make(dynamo.State, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
