package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/sim"
)

func testResult() *sim.Result {
	return &sim.Result{
		Times:    []float64{0, 0.1, 0.2},
		States:   []dynamo.State{{0, 0, 0}, {0.05, 0, 0}, {0.1, 0, 0.01}},
		Controls: []dynamo.Control{{0.5, 0}, {0.5, 0.1}},
		Outcomes: []string{"optimal", "timed_out"},
		Modes:    []string{"TRACKING", "TRACKING"},
		Metrics:  map[string]float64{"tracking_rms": 0.02},
		Counters: metrics.CounterSnapshot{Cycles: 2, Optimal: 1, TimedOut: 1},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.DefaultConfig()
	runID, err := st.Save(cfg, "default", testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "unicycle_") {
		t.Errorf("unexpected run id %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Model != "unicycle" || meta.Preset != "default" || meta.Horizon != cfg.Horizon {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Metrics["tracking_rms"] != 0.02 {
		t.Errorf("expected tracking_rms 0.02, got %f", meta.Metrics["tracking_rms"])
	}
	if meta.Counters.TimedOut != 1 {
		t.Errorf("expected one timeout in counters, got %d", meta.Counters.TimedOut)
	}

	run, err := st.LoadRun(runID)
	if err != nil {
		t.Fatalf("load run failed: %v", err)
	}
	if len(run.States) != 3 || len(run.Controls) != 2 || len(run.Times) != 3 {
		t.Fatalf("unexpected run shape: %d states, %d controls, %d times", len(run.States), len(run.Controls), len(run.Times))
	}
	if run.Controls[1][1] != 0.1 || run.Outcomes[1] != "timed_out" || run.Modes[0] != "TRACKING" {
		t.Errorf("unexpected run contents %+v", run)
	}
	if run.States[2][2] != 0.01 {
		t.Errorf("expected final heading 0.01, got %f", run.States[2][2])
	}

	loaded, err := st.LoadConfig(runID)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if loaded.Horizon != cfg.Horizon || loaded.SolveTimeout != cfg.SolveTimeout {
		t.Errorf("config did not round trip: %+v", loaded)
	}
}

func TestStoreList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := st.Save(config.DefaultConfig(), "", testResult()); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	// A stray directory without metadata is skipped.
	if err := os.Mkdir(filepath.Join(st.baseDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	if len(runs) == 2 && runs[0].ID == runs[1].ID {
		t.Error("run ids collided")
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runID, err := st.Save(config.DefaultConfig(), "", testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{metadataFile, statesFile, configFile} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, runID, statesFile))
	if err != nil {
		t.Fatal(err)
	}
	header := strings.SplitN(string(data), "\n", 2)[0]
	if header != "time,x0,x1,x2,u0,u1,outcome,mode" {
		t.Errorf("unexpected header %q", header)
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(config.DefaultConfig(), "", testResult())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.ExportJSON(runID, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Steps != 2 || data.Meta.ID != runID || len(data.States) != 3 {
		t.Errorf("unexpected export %+v", data)
	}
}

func TestLoadMissingRun(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); err == nil {
		t.Error("expected an error for a missing run")
	}
	if _, err := st.LoadRun("nope"); err == nil {
		t.Error("expected an error for a missing run")
	}
}
