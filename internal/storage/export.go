package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

type ExportData struct {
	Meta     RunMetadata `json:"meta"`
	Steps    int         `json:"steps"`
	Times    []float64   `json:"times"`
	States   [][]float64 `json:"states"`
	Controls [][]float64 `json:"controls"`
	Outcomes []string    `json:"outcomes"`
	Modes    []string    `json:"modes"`
}

// Export builds the JSON export of a stored run.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	run, err := s.LoadRun(runID)
	if err != nil {
		return nil, err
	}

	data := &ExportData{
		Meta:     *meta,
		Steps:    len(run.Controls),
		Times:    run.Times,
		States:   make([][]float64, len(run.States)),
		Controls: make([][]float64, len(run.Controls)),
		Outcomes: run.Outcomes,
		Modes:    run.Modes,
	}
	for i, x := range run.States {
		data.States[i] = x
	}
	for i, u := range run.Controls {
		data.Controls[i] = u
	}
	return data, nil
}

func (s *Store) ExportJSON(runID string, w io.Writer) error {
	data, err := s.Export(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(data), "encode export")
}

// ExportJSONFile writes the export to path.
func (s *Store) ExportJSONFile(runID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.ExportJSON(runID, f)
}
