// Package storage records solver cases on disk: one directory per
// case holding run metadata, the residual convergence history, and any
// computed totals.
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

	"github.com/san-kum/gradflow/internal/driver"
	"github.com/san-kum/gradflow/internal/model"
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

type CaseMetadata struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	Solver    string    `json:"solver"`
	Converged bool      `json:"converged"`
	Iters     int       `json:"iterations"`
	Residual  float64   `json:"residual"`
	Mode      string    `json:"mode,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Save writes one solved case. Totals and diagnostics may be nil when
// only the nonlinear solve is being recorded.
func (s *Store) Save(modelName string, rep model.SolveReport, totals *driver.Totals, diags *driver.Diagnostics) (string, error) {
	caseID := fmt.Sprintf("%s_%d", modelName, time.Now().Unix())
	caseDir := filepath.Join(s.baseDir, caseID)
	if err := os.MkdirAll(caseDir, 0755); err != nil {
		return "", err
	}

	meta := CaseMetadata{
		ID:        caseID,
		Model:     modelName,
		Timestamp: time.Now(),
		Solver:    rep.Solver,
		Converged: rep.Converged,
		Iters:     rep.Iterations,
		Residual:  rep.Residual,
	}
	if diags != nil {
		meta.Mode = diags.Mode.String()
		for _, w := range diags.Warnings {
			meta.Warnings = append(meta.Warnings, w.String())
		}
	}
	if err := writeJSON(filepath.Join(caseDir, "metadata.json"), meta); err != nil {
		return "", err
	}

	if err := s.writeHistory(filepath.Join(caseDir, "history.csv"), rep.History); err != nil {
		return "", err
	}

	if totals != nil {
		if err := writeJSON(filepath.Join(caseDir, "totals.json"), flattenTotals(totals)); err != nil {
			return "", err
		}
	}
	return caseID, nil
}

func (s *Store) writeHistory(path string, history []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"iteration", "residual"}); err != nil {
		return err
	}
	for i, r := range history {
		rec := []string{strconv.Itoa(i + 1), strconv.FormatFloat(r, 'e', 16, 64)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// List returns the recorded case IDs, newest last.
func (s *Store) List() ([]CaseMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cases []CaseMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.Load(e.Name())
		if err != nil {
			continue // skip foreign directories
		}
		cases = append(cases, meta)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Timestamp.Before(cases[j].Timestamp) })
	return cases, nil
}

// Load reads one case's metadata.
func (s *Store) Load(caseID string) (CaseMetadata, error) {
	var meta CaseMetadata
	data, err := os.ReadFile(filepath.Join(s.baseDir, caseID, "metadata.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// LoadHistory reads one case's residual history.
func (s *Store) LoadHistory(caseID string) ([]float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, caseID, "history.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	var history []float64
	for i, rec := range records {
		if i == 0 || len(rec) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("case %s history row %d: %w", caseID, i, err)
		}
		history = append(history, v)
	}
	return history, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func flattenTotals(t *driver.Totals) map[string][][]float64 {
	out := make(map[string][][]float64, len(t.J))
	for key, block := range t.J {
		out["d("+key.Response+")/d("+key.DesignVar+")"] = block
	}
	return out
}
