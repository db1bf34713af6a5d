package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
)

const checkpointPrefix = "checkpoint-"

// GetLastCheckpoint finds the highest-numbered checkpoint directory under
// dir, or "" when none exists.
func GetLastCheckpoint(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var steps []int
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), checkpointPrefix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), checkpointPrefix))
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return ""
	}
	sort.Ints(steps)
	return filepath.Join(dir, fmt.Sprintf("%s%d", checkpointPrefix, steps[len(steps)-1]))
}

type checkpointWeights struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

func (t *Trainer) saveCheckpoint() error {
	dir := filepath.Join(t.Args.OutputDir, fmt.Sprintf("%s%d", checkpointPrefix, t.state.GlobalStep))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	w, b := t.Model.Parameters()
	if err := writeXZ(filepath.Join(dir, "weights.json.xz"), checkpointWeights{Weights: w, Bias: b}); err != nil {
		return fmt.Errorf("trainer: writing checkpoint weights: %w", err)
	}
	if err := t.Model.Config().Save(dir); err != nil {
		return err
	}
	return writeState(filepath.Join(dir, "trainer_state.json"), t.state)
}

func (t *Trainer) loadCheckpoint(dir string) (State, error) {
	var state State
	raw, err := os.ReadFile(filepath.Join(dir, "trainer_state.json"))
	if err != nil {
		return state, fmt.Errorf("trainer: reading checkpoint state: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("trainer: parsing checkpoint state: %w", err)
	}

	var weights checkpointWeights
	if err := readXZ(filepath.Join(dir, "weights.json.xz"), &weights); err != nil {
		return state, fmt.Errorf("trainer: reading checkpoint weights: %w", err)
	}
	if err := t.Model.SetParameters(weights.Weights, weights.Bias); err != nil {
		return state, err
	}
	return state, nil
}

// SaveState persists the trainer state into the output directory.
func (t *Trainer) SaveState() error {
	if !t.IsWorldProcessZero() {
		return nil
	}
	return writeState(filepath.Join(t.Args.OutputDir, "trainer_state.json"), t.state)
}

func writeState(path string, state State) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeXZ(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func readXZ(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := xz.NewReader(f)
	if err != nil {
		return err
	}
	return json.NewDecoder(r).Decode(v)
}
