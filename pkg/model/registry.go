package model

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"gluetune/pkg/preprocess"
)

// Model is the sequence-classification contract the trainer drives.
type Model interface {
	Config() *Config
	NumLabels() int
	Forward(batch preprocess.Batch) [][]float64
	TrainStep(batch preprocess.Batch, lr float64) float64
	Parameters() ([][]float64, []float64)
	SetParameters(weights [][]float64, bias []float64) error
	Save(dir string) error
}

// Load instantiates a pretrained model from its directory under a resolved
// config. Pretrained weights are adopted when their shape still fits the
// label space; otherwise (a new fine-tuning head) the model starts from a
// fresh initialization.
func Load(dir string, cfg *Config, vocabSize int, regression bool, rng *rand.Rand) (Model, error) {
	if cfg.ModelType != "linear" {
		return nil, fmt.Errorf("model: unsupported model_type %q in %s", cfg.ModelType, dir)
	}
	m := NewLinear(cfg, vocabSize, regression, rng)

	path := filepath.Join(dir, WeightsFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return m, nil
	}
	w, err := readWeights(path)
	if err != nil {
		return nil, fmt.Errorf("model: reading pretrained weights: %w", err)
	}
	if w.VocabSize != vocabSize || w.NumLabels != cfg.NumLabels {
		// Pretrained head does not match the task's label space; keep the
		// fresh head.
		return m, nil
	}
	if err := m.SetParameters(w.Weights, w.Bias); err != nil {
		return nil, err
	}
	return m, nil
}
