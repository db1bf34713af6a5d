package model

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"gluetune/pkg/label"
	"gluetune/pkg/preprocess"
)

// WeightsFile is the name of the weights file inside a model directory.
const WeightsFile = "weights.json.gz"

// Linear is the reference sequence-classification model: a linear softmax
// classifier (single-output regressor for stsb-style tasks) over normalized
// bag-of-token features.
type Linear struct {
	Cfg        *Config
	VocabSize  int
	Regression bool

	weights *mat.Dense // numLabels x vocabSize
	bias    []float64
}

type linearWeights struct {
	VocabSize  int         `json:"vocab_size"`
	NumLabels  int         `json:"num_labels"`
	Regression bool        `json:"regression"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
}

// NewLinear initializes a model with small random weights.
func NewLinear(cfg *Config, vocabSize int, regression bool, rng *rand.Rand) *Linear {
	numLabels := cfg.NumLabels
	w := mat.NewDense(numLabels, vocabSize, nil)
	for i := 0; i < numLabels; i++ {
		for j := 0; j < vocabSize; j++ {
			w.Set(i, j, rng.NormFloat64()*0.01)
		}
	}
	return &Linear{
		Cfg:        cfg,
		VocabSize:  vocabSize,
		Regression: regression,
		weights:    w,
		bias:       make([]float64, numLabels),
	}
}

// Config returns the model configuration.
func (m *Linear) Config() *Config {
	return m.Cfg
}

// NumLabels is the model's logit width.
func (m *Linear) NumLabels() int {
	return m.Cfg.NumLabels
}

func (m *Linear) features(ids, mask []int) []float64 {
	x := make([]float64, m.VocabSize)
	active := 0
	for i, id := range ids {
		if i < len(mask) && mask[i] == 0 {
			continue
		}
		if id >= 0 && id < m.VocabSize {
			x[id]++
			active++
		}
	}
	if active > 0 {
		floats.Scale(1/float64(active), x)
	}
	return x
}

// Forward computes logits for a batch.
func (m *Linear) Forward(batch preprocess.Batch) [][]float64 {
	out := make([][]float64, batch.Size())
	numLabels := m.Cfg.NumLabels
	for i := range batch.InputIDs {
		x := mat.NewVecDense(m.VocabSize, m.features(batch.InputIDs[i], batch.AttentionMask[i]))
		logits := mat.NewVecDense(numLabels, nil)
		logits.MulVec(m.weights, x)
		row := make([]float64, numLabels)
		for c := 0; c < numLabels; c++ {
			row[c] = logits.AtVec(c) + m.bias[c]
		}
		out[i] = row
	}
	return out
}

// TrainStep runs one gradient step over a batch and returns the mean loss.
// Examples carrying the sentinel label are skipped.
func (m *Linear) TrainStep(batch preprocess.Batch, lr float64) float64 {
	logits := m.Forward(batch)
	var total float64
	counted := 0
	for i, row := range logits {
		target := batch.Labels[i]
		if target == label.Sentinel {
			continue
		}
		counted++
		x := m.features(batch.InputIDs[i], batch.AttentionMask[i])

		grad := make([]float64, len(row))
		if m.Regression {
			diff := row[0] - target
			total += diff * diff
			grad[0] = 2 * diff
		} else {
			probs := softmax(row)
			want := int(target)
			total += -math.Log(math.Max(probs[want], 1e-12))
			copy(grad, probs)
			grad[want]--
		}

		for c := range grad {
			if grad[c] == 0 {
				continue
			}
			step := lr * grad[c]
			m.bias[c] -= step
			for v, xv := range x {
				if xv != 0 {
					m.weights.Set(c, v, m.weights.At(c, v)-step*xv)
				}
			}
		}
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

func softmax(logits []float64) []float64 {
	max := floats.Max(logits)
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - max)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// Parameters exposes the weight matrix (numLabels x vocabSize) and bias for
// checkpointing and export.
func (m *Linear) Parameters() ([][]float64, []float64) {
	numLabels := m.Cfg.NumLabels
	w := make([][]float64, numLabels)
	for i := 0; i < numLabels; i++ {
		w[i] = append([]float64(nil), m.weights.RawRowView(i)...)
	}
	return w, append([]float64(nil), m.bias...)
}

// SetParameters replaces the model weights, used by checkpoint resume.
func (m *Linear) SetParameters(weights [][]float64, bias []float64) error {
	if len(weights) != m.Cfg.NumLabels || len(bias) != m.Cfg.NumLabels {
		return fmt.Errorf("model: parameter shape mismatch: have %d labels, got %d rows", m.Cfg.NumLabels, len(weights))
	}
	for i, row := range weights {
		if len(row) != m.VocabSize {
			return fmt.Errorf("model: weight row %d has %d columns, want %d", i, len(row), m.VocabSize)
		}
		m.weights.SetRow(i, row)
	}
	copy(m.bias, bias)
	return nil
}

// Save writes config and weights into a model directory.
func (m *Linear) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := m.Cfg.Save(dir); err != nil {
		return err
	}
	w, b := m.Parameters()
	return writeWeights(filepath.Join(dir, WeightsFile), linearWeights{
		VocabSize:  m.VocabSize,
		NumLabels:  m.Cfg.NumLabels,
		Regression: m.Regression,
		Weights:    w,
		Bias:       b,
	})
}

func writeWeights(path string, w linearWeights) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(w); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func readWeights(path string) (linearWeights, error) {
	var w linearWeights
	f, err := os.Open(path)
	if err != nil {
		return w, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return w, err
	}
	defer gz.Close()
	if err := json.NewDecoder(gz).Decode(&w); err != nil {
		return w, err
	}
	return w, nil
}
