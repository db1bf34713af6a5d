// Package train drives the optimization loop, evaluation, and prediction
// over preprocessed datasets. The orchestration layer treats it as an
// external engine: model in, metrics and checkpoints out.
package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"gluetune/pkg/args"
	"gluetune/pkg/label"
	"gluetune/pkg/model"
	"gluetune/pkg/preprocess"
	"gluetune/pkg/sampler"
)

// MetricsFunc turns raw logits and reference labels into named metrics.
type MetricsFunc func(logits [][]float64, refs []float64) (map[string]float64, error)

// Trainer runs training, evaluation, and prediction for one model.
type Trainer struct {
	Model          model.Model
	Args           *args.TrainingArguments
	TrainData      *preprocess.Dataset
	EvalData       *preprocess.Dataset
	Collator       preprocess.Collator
	ComputeMetrics MetricsFunc
	TokenizerDir   string
	Log            *zap.Logger
	Rand           *rand.Rand
	Progress       func(epoch, step, totalSteps int)

	state State
}

// State is the trainer's persisted progress, written alongside checkpoints.
type State struct {
	GlobalStep     int     `json:"global_step"`
	Epoch          int     `json:"epoch"`
	TrainLoss      float64 `json:"train_loss"`
	BestCheckpoint string  `json:"best_checkpoint,omitempty"`
}

// TrainResult reports the outcome of the training phase.
type TrainResult struct {
	Metrics    map[string]float64
	GlobalStep int
}

// Train runs the optimization loop, optionally resuming from a checkpoint
// directory, writing one checkpoint per epoch.
func (t *Trainer) Train(ctx context.Context, resumeFrom string) (TrainResult, error) {
	if t.TrainData == nil {
		return TrainResult{}, errors.New("trainer: training requires a train dataset")
	}
	rng := t.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(t.Args.Seed))
	}

	startEpoch := 0
	if resumeFrom != "" {
		state, err := t.loadCheckpoint(resumeFrom)
		if err != nil {
			return TrainResult{}, err
		}
		t.state = state
		startEpoch = state.Epoch
		t.Log.Info("resuming from checkpoint",
			zap.String("checkpoint", resumeFrom), zap.Int("epoch", startEpoch))
	}

	batchSize := t.Args.PerDeviceTrainBatchSize
	if batchSize <= 0 {
		batchSize = 8
	}
	n := t.TrainData.Len()
	stepsPerEpoch := n / batchSize
	if n%batchSize != 0 && !t.Args.DataloaderDropLast {
		stepsPerEpoch++
	}
	totalSteps := stepsPerEpoch * t.Args.NumTrainEpochs

	var lastLoss float64
	for epoch := startEpoch; epoch < t.Args.NumTrainEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return TrainResult{}, err
		}
		indices := rng.Perm(n)
		var epochLoss float64
		steps := 0
		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				if t.Args.DataloaderDropLast {
					break
				}
				end = n
			}
			examples := make([]preprocess.Encoded, 0, end-start)
			for _, idx := range indices[start:end] {
				examples = append(examples, t.TrainData.At(idx))
			}
			epochLoss += t.Model.TrainStep(t.Collator(examples), t.Args.LearningRate)
			steps++
			t.state.GlobalStep++
			if t.Progress != nil {
				t.Progress(epoch, t.state.GlobalStep, totalSteps)
			}
		}
		if steps > 0 {
			lastLoss = epochLoss / float64(steps)
		}
		t.state.Epoch = epoch + 1
		t.state.TrainLoss = lastLoss
		t.Log.Info("epoch complete",
			zap.Int("epoch", epoch), zap.Float64("loss", lastLoss))

		if t.IsWorldProcessZero() {
			if err := t.saveCheckpoint(); err != nil {
				return TrainResult{}, err
			}
		}
	}

	return TrainResult{
		Metrics: map[string]float64{
			"train_loss": lastLoss,
			"epoch":      float64(t.state.Epoch),
		},
		GlobalStep: t.state.GlobalStep,
	}, nil
}

// Evaluate computes metrics over a dataset using the evaluation sampling
// policy for this process.
func (t *Trainer) Evaluate(ctx context.Context, ds *preprocess.Dataset) (map[string]float64, error) {
	if ds == nil {
		return nil, errors.New("trainer: evaluation requires an eval dataset")
	}
	logits, refs, err := t.forwardAll(ctx, ds, true)
	if err != nil {
		return nil, err
	}
	metrics, err := t.ComputeMetrics(logits, refs)
	if err != nil {
		return nil, err
	}
	prefixed := make(map[string]float64, len(metrics))
	for name, value := range metrics {
		prefixed["eval_"+name] = value
	}
	return prefixed, nil
}

// Predict returns raw logits for a dataset, ignoring labels entirely.
func (t *Trainer) Predict(ctx context.Context, ds *preprocess.Dataset) ([][]float64, error) {
	logits, _, err := t.forwardAll(ctx, ds, false)
	return logits, err
}

func (t *Trainer) forwardAll(ctx context.Context, ds *preprocess.Dataset, withRefs bool) ([][]float64, []float64, error) {
	batchSize := t.Args.PerDeviceEvalBatchSize
	if batchSize <= 0 {
		batchSize = 8
	}
	indices := sampler.ForEval(t.Args.Topology(), ds.Len()).Indices()

	var logits [][]float64
	var refs []float64
	for start := 0; start < len(indices); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := start + batchSize
		if end > len(indices) {
			end = len(indices)
		}
		examples := make([]preprocess.Encoded, 0, end-start)
		for _, idx := range indices[start:end] {
			examples = append(examples, ds.At(idx))
		}
		batch := t.Collator(examples)
		logits = append(logits, t.Model.Forward(batch)...)
		if withRefs {
			refs = append(refs, batch.Labels...)
		}
	}
	return logits, refs, nil
}

// SaveModel writes the model and its tokenizer files into a directory.
func (t *Trainer) SaveModel(dir string) error {
	if !t.IsWorldProcessZero() {
		return nil
	}
	if err := t.Model.Save(dir); err != nil {
		return err
	}
	if t.TokenizerDir == "" || t.TokenizerDir == dir {
		return nil
	}
	for _, name := range []string{"vocab.txt", "tokenizer_config.json"} {
		src := filepath.Join(t.TokenizerDir, name)
		raw, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("trainer: copying tokenizer file %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// IsWorldProcessZero reports whether this process owns shared file writes.
func (t *Trainer) IsWorldProcessZero() bool {
	return t.Args.ProcessIndex == 0
}

// Squeeze reduces logits to final predictions: argmax for classification,
// the single output for regression.
func Squeeze(logits [][]float64, regression bool) []float64 {
	out := make([]float64, len(logits))
	for i, row := range logits {
		if regression {
			out[i] = row[0]
			continue
		}
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		out[i] = float64(best)
	}
	return out
}

// FilterLabeled drops sentinel-labeled pairs before metric computation.
func FilterLabeled(logits [][]float64, refs []float64) ([][]float64, []float64) {
	outLogits := make([][]float64, 0, len(logits))
	outRefs := make([]float64, 0, len(refs))
	for i := range logits {
		if refs[i] == label.Sentinel {
			continue
		}
		outLogits = append(outLogits, logits[i])
		outRefs = append(outRefs, refs[i])
	}
	return outLogits, outRefs
}
