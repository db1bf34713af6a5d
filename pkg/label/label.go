// Package label owns the label vocabulary and its reconciliation between a
// pretrained model's label mapping and the dataset's label set.
package label

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"gluetune/pkg/data"
	"gluetune/pkg/glue"
)

// Sentinel is the integer label id marking unlabeled rows. It survives every
// remap unchanged.
const Sentinel = -1

// Vocabulary is the ordered set of valid label values and its id mapping.
// Regression tasks carry no vocabulary at all.
type Vocabulary struct {
	Regression bool
	Labels     []string
	IDs        map[string]int
}

// NumLabels is the logit width a model needs for this vocabulary.
func (v Vocabulary) NumLabels() int {
	if v.Regression {
		return 1
	}
	return len(v.Labels)
}

// Remap converts a raw label value to its id (or the scalar target for
// regression). The sentinel value passes through unchanged.
func (v Vocabulary) Remap(value string) (float64, error) {
	if value == "" || value == data.SentinelLabel {
		return Sentinel, nil
	}
	if v.Regression {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("label: regression target %q is not numeric", value)
		}
		return f, nil
	}
	if id, ok := v.IDs[value]; ok {
		return float64(id), nil
	}
	// GLUE splits may carry integer ids instead of label names.
	if id, err := strconv.Atoi(value); err == nil && id >= 0 && id < len(v.Labels) {
		return float64(id), nil
	}
	return 0, fmt.Errorf("label: value %q is not in the vocabulary %v", value, v.Labels)
}

// Name returns the label string for an id, for prediction output.
func (v Vocabulary) Name(id int) string {
	if v.Regression || id < 0 || id >= len(v.Labels) {
		return strconv.Itoa(id)
	}
	return v.Labels[id]
}

func fromLabels(labels []string) Vocabulary {
	ids := make(map[string]int, len(labels))
	for i, l := range labels {
		ids[l] = i
	}
	return Vocabulary{Labels: labels, IDs: ids}
}

// Resolve determines the label space for a run: stsb (or a float label dtype
// with no task) is regression; otherwise the vocabulary comes from task
// metadata or the training split's distinct labels sorted for determinism.
func Resolve(task *glue.Task, train *data.Split) (Vocabulary, error) {
	if task != nil {
		if task.Regression {
			return Vocabulary{Regression: true}, nil
		}
		return fromLabels(task.Labels), nil
	}
	if train == nil {
		return Vocabulary{}, fmt.Errorf("label: no task metadata and no train split to derive labels from")
	}
	if train.FloatLabels() {
		return Vocabulary{Regression: true}, nil
	}
	labels := train.UniqueLabels()
	if len(labels) == 0 {
		return Vocabulary{}, fmt.Errorf("label: train split has no labels")
	}
	return fromLabels(labels), nil
}

// DefaultModelMapping is the label2id a pretrained config carries when it was
// never fine-tuned on a named task.
func DefaultModelMapping(numLabels int) map[string]int {
	m := make(map[string]int, numLabels)
	for i := 0; i < numLabels; i++ {
		m[fmt.Sprintf("LABEL_%d", i)] = i
	}
	return m
}

// Reconcile aligns a pretrained model's label ordering with the dataset
// vocabulary. When the model carries a non-default mapping for a named task
// whose label names case-insensitively cover the vocabulary, the model's id
// ordering wins: training weights attached to logit positions must align with
// the ids fed during training. On mismatch it logs a warning and keeps the
// dataset ordering.
func Reconcile(vocab Vocabulary, modelLabel2ID map[string]int, taskNamed bool, log *zap.Logger) Vocabulary {
	if vocab.Regression || !taskNamed || len(modelLabel2ID) == 0 {
		return vocab
	}
	if mappingsEqual(modelLabel2ID, DefaultModelMapping(len(vocab.Labels))) {
		return vocab
	}

	lowered := make(map[string]int, len(modelLabel2ID))
	for name, id := range modelLabel2ID {
		lowered[strings.ToLower(name)] = id
	}

	modelNames := make([]string, 0, len(lowered))
	for name := range lowered {
		modelNames = append(modelNames, name)
	}
	sort.Strings(modelNames)
	datasetNames := make([]string, len(vocab.Labels))
	for i, name := range vocab.Labels {
		datasetNames[i] = strings.ToLower(name)
	}
	sort.Strings(datasetNames)

	if !namesEqual(modelNames, datasetNames) {
		log.Warn("model labels do not match the dataset, ignoring the model ordering",
			zap.Strings("model_labels", modelNames),
			zap.Strings("dataset_labels", datasetNames))
		return vocab
	}

	// The model ids must cover [0, num_labels) exactly before they can be
	// used as positions. config.json is external input.
	seen := make([]bool, len(vocab.Labels))
	for _, id := range lowered {
		if id < 0 || id >= len(seen) || seen[id] {
			log.Warn("model label ids do not cover the label range, ignoring the model ordering",
				zap.Any("model_label2id", modelLabel2ID),
				zap.Int("num_labels", len(vocab.Labels)))
			return vocab
		}
		seen[id] = true
	}

	ordered := make([]string, len(vocab.Labels))
	for _, name := range vocab.Labels {
		ordered[lowered[strings.ToLower(name)]] = name
	}
	return fromLabels(ordered)
}

func mappingsEqual(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func namesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
