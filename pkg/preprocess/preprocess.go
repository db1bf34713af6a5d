// Package preprocess tokenizes raw dataset splits into model inputs and
// memoizes the result per configuration.
package preprocess

import (
	"fmt"

	"go.uber.org/zap"

	"gluetune/pkg/data"
	"gluetune/pkg/label"
	"gluetune/pkg/tokenize"
)

// Encoded is one preprocessed example: tokenized fields plus the remapped
// label (an id for classification, a scalar for regression, -1 sentinel for
// unlabeled rows).
type Encoded struct {
	InputIDs      []int   `json:"input_ids"`
	AttentionMask []int   `json:"attention_mask"`
	TokenTypeIDs  []int   `json:"token_type_ids"`
	Label         float64 `json:"label"`
}

// Dataset is a materialized preprocessed split.
type Dataset struct {
	Name     string
	Examples []Encoded
	Padded   bool
}

// Len is the number of examples.
func (d *Dataset) Len() int {
	return len(d.Examples)
}

// At returns the example at index i.
func (d *Dataset) At(i int) Encoded {
	return d.Examples[i]
}

// Select returns a view truncated to the first n examples.
func (d *Dataset) Select(n int) *Dataset {
	if n < 0 || n >= len(d.Examples) {
		return d
	}
	return &Dataset{Name: d.Name, Examples: d.Examples[:n], Padded: d.Padded}
}

// WithoutLabels returns a copy with every label reset to the sentinel.
// Prediction must not feed placeholder labels to the inference path.
func (d *Dataset) WithoutLabels() *Dataset {
	examples := make([]Encoded, len(d.Examples))
	for i, e := range d.Examples {
		e.Label = label.Sentinel
		examples[i] = e
	}
	return &Dataset{Name: d.Name, Examples: examples, Padded: d.Padded}
}

// Options fixes one preprocessing configuration.
type Options struct {
	TextKey   string
	PairKey   string
	MaxLength int
	Pad       bool

	// Only the first process populates the shared cache in a multi-process
	// run; the rest recompute without writing.
	ProcessIndex   int
	OverwriteCache bool
}

// Runner preprocesses splits through a tokenizer and vocabulary, reusing
// cached output for a repeated configuration unless overridden.
type Runner struct {
	Tokenizer *tokenize.Tokenizer
	Vocab     label.Vocabulary
	Cache     *Cache
	Log       *zap.Logger
}

// EffectiveMaxLength caps the configured length at the tokenizer's own
// maximum, warning when the request is truncated.
func (r *Runner) EffectiveMaxLength(requested int) int {
	if requested > r.Tokenizer.ModelMaxLength {
		r.Log.Warn("max_seq_length is larger than the maximum the model supports, capping",
			zap.Int("requested", requested),
			zap.Int("model_max_length", r.Tokenizer.ModelMaxLength))
		return r.Tokenizer.ModelMaxLength
	}
	return requested
}

// Run tokenizes one split under the given options.
func (r *Runner) Run(split *data.Split, opts Options) (*Dataset, error) {
	if split == nil {
		return nil, fmt.Errorf("preprocess: no split to process")
	}
	key := r.fingerprint(split, opts)
	if r.Cache != nil && !opts.OverwriteCache {
		if examples, ok := r.Cache.Get(key); ok {
			r.Log.Debug("reusing cached preprocessed split",
				zap.String("split", split.Name), zap.String("key", key))
			return &Dataset{Name: split.Name, Examples: examples, Padded: opts.Pad}, nil
		}
	}

	examples := make([]Encoded, 0, len(split.Examples))
	for i, example := range split.Examples {
		textA := example[opts.TextKey]
		textB := ""
		if opts.PairKey != "" {
			textB = example[opts.PairKey]
		}
		enc := r.Tokenizer.Encode(textA, textB, opts.MaxLength, opts.Pad)

		target := float64(label.Sentinel)
		if value, ok := example[data.LabelColumn]; ok {
			remapped, err := r.Vocab.Remap(value)
			if err != nil {
				return nil, fmt.Errorf("preprocess: split %q row %d: %w", split.Name, i, err)
			}
			target = remapped
		}
		examples = append(examples, Encoded{
			InputIDs:      enc.InputIDs,
			AttentionMask: enc.AttentionMask,
			TokenTypeIDs:  enc.TokenTypeIDs,
			Label:         target,
		})
	}

	if r.Cache != nil && opts.ProcessIndex == 0 {
		if err := r.Cache.Set(key, examples); err != nil {
			r.Log.Warn("failed to cache preprocessed split", zap.Error(err))
		}
	}
	return &Dataset{Name: split.Name, Examples: examples, Padded: opts.Pad}, nil
}
