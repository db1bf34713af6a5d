package label

import (
	"testing"

	"gluetune/pkg/data"
	"gluetune/pkg/glue"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestResolveFromTask(t *testing.T) {
	task, err := glue.Lookup("sst2")
	require.NoError(t, err)

	vocab, err := Resolve(&task, nil)
	require.NoError(t, err)
	require.False(t, vocab.Regression)
	require.Equal(t, []string{"negative", "positive"}, vocab.Labels)
	require.Equal(t, 2, vocab.NumLabels())
}

func TestResolveRegressionTask(t *testing.T) {
	task, err := glue.Lookup("stsb")
	require.NoError(t, err)

	vocab, err := Resolve(&task, nil)
	require.NoError(t, err)
	require.True(t, vocab.Regression)
	require.Equal(t, 1, vocab.NumLabels())
}

func TestResolveFromTrainSplit(t *testing.T) {
	split := &data.Split{
		Columns: []string{"sentence", "label"},
		Examples: []data.Example{
			{"sentence": "a", "label": "yes"},
			{"sentence": "b", "label": "no"},
		},
	}
	vocab, err := Resolve(nil, split)
	require.NoError(t, err)
	require.Equal(t, []string{"no", "yes"}, vocab.Labels)
}

func TestResolveDetectsRegression(t *testing.T) {
	split := &data.Split{
		Columns: []string{"sentence", "label"},
		Examples: []data.Example{
			{"sentence": "a", "label": "4.5"},
			{"sentence": "b", "label": "0.2"},
		},
	}
	vocab, err := Resolve(nil, split)
	require.NoError(t, err)
	require.True(t, vocab.Regression)
}

func TestResolveWithoutTaskOrSplit(t *testing.T) {
	_, err := Resolve(nil, nil)
	require.Error(t, err)
}

func TestRemap(t *testing.T) {
	vocab, err := Resolve(nil, &data.Split{
		Columns:  []string{"label"},
		Examples: []data.Example{{"label": "negative"}, {"label": "positive"}},
	})
	require.NoError(t, err)

	id, err := vocab.Remap("positive")
	require.NoError(t, err)
	require.Equal(t, 1.0, id)

	// GLUE test splits carry -1 placeholders
	id, err = vocab.Remap(data.SentinelLabel)
	require.NoError(t, err)
	require.Equal(t, float64(Sentinel), id)

	id, err = vocab.Remap("0")
	require.NoError(t, err)
	require.Equal(t, 0.0, id)

	_, err = vocab.Remap("maybe")
	require.Error(t, err)
}

func TestRemapRegression(t *testing.T) {
	vocab := Vocabulary{Regression: true}

	score, err := vocab.Remap("3.8")
	require.NoError(t, err)
	require.Equal(t, 3.8, score)

	_, err = vocab.Remap("high")
	require.Error(t, err)
}

func TestReconcileAdoptsModelOrdering(t *testing.T) {
	task, err := glue.Lookup("mrpc")
	require.NoError(t, err)
	vocab, err := Resolve(&task, nil)
	require.NoError(t, err)

	// model was fine-tuned with the opposite ordering, uppercased
	model := map[string]int{"EQUIVALENT": 0, "NOT_EQUIVALENT": 1}
	out := Reconcile(vocab, model, true, zap.NewNop())
	require.Equal(t, []string{"equivalent", "not_equivalent"}, out.Labels)
	require.Equal(t, 0, out.IDs["equivalent"])
	require.Equal(t, 1, out.IDs["not_equivalent"])
}

func TestReconcileMismatchKeepsDatasetOrdering(t *testing.T) {
	task, err := glue.Lookup("mrpc")
	require.NoError(t, err)
	vocab, err := Resolve(&task, nil)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	model := map[string]int{"positive": 0, "negative": 1}
	out := Reconcile(vocab, model, true, zap.New(core))

	require.Equal(t, vocab.Labels, out.Labels)
	require.Equal(t, 1, logs.FilterMessageSnippet("do not match").Len())
}

func TestReconcileOutOfRangeIDsKeepDatasetOrdering(t *testing.T) {
	task, err := glue.Lookup("mrpc")
	require.NoError(t, err)
	vocab, err := Resolve(&task, nil)
	require.NoError(t, err)

	// names match but the ids skip position 0
	core, logs := observer.New(zapcore.WarnLevel)
	model := map[string]int{"equivalent": 1, "not_equivalent": 2}
	out := Reconcile(vocab, model, true, zap.New(core))

	require.Equal(t, vocab.Labels, out.Labels)
	require.Equal(t, 1, logs.FilterMessageSnippet("do not cover").Len())

	// duplicate ids fall back the same way
	model = map[string]int{"equivalent": 0, "not_equivalent": 0}
	out = Reconcile(vocab, model, true, zap.New(core))
	require.Equal(t, vocab.Labels, out.Labels)
}

func TestReconcileIgnoresDefaultMapping(t *testing.T) {
	task, err := glue.Lookup("mrpc")
	require.NoError(t, err)
	vocab, err := Resolve(&task, nil)
	require.NoError(t, err)

	out := Reconcile(vocab, DefaultModelMapping(2), true, zap.NewNop())
	require.Equal(t, vocab.Labels, out.Labels)
}

func TestReconcileSkipsUnnamedTask(t *testing.T) {
	vocab := Vocabulary{Labels: []string{"a", "b"}, IDs: map[string]int{"a": 0, "b": 1}}
	model := map[string]int{"b": 0, "a": 1}
	out := Reconcile(vocab, model, false, zap.NewNop())
	require.Equal(t, vocab.Labels, out.Labels)
}
