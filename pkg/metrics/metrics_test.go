package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccuracy(t *testing.T) {
	preds := []float64{1, 0, 1, 1}
	refs := []float64{1, 0, 0, 1}
	require.Equal(t, 0.75, Accuracy(preds, refs))
	require.Equal(t, 0.0, Accuracy(nil, nil))
}

func TestF1(t *testing.T) {
	preds := []float64{1, 1, 0, 1}
	refs := []float64{1, 0, 1, 1}
	// tp=2 fp=1 fn=1: precision=recall=2/3
	require.InDelta(t, 2.0/3.0, F1(preds, refs), 1e-9)
	require.Equal(t, 0.0, F1([]float64{0, 0}, []float64{1, 1}))
}

func TestMatthewsCorrelation(t *testing.T) {
	perfect := []float64{1, 0, 1, 0}
	require.InDelta(t, 1.0, MatthewsCorrelation(perfect, perfect), 1e-9)

	inverted := []float64{0, 1, 0, 1}
	require.InDelta(t, -1.0, MatthewsCorrelation(perfect, inverted), 1e-9)

	require.Equal(t, 0.0, MatthewsCorrelation([]float64{1, 1}, []float64{1, 1}))
}

func TestPearson(t *testing.T) {
	preds := []float64{1, 2, 3, 4}
	refs := []float64{2, 4, 6, 8}
	require.InDelta(t, 1.0, Pearson(preds, refs), 1e-9)

	require.InDelta(t, -1.0, Pearson(preds, []float64{8, 6, 4, 2}), 1e-9)
}

func TestSpearman(t *testing.T) {
	// monotone but non-linear: rank correlation is exactly 1
	preds := []float64{1, 2, 3, 4}
	refs := []float64{1, 10, 100, 1000}
	require.InDelta(t, 1.0, Spearman(preds, refs), 1e-9)
}

func TestSpearmanTies(t *testing.T) {
	preds := []float64{1, 2, 2, 3}
	refs := []float64{1, 2, 2, 3}
	require.InDelta(t, 1.0, Spearman(preds, refs), 1e-9)
}

func TestMSE(t *testing.T) {
	preds := []float64{1, 2, 3}
	refs := []float64{1, 3, 5}
	require.InDelta(t, 5.0/3.0, MSE(preds, refs), 1e-9)
}

func TestComputeCombinedScore(t *testing.T) {
	preds := []float64{1, 0, 1, 1}
	refs := []float64{1, 0, 1, 1}
	out, err := Compute([]string{"accuracy", "f1"}, preds, refs)
	require.NoError(t, err)
	require.Equal(t, 1.0, out["accuracy"])
	require.Equal(t, 1.0, out["f1"])
	require.Equal(t, 1.0, out["combined_score"])
}

func TestComputeSingleMetricNoCombined(t *testing.T) {
	out, err := Compute([]string{"accuracy"}, []float64{1}, []float64{1})
	require.NoError(t, err)
	require.NotContains(t, out, "combined_score")
}

func TestComputeLengthMismatch(t *testing.T) {
	_, err := Compute([]string{"accuracy"}, []float64{1, 0}, []float64{1})
	require.Error(t, err)
}

func TestComputeUnknownMetric(t *testing.T) {
	_, err := Compute([]string{"bleu"}, []float64{1}, []float64{1})
	require.Error(t, err)
}
