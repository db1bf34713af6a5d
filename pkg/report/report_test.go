package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gluetune/pkg/glue"
	"gluetune/pkg/label"

	"github.com/stretchr/testify/require"
)

func TestPredictionsFileName(t *testing.T) {
	require.Equal(t, "predict_results_mrpc.txt", PredictionsFileName("mrpc"))
	require.Equal(t, "predict_results_mnli-mm.txt", PredictionsFileName("mnli-mm"))
}

func TestWritePredictionsClassification(t *testing.T) {
	task, err := glue.Lookup("sst2")
	require.NoError(t, err)
	vocab, err := label.Resolve(&task, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), PredictionsFileName("sst2"))
	require.NoError(t, WritePredictions(path, []float64{1, 0, 1}, vocab))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Equal(t, "index\tprediction", lines[0])
	require.Equal(t, "0\tpositive", lines[1])
	require.Equal(t, "1\tnegative", lines[2])
	require.Equal(t, "2\tpositive", lines[3])
}

func TestWritePredictionsRegression(t *testing.T) {
	vocab := label.Vocabulary{Regression: true}

	path := filepath.Join(t.TempDir(), PredictionsFileName("stsb"))
	require.NoError(t, WritePredictions(path, []float64{2.54321, 0}, vocab))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Equal(t, "0\t2.543", lines[1])
	require.Equal(t, "1\t0.000", lines[2])
}

func TestWriteMetricsTable(t *testing.T) {
	var buf bytes.Buffer
	WriteMetricsTable(&buf, "mrpc", map[string]float64{
		"eval_accuracy": 0.85,
		"eval_f1":       0.9,
	})
	out := buf.String()
	require.Contains(t, out, "eval_accuracy")
	require.Contains(t, out, "0.8500")
	require.Contains(t, out, "eval_f1")
}
