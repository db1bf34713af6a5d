package glue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupCaseInsensitive(t *testing.T) {
	task, err := Lookup("MRPC")
	require.NoError(t, err)
	require.Equal(t, "mrpc", task.Name)
	require.Equal(t, "sentence1", task.TextKey)
	require.Equal(t, "sentence2", task.PairKey)
	require.Equal(t, 2, task.NumLabels())
}

func TestLookupUnknownTask(t *testing.T) {
	_, err := Lookup("squad")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown task")
	require.Contains(t, err.Error(), "cola")
}

func TestRegressionTask(t *testing.T) {
	task, err := Lookup("stsb")
	require.NoError(t, err)
	require.True(t, task.Regression)
	require.Equal(t, 1, task.NumLabels())
	require.Nil(t, task.Labels)
	require.Equal(t, []string{"pearson", "spearmanr"}, task.Metrics)
}

func TestMNLISplits(t *testing.T) {
	task, err := Lookup("mnli")
	require.NoError(t, err)
	require.Equal(t, []string{"validation_matched", "validation_mismatched"}, task.ValidationSplits())
	require.Equal(t, []string{"test_matched", "test_mismatched"}, task.TestSplits())
	require.Equal(t, []string{"mnli", "mnli-mm"}, task.ReportNames())
}

func TestSingleValidationSplit(t *testing.T) {
	task, err := Lookup("sst2")
	require.NoError(t, err)
	require.Equal(t, []string{"validation"}, task.ValidationSplits())
	require.Equal(t, []string{"sst2"}, task.ReportNames())
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	require.Len(t, names, 9)
	require.Equal(t, "cola", names[0])
	require.Equal(t, "wnli", names[len(names)-1])
}
