package tests

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gluetune/pkg/args"
	"gluetune/pkg/data"
	"gluetune/pkg/export"
	"gluetune/pkg/glue"
	"gluetune/pkg/label"
	"gluetune/pkg/metrics"
	"gluetune/pkg/model"
	"gluetune/pkg/preprocess"
	"gluetune/pkg/report"
	"gluetune/pkg/runctx"
	"gluetune/pkg/tokenize"
	"gluetune/pkg/train"

	"github.com/stretchr/testify/require"
)

func writeTokenizerDir(t *testing.T, words ...string) string {
	t.Helper()
	dir := t.TempDir()
	tokens := append([]string{
		tokenize.PadToken, tokenize.UnkToken, tokenize.ClsToken, tokenize.SepToken,
	}, words...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"),
		[]byte(strings.Join(tokens, "\n")), 0o600))
	return dir
}

func seedTask(t *testing.T, root, task string, splits map[string]string) {
	t.Helper()
	dir := filepath.Join(root, "datasets", "glue", task)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range splits {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(content), 0o600))
	}
}

func TestEndToEndMRPC(t *testing.T) {
	hubRoot := t.TempDir()
	seedTask(t, hubRoot, "mrpc", map[string]string{
		"train": "sentence1,sentence2,label\n" +
			"good day,good day,equivalent\n" +
			"good morning,good morning,equivalent\n" +
			"bad day,good day,not_equivalent\n" +
			"bad morning,good morning,not_equivalent\n",
		"validation": "sentence1,sentence2,label\n" +
			"good day,good day,equivalent\n" +
			"bad day,good day,not_equivalent\n",
		"test": "sentence1,sentence2,label\n" +
			"good morning,good morning,-1\n" +
			"bad morning,good day,-1\n",
	})
	tokDir := writeTokenizerDir(t, "good", "bad", "day", "morning")
	outDir := t.TempDir()

	rc, err := runctx.New(runctx.Options{Seed: 42, OutputDir: outDir, WorldSize: 1})
	require.NoError(t, err)
	defer rc.Close()

	hub, err := data.NewHub(hubRoot)
	require.NoError(t, err)
	ds, err := hub.LoadTask("mrpc")
	require.NoError(t, err)

	task, err := glue.Lookup("mrpc")
	require.NoError(t, err)
	vocab, err := label.Resolve(&task, ds.Split("train"))
	require.NoError(t, err)

	tok, err := tokenize.Load(tokDir)
	require.NoError(t, err)
	cache, err := preprocess.NewCache(t.TempDir())
	require.NoError(t, err)
	runner := &preprocess.Runner{Tokenizer: tok, Vocab: vocab, Cache: cache, Log: rc.Log}

	opts := preprocess.Options{TextKey: task.TextKey, PairKey: task.PairKey, MaxLength: 16, Pad: true}
	trainDS, err := runner.Run(ds.Split("train"), opts)
	require.NoError(t, err)
	evalDS, err := runner.Run(ds.Split("validation"), opts)
	require.NoError(t, err)
	predictDS, err := runner.Run(ds.Split("test"), opts)
	require.NoError(t, err)

	cfg, err := model.LoadConfig(tokDir, vocab.NumLabels(), "mrpc")
	require.NoError(t, err)
	vocab = label.Reconcile(vocab, cfg.Label2ID, true, rc.Log)
	cfg.SetVocabulary(vocab)

	m, err := model.Load(tokDir, cfg, tok.VocabSize(), vocab.Regression, rc.Rand)
	require.NoError(t, err)

	ta := args.DefaultTraining()
	ta.OutputDir = outDir
	ta.NumTrainEpochs = 20
	ta.PerDeviceTrainBatchSize = 4
	ta.LearningRate = 0.5

	trainer := &train.Trainer{
		Model:     m,
		Args:      &ta,
		TrainData: trainDS,
		EvalData:  evalDS,
		Collator:  preprocess.DefaultCollator,
		ComputeMetrics: func(logits [][]float64, refs []float64) (map[string]float64, error) {
			logits, refs = train.FilterLabeled(logits, refs)
			preds := train.Squeeze(logits, false)
			return metrics.Compute(task.Metrics, preds, refs)
		},
		TokenizerDir: tokDir,
		Log:          rc.Log,
		Rand:         rc.Rand,
	}

	result, err := trainer.Train(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 20.0, result.Metrics["epoch"])
	require.NoError(t, trainer.SaveModel(outDir))
	require.NoError(t, trainer.SaveMetrics("train", result.Metrics))

	evalMetrics, err := trainer.Evaluate(context.Background(), evalDS)
	require.NoError(t, err)
	require.Equal(t, 1.0, evalMetrics["eval_accuracy"])
	require.Contains(t, evalMetrics, "eval_f1")
	require.Contains(t, evalMetrics, "eval_combined_score")

	logits, err := trainer.Predict(context.Background(), predictDS.WithoutLabels())
	require.NoError(t, err)
	preds := train.Squeeze(logits, false)
	path := filepath.Join(outDir, report.PredictionsFileName("mrpc"))
	require.NoError(t, report.WritePredictions(path, preds, vocab))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Equal(t, "index\tprediction", lines[0])
	require.Len(t, lines, 3)
	require.Equal(t, "0\tequivalent", lines[1])
	require.Equal(t, "1\tnot_equivalent", lines[2])

	// the exported graph carries the trained parameters
	onnxPath := filepath.Join(outDir, "model.onnx")
	w, b := m.Parameters()
	require.NoError(t, export.ONNX(onnxPath, w, b, ""))
	info, err := os.Stat(onnxPath)
	require.NoError(t, err)
	require.Positive(t, info.Size())

	// the saved model reloads to identical predictions
	reloadedCfg, err := model.LoadConfig(outDir, vocab.NumLabels(), "mrpc")
	require.NoError(t, err)
	reloaded, err := model.Load(outDir, reloadedCfg, tok.VocabSize(), false, rc.Rand)
	require.NoError(t, err)
	again, err := (&train.Trainer{Model: reloaded, Args: &ta, Collator: preprocess.DefaultCollator, Log: rc.Log}).
		Predict(context.Background(), predictDS.WithoutLabels())
	require.NoError(t, err)
	require.Equal(t, logits, again)
}

func TestEndToEndMNLIDoubleEval(t *testing.T) {
	hubRoot := t.TempDir()
	seedTask(t, hubRoot, "mnli", map[string]string{
		"train": "premise,hypothesis,label\n" +
			"cats purr,cats purr,entailment\n" +
			"cats purr,dogs bark,neutral\n" +
			"dogs bark,cats purr,contradiction\n",
		"validation_matched": "premise,hypothesis,label\n" +
			"cats purr,cats purr,entailment\n",
		"validation_mismatched": "premise,hypothesis,label\n" +
			"dogs bark,cats purr,contradiction\n" +
			"cats purr,dogs bark,neutral\n",
	})
	tokDir := writeTokenizerDir(t, "cats", "dogs", "purr", "bark")
	outDir := t.TempDir()

	rc, err := runctx.New(runctx.Options{Seed: 42, OutputDir: outDir, WorldSize: 1})
	require.NoError(t, err)
	defer rc.Close()

	hub, err := data.NewHub(hubRoot)
	require.NoError(t, err)
	ds, err := hub.LoadTask("mnli")
	require.NoError(t, err)

	task, err := glue.Lookup("mnli")
	require.NoError(t, err)
	require.False(t, ds.Has("validation"))
	require.True(t, ds.Has(task.ValidationSplits()...))

	vocab, err := label.Resolve(&task, ds.Split("train"))
	require.NoError(t, err)
	require.Equal(t, 3, vocab.NumLabels())

	tok, err := tokenize.Load(tokDir)
	require.NoError(t, err)
	cache, err := preprocess.NewCache(t.TempDir())
	require.NoError(t, err)
	runner := &preprocess.Runner{Tokenizer: tok, Vocab: vocab, Cache: cache, Log: rc.Log}
	opts := preprocess.Options{TextKey: task.TextKey, PairKey: task.PairKey, MaxLength: 16, Pad: true}

	trainDS, err := runner.Run(ds.Split("train"), opts)
	require.NoError(t, err)

	cfg, err := model.LoadConfig(tokDir, vocab.NumLabels(), "mnli")
	require.NoError(t, err)
	m, err := model.Load(tokDir, cfg, tok.VocabSize(), false, rc.Rand)
	require.NoError(t, err)

	ta := args.DefaultTraining()
	ta.OutputDir = outDir
	ta.NumTrainEpochs = 5
	ta.PerDeviceTrainBatchSize = 3
	ta.LearningRate = 0.5

	trainer := &train.Trainer{
		Model:     m,
		Args:      &ta,
		TrainData: trainDS,
		Collator:  preprocess.DefaultCollator,
		ComputeMetrics: func(logits [][]float64, refs []float64) (map[string]float64, error) {
			logits, refs = train.FilterLabeled(logits, refs)
			return metrics.Compute(task.Metrics, train.Squeeze(logits, false), refs)
		},
		Log:  rc.Log,
		Rand: rc.Rand,
	}
	_, err = trainer.Train(context.Background(), "")
	require.NoError(t, err)

	// evaluation runs once per split, named mnli and mnli-mm
	names := task.ReportNames()
	for i, splitName := range task.ValidationSplits() {
		evalDS, err := runner.Run(ds.Split(splitName), opts)
		require.NoError(t, err)

		evalMetrics, err := trainer.Evaluate(context.Background(), evalDS)
		require.NoError(t, err)
		require.Contains(t, evalMetrics, "eval_accuracy")

		key := "eval"
		if i > 0 {
			key = "eval_" + names[i]
		}
		require.NoError(t, trainer.SaveMetrics(key, evalMetrics))
	}

	_, err = os.Stat(filepath.Join(outDir, "eval_results.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "eval_mnli-mm_results.json"))
	require.NoError(t, err)
}
