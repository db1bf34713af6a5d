package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gluetune/pkg/args"
	"gluetune/pkg/compress"
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

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCommand() *cobra.Command {
	dataDefaults := args.DefaultData()
	trainingDefaults := args.DefaultTraining()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a fine-tuning, evaluation, or prediction pass",
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			cfg, err := LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Model.ModelNameOrPath == "" {
				return fmt.Errorf("model-name-or-path is required")
			}
			source, err := cfg.Data.Validate(cfg.Training.DoPredict)
			if err != nil {
				return err
			}
			if err := cfg.Training.Validate(); err != nil {
				return err
			}

			rc, err := runctx.New(runctx.Options{
				Verbose:      verbose,
				Seed:         cfg.Training.Seed,
				OutputDir:    cfg.Training.OutputDir,
				WorldSize:    cfg.Training.WorldSize,
				ProcessIndex: cfg.Training.ProcessIndex,
			})
			if err != nil {
				return err
			}
			defer rc.Close()

			return runPipeline(cmd.Context(), cmd, rc, cfg, source)
		},
	}

	flags := cmd.Flags()
	flags.String("model-name-or-path", "", "pretrained model name or directory")
	flags.String("config-name", "", "pretrained config name or path if different from the model")
	flags.String("tokenizer-name", "", "pretrained tokenizer name or path if different from the model")
	flags.String("cache-dir", "", "directory for downloaded models and datasets")

	flags.String("task-name", "", "GLUE task name ("+strings.Join(glue.Names(), ", ")+")")
	flags.String("dataset-name", "", "dataset name from the hub")
	flags.String("dataset-config-name", "", "dataset configuration name")
	flags.Int("max-seq-length", dataDefaults.MaxSeqLength, "maximum total input sequence length after tokenization")
	flags.Bool("overwrite-cache", false, "overwrite cached preprocessed datasets")
	flags.Bool("pad-to-max-length", dataDefaults.PadToMaxLength, "pad all samples to max-seq-length")
	flags.Int("max-train-samples", 0, "truncate the training set to this many samples (0 = all)")
	flags.Int("max-eval-samples", 0, "truncate the evaluation set to this many samples (0 = all)")
	flags.Int("max-predict-samples", 0, "truncate the prediction set to this many samples (0 = all)")
	flags.String("train-file", "", "csv or json file with the training data")
	flags.String("validation-file", "", "csv or json file with the validation data")
	flags.String("test-file", "", "csv or json file with the test data")

	flags.String("output-dir", "", "directory for checkpoints and results")
	flags.Bool("overwrite-output-dir", false, "train from scratch even if output-dir has checkpoints")
	flags.Bool("do-train", false, "run training")
	flags.Bool("do-eval", false, "run evaluation on the validation set")
	flags.Bool("do-predict", false, "run prediction on the test set")
	flags.Bool("push-to-hub", false, "publish the trained model to the local hub")
	flags.Int("num-train-epochs", trainingDefaults.NumTrainEpochs, "number of training epochs")
	flags.Float64("learning-rate", trainingDefaults.LearningRate, "initial learning rate")
	flags.Int("per-device-train-batch-size", trainingDefaults.PerDeviceTrainBatchSize, "training batch size")
	flags.Int("per-device-eval-batch-size", trainingDefaults.PerDeviceEvalBatchSize, "evaluation batch size")
	flags.Int64("seed", trainingDefaults.Seed, "random seed")
	flags.String("resume-from-checkpoint", "", "checkpoint directory to resume training from")
	flags.Int("world-size", trainingDefaults.WorldSize, "number of cooperating processes")
	flags.Int("process-index", 0, "index of this process in the world")
	flags.Int("local-rank", trainingDefaults.LocalRank, "local rank for distributed runs (-1 = single process)")
	flags.Bool("use-legacy-prediction-loop", false, "use the legacy distributed prediction sampler")
	flags.Bool("dataloader-drop-last", false, "drop the last incomplete training batch")
	flags.String("nncf-config", "", "compression configuration file")
	flags.String("to-onnx", "", "export the model to this ONNX file after loading")

	return cmd
}

// evalSet pairs a preprocessed dataset with the name used in reports and
// result files. MNLI contributes two: matched and mismatched.
type evalSet struct {
	name string
	ds   *preprocess.Dataset
}

func runPipeline(ctx context.Context, cmd *cobra.Command, rc *runctx.RunContext, cfg Config, source args.DataSource) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := rc.Log
	ma, da, ta := cfg.Model, cfg.Data, cfg.Training

	log.Info("starting run",
		zap.String("run_id", rc.RunID),
		zap.Int("world_size", rc.WorldSize),
		zap.Int("process_index", rc.ProcessIndex),
		zap.Int64("seed", ta.Seed),
		zap.Bool("do_train", ta.DoTrain),
		zap.Bool("do_eval", ta.DoEval),
		zap.Bool("do_predict", ta.DoPredict))

	lastCheckpoint, err := detectCheckpoint(&ta, log)
	if err != nil {
		return err
	}

	hub, err := data.NewHub(ma.CacheDir)
	if err != nil {
		return err
	}

	ds, err := acquireDataset(hub, &da, source)
	if err != nil {
		return err
	}

	var task *glue.Task
	if source == args.SourceTask {
		t, err := glue.Lookup(da.TaskName)
		if err != nil {
			return err
		}
		task = &t
	}

	trainSplit := ds.Split("train")
	if ta.DoTrain && trainSplit == nil {
		return fmt.Errorf("do_train requires a train dataset")
	}
	evalNames, testNames, reportNames := splitNames(task)
	if ta.DoEval {
		for _, name := range evalNames {
			if ds.Split(name) == nil {
				return fmt.Errorf("do_eval requires a %s dataset", name)
			}
		}
	}
	if ta.DoPredict {
		for _, name := range testNames {
			if ds.Split(name) == nil {
				return fmt.Errorf("do_predict requires a %s dataset", name)
			}
		}
	}

	vocab, err := label.Resolve(task, trainSplit)
	if err != nil {
		return err
	}

	configDir, err := hub.ModelDir(firstNonEmpty(ma.ConfigName, ma.ModelNameOrPath))
	if err != nil {
		return err
	}
	modelDir, err := hub.ModelDir(ma.ModelNameOrPath)
	if err != nil {
		return err
	}
	tokenizerDir, err := hub.ModelDir(firstNonEmpty(ma.TokenizerName, ma.ModelNameOrPath))
	if err != nil {
		return err
	}

	mcfg, err := model.LoadConfig(configDir, vocab.NumLabels(), da.TaskName)
	if err != nil {
		return err
	}
	vocab = label.Reconcile(vocab, mcfg.Label2ID, task != nil, log)
	mcfg.SetVocabulary(vocab)

	tok, err := tokenize.Load(tokenizerDir)
	if err != nil {
		return err
	}
	cacheDir := ma.CacheDir
	if cacheDir != "" {
		cacheDir = filepath.Join(cacheDir, "cache")
	}
	cache, err := preprocess.NewCache(cacheDir)
	if err != nil {
		return err
	}
	runner := &preprocess.Runner{Tokenizer: tok, Vocab: vocab, Cache: cache, Log: log}

	textKey, pairKey := "", ""
	if task != nil {
		textKey, pairKey = task.TextKey, task.PairKey
	} else {
		probe := trainSplit
		if probe == nil {
			probe = anySplit(ds)
		}
		textKey, pairKey, err = probe.TextColumns()
		if err != nil {
			return err
		}
	}
	opts := preprocess.Options{
		TextKey:        textKey,
		PairKey:        pairKey,
		MaxLength:      runner.EffectiveMaxLength(da.MaxSeqLength),
		Pad:            da.PadToMaxLength,
		ProcessIndex:   ta.ProcessIndex,
		OverwriteCache: da.OverwriteCache,
	}

	var trainDS *preprocess.Dataset
	if ta.DoTrain {
		trainDS, err = runner.Run(trainSplit, opts)
		if err != nil {
			return err
		}
		if da.MaxTrainSamples > 0 {
			trainDS = trainDS.Select(da.MaxTrainSamples)
		}
	}
	var evalSets []evalSet
	if ta.DoEval {
		for i, name := range evalNames {
			encoded, err := runner.Run(ds.Split(name), opts)
			if err != nil {
				return err
			}
			if da.MaxEvalSamples > 0 {
				encoded = encoded.Select(da.MaxEvalSamples)
			}
			evalSets = append(evalSets, evalSet{name: reportNames[i], ds: encoded})
		}
	}
	var predictSets []evalSet
	if ta.DoPredict {
		for i, name := range testNames {
			encoded, err := runner.Run(ds.Split(name), opts)
			if err != nil {
				return err
			}
			if da.MaxPredictSamples > 0 {
				encoded = encoded.Select(da.MaxPredictSamples)
			}
			predictSets = append(predictSets, evalSet{name: reportNames[i], ds: encoded.WithoutLabels()})
		}
	}

	collate := preprocess.DefaultCollator
	if !da.PadToMaxLength {
		collate = preprocess.PaddingCollator(tok.PadID())
	}

	var ctrl *compress.Controller
	if ta.NNCFConfig != "" {
		ctrl, err = calibrateCompression(rc, &ta, da.TaskName, trainDS, firstEval(evalSets), collate)
		if err != nil {
			return err
		}
		log.Info("compression calibrated", zap.String("state", ctrl.Annotation()))
	}

	m, err := model.Load(modelDir, mcfg, tok.VocabSize(), vocab.Regression, rc.Rand)
	if err != nil {
		return err
	}

	if ta.ToONNX != "" && rc.IsWorldProcessZero() {
		weights, bias := m.Parameters()
		doc := ""
		if ctrl != nil {
			doc = ctrl.Annotation()
		}
		if err := export.ONNX(ta.ToONNX, weights, bias, doc); err != nil {
			return err
		}
		log.Info("exported model to onnx", zap.String("path", ta.ToONNX))
	}

	metricNames := []string{"accuracy"}
	if task != nil {
		metricNames = task.Metrics
	} else if vocab.Regression {
		metricNames = []string{"mse"}
	}
	computeMetrics := func(logits [][]float64, refs []float64) (map[string]float64, error) {
		logits, refs = train.FilterLabeled(logits, refs)
		preds := train.Squeeze(logits, vocab.Regression)
		return metrics.Compute(metricNames, preds, refs)
	}

	progress := newProgressBar(progressWriter(cmd))
	trainer := &train.Trainer{
		Model:          m,
		Args:           &ta,
		TrainData:      trainDS,
		EvalData:       firstEval(evalSets),
		Collator:       collate,
		ComputeMetrics: computeMetrics,
		TokenizerDir:   tokenizerDir,
		Log:            log,
		Rand:           rc.Rand,
		Progress:       progress.Update,
	}

	if ta.DoTrain {
		resume := ta.ResumeFromCheckpoint
		if resume == "" {
			resume = lastCheckpoint
		}
		result, err := trainer.Train(ctx, resume)
		if err != nil {
			return err
		}
		progress.Finish()
		trainMetrics := result.Metrics
		trainMetrics["train_samples"] = float64(trainDS.Len())

		if err := trainer.SaveModel(ta.OutputDir); err != nil {
			return err
		}
		trainer.LogMetrics("train", trainMetrics)
		if err := trainer.SaveMetrics("train", trainMetrics); err != nil {
			return err
		}
		if err := trainer.SaveState(); err != nil {
			return err
		}
	}

	if ta.DoEval {
		log.Info("*** Evaluate ***")
		for i, set := range evalSets {
			evalMetrics, err := trainer.Evaluate(ctx, set.ds)
			if err != nil {
				return err
			}
			evalMetrics["eval_samples"] = float64(set.ds.Len())
			key := "eval"
			if i > 0 {
				key = "eval_" + set.name
			}
			trainer.LogMetrics(key, evalMetrics)
			if err := trainer.SaveMetrics(key, evalMetrics); err != nil {
				return err
			}
			report.WriteMetricsTable(cmd.OutOrStdout(), set.name, evalMetrics)
		}
	}

	if ta.DoPredict {
		log.Info("*** Predict ***")
		for _, set := range predictSets {
			logits, err := trainer.Predict(ctx, set.ds)
			if err != nil {
				return err
			}
			preds := train.Squeeze(logits, vocab.Regression)
			if trainer.IsWorldProcessZero() {
				path := filepath.Join(ta.OutputDir, report.PredictionsFileName(set.name))
				if err := report.WritePredictions(path, preds, vocab); err != nil {
					return err
				}
				log.Info("predictions written",
					zap.String("task", set.name),
					zap.String("path", path),
					zap.Int("samples", len(preds)))
			}
		}
	}

	if ta.PushToHub && rc.IsWorldProcessZero() {
		card := map[string]string{
			"finetuned_from": ma.ModelNameOrPath,
			"tasks":          "text-classification",
			"language":       "en",
		}
		if da.TaskName != "" {
			card["dataset_tags"] = "glue"
			card["dataset_args"] = da.TaskName
			card["dataset"] = "GLUE " + strings.ToUpper(da.TaskName)
		}
		name := filepath.Base(ta.OutputDir)
		if err := hub.PushModel(ta.OutputDir, name, card); err != nil {
			return err
		}
		log.Info("model pushed to hub", zap.String("name", name))
	}

	return nil
}

// detectCheckpoint guards against silently clobbering a populated output
// directory and finds the checkpoint to resume from.
func detectCheckpoint(ta *args.TrainingArguments, log *zap.Logger) (string, error) {
	if !ta.DoTrain || ta.OverwriteOutputDir {
		return "", nil
	}
	info, err := os.Stat(ta.OutputDir)
	if err != nil || !info.IsDir() {
		return "", nil
	}
	last := train.GetLastCheckpoint(ta.OutputDir)
	if last == "" {
		entries, err := os.ReadDir(ta.OutputDir)
		if err != nil {
			return "", err
		}
		if len(entries) > 0 {
			return "", fmt.Errorf("output directory %s already exists and is not empty, use --overwrite-output-dir to train from scratch", ta.OutputDir)
		}
		return "", nil
	}
	if ta.ResumeFromCheckpoint == "" {
		log.Info("checkpoint detected, resuming training",
			zap.String("checkpoint", last))
	}
	return last, nil
}

func acquireDataset(hub *data.Hub, da *args.DataArguments, source args.DataSource) (*data.Dataset, error) {
	switch source {
	case args.SourceTask:
		return hub.LoadTask(da.TaskName)
	case args.SourceHub:
		return hub.LoadDataset(da.DatasetName, da.DatasetConfigName)
	default:
		files := map[string]string{"train": da.TrainFile, "validation": da.ValidationFile}
		if da.TestFile != "" {
			files["test"] = da.TestFile
		}
		return data.LoadFiles(files)
	}
}

// splitNames yields the validation and test split names and the matching
// report names. For runs without task metadata the splits carry the plain
// names from the input files.
func splitNames(task *glue.Task) (evalNames, testNames, reportNames []string) {
	if task == nil {
		return []string{"validation"}, []string{"test"}, []string{"glue"}
	}
	return task.ValidationSplits(), task.TestSplits(), task.ReportNames()
}

// calibrateCompression builds the calibration loaders for the run's phases
// and consumes the compression config. Separate loaders keep the range and
// batch-norm passes independent.
func calibrateCompression(rc *runctx.RunContext, ta *args.TrainingArguments, taskName string, trainDS, evalDS *preprocess.Dataset, collate preprocess.Collator) (*compress.Controller, error) {
	ccfg, err := compress.FromJSON(ta.NNCFConfig)
	if err != nil {
		return nil, err
	}
	if ccfg.LogDir == "" {
		ccfg.LogDir = ta.OutputDir
	}
	if rc.IsWorldProcessZero() && ccfg.LogDir != "" {
		if err := os.MkdirAll(ccfg.LogDir, 0o755); err != nil {
			return nil, err
		}
	}
	adapter, err := compress.NewAdapter(taskName)
	if err != nil {
		return nil, err
	}

	topo := ta.Topology()
	switch {
	case trainDS != nil:
		rangeLoader := compress.NewTrainInitLoader(topo, trainDS, adapter, collate, ta.PerDeviceTrainBatchSize)
		bnLoader := compress.NewTrainInitLoader(topo, trainDS, adapter, collate, ta.PerDeviceTrainBatchSize)
		ccfg.RegisterExtraStructs(
			compress.QuantizationRangeInitArgs{Loader: rangeLoader},
			compress.BNAdaptationInitArgs{Loader: bnLoader},
		)
	case evalDS != nil:
		rangeLoader := compress.NewEvalInitLoader(topo, evalDS, adapter, collate, ta.PerDeviceEvalBatchSize)
		bnLoader := compress.NewEvalInitLoader(topo, evalDS, adapter, collate, ta.PerDeviceEvalBatchSize)
		ccfg.RegisterExtraStructs(
			compress.QuantizationRangeInitArgs{Loader: rangeLoader},
			compress.BNAdaptationInitArgs{Loader: bnLoader},
		)
	default:
		return nil, fmt.Errorf("compression calibration needs a train or validation dataset")
	}

	ctrl, err := compress.Calibrate(ccfg)
	if err != nil {
		return nil, err
	}
	if ta.WorldSize > 1 {
		ctrl.Distributed()
	}
	return ctrl, nil
}

func firstEval(sets []evalSet) *preprocess.Dataset {
	if len(sets) == 0 {
		return nil
	}
	return sets[0].ds
}

func anySplit(ds *data.Dataset) *data.Split {
	for _, split := range ds.Splits {
		return split
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type progressBar struct {
	writer io.Writer
	start  time.Time
	isTTY  bool
	done   bool
}

func newProgressBar(writer io.Writer) *progressBar {
	return &progressBar{
		writer: writer,
		start:  time.Now(),
		isTTY:  isTerminal(writer),
	}
}

func (p *progressBar) Update(epoch, step, totalSteps int) {
	width := 30
	ratio := 0.0
	if totalSteps > 0 {
		ratio = float64(step) / float64(totalSteps)
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))

	bar := strings.Repeat("=", filled) + strings.Repeat(".", width-filled)
	percent := int(ratio * 100)
	elapsed := time.Since(p.start).Truncate(time.Second)

	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	line := fmt.Sprintf("epoch %d [%s] %3d%% (%d/%d) %s", epoch, barStyle.Render(bar), percent, step, totalSteps, elapsed)
	if p.isTTY {
		fmt.Fprintf(p.writer, "\r%s", line)
	} else {
		fmt.Fprintf(p.writer, "%s\n", line)
	}
}

func (p *progressBar) Finish() {
	if p.done || !p.isTTY {
		return
	}
	p.done = true
	fmt.Fprintln(p.writer)
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func progressWriter(cmd *cobra.Command) io.Writer {
	stderr := cmd.ErrOrStderr()
	stdout := cmd.OutOrStdout()

	if isTerminal(stderr) {
		return stderr
	}
	if isTerminal(stdout) {
		return stdout
	}
	return stderr
}
