// Package args holds the three configuration records of a run and their
// fail-fast validation.
package args

import (
	"errors"
	"fmt"
	"strings"

	"gluetune/pkg/data"
	"gluetune/pkg/glue"
	"gluetune/pkg/sampler"
)

// ModelArguments selects which model/config/tokenizer to fine-tune from.
type ModelArguments struct {
	ModelNameOrPath string `mapstructure:"model_name_or_path" json:"model_name_or_path"`
	ConfigName      string `mapstructure:"config_name" json:"config_name"`
	TokenizerName   string `mapstructure:"tokenizer_name" json:"tokenizer_name"`
	CacheDir        string `mapstructure:"cache_dir" json:"cache_dir"`
}

// DataArguments selects the task or data files and preprocessing knobs.
type DataArguments struct {
	TaskName          string `mapstructure:"task_name" json:"task_name"`
	DatasetName       string `mapstructure:"dataset_name" json:"dataset_name"`
	DatasetConfigName string `mapstructure:"dataset_config_name" json:"dataset_config_name"`
	MaxSeqLength      int    `mapstructure:"max_seq_length" json:"max_seq_length"`
	OverwriteCache    bool   `mapstructure:"overwrite_cache" json:"overwrite_cache"`
	PadToMaxLength    bool   `mapstructure:"pad_to_max_length" json:"pad_to_max_length"`
	MaxTrainSamples   int    `mapstructure:"max_train_samples" json:"max_train_samples"`
	MaxEvalSamples    int    `mapstructure:"max_eval_samples" json:"max_eval_samples"`
	MaxPredictSamples int    `mapstructure:"max_predict_samples" json:"max_predict_samples"`
	TrainFile         string `mapstructure:"train_file" json:"train_file"`
	ValidationFile    string `mapstructure:"validation_file" json:"validation_file"`
	TestFile          string `mapstructure:"test_file" json:"test_file"`
}

// TrainingArguments carries the training hyperparameters and phase flags.
type TrainingArguments struct {
	OutputDir               string  `mapstructure:"output_dir" json:"output_dir"`
	OverwriteOutputDir      bool    `mapstructure:"overwrite_output_dir" json:"overwrite_output_dir"`
	DoTrain                 bool    `mapstructure:"do_train" json:"do_train"`
	DoEval                  bool    `mapstructure:"do_eval" json:"do_eval"`
	DoPredict               bool    `mapstructure:"do_predict" json:"do_predict"`
	PushToHub               bool    `mapstructure:"push_to_hub" json:"push_to_hub"`
	NumTrainEpochs          int     `mapstructure:"num_train_epochs" json:"num_train_epochs"`
	LearningRate            float64 `mapstructure:"learning_rate" json:"learning_rate"`
	PerDeviceTrainBatchSize int     `mapstructure:"per_device_train_batch_size" json:"per_device_train_batch_size"`
	PerDeviceEvalBatchSize  int     `mapstructure:"per_device_eval_batch_size" json:"per_device_eval_batch_size"`
	Seed                    int64   `mapstructure:"seed" json:"seed"`
	ResumeFromCheckpoint    string  `mapstructure:"resume_from_checkpoint" json:"resume_from_checkpoint"`
	WorldSize               int     `mapstructure:"world_size" json:"world_size"`
	ProcessIndex            int     `mapstructure:"process_index" json:"process_index"`
	LocalRank               int     `mapstructure:"local_rank" json:"local_rank"`
	UseLegacyPredictionLoop bool    `mapstructure:"use_legacy_prediction_loop" json:"use_legacy_prediction_loop"`
	DataloaderDropLast      bool    `mapstructure:"dataloader_drop_last" json:"dataloader_drop_last"`
	NNCFConfig              string  `mapstructure:"nncf_config" json:"nncf_config"`
	ToONNX                  string  `mapstructure:"to_onnx" json:"to_onnx"`
}

// DefaultData returns the data arguments with their documented defaults.
func DefaultData() DataArguments {
	return DataArguments{
		MaxSeqLength:   128,
		PadToMaxLength: true,
	}
}

// DefaultTraining returns the training arguments with their documented
// defaults.
func DefaultTraining() TrainingArguments {
	return TrainingArguments{
		NumTrainEpochs:          3,
		LearningRate:            5e-2,
		PerDeviceTrainBatchSize: 8,
		PerDeviceEvalBatchSize:  8,
		Seed:                    42,
		WorldSize:               1,
		LocalRank:               -1,
	}
}

// Topology derives the sampling topology from the training arguments.
func (t *TrainingArguments) Topology() sampler.Topology {
	return sampler.Topology{
		WorldSize:            t.WorldSize,
		ProcessIndex:         t.ProcessIndex,
		EvalBatchSize:        t.PerDeviceEvalBatchSize,
		LegacyPredictionLoop: t.UseLegacyPredictionLoop,
	}
}

// DataSource is the closed set of mutually exclusive dataset source modes.
type DataSource int

const (
	SourceTask DataSource = iota
	SourceHub
	SourceFiles
)

// Validate checks the data arguments before any I/O, lowercases the task
// name, and resolves the dataset source mode. The priority order is task
// name, hub dataset name, then local files.
func (d *DataArguments) Validate(doPredict bool) (DataSource, error) {
	if d.TaskName != "" {
		d.TaskName = strings.ToLower(d.TaskName)
		if _, err := glue.Lookup(d.TaskName); err != nil {
			return 0, err
		}
		return SourceTask, nil
	}
	if d.DatasetName != "" {
		return SourceHub, nil
	}
	if d.TrainFile == "" || d.ValidationFile == "" {
		return 0, errors.New("args: need either a GLUE task, a dataset name, or a training/validation file pair")
	}

	trainExt := data.Extension(d.TrainFile)
	if trainExt != "csv" && trainExt != "json" && trainExt != "jsonl" {
		return 0, fmt.Errorf("args: train_file should be a csv or a json file, got %q", d.TrainFile)
	}
	if ext := data.Extension(d.ValidationFile); ext != trainExt {
		return 0, fmt.Errorf("args: validation_file should have the same extension (%s) as train_file, got %q", trainExt, ext)
	}
	if doPredict {
		if d.TestFile == "" {
			return 0, errors.New("args: need either a GLUE task or a test file for do_predict")
		}
		if ext := data.Extension(d.TestFile); ext != trainExt {
			return 0, fmt.Errorf("args: test_file should have the same extension (%s) as train_file, got %q", trainExt, ext)
		}
	}
	return SourceFiles, nil
}

// Validate checks the training arguments.
func (t *TrainingArguments) Validate() error {
	if t.OutputDir == "" && (t.DoTrain || t.DoEval || t.DoPredict) {
		return errors.New("args: output_dir is required")
	}
	if t.WorldSize < 1 {
		return fmt.Errorf("args: world_size must be at least 1, got %d", t.WorldSize)
	}
	if t.ProcessIndex < 0 || t.ProcessIndex >= t.WorldSize {
		return fmt.Errorf("args: process_index %d out of range for world_size %d", t.ProcessIndex, t.WorldSize)
	}
	return nil
}
