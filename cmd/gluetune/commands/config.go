package commands

import (
	"errors"
	"strings"

	"gluetune/pkg/args"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config mirrors the three argument groups of a run. Values resolve in
// order: flag defaults, then the config file, then explicitly set flags.
type Config struct {
	Model    args.ModelArguments    `mapstructure:"model"`
	Data     args.DataArguments     `mapstructure:"data"`
	Training args.TrainingArguments `mapstructure:"training"`
}

// flagKeys maps config keys to the run command flags that override them.
var flagKeys = map[string]string{
	"model.model_name_or_path": "model-name-or-path",
	"model.config_name":        "config-name",
	"model.tokenizer_name":     "tokenizer-name",
	"model.cache_dir":          "cache-dir",

	"data.task_name":           "task-name",
	"data.dataset_name":        "dataset-name",
	"data.dataset_config_name": "dataset-config-name",
	"data.max_seq_length":      "max-seq-length",
	"data.overwrite_cache":     "overwrite-cache",
	"data.pad_to_max_length":   "pad-to-max-length",
	"data.max_train_samples":   "max-train-samples",
	"data.max_eval_samples":    "max-eval-samples",
	"data.max_predict_samples": "max-predict-samples",
	"data.train_file":          "train-file",
	"data.validation_file":     "validation-file",
	"data.test_file":           "test-file",

	"training.output_dir":                  "output-dir",
	"training.overwrite_output_dir":        "overwrite-output-dir",
	"training.do_train":                    "do-train",
	"training.do_eval":                     "do-eval",
	"training.do_predict":                  "do-predict",
	"training.push_to_hub":                 "push-to-hub",
	"training.num_train_epochs":            "num-train-epochs",
	"training.learning_rate":               "learning-rate",
	"training.per_device_train_batch_size": "per-device-train-batch-size",
	"training.per_device_eval_batch_size":  "per-device-eval-batch-size",
	"training.seed":                        "seed",
	"training.resume_from_checkpoint":      "resume-from-checkpoint",
	"training.world_size":                  "world-size",
	"training.process_index":               "process-index",
	"training.local_rank":                  "local-rank",
	"training.use_legacy_prediction_loop":  "use-legacy-prediction-loop",
	"training.dataloader_drop_last":        "dataloader-drop-last",
	"training.nncf_config":                 "nncf-config",
	"training.to_onnx":                     "to-onnx",
}

// LoadConfig reads the config file, if any, and layers the given flag set
// on top so an explicitly set flag always wins.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Config{
		Data:     args.DefaultData(),
		Training: args.DefaultTraining(),
	}
	v := viper.New()
	if strings.HasSuffix(path, ".json") {
		v.SetConfigType("json")
	} else {
		v.SetConfigType("yaml")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".gluetune")
		v.AddConfigPath(".")
	}

	for key, name := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return cfg, err
			}
		}
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && path != "" {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
