// Package compress configures quantization-calibration for a training run:
// it loads the compression configuration file, attaches calibration data
// loaders, and collects range/batch-norm statistics before the model is
// constructed.
package compress

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the structured compression configuration. Lifecycle: load from
// file, augment with data-loader references, consumed once at model
// construction, then discarded.
type Config struct {
	LogDir      string          `json:"log_dir"`
	Compression CompressionSpec `json:"compression"`

	extras   []InitArgs
	consumed bool
}

// CompressionSpec selects the algorithm and its initialization sizes.
type CompressionSpec struct {
	Algorithm   string          `json:"algorithm"`
	Initializer InitializerSpec `json:"initializer"`
}

// InitializerSpec sizes the calibration passes.
type InitializerSpec struct {
	Range    RangeInitSpec `json:"range"`
	BatchXrm BNAdaptSpec   `json:"batchnorm_adaptation"`
}

type RangeInitSpec struct {
	NumInitSamples int `json:"num_init_samples"`
}

type BNAdaptSpec struct {
	NumBNAdaptationSamples int `json:"num_bn_adaptation_samples"`
}

// FromJSON loads a compression configuration file.
func FromJSON(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compress: reading config: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("compress: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// InitArgs is a calibration-data reference registered on the config.
type InitArgs interface {
	initLoader() *InitLoader
}

// QuantizationRangeInitArgs feeds the quantization range initializer.
type QuantizationRangeInitArgs struct {
	Loader *InitLoader
}

func (a QuantizationRangeInitArgs) initLoader() *InitLoader { return a.Loader }

// BNAdaptationInitArgs feeds the batch-norm adaptation initializer.
type BNAdaptationInitArgs struct {
	Loader *InitLoader
}

func (a BNAdaptationInitArgs) initLoader() *InitLoader { return a.Loader }

// RegisterExtraStructs attaches calibration-data references.
func (c *Config) RegisterExtraStructs(args ...InitArgs) {
	c.extras = append(c.extras, args...)
}
