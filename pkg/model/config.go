package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gluetune/pkg/label"
)

// Config is a pretrained model configuration, persisted as config.json in
// the model directory.
type Config struct {
	ModelType      string            `json:"model_type"`
	NumLabels      int               `json:"num_labels"`
	Label2ID       map[string]int    `json:"label2id,omitempty"`
	ID2Label       map[string]string `json:"id2label,omitempty"`
	FinetuningTask string            `json:"finetuning_task,omitempty"`
}

// LoadConfig reads a model directory's config.json, filling defaults the way
// a freshly initialized pretrained config would: numLabels logit slots with
// LABEL_n names.
func LoadConfig(dir string, numLabels int, finetuningTask string) (*Config, error) {
	cfg := &Config{}
	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err == nil {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("model: parsing config.json in %s: %w", dir, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("model: reading config.json: %w", err)
	}

	cfg.NumLabels = numLabels
	cfg.FinetuningTask = finetuningTask
	if cfg.ModelType == "" {
		cfg.ModelType = "linear"
	}
	if len(cfg.Label2ID) == 0 {
		cfg.Label2ID = label.DefaultModelMapping(numLabels)
		cfg.ID2Label = invert(cfg.Label2ID)
	}
	return cfg, nil
}

// SetVocabulary overwrites the label mapping with a reconciled vocabulary.
func (c *Config) SetVocabulary(vocab label.Vocabulary) {
	if vocab.Regression {
		return
	}
	c.Label2ID = make(map[string]int, len(vocab.Labels))
	for id, name := range vocab.Labels {
		c.Label2ID[name] = id
	}
	c.ID2Label = invert(c.Label2ID)
}

// Save writes the configuration into a model directory.
func (c *Config) Save(dir string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), raw, 0o644)
}

func invert(label2id map[string]int) map[string]string {
	id2label := make(map[string]string, len(label2id))
	for name, id := range label2id {
		id2label[strconv.Itoa(id)] = name
	}
	return id2label
}
