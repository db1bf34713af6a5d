package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Hub resolves named datasets from a local cache layout:
// <root>/datasets/<name>[/<config>]/<split>.{csv,json,jsonl}.
// It stands in for the remote dataset registry, which guarantees that only
// one local process downloads a dataset at a time; here the layout is
// read-only so every process may resolve concurrently.
type Hub struct {
	Root string
}

// NewHub opens a hub rooted at dir, defaulting to ~/.gluetune.
func NewHub(dir string) (*Hub, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".gluetune")
	}
	return &Hub{Root: dir}, nil
}

// LoadDataset resolves a named dataset, with an optional configuration name.
func (h *Hub) LoadDataset(name, config string) (*Dataset, error) {
	dir := filepath.Join(h.Root, "datasets", name)
	if config != "" {
		dir = filepath.Join(dir, config)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("data: dataset %q not found in hub at %s: %w", name, dir, err)
	}

	files := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := Extension(entry.Name())
		if ext != "csv" && ext != "json" && ext != "jsonl" {
			continue
		}
		split := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		files[split] = filepath.Join(dir, entry.Name())
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("data: dataset %q has no split files under %s", name, dir)
	}
	return LoadFiles(files)
}

// LoadTask resolves a GLUE benchmark task dataset (hub name "glue/<task>").
func (h *Hub) LoadTask(task string) (*Dataset, error) {
	return h.LoadDataset("glue", task)
}

// PushModel publishes a saved model directory into the hub layout under a
// name, writing a model card alongside the copied files.
func (h *Hub) PushModel(srcDir, name string, card map[string]string) error {
	dst := filepath.Join(h.Root, "models", name)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("data: pushing model from %s: %w", srcDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(srcDir, entry.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), raw, 0o644); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(card))
	for k := range card {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, card[k])
	}
	b.WriteString("---\n")
	return os.WriteFile(filepath.Join(dst, "README.md"), []byte(b.String()), 0o644)
}

// ModelDir resolves a pretrained model identifier to a directory: a path is
// used as-is, a bare name is looked up under <root>/models/<name>.
func (h *Hub) ModelDir(nameOrPath string) (string, error) {
	if info, err := os.Stat(nameOrPath); err == nil && info.IsDir() {
		return nameOrPath, nil
	}
	dir := filepath.Join(h.Root, "models", nameOrPath)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, nil
	}
	return "", fmt.Errorf("data: model %q is neither a local directory nor present in hub at %s", nameOrPath, dir)
}
