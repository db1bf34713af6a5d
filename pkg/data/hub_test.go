package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedHubDataset(t *testing.T, root string, parts ...string) {
	t.Helper()
	dir := filepath.Join(append([]string{root, "datasets"}, parts[:len(parts)-2]...)...)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	name := parts[len(parts)-2]
	content := parts[len(parts)-1]
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestHubLoadTask(t *testing.T) {
	root := t.TempDir()
	seedHubDataset(t, root, "glue", "sst2", "train.csv", "sentence,label\ngreat,positive\nawful,negative\n")
	seedHubDataset(t, root, "glue", "sst2", "validation.csv", "sentence,label\nfine,positive\n")

	hub, err := NewHub(root)
	require.NoError(t, err)

	ds, err := hub.LoadTask("sst2")
	require.NoError(t, err)
	require.True(t, ds.Has("train"))
	require.True(t, ds.Has("validation"))
	require.Equal(t, 2, ds.Split("train").Len())
}

func TestHubDatasetNotFound(t *testing.T) {
	hub, err := NewHub(t.TempDir())
	require.NoError(t, err)

	_, err = hub.LoadDataset("imdb", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found in hub")
}

func TestHubPushModel(t *testing.T) {
	root := t.TempDir()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "config.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "vocab.txt"), []byte("[PAD]\n"), 0o600))

	hub, err := NewHub(root)
	require.NoError(t, err)

	card := map[string]string{
		"finetuned_from": "base-model",
		"dataset_args":   "mrpc",
	}
	require.NoError(t, hub.PushModel(src, "my-model", card))

	pushed := filepath.Join(root, "models", "my-model")
	_, err = os.Stat(filepath.Join(pushed, "config.json"))
	require.NoError(t, err)

	readme, err := os.ReadFile(filepath.Join(pushed, "README.md"))
	require.NoError(t, err)
	require.Contains(t, string(readme), "---\n")
	require.Contains(t, string(readme), "dataset_args: mrpc")
	require.Contains(t, string(readme), "finetuned_from: base-model")
}

func TestHubModelDir(t *testing.T) {
	root := t.TempDir()
	hub, err := NewHub(root)
	require.NoError(t, err)

	local := t.TempDir()
	dir, err := hub.ModelDir(local)
	require.NoError(t, err)
	require.Equal(t, local, dir)

	named := filepath.Join(root, "models", "bert-tiny")
	require.NoError(t, os.MkdirAll(named, 0o755))
	dir, err = hub.ModelDir("bert-tiny")
	require.NoError(t, err)
	require.Equal(t, named, dir)

	_, err = hub.ModelDir("no-such-model")
	require.Error(t, err)
}
