package preprocess

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gluetune/pkg/data"
)

// Cache memoizes preprocessed splits on disk, keyed by a fingerprint of the
// data and the preprocessing configuration.
type Cache struct {
	Dir string
}

// NewCache opens (creating if needed) a cache directory, defaulting to
// ~/.gluetune/cache.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".gluetune", "cache")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{Dir: dir}, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.Dir, key+".json.gz")
}

// Get loads the cached examples for a key if present and readable.
func (c *Cache) Get(key string) ([]Encoded, bool) {
	f, err := os.Open(c.path(key))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, false
	}
	defer gz.Close()
	var examples []Encoded
	if err := json.NewDecoder(gz).Decode(&examples); err != nil {
		return nil, false
	}
	return examples, true
}

// Set stores examples for a key with an atomic rename.
func (c *Cache) Set(key string, examples []Encoded) error {
	f, err := os.CreateTemp(c.Dir, "tmp-*.json.gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(examples); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), c.path(key)); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}

// fingerprint hashes the split contents together with everything that
// changes the preprocessed output.
func (r *Runner) fingerprint(split *data.Split, opts Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "split=%s rows=%d\x00", split.Name, len(split.Examples))
	fmt.Fprintf(h, "text=%s pair=%s max=%d pad=%t\x00", opts.TextKey, opts.PairKey, opts.MaxLength, opts.Pad)
	fmt.Fprintf(h, "vocab=%d regression=%t labels=%s\x00",
		r.Tokenizer.VocabSize(), r.Vocab.Regression, strings.Join(r.Vocab.Labels, "|"))
	for _, example := range split.Examples {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1e",
			example[opts.TextKey], example[opts.PairKey], example[data.LabelColumn])
	}
	return hex.EncodeToString(h.Sum(nil))
}
