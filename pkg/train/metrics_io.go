package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// LogMetrics logs a metrics map with stable key ordering.
func (t *Trainer) LogMetrics(split string, metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]zap.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, zap.Float64(name, metrics[name]))
	}
	t.Log.Info(fmt.Sprintf("***** %s metrics *****", split), fields...)
}

// SaveMetrics writes <split>_results.json into the output directory, from
// the designated process only.
func (t *Trainer) SaveMetrics(split string, metrics map[string]float64) error {
	if !t.IsWorldProcessZero() {
		return nil
	}
	raw, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(t.Args.OutputDir, split+"_results.json")
	return os.WriteFile(path, raw, 0o644)
}
