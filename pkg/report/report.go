// Package report writes prediction files and renders metrics.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"gluetune/pkg/label"
)

// PredictionsFileName names the per-task prediction output file.
func PredictionsFileName(task string) string {
	return fmt.Sprintf("predict_results_%s.txt", task)
}

// WritePredictions writes the tab-separated index/prediction file for a
// task. Regression predictions are formatted to three decimal places,
// classification predictions as the label string.
func WritePredictions(path string, preds []float64, vocab label.Vocabulary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("index\tprediction\n"); err != nil {
		return err
	}
	for index, item := range preds {
		var line string
		if vocab.Regression {
			line = fmt.Sprintf("%d\t%.3f\n", index, item)
		} else {
			line = fmt.Sprintf("%d\t%s\n", index, vocab.Name(int(item)))
		}
		if _, err := w.WriteString(line); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteMetricsTable renders a metrics map as a terminal table.
func WriteMetricsTable(w io.Writer, title string, metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.Header([]string{title, "value"})
	for _, name := range names {
		table.Append([]string{name, strconv.FormatFloat(metrics[name], 'f', 4, 64)})
	}
	table.Render()
}
