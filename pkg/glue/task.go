package glue

import (
	"fmt"
	"sort"
	"strings"
)

// Task describes one GLUE benchmark task: which columns hold the text,
// whether the target is a continuous score, and the fixed label set.
type Task struct {
	Name       string
	TextKey    string
	PairKey    string // empty for single-sentence tasks
	Regression bool
	Labels     []string // nil for regression tasks
	Metrics    []string
}

// NumLabels is the size of the task's label vocabulary, or 1 for regression.
func (t Task) NumLabels() int {
	if t.Regression {
		return 1
	}
	return len(t.Labels)
}

// ValidationSplits lists the validation split names in evaluation order.
// MNLI evaluates twice, against the matched and mismatched splits.
func (t Task) ValidationSplits() []string {
	if t.Name == "mnli" {
		return []string{"validation_matched", "validation_mismatched"}
	}
	return []string{"validation"}
}

// TestSplits lists the test split names in prediction order.
func (t Task) TestSplits() []string {
	if t.Name == "mnli" {
		return []string{"test_matched", "test_mismatched"}
	}
	return []string{"test"}
}

// ReportNames gives the per-split task names used in output file naming
// (mnli, mnli-mm), parallel to ValidationSplits/TestSplits.
func (t Task) ReportNames() []string {
	if t.Name == "mnli" {
		return []string{"mnli", "mnli-mm"}
	}
	return []string{t.Name}
}

var tasks = map[string]Task{
	"cola": {
		Name: "cola", TextKey: "sentence",
		Labels:  []string{"unacceptable", "acceptable"},
		Metrics: []string{"matthews_correlation"},
	},
	"mnli": {
		Name: "mnli", TextKey: "premise", PairKey: "hypothesis",
		Labels:  []string{"entailment", "neutral", "contradiction"},
		Metrics: []string{"accuracy"},
	},
	"mrpc": {
		Name: "mrpc", TextKey: "sentence1", PairKey: "sentence2",
		Labels:  []string{"not_equivalent", "equivalent"},
		Metrics: []string{"accuracy", "f1"},
	},
	"qnli": {
		Name: "qnli", TextKey: "question", PairKey: "sentence",
		Labels:  []string{"entailment", "not_entailment"},
		Metrics: []string{"accuracy"},
	},
	"qqp": {
		Name: "qqp", TextKey: "question1", PairKey: "question2",
		Labels:  []string{"not_duplicate", "duplicate"},
		Metrics: []string{"accuracy", "f1"},
	},
	"rte": {
		Name: "rte", TextKey: "sentence1", PairKey: "sentence2",
		Labels:  []string{"entailment", "not_entailment"},
		Metrics: []string{"accuracy"},
	},
	"sst2": {
		Name: "sst2", TextKey: "sentence",
		Labels:  []string{"negative", "positive"},
		Metrics: []string{"accuracy"},
	},
	"stsb": {
		Name: "stsb", TextKey: "sentence1", PairKey: "sentence2",
		Regression: true,
		Metrics:    []string{"pearson", "spearmanr"},
	},
	"wnli": {
		Name: "wnli", TextKey: "sentence1", PairKey: "sentence2",
		Labels:  []string{"not_entailment", "entailment"},
		Metrics: []string{"accuracy"},
	},
}

// Lookup resolves a task by case-insensitive name.
func Lookup(name string) (Task, error) {
	task, ok := tasks[strings.ToLower(name)]
	if !ok {
		return Task{}, fmt.Errorf("glue: unknown task %q, pick one of %s", name, strings.Join(Names(), ", "))
	}
	return task, nil
}

// Names lists all task names sorted alphabetically.
func Names() []string {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
