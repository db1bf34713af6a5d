package data

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LabelColumn is the column holding the training target.
const LabelColumn = "label"

// SentinelLabel marks an example with no known label (test-split placeholders).
const SentinelLabel = "-1"

// Example is one row of a raw dataset, column name to value.
type Example map[string]string

// Split is an ordered sequence of examples under one split name.
type Split struct {
	Name     string
	Columns  []string
	Examples []Example
}

// Len is the number of examples in the split.
func (s *Split) Len() int {
	return len(s.Examples)
}

// Select returns a view truncated to the first n examples.
func (s *Split) Select(n int) *Split {
	if n < 0 || n >= len(s.Examples) {
		return s
	}
	return &Split{Name: s.Name, Columns: s.Columns, Examples: s.Examples[:n]}
}

// DropColumn returns a copy of the split without the named column.
func (s *Split) DropColumn(name string) *Split {
	columns := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c != name {
			columns = append(columns, c)
		}
	}
	examples := make([]Example, len(s.Examples))
	for i, example := range s.Examples {
		copied := make(Example, len(example))
		for k, v := range example {
			if k != name {
				copied[k] = v
			}
		}
		examples[i] = copied
	}
	return &Split{Name: s.Name, Columns: columns, Examples: examples}
}

// HasColumn reports whether the split carries the named column.
func (s *Split) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// UniqueLabels collects the distinct label values, sorted for determinism.
// The sentinel value is not part of the vocabulary.
func (s *Split) UniqueLabels() []string {
	seen := map[string]struct{}{}
	for _, example := range s.Examples {
		value, ok := example[LabelColumn]
		if !ok || value == SentinelLabel {
			continue
		}
		seen[value] = struct{}{}
	}
	labels := make([]string, 0, len(seen))
	for value := range seen {
		labels = append(labels, value)
	}
	sort.Strings(labels)
	return labels
}

// FloatLabels reports whether every known label parses as a float and at
// least one of them is fractional. Used to detect regression targets when no
// task metadata is available.
func (s *Split) FloatLabels() bool {
	fractional := false
	found := false
	for _, example := range s.Examples {
		value, ok := example[LabelColumn]
		if !ok || value == SentinelLabel {
			continue
		}
		found = true
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		if f != float64(int64(f)) || strings.Contains(value, ".") {
			fractional = true
		}
	}
	return found && fractional
}

// TextColumns picks the text columns for datasets without task metadata:
// sentence1/sentence2 when present, otherwise the first one or two
// non-label columns.
func (s *Split) TextColumns() (string, string, error) {
	if s.HasColumn("sentence1") && s.HasColumn("sentence2") {
		return "sentence1", "sentence2", nil
	}
	var nonLabel []string
	for _, c := range s.Columns {
		if c != LabelColumn {
			nonLabel = append(nonLabel, c)
		}
	}
	switch {
	case len(nonLabel) >= 2:
		return nonLabel[0], nonLabel[1], nil
	case len(nonLabel) == 1:
		return nonLabel[0], "", nil
	default:
		return "", "", fmt.Errorf("data: split %q has no text columns", s.Name)
	}
}

// Dataset is a split-indexed raw dataset.
type Dataset struct {
	Splits map[string]*Split
}

// Split returns the named split, or nil when absent.
func (d *Dataset) Split(name string) *Split {
	if d == nil {
		return nil
	}
	return d.Splits[name]
}

// Has reports whether every one of the given split names is present.
func (d *Dataset) Has(names ...string) bool {
	for _, name := range names {
		if d.Split(name) == nil {
			return false
		}
	}
	return true
}
