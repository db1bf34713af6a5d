package compress

import (
	"fmt"
	"sort"
	"strings"

	"gluetune/pkg/preprocess"
)

// Field names the calibration engine understands.
const (
	FieldLabels        = "labels"
	FieldAttentionMask = "attention_mask"
	FieldInputIDs      = "input_ids"
	FieldTokenTypeIDs  = "token_type_ids"
)

// calibrationFields is the total mapping from task name to the ordered field
// set its calibration batches expose. Tasks outside this mapping cannot run
// compression initialization; asking for one is a validation error rather
// than a silent field mismatch at calibration time.
var calibrationFields = map[string][]string{
	"sst2": {FieldLabels, FieldAttentionMask, FieldInputIDs},
	"mrpc": {FieldLabels, FieldAttentionMask, FieldInputIDs, FieldTokenTypeIDs},
	"mnli": {FieldLabels, FieldAttentionMask, FieldInputIDs},
}

// Adapter converts loader batches into the (positional, keyword) argument
// pair the calibration pass consumes, selecting the task's field subset.
type Adapter struct {
	Task   string
	Fields []string
}

// NewAdapter builds the adapter for a task, or fails when the task has no
// calibration field set.
func NewAdapter(task string) (*Adapter, error) {
	fields, ok := calibrationFields[strings.ToLower(task)]
	if !ok {
		return nil, fmt.Errorf("compress: task %q has no calibration field set, supported tasks: %s",
			task, strings.Join(CalibrationTasks(), ", "))
	}
	return &Adapter{Task: strings.ToLower(task), Fields: fields}, nil
}

// CalibrationTasks lists the tasks with a calibration field set.
func CalibrationTasks() []string {
	names := make([]string, 0, len(calibrationFields))
	for name := range calibrationFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inputs maps one batch to positional args (always empty) and keyword args
// restricted to the task's fields.
func (a *Adapter) Inputs(batch preprocess.Batch) ([]any, map[string]any) {
	kwargs := make(map[string]any, len(a.Fields))
	for _, field := range a.Fields {
		switch field {
		case FieldLabels:
			kwargs[field] = batch.Labels
		case FieldAttentionMask:
			kwargs[field] = batch.AttentionMask
		case FieldInputIDs:
			kwargs[field] = batch.InputIDs
		case FieldTokenTypeIDs:
			kwargs[field] = batch.TokenTypeIDs
		}
	}
	return nil, kwargs
}
