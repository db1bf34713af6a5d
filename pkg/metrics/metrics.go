// Package metrics computes the per-task GLUE evaluation metrics.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Compute evaluates the named metrics over predictions and references.
// When a task yields more than one metric a combined_score (their mean) is
// added, matching the GLUE convention.
func Compute(names []string, preds, refs []float64) (map[string]float64, error) {
	if len(preds) != len(refs) {
		return nil, fmt.Errorf("metrics: %d predictions vs %d references", len(preds), len(refs))
	}
	out := make(map[string]float64, len(names)+1)
	for _, name := range names {
		switch name {
		case "accuracy":
			out[name] = Accuracy(preds, refs)
		case "f1":
			out[name] = F1(preds, refs)
		case "matthews_correlation":
			out[name] = MatthewsCorrelation(preds, refs)
		case "pearson":
			out[name] = Pearson(preds, refs)
		case "spearmanr":
			out[name] = Spearman(preds, refs)
		case "mse":
			out[name] = MSE(preds, refs)
		default:
			return nil, fmt.Errorf("metrics: unknown metric %q", name)
		}
	}
	if len(names) > 1 {
		var sum float64
		for _, name := range names {
			sum += out[name]
		}
		out["combined_score"] = sum / float64(len(names))
	}
	return out, nil
}

// Accuracy is the fraction of exact matches.
func Accuracy(preds, refs []float64) float64 {
	if len(preds) == 0 {
		return 0
	}
	correct := 0
	for i := range preds {
		if int(preds[i]) == int(refs[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(preds))
}

// F1 is the binary F1 score treating class 1 as positive.
func F1(preds, refs []float64) float64 {
	var tp, fp, fn float64
	for i := range preds {
		p, r := int(preds[i]) == 1, int(refs[i]) == 1
		switch {
		case p && r:
			tp++
		case p && !r:
			fp++
		case !p && r:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	return 2 * precision * recall / (precision + recall)
}

// MatthewsCorrelation is the binary Matthews correlation coefficient.
func MatthewsCorrelation(preds, refs []float64) float64 {
	var tp, tn, fp, fn float64
	for i := range preds {
		p, r := int(preds[i]) == 1, int(refs[i]) == 1
		switch {
		case p && r:
			tp++
		case !p && !r:
			tn++
		case p && !r:
			fp++
		default:
			fn++
		}
	}
	denom := math.Sqrt((tp + fp) * (tp + fn) * (tn + fp) * (tn + fn))
	if denom == 0 {
		return 0
	}
	return (tp*tn - fp*fn) / denom
}

// Pearson is the Pearson correlation of predictions and references.
func Pearson(preds, refs []float64) float64 {
	if len(preds) < 2 {
		return 0
	}
	return stat.Correlation(preds, refs, nil)
}

// Spearman is the Spearman rank correlation.
func Spearman(preds, refs []float64) float64 {
	if len(preds) < 2 {
		return 0
	}
	return stat.Correlation(ranks(preds), ranks(refs), nil)
}

// MSE is the mean squared error for regression without task metadata.
func MSE(preds, refs []float64) float64 {
	if len(preds) == 0 {
		return 0
	}
	var sum float64
	for i := range preds {
		d := preds[i] - refs[i]
		sum += d * d
	}
	return sum / float64(len(preds))
}

// ranks assigns average ranks, resolving ties the way scipy does.
func ranks(values []float64) []float64 {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := 1; i < n; i++ {
		for j := i; j > 0 && values[order[j-1]] > values[order[j]]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	out := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && values[order[j+1]] == values[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[order[k]] = avg
		}
		i = j + 1
	}
	return out
}
