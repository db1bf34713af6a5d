package preprocess

// Batch is a collated group of examples ready for a model forward pass.
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int
	TokenTypeIDs  [][]int
	Labels        []float64
}

// Size is the number of examples in the batch.
func (b Batch) Size() int {
	return len(b.InputIDs)
}

// Collator turns a slice of examples into a batch.
type Collator func(examples []Encoded) Batch

// DefaultCollator stacks examples as-is. It assumes fixed-length padding
// already happened during preprocessing.
func DefaultCollator(examples []Encoded) Batch {
	batch := Batch{
		InputIDs:      make([][]int, len(examples)),
		AttentionMask: make([][]int, len(examples)),
		TokenTypeIDs:  make([][]int, len(examples)),
		Labels:        make([]float64, len(examples)),
	}
	for i, e := range examples {
		batch.InputIDs[i] = e.InputIDs
		batch.AttentionMask[i] = e.AttentionMask
		batch.TokenTypeIDs[i] = e.TokenTypeIDs
		batch.Labels[i] = e.Label
	}
	return batch
}

// PaddingCollator pads every example in the batch to the longest sequence in
// it, for runs that defer padding to collation time.
func PaddingCollator(padID int) Collator {
	return func(examples []Encoded) Batch {
		longest := 0
		for _, e := range examples {
			if len(e.InputIDs) > longest {
				longest = len(e.InputIDs)
			}
		}
		batch := Batch{
			InputIDs:      make([][]int, len(examples)),
			AttentionMask: make([][]int, len(examples)),
			TokenTypeIDs:  make([][]int, len(examples)),
			Labels:        make([]float64, len(examples)),
		}
		for i, e := range examples {
			batch.InputIDs[i] = padTo(e.InputIDs, longest, padID)
			batch.AttentionMask[i] = padTo(e.AttentionMask, longest, 0)
			batch.TokenTypeIDs[i] = padTo(e.TokenTypeIDs, longest, 0)
			batch.Labels[i] = e.Label
		}
		return batch
	}
}

func padTo(ids []int, length, pad int) []int {
	if len(ids) >= length {
		return ids
	}
	out := make([]int, length)
	copy(out, ids)
	for i := len(ids); i < length; i++ {
		out[i] = pad
	}
	return out
}
