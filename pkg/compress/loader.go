package compress

import (
	"gluetune/pkg/preprocess"
	"gluetune/pkg/sampler"
)

// Stream is a dataset consumed sequentially without a known length.
type Stream interface {
	Next() (preprocess.Encoded, bool)
}

// InitLoader iterates calibration batches through a task adapter. It mirrors
// the trainer's own batch construction so calibration sees the same data
// distribution as evaluation.
type InitLoader struct {
	Adapter   *Adapter
	BatchSize int

	collate preprocess.Collator
	dataset *preprocess.Dataset
	indices []int
	stream  Stream

	// stream sharding state
	shardEvery int
	shardOwn   int

	pos   int
	round int
}

// NewEvalInitLoader builds a calibration loader over an indexable dataset
// using the evaluation sampling policy for the given topology. This is the
// same policy function the trainer uses; see the compatibility test.
func NewEvalInitLoader(topo sampler.Topology, ds *preprocess.Dataset, adapter *Adapter, collate preprocess.Collator, batchSize int) *InitLoader {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &InitLoader{
		Adapter:   adapter,
		BatchSize: batchSize,
		collate:   collate,
		dataset:   ds,
		indices:   sampler.ForEval(topo, ds.Len()).Indices(),
	}
}

// NewTrainInitLoader builds a calibration loader over the training dataset.
// The trainer shuffles for optimization, but calibration wants a stable
// pass, so indices stay sequential for this process's shard.
func NewTrainInitLoader(topo sampler.Topology, ds *preprocess.Dataset, adapter *Adapter, collate preprocess.Collator, batchSize int) *InitLoader {
	return NewEvalInitLoader(topo, ds, adapter, collate, batchSize)
}

// NewStreamInitLoader builds a calibration loader over a streamed dataset.
// With more than one process, batches are dealt round-robin: each process
// keeps every world_size-th batch.
func NewStreamInitLoader(topo sampler.Topology, stream Stream, adapter *Adapter, collate preprocess.Collator, batchSize int) *InitLoader {
	if batchSize <= 0 {
		batchSize = 1
	}
	l := &InitLoader{
		Adapter:   adapter,
		BatchSize: batchSize,
		collate:   collate,
		stream:    stream,
	}
	if topo.WorldSize > 1 {
		l.shardEvery = topo.WorldSize
		l.shardOwn = topo.ProcessIndex
	}
	return l
}

// Next yields the next calibration batch as (positional, keyword) args.
func (l *InitLoader) Next() ([]any, map[string]any, bool) {
	batch, ok := l.nextBatch()
	if !ok {
		return nil, nil, false
	}
	args, kwargs := l.Adapter.Inputs(batch)
	return args, kwargs, true
}

func (l *InitLoader) nextBatch() (preprocess.Batch, bool) {
	if l.stream != nil {
		return l.nextStreamBatch()
	}
	if l.pos >= len(l.indices) {
		return preprocess.Batch{}, false
	}
	end := l.pos + l.BatchSize
	if end > len(l.indices) {
		end = len(l.indices)
	}
	examples := make([]preprocess.Encoded, 0, end-l.pos)
	for _, idx := range l.indices[l.pos:end] {
		examples = append(examples, l.dataset.At(idx))
	}
	l.pos = end
	return l.collate(examples), true
}

func (l *InitLoader) nextStreamBatch() (preprocess.Batch, bool) {
	for {
		examples := make([]preprocess.Encoded, 0, l.BatchSize)
		for len(examples) < l.BatchSize {
			e, ok := l.stream.Next()
			if !ok {
				break
			}
			examples = append(examples, e)
		}
		if len(examples) == 0 {
			return preprocess.Batch{}, false
		}
		owned := l.shardEvery == 0 || l.round%l.shardEvery == l.shardOwn
		l.round++
		if owned {
			return l.collate(examples), true
		}
	}
}

// Reset rewinds an indexable loader for another calibration pass.
func (l *InitLoader) Reset() {
	l.pos = 0
	l.round = 0
}
