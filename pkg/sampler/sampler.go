// Package sampler selects which example indices a process sees during
// evaluation. The trainer and the compression-calibration loaders share this
// policy; calibration must see the same data distribution as evaluation.
package sampler

// Topology describes the distributed-training layout of a run.
type Topology struct {
	WorldSize            int
	ProcessIndex         int
	EvalBatchSize        int
	LegacyPredictionLoop bool
}

// Sampler yields the example indices for one process in order.
type Sampler interface {
	Indices() []int
}

// Sequential visits every index in order. Single-process runs use this.
type Sequential struct {
	N int
}

func (s Sequential) Indices() []int {
	out := make([]int, s.N)
	for i := range out {
		out[i] = i
	}
	return out
}

// SequentialDistributed pads the dataset to a multiple of the world size and
// hands each process one contiguous chunk. This is the legacy prediction-loop
// policy.
type SequentialDistributed struct {
	N           int
	NumReplicas int
	Rank        int
	BatchSize   int
}

func (s SequentialDistributed) Indices() []int {
	replicas := s.NumReplicas
	if replicas <= 0 {
		replicas = 1
	}
	perReplica := (s.N + replicas - 1) / replicas
	if s.BatchSize > 0 {
		// Round the chunk up to a whole number of batches.
		batches := (perReplica + s.BatchSize - 1) / s.BatchSize
		perReplica = batches * s.BatchSize
	}
	total := perReplica * replicas

	padded := make([]int, 0, total)
	for len(padded) < total {
		for i := 0; i < s.N && len(padded) < total; i++ {
			padded = append(padded, i)
		}
	}
	start := s.Rank * perReplica
	return padded[start : start+perReplica]
}

// Shard pads the dataset to a multiple of batch*processes and deals batches
// round-robin, each process taking its slice of every round.
type Shard struct {
	N            int
	BatchSize    int
	NumProcesses int
	ProcessIndex int
}

func (s Shard) Indices() []int {
	processes := s.NumProcesses
	if processes <= 0 {
		processes = 1
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = 1
	}
	round := batch * processes
	rounds := (s.N + round - 1) / round
	total := rounds * round

	padded := make([]int, 0, total)
	for len(padded) < total {
		for i := 0; i < s.N && len(padded) < total; i++ {
			padded = append(padded, i)
		}
	}

	out := make([]int, 0, rounds*batch)
	for r := 0; r < rounds; r++ {
		start := r*round + s.ProcessIndex*batch
		out = append(out, padded[start:start+batch]...)
	}
	return out
}

// ForEval picks the evaluation sampler for a topology. The compression
// calibration path reuses this exact function; see the compatibility test.
func ForEval(topo Topology, n int) Sampler {
	if topo.LegacyPredictionLoop {
		if topo.WorldSize > 1 {
			return SequentialDistributed{N: n, NumReplicas: topo.WorldSize, Rank: topo.ProcessIndex}
		}
		return Sequential{N: n}
	}
	if topo.WorldSize <= 1 {
		return Sequential{N: n}
	}
	return Shard{
		N:            n,
		BatchSize:    topo.EvalBatchSize,
		NumProcesses: topo.WorldSize,
		ProcessIndex: topo.ProcessIndex,
	}
}
