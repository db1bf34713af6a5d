// Package runctx carries the per-run state every orchestration phase needs:
// logger, run identity, seeded randomness, and process topology.
package runctx

import (
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunContext is created once at startup and closed at the end of the run.
type RunContext struct {
	Log          *zap.Logger
	RunID        string
	OutputDir    string
	Seed         int64
	Rand         *rand.Rand
	WorldSize    int
	ProcessIndex int
}

// Options configures a run context.
type Options struct {
	Verbose      bool
	Seed         int64
	OutputDir    string
	WorldSize    int
	ProcessIndex int
}

// New builds the run context. Verbose selects a development logger.
func New(opts Options) (*RunContext, error) {
	var log *zap.Logger
	var err error
	if opts.Verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	world := opts.WorldSize
	if world < 1 {
		world = 1
	}
	return &RunContext{
		Log:          log,
		RunID:        uuid.NewString(),
		OutputDir:    opts.OutputDir,
		Seed:         opts.Seed,
		Rand:         rand.New(rand.NewSource(opts.Seed)),
		WorldSize:    world,
		ProcessIndex: opts.ProcessIndex,
	}, nil
}

// IsWorldProcessZero reports whether this process owns the shared file
// writes (predictions, metrics, cache population).
func (c *RunContext) IsWorldProcessZero() bool {
	return c.ProcessIndex == 0
}

// Close flushes the logger.
func (c *RunContext) Close() {
	_ = c.Log.Sync()
}
