// Package local runs a complete sample-sort cluster inside one process:
// every rank is a goroutine and the fabric is the in-memory mesh. This is
// both the single-machine mode and, with one worker, the sequential
// baseline.
package local

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/nmarkovic/seqsort/internal/fabric"
	"github.com/nmarkovic/seqsort/internal/record"
	"github.com/nmarkovic/seqsort/internal/samplesort"
	"github.com/nmarkovic/seqsort/internal/shared/logging"
)

type Config struct {
	// Input is a doublestar glob; all matching files are read and sorted
	// together.
	Input  string
	Output string

	Workers         int
	MaxRecordLength int
	ReadBufferSize  int

	Logger logging.Logger
}

type Engine struct {
	config Config
	logger logging.Logger
}

func NewEngine(config Config) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Engine{config: config, logger: logger}
}

// Run executes one sort over the in-memory mesh and blocks until every
// worker finishes. On failure no output file is left behind.
func (e *Engine) Run(ctx context.Context) error {
	if e.config.Workers < 1 {
		return fmt.Errorf("worker count must be >= 1, got %d", e.config.Workers)
	}

	// Write under a run-unique temporary name and rename on success, so a
	// failed run produces no output file.
	runID := uuid.New()
	tempOutput := fmt.Sprintf("%s.%s.tmp", e.config.Output, runID)
	logger := e.logger.With("run_id", runID.String())

	opts := record.Options{
		MaxLength:  e.config.MaxRecordLength,
		BufferSize: e.config.ReadBufferSize,
	}
	job := samplesort.Job{
		ReadInput: func() ([]string, error) {
			return record.ReadGlob(e.config.Input, opts)
		},
		WriteOutput: func(records []string) error {
			return record.WriteFile(tempOutput, records)
		},
	}

	transports := fabric.NewMesh(e.config.Workers)
	defer func() {
		for _, t := range transports {
			t.Close()
		}
	}()

	errs := make([]error, e.config.Workers)

	pool := NewPool(e.config.Workers)
	pool.Start()
	for rank := range e.config.Workers {
		cluster := samplesort.NewCluster(fabric.NewGroup(transports[rank]), logger)
		pool.Submit(func() {
			errs[rank] = samplesort.Run(ctx, cluster, job)
		})
	}
	pool.Close()

	for rank, err := range errs {
		if err != nil {
			os.Remove(tempOutput)
			return fmt.Errorf("worker %d: %w", rank, err)
		}
	}

	return os.Rename(tempOutput, e.config.Output)
}
