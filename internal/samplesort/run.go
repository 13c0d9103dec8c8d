package samplesort

import (
	"context"
	"fmt"
	"time"
)

// Job supplies the coordinator's endpoints of the pipeline. Both funcs are
// invoked on the coordinator only; other ranks may leave them nil.
type Job struct {
	ReadInput   func() ([]string, error)
	WriteOutput func([]string) error
}

// Run executes one full sample-sort pass on this worker. All ranks of the
// group must call Run; the phases are strictly sequential and every
// collective inside them is a synchronization point. The run either
// completes on all ranks or fails as a unit; there are no retries.
func Run(ctx context.Context, c Cluster, job Job) error {
	start := time.Now()

	var all []string
	if c.IsCoordinator() {
		records, err := job.ReadInput()
		if err != nil {
			// Peers are (or will be) blocked on the distribution
			// broadcast; turn the read failure into an abort header
			// so they fail instead of hanging.
			if abortErr := Abort(ctx, c); abortErr != nil {
				c.Logger.Error("abort broadcast failed", "error", abortErr)
			}
			return fmt.Errorf("read input: %w", err)
		}
		all = records
		c.Logger.Info("input loaded", "records", len(all), "workers", c.Size)
	}

	local, err := runPhase(c, "distribute", func() ([]string, error) {
		return Distribute(ctx, c, all)
	})
	if err != nil {
		return err
	}

	runPhaseVoid(c, "local_sort", func() { LocalSort(local) })

	var samples []string
	runPhaseVoid(c, "sample", func() { samples = Sample(local, c.Size) })

	pivots, err := runPhase(c, "pivot_exchange", func() ([]string, error) {
		return PlanPivots(ctx, c, samples)
	})
	if err != nil {
		return err
	}

	var buckets [][]string
	runPhaseVoid(c, "partition", func() { buckets = Partition(local, pivots) })

	local, err = runPhase(c, "shuffle", func() ([]string, error) {
		return Exchange(ctx, c, buckets)
	})
	if err != nil {
		return err
	}

	runPhaseVoid(c, "final_sort", func() { LocalSort(local) })

	result, err := runPhase(c, "collect", func() ([]string, error) {
		return Collect(ctx, c, local)
	})
	if err != nil {
		return err
	}

	if c.IsCoordinator() {
		if len(result) != len(all) {
			return fmt.Errorf("collect: gathered %d records, read %d", len(result), len(all))
		}
		if err := job.WriteOutput(result); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		c.Logger.Info("run complete", "records", len(result), "duration", time.Since(start))
	}

	return nil
}

func runPhase(c Cluster, phase string, fn func() ([]string, error)) ([]string, error) {
	start := time.Now()
	out, err := fn()
	if err != nil {
		c.Logger.Error("phase failed", "phase", phase, "error", err)
		return nil, err
	}
	c.logPhase(phase, start)
	return out, nil
}

func runPhaseVoid(c Cluster, phase string, fn func()) {
	start := time.Now()
	fn()
	c.logPhase(phase, start)
}

func (c Cluster) logPhase(phase string, start time.Time) {
	if c.IsCoordinator() {
		c.Logger.Info("phase complete", "phase", phase, "duration", time.Since(start))
	} else {
		c.Logger.Debug("phase complete", "phase", phase, "duration", time.Since(start))
	}
}
