package samplesort

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/nmarkovic/seqsort/internal/wire"
)

// ErrAborted is returned on every non-coordinator worker when the
// coordinator signals that it could not produce the input.
var ErrAborted = errors.New("samplesort: coordinator aborted the run")

// Abort broadcasts an abort header so that peers blocked on the distribution
// broadcast fail instead of hanging. Coordinator only; called before any
// data-bearing collective.
func Abort(ctx context.Context, c Cluster) error {
	if !c.IsCoordinator() {
		return fmt.Errorf("samplesort: abort from non-coordinator rank %d", c.Rank)
	}
	header := wire.AppendHeader(nil, wire.StatusAbort, 0)
	_, err := c.Group.Broadcast(ctx, Coordinator, header)
	return err
}

// Distribute hands each rank a contiguous block of the input. The
// coordinator broadcasts a header carrying the total record count, then
// sends rank r the r-th block; blocks differ in size by at most one record.
// Every rank verifies that it received exactly its share.
func Distribute(ctx context.Context, c Cluster, all []string) ([]string, error) {
	if c.IsCoordinator() {
		return distributeFromCoordinator(ctx, c, all)
	}

	header, err := c.Group.Broadcast(ctx, Coordinator, nil)
	if err != nil {
		return nil, fmt.Errorf("distribute: header broadcast: %w", err)
	}
	status, total, err := wire.ConsumeHeader(header)
	if err != nil {
		return nil, fmt.Errorf("distribute: header: %w", err)
	}
	if status == wire.StatusAbort {
		return nil, ErrAborted
	}

	payload, err := c.Group.Recv(ctx, Coordinator)
	if err != nil {
		return nil, fmt.Errorf("distribute: receive block: %w", err)
	}
	local, err := wire.ConsumeRecords(payload)
	if err != nil {
		return nil, fmt.Errorf("distribute: decode block: %w", err)
	}

	if want := blockShare(total, c.Size, c.Rank); len(local) != want {
		return nil, fmt.Errorf("distribute: rank %d received %d records, expected %d", c.Rank, len(local), want)
	}
	return local, nil
}

func distributeFromCoordinator(ctx context.Context, c Cluster, all []string) ([]string, error) {
	total := len(all)
	header := wire.AppendHeader(nil, wire.StatusOK, total)
	if _, err := c.Group.Broadcast(ctx, Coordinator, header); err != nil {
		return nil, fmt.Errorf("distribute: header broadcast: %w", err)
	}

	offset := blockShare(total, c.Size, Coordinator)
	local := slices.Clone(all[:offset])

	for dest := 1; dest < c.Size; dest++ {
		share := blockShare(total, c.Size, dest)
		payload := wire.AppendRecords(nil, all[offset:offset+share])
		if err := c.Group.Send(ctx, dest, payload); err != nil {
			return nil, fmt.Errorf("distribute: send block to rank %d: %w", dest, err)
		}
		offset += share
	}
	return local, nil
}

// LocalSort sorts a partition in place. Empty partitions are a no-op.
func LocalSort(records []string) {
	slices.Sort(records)
}

// Sample picks p-1 evenly spaced records from a sorted partition, at indices
// i*m/p for i = 1..p-1. Small partitions contribute fewer (possibly zero)
// samples.
func Sample(sorted []string, p int) []string {
	s := p - 1
	m := len(sorted)

	var samples []string
	for i := 1; i <= s; i++ {
		idx := i * m / (s + 1)
		if idx < m {
			samples = append(samples, sorted[idx])
		}
	}
	return samples
}

// SelectPivots sorts the gathered samples and picks p-1 boundary values at
// indices i*total/p, clamped so even sample sets smaller than p-1 produce a
// valid pivot set. Duplicate pivots are legal and simply leave some
// destination ranges empty.
func SelectPivots(samples []string, p int) []string {
	pivots := make([]string, p-1)
	total := len(samples)
	if total == 0 {
		return pivots
	}

	slices.Sort(samples)
	for i := 1; i < p; i++ {
		idx := i * total / p
		if idx >= total {
			idx = total - 1
		}
		pivots[i-1] = samples[idx]
	}
	return pivots
}

// PlanPivots gathers local samples at the coordinator, selects the global
// pivots there, and broadcasts them. Every rank returns the identical pivot
// set; the broadcast doubles as the barrier before partitioning.
func PlanPivots(ctx context.Context, c Cluster, samples []string) ([]string, error) {
	gathered, err := c.Group.Gather(ctx, Coordinator, wire.AppendRecords(nil, samples))
	if err != nil {
		return nil, fmt.Errorf("pivot plan: gather samples: %w", err)
	}

	var payload []byte
	if c.IsCoordinator() {
		var all []string
		for source, buf := range gathered {
			decoded, err := wire.ConsumeRecords(buf)
			if err != nil {
				return nil, fmt.Errorf("pivot plan: samples from rank %d: %w", source, err)
			}
			all = append(all, decoded...)
		}
		payload = wire.AppendRecords(nil, SelectPivots(all, c.Size))
	}

	payload, err = c.Group.Broadcast(ctx, Coordinator, payload)
	if err != nil {
		return nil, fmt.Errorf("pivot plan: broadcast: %w", err)
	}
	pivots, err := wire.ConsumeRecords(payload)
	if err != nil {
		return nil, fmt.Errorf("pivot plan: decode pivots: %w", err)
	}
	if len(pivots) != c.Size-1 {
		return nil, fmt.Errorf("pivot plan: got %d pivots, expected %d", len(pivots), c.Size-1)
	}
	return pivots, nil
}

// Partition splits a sorted partition into len(pivots)+1 buckets keyed by
// destination rank: a record's destination is the number of pivots strictly
// less than it, so rank r ends up owning the range (pivot[r-1], pivot[r]].
// Buckets stay sorted because the scan preserves input order.
func Partition(sorted []string, pivots []string) [][]string {
	buckets := make([][]string, len(pivots)+1)
	for _, rec := range sorted {
		dest := sort.SearchStrings(pivots, rec)
		buckets[dest] = append(buckets[dest], rec)
	}
	return buckets
}
