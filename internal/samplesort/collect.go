package samplesort

import (
	"context"
	"fmt"

	"github.com/nmarkovic/seqsort/internal/wire"
)

// Collect gathers every rank's final sorted partition at the coordinator in
// rank order. Because partitions cover disjoint ascending ranges, the
// concatenation is globally sorted with no re-sort. Non-coordinator ranks
// return nil.
func Collect(ctx context.Context, c Cluster, sorted []string) ([]string, error) {
	gathered, err := c.Group.Gather(ctx, Coordinator, wire.AppendRecords(nil, sorted))
	if err != nil {
		return nil, fmt.Errorf("collect: gather: %w", err)
	}
	if !c.IsCoordinator() {
		return nil, nil
	}

	var result []string
	for source, payload := range gathered {
		partition, err := wire.ConsumeRecords(payload)
		if err != nil {
			return nil, fmt.Errorf("collect: partition from rank %d: %w", source, err)
		}
		result = append(result, partition...)
	}
	return result, nil
}
