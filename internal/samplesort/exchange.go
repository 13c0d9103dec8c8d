package samplesort

import (
	"context"
	"fmt"

	"github.com/nmarkovic/seqsort/internal/wire"
)

// Exchange runs the all-to-all shuffle. Bucket sizes are exchanged first so
// every rank knows exactly how many records each peer owes it; then each rank
// sends every non-self bucket (empty ones included, keeping the protocol
// symmetric) and keeps its own. Sends complete without waiting on receives
// (see fabric), so the phase makes progress under any bucket-size skew.
// The returned partition is the union of the retained bucket and everything
// received, verified record-for-record against the exchanged counts.
func Exchange(ctx context.Context, c Cluster, buckets [][]string) ([]string, error) {
	if len(buckets) != c.Size {
		return nil, fmt.Errorf("exchange: %d buckets for %d ranks", len(buckets), c.Size)
	}

	outbound := make([]int, c.Size)
	for dest, bucket := range buckets {
		outbound[dest] = len(bucket)
	}

	inbound, err := c.Group.ExchangeCounts(ctx, outbound)
	if err != nil {
		return nil, fmt.Errorf("exchange: counts: %w", err)
	}

	for dest := 0; dest < c.Size; dest++ {
		if dest == c.Rank {
			continue
		}
		payload := wire.AppendRecords(nil, buckets[dest])
		if err := c.Group.Send(ctx, dest, payload); err != nil {
			return nil, fmt.Errorf("exchange: send bucket to rank %d: %w", dest, err)
		}
	}

	total := 0
	for _, count := range inbound {
		total += count
	}

	local := make([]string, 0, total)
	local = append(local, buckets[c.Rank]...)

	for source := 0; source < c.Size; source++ {
		if source == c.Rank {
			continue
		}
		payload, err := c.Group.Recv(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("exchange: receive bucket from rank %d: %w", source, err)
		}
		received, err := wire.ConsumeRecords(payload)
		if err != nil {
			return nil, fmt.Errorf("exchange: decode bucket from rank %d: %w", source, err)
		}
		if len(received) != inbound[source] {
			return nil, fmt.Errorf(
				"exchange: rank %d sent %d records, announced %d",
				source, len(received), inbound[source],
			)
		}
		local = append(local, received...)
	}

	return local, nil
}
