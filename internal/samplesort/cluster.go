// Package samplesort implements distributed sample sort over a fixed group
// of workers: block distribution, local sort, regular sampling, global pivot
// selection on the coordinator, bucket partitioning, an all-to-all shuffle,
// and a rank-ordered gather of the sorted partitions.
package samplesort

import (
	"github.com/nmarkovic/seqsort/internal/fabric"
	"github.com/nmarkovic/seqsort/internal/shared/logging"
)

// Coordinator is the rank that reads input, selects pivots, and writes
// output.
const Coordinator = 0

// Cluster is the immutable per-worker context threaded through every phase:
// this worker's rank, the group size, and the messaging fabric. Nothing in
// the pipeline reads ambient process-wide state.
type Cluster struct {
	Rank   int
	Size   int
	Group  *fabric.Group
	Logger logging.Logger
}

func NewCluster(group *fabric.Group, logger logging.Logger) Cluster {
	if logger == nil {
		logger = logging.Nop{}
	}
	return Cluster{
		Rank:   group.Rank(),
		Size:   group.Size(),
		Group:  group,
		Logger: logger.With("rank", group.Rank()),
	}
}

func (c Cluster) IsCoordinator() bool {
	return c.Rank == Coordinator
}

// blockShare is the size of rank's slice under block distribution: the first
// n mod p ranks get one extra record.
func blockShare(n, p, rank int) int {
	share := n / p
	if rank < n%p {
		share++
	}
	return share
}
