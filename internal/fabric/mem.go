package fabric

import (
	"context"
	"fmt"
	"slices"
)

// memTransport connects goroutine workers inside one process. Each endpoint
// owns one mailbox per source rank; Send appends a copy of the payload to the
// destination's mailbox for the sending rank.
type memTransport struct {
	rank  int
	size  int
	boxes []*mailbox

	mesh []*memTransport
}

// NewMesh creates size fully connected in-process transports, one per rank.
func NewMesh(size int) []Transport {
	if size < 1 {
		panic(fmt.Sprintf("fabric: mesh size must be >= 1, got %d", size))
	}

	mesh := make([]*memTransport, size)
	for rank := range mesh {
		boxes := make([]*mailbox, size)
		for source := range boxes {
			boxes[source] = newMailbox()
		}
		mesh[rank] = &memTransport{rank: rank, size: size, boxes: boxes, mesh: mesh}
	}

	transports := make([]Transport, size)
	for rank, t := range mesh {
		transports[rank] = t
	}
	return transports
}

func (t *memTransport) Rank() int { return t.rank }
func (t *memTransport) Size() int { return t.size }

func (t *memTransport) Send(ctx context.Context, dest int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dest < 0 || dest >= t.size {
		return fmt.Errorf("%w: dest %d of %d", ErrInvalidRank, dest, t.size)
	}

	t.mesh[dest].boxes[t.rank].put(slices.Clone(payload))
	return nil
}

func (t *memTransport) Recv(ctx context.Context, source int) ([]byte, error) {
	if source < 0 || source >= t.size {
		return nil, fmt.Errorf("%w: source %d of %d", ErrInvalidRank, source, t.size)
	}
	return t.boxes[source].take(ctx)
}

func (t *memTransport) Close() error {
	for _, box := range t.boxes {
		box.close()
	}
	return nil
}
