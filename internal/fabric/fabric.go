// Package fabric is the messaging layer between workers of a fixed-size
// group. A Transport moves opaque byte payloads between ranks with reliable,
// ordered, exactly-once delivery per (source, destination) link. Group builds
// the collective operations the sort pipeline needs on top of that.
//
// Every collective is a synchronization point: all ranks must invoke it with
// matching arguments. A rank that skips a collective leaves the rest of the
// group blocked; the protocol has no timeouts by design.
package fabric

import (
	"context"
	"errors"
	"fmt"

	"github.com/nmarkovic/seqsort/internal/wire"
)

var (
	ErrClosed      = errors.New("fabric: transport closed")
	ErrInvalidRank = errors.New("fabric: rank out of range")
)

// Transport delivers payloads between ranks. Send never waits for a matching
// Recv on the destination; payload bytes are copied, never shared. Recv
// blocks until a payload from the given source arrives, the context is
// cancelled, or the transport is closed.
type Transport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dest int, payload []byte) error
	Recv(ctx context.Context, source int) ([]byte, error)
	Close() error
}

// Group layers collective operations over a Transport.
type Group struct {
	transport Transport
}

func NewGroup(transport Transport) *Group {
	return &Group{transport: transport}
}

func (g *Group) Rank() int { return g.transport.Rank() }
func (g *Group) Size() int { return g.transport.Size() }

func (g *Group) Send(ctx context.Context, dest int, payload []byte) error {
	return g.transport.Send(ctx, dest, payload)
}

func (g *Group) Recv(ctx context.Context, source int) ([]byte, error) {
	return g.transport.Recv(ctx, source)
}

// Broadcast delivers root's payload to every rank. Root passes the payload,
// the rest pass nil; all ranks return root's payload.
func (g *Group) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	if err := g.checkRank(root); err != nil {
		return nil, err
	}

	if g.Rank() != root {
		return g.Recv(ctx, root)
	}
	for dest := 0; dest < g.Size(); dest++ {
		if dest == root {
			continue
		}
		if err := g.Send(ctx, dest, payload); err != nil {
			return nil, fmt.Errorf("broadcast to rank %d: %w", dest, err)
		}
	}
	return payload, nil
}

// Gather collects every rank's payload at root, indexed by rank. Non-root
// ranks return nil.
func (g *Group) Gather(ctx context.Context, root int, payload []byte) ([][]byte, error) {
	if err := g.checkRank(root); err != nil {
		return nil, err
	}

	if g.Rank() != root {
		if err := g.Send(ctx, root, payload); err != nil {
			return nil, fmt.Errorf("gather to rank %d: %w", root, err)
		}
		return nil, nil
	}

	gathered := make([][]byte, g.Size())
	gathered[root] = payload
	for source := 0; source < g.Size(); source++ {
		if source == root {
			continue
		}
		received, err := g.Recv(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("gather from rank %d: %w", source, err)
		}
		gathered[source] = received
	}
	return gathered, nil
}

// ExchangeCounts performs an all-to-all of scalars: rank r receives
// perDest[r] from every rank, including its own value at its own index.
func (g *Group) ExchangeCounts(ctx context.Context, perDest []int) ([]int, error) {
	if len(perDest) != g.Size() {
		return nil, fmt.Errorf("fabric: expected %d counts, got %d", g.Size(), len(perDest))
	}

	for dest := 0; dest < g.Size(); dest++ {
		if dest == g.Rank() {
			continue
		}
		payload := wire.AppendCounts(nil, perDest[dest:dest+1])
		if err := g.Send(ctx, dest, payload); err != nil {
			return nil, fmt.Errorf("count exchange to rank %d: %w", dest, err)
		}
	}

	perSource := make([]int, g.Size())
	perSource[g.Rank()] = perDest[g.Rank()]
	for source := 0; source < g.Size(); source++ {
		if source == g.Rank() {
			continue
		}
		payload, err := g.Recv(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("count exchange from rank %d: %w", source, err)
		}
		counts, err := wire.ConsumeCounts(payload, 1)
		if err != nil {
			return nil, fmt.Errorf("count exchange from rank %d: %w", source, err)
		}
		perSource[source] = counts[0]
	}
	return perSource, nil
}

func (g *Group) checkRank(rank int) error {
	if rank < 0 || rank >= g.Size() {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRank, rank, g.Size())
	}
	return nil
}
