package fabric

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newLoopbackCluster binds one loopback listener per rank so every rank
// knows the full address list before the mesh comes up.
func newLoopbackCluster(t *testing.T, size int) ([]net.Listener, []string) {
	t.Helper()

	listeners := make([]net.Listener, size)
	addrs := make([]string, size)
	for rank := range size {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[rank] = ln
		addrs[rank] = ln.Addr().String()
	}
	return listeners, addrs
}

func dialLoopbackMesh(t *testing.T, size int, opts TCPOptions) []Transport {
	t.Helper()

	listeners, addrs := newLoopbackCluster(t, size)

	transports := make([]Transport, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for rank := range size {
		wg.Go(func() {
			transports[rank], errs[rank] = NewTCP(context.Background(), rank, listeners[rank], addrs, opts)
		})
	}
	wg.Wait()

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	t.Cleanup(func() {
		for _, tr := range transports {
			tr.Close()
		}
	})
	return transports
}

func TestTCP_MeshSendRecv(t *testing.T) {
	transports := dialLoopbackMesh(t, 3, TCPOptions{ClusterName: "test", DialTimeout: 5 * time.Second})
	ctx := context.Background()

	// Every rank sends a tagged payload to every other rank, then receives
	// from every other rank.
	errs := make([]error, len(transports))
	var wg sync.WaitGroup
	for rank, tr := range transports {
		wg.Go(func() {
			for dest := range len(transports) {
				if dest == rank {
					continue
				}
				if err := tr.Send(ctx, dest, []byte(fmt.Sprintf("%d->%d", rank, dest))); err != nil {
					errs[rank] = err
					return
				}
			}
			for source := range len(transports) {
				if source == rank {
					continue
				}
				payload, err := tr.Recv(ctx, source)
				if err != nil {
					errs[rank] = err
					return
				}
				if want := fmt.Sprintf("%d->%d", source, rank); string(payload) != want {
					errs[rank] = fmt.Errorf("got %q, want %q", payload, want)
					return
				}
			}
		})
	}
	wg.Wait()

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func TestTCP_SelfSend(t *testing.T) {
	transports := dialLoopbackMesh(t, 2, TCPOptions{ClusterName: "test", DialTimeout: 5 * time.Second})
	ctx := context.Background()

	require.NoError(t, transports[1].Send(ctx, 1, []byte("kept")))
	payload, err := transports[1].Recv(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), payload)
}

func TestTCP_Collectives(t *testing.T) {
	transports := dialLoopbackMesh(t, 3, TCPOptions{ClusterName: "test", DialTimeout: 5 * time.Second})
	ctx := context.Background()

	errs := make([]error, len(transports))
	var wg sync.WaitGroup
	for rank, tr := range transports {
		wg.Go(func() {
			g := NewGroup(tr)

			var payload []byte
			if rank == 0 {
				payload = []byte("header")
			}
			received, err := g.Broadcast(ctx, 0, payload)
			if err != nil {
				errs[rank] = err
				return
			}
			if string(received) != "header" {
				errs[rank] = fmt.Errorf("broadcast delivered %q", received)
				return
			}

			gathered, err := g.Gather(ctx, 0, []byte{byte(rank)})
			if err != nil {
				errs[rank] = err
				return
			}
			if rank == 0 {
				for source, buf := range gathered {
					if len(buf) != 1 || buf[0] != byte(source) {
						errs[rank] = fmt.Errorf("gather slot %d holds %v", source, buf)
						return
					}
				}
			}
		})
	}
	wg.Wait()

	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func TestTCP_ClusterNameMismatch(t *testing.T) {
	listeners, addrs := newLoopbackCluster(t, 2)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for rank := range 2 {
		wg.Go(func() {
			name := fmt.Sprintf("cluster-%d", rank)
			tr, err := NewTCP(context.Background(), rank, listeners[rank], addrs, TCPOptions{
				ClusterName: name,
				DialTimeout: 2 * time.Second,
			})
			if tr != nil {
				tr.Close()
			}
			errs[rank] = err
		})
	}
	wg.Wait()

	// The accepting side detects the mismatch; the dialing side fails no
	// later than its setup deadline.
	require.Error(t, errs[1])
	require.Contains(t, errs[1].Error(), "cluster name mismatch")
	require.Error(t, errs[0])
}

func TestTCP_InvalidRank(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = NewTCP(context.Background(), 3, ln, []string{ln.Addr().String()}, TCPOptions{})
	require.ErrorIs(t, err, ErrInvalidRank)
}
