package fabric

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// maxFrameSize bounds a single frame so a corrupt length prefix cannot
	// trigger an arbitrary allocation.
	maxFrameSize = 1 << 30

	dialRetryInterval  = 50 * time.Millisecond
	defaultDialTimeout = 10 * time.Second
)

// TCPOptions configures mesh establishment.
type TCPOptions struct {
	// ClusterName is exchanged during the handshake; a peer reporting a
	// different name fails the connection.
	ClusterName string

	// DialTimeout bounds how long mesh establishment may take, including
	// retries while peer listeners come up.
	DialTimeout time.Duration
}

// tcpTransport is a full mesh of TCP connections between the ranks of one
// cluster. Rank i dials every rank above it and accepts a connection from
// every rank below it, so each pair shares exactly one connection. A reader
// goroutine per peer drains inbound frames into per-source mailboxes;
// application sends therefore never wait on the destination's receive order.
type tcpTransport struct {
	rank  int
	size  int
	boxes []*mailbox
	peers []*peerConn

	listener  net.Listener
	closeOnce sync.Once
	readers   sync.WaitGroup
}

type peerConn struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCP establishes the mesh for this rank. The listener must already be
// bound to this rank's address; peerAddrs lists every rank's address in rank
// order. NewTCP returns only once a connection to every peer is up and
// handshaken.
func NewTCP(ctx context.Context, rank int, listener net.Listener, peerAddrs []string, opts TCPOptions) (Transport, error) {
	size := len(peerAddrs)
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidRank, rank, size)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}

	t := &tcpTransport{
		rank:     rank,
		size:     size,
		boxes:    make([]*mailbox, size),
		peers:    make([]*peerConn, size),
		listener: listener,
	}
	for source := range t.boxes {
		t.boxes[source] = newMailbox()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		first error
	)
	fail := func(err error) {
		mu.Lock()
		if first == nil {
			first = err
		}
		mu.Unlock()
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := t.acceptPeers(ctx, opts.ClusterName); err != nil {
			fail(err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := t.dialPeers(ctx, peerAddrs, opts.ClusterName); err != nil {
			fail(err)
		}
	}()

	wg.Wait()

	if first != nil {
		t.Close()
		return nil, first
	}

	for peer, pc := range t.peers {
		if pc == nil {
			continue
		}
		t.readers.Add(1)
		go t.readLoop(peer, pc)
	}

	return t, nil
}

// acceptPeers accepts one connection from every lower rank.
func (t *tcpTransport) acceptPeers(ctx context.Context, clusterName string) error {
	expected := t.rank
	if expected == 0 {
		return nil
	}

	// Unblock Accept when the setup context expires.
	stop := context.AfterFunc(ctx, func() { t.listener.Close() })
	defer stop()

	for accepted := 0; accepted < expected; accepted++ {
		conn, err := t.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("mesh setup: accepted %d of %d peers: %w", accepted, expected, ctx.Err())
			}
			return fmt.Errorf("mesh setup: accept: %w", err)
		}

		pc := &peerConn{conn: conn, reader: bufio.NewReader(conn)}
		peer, err := t.handshake(pc, clusterName)
		if err != nil {
			conn.Close()
			return err
		}
		if peer >= t.rank || t.peers[peer] != nil {
			conn.Close()
			return fmt.Errorf("mesh setup: unexpected connection from rank %d", peer)
		}
		t.peers[peer] = pc
	}
	return nil
}

// dialPeers connects to every higher rank, retrying while their listeners
// come up.
func (t *tcpTransport) dialPeers(ctx context.Context, peerAddrs []string, clusterName string) error {
	for peer := t.rank + 1; peer < t.size; peer++ {
		conn, err := dialRetry(ctx, peerAddrs[peer])
		if err != nil {
			return fmt.Errorf("mesh setup: dial rank %d at %s: %w", peer, peerAddrs[peer], err)
		}

		pc := &peerConn{conn: conn, reader: bufio.NewReader(conn)}
		got, err := t.handshake(pc, clusterName)
		if err != nil {
			conn.Close()
			return err
		}
		if got != peer {
			conn.Close()
			return fmt.Errorf("mesh setup: dialed rank %d, peer identified as %d", peer, got)
		}
		t.peers[peer] = pc
	}
	return nil
}

func dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(dialRetryInterval):
		}
	}
}

// handshake exchanges rank and cluster name on a fresh connection, both
// directions, and returns the peer's rank.
func (t *tcpTransport) handshake(pc *peerConn, clusterName string) (int, error) {
	hello := protowire.AppendVarint(nil, uint64(t.rank))
	hello = protowire.AppendString(hello, clusterName)
	if err := pc.writeFrame(hello); err != nil {
		return 0, fmt.Errorf("mesh setup: send handshake: %w", err)
	}

	frame, err := readFrame(pc.reader)
	if err != nil {
		return 0, fmt.Errorf("mesh setup: read handshake: %w", err)
	}

	peer, n := protowire.ConsumeVarint(frame)
	if n < 0 {
		return 0, fmt.Errorf("mesh setup: malformed handshake")
	}
	name, n2 := protowire.ConsumeString(frame[n:])
	if n2 < 0 {
		return 0, fmt.Errorf("mesh setup: malformed handshake")
	}
	if name != clusterName {
		return 0, fmt.Errorf("mesh setup: cluster name mismatch: %q != %q", name, clusterName)
	}
	if peer >= uint64(t.size) {
		return 0, fmt.Errorf("%w: handshake rank %d of %d", ErrInvalidRank, peer, t.size)
	}
	return int(peer), nil
}

func (t *tcpTransport) readLoop(peer int, pc *peerConn) {
	defer t.readers.Done()
	for {
		frame, err := readFrame(pc.reader)
		if err != nil {
			// Peer gone or transport closing; wake any blocked Recv.
			t.boxes[peer].close()
			return
		}
		t.boxes[peer].put(frame)
	}
}

func (t *tcpTransport) Rank() int { return t.rank }
func (t *tcpTransport) Size() int { return t.size }

func (t *tcpTransport) Send(ctx context.Context, dest int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dest < 0 || dest >= t.size {
		return fmt.Errorf("%w: dest %d of %d", ErrInvalidRank, dest, t.size)
	}
	if dest == t.rank {
		t.boxes[t.rank].put(slices.Clone(payload))
		return nil
	}

	pc := t.peers[dest]
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.writeFrame(payload); err != nil {
		return fmt.Errorf("send to rank %d: %w", dest, err)
	}
	return nil
}

func (t *tcpTransport) Recv(ctx context.Context, source int) ([]byte, error) {
	if source < 0 || source >= t.size {
		return nil, fmt.Errorf("%w: source %d of %d", ErrInvalidRank, source, t.size)
	}
	return t.boxes[source].take(ctx)
}

func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.listener.Close()
		for _, pc := range t.peers {
			if pc != nil {
				pc.conn.Close()
			}
		}
		t.readers.Wait()
		for _, box := range t.boxes {
			box.close()
		}
	})
	return nil
}

func (pc *peerConn) writeFrame(payload []byte) error {
	frame := protowire.AppendVarint(nil, uint64(len(payload)))
	frame = append(frame, payload...)
	_, err := pc.conn.Write(frame)
	return err
}

func readFrame(reader *bufio.Reader) ([]byte, error) {
	length, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, err
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", length)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(reader, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
