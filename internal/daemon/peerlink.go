package daemon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"crushstore/internal/codec"
	"crushstore/internal/wire"
)

// peerLink is the daemon-to-daemon counterpart of the client engine's
// send machinery: per-peer monotonic counters and a pending-reply table
// keyed by (peer address, counter). It does not own a receive loop of
// its own — the same socket also receives fresh forwarded requests from
// other daemons, so Router.Serve reads it and offers every datagram to
// tryDeliver first; only datagrams that match nothing pending are new
// requests. Unlike the client engine, a single round trip here never
// retries on its own timer — forwardTimeout just gives up, and the
// original client's own 200ms retransmit is what drives a retry.
type peerLink struct {
	conn *net.UDPConn

	mu      sync.Mutex
	counter map[string]uint32
	pending map[pendingKey]pendingReply

	closeOnce sync.Once
	done      chan struct{}
}

type pendingKey struct {
	addr    string
	counter uint32
}

// pendingReply pairs the channel awaiting a reply with the key pair
// needed to authenticate and decrypt it: tryDeliver has no other way to
// know which peer a reply came from besides matching this entry.
type pendingReply struct {
	ch   chan []byte
	keys codec.KeyPair
}

func newPeerLink(conn *net.UDPConn) *peerLink {
	return &peerLink{
		conn:    conn,
		counter: make(map[string]uint32),
		pending: make(map[pendingKey]pendingReply),
		done:    make(chan struct{}),
	}
}

func (p *peerLink) close() error {
	err := p.conn.Close()
	p.closeOnce.Do(func() { close(p.done) })
	return err
}

// roundTrip encrypts req under peer.Keys using a fresh counter for this
// peer, sends it, and waits up to forwardTimeout for a matching reply.
// The per-peer counter is advanced to the value Encrypt returns, not by
// a flat +1 — Encrypt consumes one AES block per 16 bytes of framed
// plaintext, so any request spanning more than one block must advance
// the counter past every block it used or the next message to this peer
// would reuse an already-used counter under the same key.
func (p *peerLink) roundTrip(ctx context.Context, peer Peer, req wire.Request) ([]byte, error) {
	addrKey := peer.Address.String()

	p.mu.Lock()
	counter := p.counter[addrKey]
	req.Counter = counter

	datagram, next, err := peer.Keys.Encrypt(req.Encode(), counter)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	p.counter[addrKey] = next

	key := pendingKey{addr: addrKey, counter: counter}
	replyCh := make(chan []byte, 1)
	p.pending[key] = pendingReply{ch: replyCh, keys: peer.Keys}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, key)
		p.mu.Unlock()
	}()

	if _, err := p.conn.WriteToUDP(datagram, peer.Address); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	timer := time.NewTimer(forwardTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("forwarding timed out after %s", forwardTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, fmt.Errorf("peer link closed")
	}
}

// tryDeliver matches an encrypted datagram against the pending-reply
// table and, on a match, decrypts and delivers it. It reports whether the
// datagram was claimed; a false return means the caller should treat the
// datagram as a fresh incoming request instead. The envelope's own
// initial counter (readable without decrypting) is kept numerically
// equal to the embedded plaintext counter by construction (see
// roundTrip), so it can be used to find the right pending entry — and
// therefore the right key pair — before decryption is attempted.
func (p *peerLink) tryDeliver(addr *net.UDPAddr, datagram []byte) bool {
	counter, err := wire.PeekCounter(datagram)
	if err != nil {
		return false
	}
	key := pendingKey{addr: addr.String(), counter: counter}

	p.mu.Lock()
	entry, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}

	plaintext, _, err := entry.keys.Decrypt(datagram, 0)
	if err != nil {
		return true
	}

	select {
	case entry.ch <- plaintext:
	default:
	}
	return true
}
