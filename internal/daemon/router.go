// Package daemon implements the storage daemon's request router: opcode
// dispatch against a backend, the pool transition state machine, request
// forwarding to another daemon's primary, and best-effort replication to
// secondaries.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"crushstore/internal/backend"
	"crushstore/internal/codec"
	"crushstore/internal/metrics"
	"crushstore/internal/placement"
	"crushstore/internal/wire"
)

// forwardTimeout bounds how long this daemon waits for a forwarded
// request's reply before giving up; the client's own 200ms retransmit
// timer is what actually recovers from a timeout this long.
const forwardTimeout = 5 * time.Second

// ErrMisrouted is returned (and logged by Serve; no reply is sent to the
// client) when a request's placement
// disagrees with every state this daemon knows about for the pool.
var ErrMisrouted = errors.New("daemon: request misrouted for current pool state")

// ErrUnknownPool is returned for requests naming a pool this daemon does
// not serve at all.
var ErrUnknownPool = errors.New("daemon: unknown pool")

// Peer describes another storage daemon this one can forward requests to
// or replicate writes to.
type Peer struct {
	Address *net.UDPAddr
	Keys    codec.KeyPair
}

// Router dispatches authenticated client datagrams to the backend,
// handling placement, forwarding, and replication. One Router instance
// serves every pool on a daemon process.
type Router struct {
	SelfId  placement.DeviceId
	Backend backend.Backend
	Metrics metrics.Sink

	mu       sync.RWMutex
	pools    map[placement.PoolName]*atomic.Pointer[PoolState]
	peers    map[placement.DeviceId]Peer
	clients  map[string]*clientCounters
	peerKeys codec.KeyPair

	outbound *peerLink
}

// clientCounters tracks the replay-protection state for one client
// address: the lowest counter we'll still accept on an incoming request,
// and the next counter we use to encrypt our own reply traffic back to
// it. The two are independent sequences even though both requests and
// replies are encrypted under the same shared key pair: reusing a
// client's own counter value for our replies would let the same
// (key, counter) pair encrypt two different plaintexts.
type clientCounters struct {
	minRequestCounter uint32
	nextReplyCounter  uint32
}

// NewRouter constructs a Router. peerConn is the daemon's own UDP socket
// used to forward requests and replicate writes to other daemons; it is
// separate from the socket clients talk to, since forwarding replies
// must never be confused with client replies. peerKeys is the shared
// secret for the whole peer channel (every daemon in the cluster holds
// the same value) — the control plane's peer-roster endpoint only ever
// learns a peer's address, never a per-peer key, so every Peer entry is
// encrypted and decrypted under this one key pair.
func NewRouter(selfId placement.DeviceId, store backend.Backend, sink metrics.Sink, peerConn *net.UDPConn, peerKeys codec.KeyPair) *Router {
	r := &Router{
		SelfId:   selfId,
		Backend:  store,
		Metrics:  sink,
		pools:    make(map[placement.PoolName]*atomic.Pointer[PoolState]),
		peers:    make(map[placement.DeviceId]Peer),
		clients:  make(map[string]*clientCounters),
		peerKeys: peerKeys,
	}
	r.outbound = newPeerLink(peerConn)
	return r
}

// PeerKeys returns the shared key pair used for all daemon-to-daemon
// traffic, so the control plane can populate new Peer entries with it.
func (r *Router) PeerKeys() codec.KeyPair {
	return r.peerKeys
}

// Close closes the peer socket and wakes every forward still waiting for
// a peer reply.
func (r *Router) Close() error {
	return r.outbound.close()
}

// SetPool atomically installs state as the current state for pool,
// replacing whatever was there (including a prior Normal with no
// matching pool, i.e. this also registers new pools).
func (r *Router) SetPool(pool placement.PoolName, state *PoolState) {
	r.mu.Lock()
	ptr, ok := r.pools[pool]
	if !ok {
		ptr = &atomic.Pointer[PoolState]{}
		r.pools[pool] = ptr
	}
	r.mu.Unlock()
	ptr.Store(state)
}

// Pool returns the current state for pool, or nil if unknown.
func (r *Router) Pool(pool placement.PoolName) *PoolState {
	r.mu.RLock()
	ptr, ok := r.pools[pool]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return ptr.Load()
}

// SetPeer registers or updates the address and keys used to reach
// device.
func (r *Router) SetPeer(device placement.DeviceId, peer Peer) {
	r.mu.Lock()
	r.peers[device] = peer
	r.mu.Unlock()
}

func (r *Router) peer(device placement.DeviceId) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[device]
	return p, ok
}

// RemovePeer drops device from the peer roster; forwards or replication
// attempts to it will fail until it is re-added.
func (r *Router) RemovePeer(device placement.DeviceId) {
	r.mu.Lock()
	delete(r.peers, device)
	r.mu.Unlock()
}

// Serve reads datagrams off conn and spawns a handler goroutine per
// datagram, until ctx is cancelled or the socket errors. A daemon
// typically calls Serve twice: once for the client-facing socket (with
// the shared client key) and once for the peer-facing socket used for
// forwarding and replication (with the shared peer key) — the same
// socket peerLink sends outbound peer requests from. Every datagram is
// first offered to the outbound peerLink as a possible reply to a
// request this daemon sent; only datagrams that match nothing pending
// are decrypted under keys and dispatched as fresh requests. This lets
// one socket carry both directions of daemon-to-daemon traffic without a
// second goroutine racing it for reads.
func (r *Router) Serve(ctx context.Context, conn *net.UDPConn, keys codec.KeyPair) error {
	buf := make([]byte, 65536)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		if r.outbound.tryDeliver(addr, datagram) {
			continue
		}

		go func() {
			if err := r.handleDatagram(ctx, conn, keys, addr, datagram); err != nil {
				r.Metrics.IncInvalidRequests()
				log.Printf("daemon: request from %s: %v", addr, err)
			}
		}()
	}
}

func (r *Router) handleDatagram(ctx context.Context, conn *net.UDPConn, clientKeys codec.KeyPair, addr *net.UDPAddr, datagram []byte) error {
	counters := r.clientCounters(addr)

	r.mu.Lock()
	minCounter := counters.minRequestCounter
	r.mu.Unlock()

	plaintext, nextMin, err := clientKeys.Decrypt(datagram, minCounter)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	req, err := wire.DecodeRequest(plaintext)
	if err != nil {
		return fmt.Errorf("parse request: %w", err)
	}

	replyBody, err := r.dispatch(ctx, req)
	if err != nil {
		return err
	}

	r.mu.Lock()
	counters.minRequestCounter = nextMin
	replyCounter := counters.nextReplyCounter
	r.mu.Unlock()

	reply, nextReply, err := clientKeys.Encrypt(replyBody, replyCounter)
	if err != nil {
		return fmt.Errorf("encrypt reply: %w", err)
	}

	r.mu.Lock()
	counters.nextReplyCounter = nextReply
	r.mu.Unlock()

	if _, err := conn.WriteToUDP(reply, addr); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (r *Router) clientCounters(addr *net.UDPAddr) *clientCounters {
	key := addr.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[key]
	if !ok {
		c = &clientCounters{}
		r.clients[key] = c
	}
	return c
}
