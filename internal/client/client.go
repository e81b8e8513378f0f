// Package client implements the UDP engine object-store clients use to
// talk to storage daemons: per-peer counters, a pending-reply table keyed
// by (peer address, counter), and a 200ms retransmission timer running
// against a single background receive goroutine.
//
// A Client talks to exactly one pool. It does not implement any
// distributed logic itself — placement comes from the storage map,
// forwarding and replication are the daemon's job. The client only
// knows how to find the primary for an object and exchange one
// authenticated datagram with it, retrying until an answer arrives.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crushstore/internal/codec"
	"crushstore/internal/placement"
	"crushstore/internal/wire"
)

// retransmitInterval is how long the send path waits for a reply before
// resending the same datagram (same counter: once the daemon has served
// one copy, its replay floor rejects any later copy of it).
const retransmitInterval = 200 * time.Millisecond

// Peer is everything the client needs to talk to one storage daemon.
type Peer struct {
	DeviceId    placement.DeviceId
	Address     *net.UDPAddr
	Keys        codec.KeyPair
	nextCounter uint32
}

// pendingKey identifies one in-flight request awaiting a reply.
type pendingKey struct {
	addr    string
	counter uint32
}

// Client is a UDP engine bound to one pool. Safe for concurrent use by
// multiple goroutines issuing independent requests.
type Client struct {
	pool placement.PoolName
	conn *net.UDPConn

	mu      sync.Mutex
	mapPtr  *placement.StorageMap
	peers   map[placement.DeviceId]*Peer
	pending map[pendingKey]chan []byte

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New binds a UDP socket and starts the background receive loop. Callers
// must call Close when done to release the socket and stop the
// background goroutine.
func New(pool placement.PoolName, storageMap *placement.StorageMap, peers map[placement.DeviceId]*Peer) (*Client, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("client: listen udp: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	c := &Client{
		pool:    pool,
		conn:    conn,
		mapPtr:  storageMap,
		peers:   peers,
		pending: make(map[pendingKey]chan []byte),
		group:   group,
		cancel:  cancel,
	}

	group.Go(func() error {
		return c.receiveLoop(ctx)
	})

	return c, nil
}

// Close cancels the background receive loop and closes the socket. Any
// request still waiting for a reply fails with a send error at its next
// retransmission, or earlier if its own context ends.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close()
	c.group.Wait()
	return err
}

// SetMap atomically swaps the storage map used to pick primaries for
// subsequent requests.
func (c *Client) SetMap(m *placement.StorageMap) {
	c.mu.Lock()
	c.mapPtr = m
	c.mu.Unlock()
}

func (c *Client) currentMap() *placement.StorageMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapPtr
}

// primaryFor resolves the device currently responsible for an object.
func (c *Client) primaryFor(id placement.ObjectId) (*Peer, error) {
	m := c.currentMap()
	group := m.ObjectToGroup(id)
	devices := m.GroupToDevices(group, 1)
	if len(devices) == 0 {
		return nil, fmt.Errorf("client: no device serves group %d", group)
	}

	c.mu.Lock()
	peer, ok := c.peers[devices[0]]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("client: unknown peer %s", devices[0])
	}
	return peer, nil
}

// send allocates a counter for peer, encrypts the request once, and
// loops resending the same datagram until a reply arrives or ctx is
// done. peer.nextCounter is advanced to the value Encrypt returns, not
// by a flat +1: Encrypt consumes one AES block per 16 bytes of framed
// plaintext, so a multi-block request must advance the counter by more
// than one or the next message's blocks would reuse an already-used
// counter value under the same key. The mutex is held only to allocate
// and advance the counter, encrypt, and register or remove the pending
// entry, never across the socket I/O or the wait.
func (c *Client) send(ctx context.Context, peer *Peer, req wire.Request) ([]byte, error) {
	c.mu.Lock()
	counter := peer.nextCounter
	req.Counter = counter

	plaintext := req.Encode()
	datagram, next, err := peer.Keys.Encrypt(plaintext, counter)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: encrypt request: %w", err)
	}
	peer.nextCounter = next

	key := pendingKey{addr: peer.Address.String(), counter: counter}
	replyCh := make(chan []byte, 1)
	c.pending[key] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(retransmitInterval)
	defer ticker.Stop()

	if _, err := c.conn.WriteToUDP(datagram, peer.Address); err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}

	for {
		select {
		case reply := <-replyCh:
			return reply, nil
		case <-ticker.C:
			if _, err := c.conn.WriteToUDP(datagram, peer.Address); err != nil {
				return nil, fmt.Errorf("client: resend request: %w", err)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// receiveLoop is the single background goroutine reading replies off the
// socket. It never blocks a caller: replies that match a pending request
// are delivered over that request's dedicated channel; anything else
// (unexpected counter, cancelled caller, duplicate retransmit reply) is
// dropped.
func (c *Client) receiveLoop(ctx context.Context) error {
	buf := make([]byte, 65536)
	for {
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		plaintext, replyCounter, ok := c.decryptReply(addr, buf[:n])
		if !ok {
			continue
		}

		key := pendingKey{addr: addr.String(), counter: replyCounter}
		c.mu.Lock()
		ch, ok := c.pending[key]
		if ok {
			delete(c.pending, key)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case ch <- plaintext:
		default:
		}
	}
}

// decryptReply finds which peer addr belongs to (replies come back from
// the daemon we sent to) and authenticates the datagram under that
// peer's keys, then peeks the echoed counter without a full body parse.
func (c *Client) decryptReply(addr *net.UDPAddr, datagram []byte) (plaintext []byte, counter uint32, ok bool) {
	c.mu.Lock()
	var peer *Peer
	for _, p := range c.peers {
		if p.Address.IP.Equal(addr.IP) && p.Address.Port == addr.Port {
			peer = p
			break
		}
	}
	c.mu.Unlock()
	if peer == nil {
		return nil, 0, false
	}

	plain, _, err := peer.Keys.Decrypt(datagram, 0)
	if err != nil {
		return nil, 0, false
	}
	echoed, err := wire.PeekCounter(plain)
	if err != nil {
		return nil, 0, false
	}
	return plain, echoed, true
}
