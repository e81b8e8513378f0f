package daemon

import (
	"context"
	"net"
	"testing"
	"time"

	"crushstore/internal/codec"
	"crushstore/internal/wire"
)

// echoPeer answers every request with an ack echoing its counter, acting
// as a bare-minimum stand-in for a real daemon's peer socket.
func echoPeer(t *testing.T, keys codec.KeyPair) *net.UDPAddr {
	t.Helper()
	conn := listenUDP(t)
	go func() {
		buf := make([]byte, 65536)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			plaintext, _, err := keys.Decrypt(buf[:n], 0)
			if err != nil {
				continue
			}
			req, err := wire.DecodeRequest(plaintext)
			if err != nil {
				continue
			}
			reply := wire.EncodeAck(req.Counter)
			datagram, _, err := keys.Encrypt(reply, req.Counter)
			if err != nil {
				continue
			}
			conn.WriteToUDP(datagram, addr)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr)
}

func TestPeerLinkRoundTrip(t *testing.T) {
	keys := testKeys()
	peerAddr := echoPeer(t, keys)

	localConn := listenUDP(t)
	link := newPeerLink(localConn)
	t.Cleanup(func() { link.close() })

	go func() {
		buf := make([]byte, 65536)
		for {
			n, addr, err := localConn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			datagram := make([]byte, n)
			copy(datagram, buf[:n])
			link.tryDeliver(addr, datagram)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := wire.Request{Opcode: wire.OpDelete, Pool: testPool, ObjectId: []byte("x")}
	reply, err := link.roundTrip(ctx, Peer{Address: peerAddr, Keys: keys}, req)
	if err != nil {
		t.Fatalf("roundTrip: %v", err)
	}
	resp, err := wire.DecodeAck(reply)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	_ = resp
}

func TestPeerLinkRoundTripTimesOutWithNoResponder(t *testing.T) {
	keys := testKeys()
	deadConn := listenUDP(t)
	deadAddr := deadConn.LocalAddr().(*net.UDPAddr)
	deadConn.Close()

	localConn := listenUDP(t)
	link := newPeerLink(localConn)
	t.Cleanup(func() { link.close() })

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	req := wire.Request{Opcode: wire.OpDelete, Pool: testPool, ObjectId: []byte("x")}
	_, err := link.roundTrip(ctx, Peer{Address: deadAddr, Keys: keys}, req)
	if err == nil {
		t.Fatalf("expected timeout error with no responder")
	}
}
