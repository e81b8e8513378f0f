package client

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"crushstore/internal/codec"
	"crushstore/internal/placement"
	"crushstore/internal/wire"
)

// fakeDaemon is a bare UDP echo server standing in for a storage daemon:
// it decrypts each request, decodes it, and replies according to opcode,
// using the same key pair as the client under test.
type fakeDaemon struct {
	conn *net.UDPConn
	keys codec.KeyPair
	data map[string][]byte
}

func newFakeDaemon(t *testing.T, keys codec.KeyPair) *fakeDaemon {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	d := &fakeDaemon{conn: conn, keys: keys, data: make(map[string][]byte)}
	go d.serve(t)
	t.Cleanup(func() { conn.Close() })
	return d
}

func (d *fakeDaemon) serve(t *testing.T) {
	buf := make([]byte, 65536)
	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		plaintext, _, err := d.keys.Decrypt(buf[:n], 0)
		if err != nil {
			continue
		}
		req, err := wire.DecodeRequest(plaintext)
		if err != nil {
			continue
		}

		var reply []byte
		switch req.Opcode {
		case wire.OpReadObject:
			data, ok := d.data[string(req.ObjectId)]
			reply = wire.EncodeReadReply(req.Counter, ok, data)
		case wire.OpWriteObject:
			d.data[string(req.ObjectId)] = append([]byte(nil), req.Data...)
			reply = wire.EncodeAck(req.Counter)
		case wire.OpDelete:
			delete(d.data, string(req.ObjectId))
			reply = wire.EncodeAck(req.Counter)
		default:
			continue
		}

		datagram, _, err := d.keys.Encrypt(reply, req.Counter)
		if err != nil {
			continue
		}
		d.conn.WriteToUDP(datagram, addr)
	}
}

func testKeys() codec.KeyPair {
	var kp codec.KeyPair
	for i := 0; i < 16; i++ {
		kp.MACKey[i] = byte(i + 1)
		kp.EncryptKey[i] = byte((i + 1) * 2)
	}
	return kp
}

func newTestClient(t *testing.T) (*Client, *fakeDaemon) {
	t.Helper()
	keys := testKeys()
	daemon := newFakeDaemon(t, keys)

	deviceId := placement.DeviceId{1}
	storageMap := &placement.StorageMap{
		Generation: 1,
		Groups:     1,
		Replicas:   1,
		Root:       placement.DeviceNode(deviceId),
	}

	peers := map[placement.DeviceId]*Peer{
		deviceId: {
			DeviceId: deviceId,
			Address:  daemon.conn.LocalAddr().(*net.UDPAddr),
			Keys:     keys,
		},
	}

	c, err := New("test-pool", storageMap, peers)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, daemon
}

func TestClientWriteThenReadRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id := placement.ObjectId("greeting")
	if err := c.WriteObject(ctx, id, []byte("hello world!")); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}

	data, ok, err := c.ReadObject(ctx, id)
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if !ok {
		t.Fatalf("ReadObject: object not found")
	}
	if !bytes.Equal(data, []byte("hello world!")) {
		t.Fatalf("ReadObject = %q, want %q", data, "hello world!")
	}
}

func TestClientReadAbsentObject(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, ok, err := c.ReadObject(ctx, placement.ObjectId("nope"))
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if ok {
		t.Fatalf("expected object to be absent")
	}
}

func TestClientDeleteThenReadIsAbsent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id := placement.ObjectId("temp")
	if err := c.WriteObject(ctx, id, []byte("data")); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	if err := c.DeleteObject(ctx, id); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	_, ok, err := c.ReadObject(ctx, id)
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if ok {
		t.Fatalf("object still present after delete")
	}
}
