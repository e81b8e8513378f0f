package client

import (
	"context"
	"fmt"

	"crushstore/internal/placement"
	"crushstore/internal/wire"
)

// ReadObject fetches an object's full contents. ok is false if the
// daemon reports the object absent.
func (c *Client) ReadObject(ctx context.Context, id placement.ObjectId) (data []byte, ok bool, err error) {
	return c.read(ctx, wire.Request{Pool: c.pool, Opcode: wire.OpReadObject, ObjectId: id})
}

// ReadPart fetches up to length bytes starting at offset, clamped to the
// object's actual length by the daemon.
func (c *Client) ReadPart(ctx context.Context, id placement.ObjectId, offset, length uint32) (data []byte, ok bool, err error) {
	return c.read(ctx, wire.Request{Pool: c.pool, Opcode: wire.OpReadPart, ObjectId: id, Offset: offset, Length: length})
}

// WriteObject replaces an object's contents in full.
func (c *Client) WriteObject(ctx context.Context, id placement.ObjectId, data []byte) error {
	return c.ack(ctx, wire.Request{Pool: c.pool, Opcode: wire.OpWriteObject, ObjectId: id, Data: data})
}

// WritePart writes data at offset, zero-extending the object as needed.
func (c *Client) WritePart(ctx context.Context, id placement.ObjectId, offset uint32, data []byte) error {
	return c.ack(ctx, wire.Request{Pool: c.pool, Opcode: wire.OpWritePart, ObjectId: id, Offset: offset, Data: data})
}

// DeleteObject deletes an object. Deleting an object that doesn't exist
// is not an error.
func (c *Client) DeleteObject(ctx context.Context, id placement.ObjectId) error {
	return c.ack(ctx, wire.Request{Pool: c.pool, Opcode: wire.OpDelete, ObjectId: id})
}

func (c *Client) read(ctx context.Context, req wire.Request) ([]byte, bool, error) {
	peer, err := c.primaryFor(req.ObjectId)
	if err != nil {
		return nil, false, err
	}
	reply, err := c.send(ctx, peer, req)
	if err != nil {
		return nil, false, err
	}
	resp, err := wire.DecodeReadReply(reply)
	if err != nil {
		return nil, false, fmt.Errorf("client: malformed reply: %w", err)
	}
	return resp.Data, resp.Present, nil
}

func (c *Client) ack(ctx context.Context, req wire.Request) error {
	peer, err := c.primaryFor(req.ObjectId)
	if err != nil {
		return err
	}
	reply, err := c.send(ctx, peer, req)
	if err != nil {
		return err
	}
	if _, err := wire.DecodeAck(reply); err != nil {
		return fmt.Errorf("client: malformed reply: %w", err)
	}
	return nil
}
