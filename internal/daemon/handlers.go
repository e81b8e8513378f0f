package daemon

import (
	"context"
	"fmt"

	"crushstore/internal/placement"
	"crushstore/internal/wire"
)

// dispatch resolves placement for req against the named pool's current
// state and either serves it locally, forwards it to another daemon, or
// reports it misrouted. It returns the plaintext reply body (still
// carrying req.Counter as its echoed counter) ready for encryption.
func (r *Router) dispatch(ctx context.Context, req wire.Request) ([]byte, error) {
	pool := r.Pool(req.Pool)
	if pool == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPool, req.Pool)
	}

	rt := pool.resolve(r.SelfId, req.ObjectId)

	switch {
	case rt.servesLocally:
		return r.serveLocally(ctx, req, rt)

	case rt.forwardTo != nil:
		r.Metrics.IncForwards()
		return r.forward(ctx, *rt.forwardTo, req)

	default:
		return nil, fmt.Errorf("%w: pool %q object %q", ErrMisrouted, req.Pool, req.ObjectId)
	}
}

// serveLocally executes the request against the backend, with the
// Transition state's read-miss/delete-propagation fallback behavior
// layered on top, then replicates writes to secondaries before
// returning the client reply (ack-after-primary: replication happens in
// the background and does not delay the reply).
func (r *Router) serveLocally(ctx context.Context, req wire.Request, rt route) ([]byte, error) {
	switch req.Opcode {
	case wire.OpReadObject:
		data, ok, err := r.Backend.ReadObject(ctx, req.Pool, req.ObjectId)
		if err != nil {
			return nil, fmt.Errorf("read_object: %w", err)
		}
		if !ok && rt.fallbackTo != nil {
			data, ok, err = r.forwardRead(ctx, *rt.fallbackTo, req)
			if err != nil {
				return nil, err
			}
		}
		r.Metrics.IncReads()
		return wire.EncodeReadReply(req.Counter, ok, data), nil

	case wire.OpReadPart:
		data, ok, err := r.Backend.ReadPart(ctx, req.Pool, req.ObjectId, req.Offset, req.Length)
		if err != nil {
			return nil, fmt.Errorf("read_part: %w", err)
		}
		if !ok && rt.fallbackTo != nil {
			data, ok, err = r.forwardRead(ctx, *rt.fallbackTo, req)
			if err != nil {
				return nil, err
			}
		}
		r.Metrics.IncReads()
		return wire.EncodeReadReply(req.Counter, ok, data), nil

	case wire.OpWriteObject:
		if err := r.Backend.WriteObject(ctx, req.Pool, req.ObjectId, req.Data); err != nil {
			return nil, fmt.Errorf("write_object: %w", err)
		}
		r.Metrics.IncWrites()
		r.replicateAsync(req, rt)
		return wire.EncodeAck(req.Counter), nil

	case wire.OpWritePart:
		if err := r.Backend.WritePart(ctx, req.Pool, req.ObjectId, req.Offset, req.Data); err != nil {
			return nil, fmt.Errorf("write_part: %w", err)
		}
		r.Metrics.IncWrites()
		r.replicateAsync(req, rt)
		return wire.EncodeAck(req.Counter), nil

	case wire.OpDelete:
		if err := r.Backend.DeleteObject(ctx, req.Pool, req.ObjectId); err != nil {
			return nil, fmt.Errorf("delete_object: %w", err)
		}
		r.Metrics.IncWrites()
		r.replicateAsync(req, rt)
		if rt.fallbackTo != nil {
			r.propagateDeleteAsync(req, *rt.fallbackTo)
		}
		return wire.EncodeAck(req.Counter), nil

	default:
		return nil, fmt.Errorf("daemon: unhandled opcode %s", req.Opcode)
	}
}

// forwardRead issues req against peer and decodes it as a read reply,
// used for Transition's read-miss fallback to the previous primary.
func (r *Router) forwardRead(ctx context.Context, peerId placement.DeviceId, req wire.Request) ([]byte, bool, error) {
	replyBody, err := r.forward(ctx, peerId, req)
	if err != nil {
		return nil, false, err
	}
	resp, err := wire.DecodeReadReply(replyBody)
	if err != nil {
		return nil, false, fmt.Errorf("daemon: malformed fallback reply: %w", err)
	}
	return resp.Data, resp.Present, nil
}
