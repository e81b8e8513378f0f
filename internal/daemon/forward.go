package daemon

import (
	"context"
	"fmt"

	"crushstore/internal/placement"
	"crushstore/internal/wire"
)

// forward sends req to peerId's primary, using a freshly-allocated
// peer-local counter (never the client's own counter, which the peer
// has no reason to trust), and returns the reply body with its leading
// counter rewritten back to the original client's counter so it can be
// sent straight to the client unmodified otherwise.
func (r *Router) forward(ctx context.Context, peerId placement.DeviceId, req wire.Request) ([]byte, error) {
	peer, ok := r.peer(peerId)
	if !ok {
		return nil, fmt.Errorf("daemon: no address known for peer %s", peerId)
	}

	clientCounter := req.Counter
	reply, err := r.outbound.roundTrip(ctx, peer, req)
	if err != nil {
		return nil, fmt.Errorf("forwarding to %s: %w", peerId, err)
	}

	if err := wire.RewriteCounter(reply, clientCounter); err != nil {
		return nil, fmt.Errorf("daemon: malformed forwarded reply: %w", err)
	}
	return reply, nil
}
