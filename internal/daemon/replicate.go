package daemon

import (
	"context"
	"log"
	"time"

	"crushstore/internal/placement"
	"crushstore/internal/wire"
)

// replicationTimeout bounds each secondary replication attempt; it does
// not block the client reply (see replicateAsync), only how long a
// stray background goroutine can live.
const replicationTimeout = 5 * time.Second

// replicateAsync fans a write out to every secondary beyond the primary,
// in the background, without the client waiting on it: the reply to the
// client is sent as soon as the local (primary) write succeeds. A
// secondary that never acknowledges only shows up as a logged failure
// and a metrics counter, never as a client-visible error — ack-after-
// primary, not ack-after-quorum.
func (r *Router) replicateAsync(req wire.Request, rt route) {
	if rt.storageMap == nil {
		return
	}
	replicas := rt.storageMap.Replicas
	if replicas == 0 {
		replicas = 1
	}
	secondaries := secondariesOf(rt.storageMap, req.ObjectId, replicas)
	for _, device := range secondaries {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), replicationTimeout)
			defer cancel()
			if _, err := r.forward(ctx, device, req); err != nil {
				r.Metrics.IncReplicationFailures()
				log.Printf("daemon: replication to %s failed: %v", device, err)
			}
		}()
	}
}

// propagateDeleteAsync mirrors a delete to the previous primary during a
// Transition, preventing a later fallback read from resurrecting the
// object out of the old location.
func (r *Router) propagateDeleteAsync(req wire.Request, previousPrimary placement.DeviceId) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), replicationTimeout)
		defer cancel()
		if _, err := r.forward(ctx, previousPrimary, req); err != nil {
			r.Metrics.IncReplicationFailures()
			log.Printf("daemon: delete propagation to %s failed: %v", previousPrimary, err)
		}
	}()
}
