package daemon

import (
	"testing"

	"crushstore/internal/placement"
)

func devID(b byte) placement.DeviceId {
	var d placement.DeviceId
	d[0] = b
	return d
}

// flatMap builds a single Fallback bucket over devices, replicated
// replicas-wide, enough to exercise primary/secondary resolution without
// needing the full straw machinery under test here.
func flatMap(generation uint32, replicas uint32, devices ...byte) *placement.StorageMap {
	children := make([]placement.NodeEntry, len(devices))
	for i, d := range devices {
		children[i] = placement.NodeEntry{Weight: 1, Node: placement.DeviceNode(devID(d))}
	}
	bucket := &placement.Bucket{
		Id:        1,
		Algorithm: placement.Algorithm{Kind: placement.Fallback},
		PickMode:  placement.NeverRepeat,
		Children:  children,
	}
	return &placement.StorageMap{
		Generation: generation,
		Groups:     16,
		Replicas:   replicas,
		Root:       placement.BucketNode(bucket),
	}
}

// Fallback picks index = attempt, so with NeverRepeat children resolve in
// order: replica 0 -> devices[0], replica 1 -> devices[1], etc, making the
// primary/secondary assignment deterministic and easy to assert against.

func TestNewNormalPoolServesPrimaryLocally(t *testing.T) {
	m := flatMap(1, 2, 0xAA, 0xBB)
	pool := NewNormalPool(m)

	rt := pool.resolve(devID(0xAA), []byte("obj"))
	if !rt.servesLocally {
		t.Fatalf("expected primary to serve locally")
	}
	if rt.forwardTo != nil || rt.fallbackTo != nil || rt.misdirected {
		t.Fatalf("unexpected route fields: %+v", rt)
	}
}

func TestNewNormalPoolMisdirectsNonPrimary(t *testing.T) {
	m := flatMap(1, 2, 0xAA, 0xBB)
	pool := NewNormalPool(m)

	rt := pool.resolve(devID(0xBB), []byte("obj"))
	if rt.servesLocally {
		t.Fatalf("secondary should not serve locally under Normal")
	}
	if !rt.misdirected {
		t.Fatalf("expected misdirected, got %+v", rt)
	}
}

func TestPrepareTransitionNewPrimaryForwards(t *testing.T) {
	current := flatMap(1, 1, 0xAA)
	next := flatMap(2, 1, 0xBB)

	pool := NewNormalPool(current).PrepareTransition(next)

	// old primary keeps serving locally.
	rt := pool.resolve(devID(0xAA), []byte("obj"))
	if !rt.servesLocally {
		t.Fatalf("old primary should still serve locally during TransitionPrepare")
	}

	// new primary forwards to the old one instead of rejecting.
	rt = pool.resolve(devID(0xBB), []byte("obj"))
	if rt.servesLocally || rt.misdirected {
		t.Fatalf("new primary should forward, not serve or reject: %+v", rt)
	}
	if rt.forwardTo == nil || *rt.forwardTo != devID(0xAA) {
		t.Fatalf("expected forwardTo old primary, got %+v", rt.forwardTo)
	}
}

func TestPrepareTransitionUninvolvedDeviceMisdirected(t *testing.T) {
	current := flatMap(1, 1, 0xAA)
	next := flatMap(2, 1, 0xBB)
	pool := NewNormalPool(current).PrepareTransition(next)

	rt := pool.resolve(devID(0xCC), []byte("obj"))
	if !rt.misdirected {
		t.Fatalf("expected misdirected for uninvolved device, got %+v", rt)
	}
}

func TestBeginTransitionNewPrimaryServesWithFallback(t *testing.T) {
	current := flatMap(1, 1, 0xAA)
	next := flatMap(2, 1, 0xBB)
	pool := NewNormalPool(current).PrepareTransition(next).BeginTransition()

	rt := pool.resolve(devID(0xBB), []byte("obj"))
	if !rt.servesLocally {
		t.Fatalf("new primary should serve locally during Transition")
	}
	if rt.fallbackTo == nil || *rt.fallbackTo != devID(0xAA) {
		t.Fatalf("expected fallback to old primary, got %+v", rt.fallbackTo)
	}

	rt = pool.resolve(devID(0xAA), []byte("obj"))
	if !rt.misdirected {
		t.Fatalf("old primary should be misdirected once Transition has begun: %+v", rt)
	}
}

func TestFinishTransitionReturnsToNormal(t *testing.T) {
	current := flatMap(1, 1, 0xAA)
	next := flatMap(2, 1, 0xBB)
	pool := NewNormalPool(current).PrepareTransition(next).BeginTransition().FinishTransition()

	rt := pool.resolve(devID(0xBB), []byte("obj"))
	if !rt.servesLocally || rt.fallbackTo != nil {
		t.Fatalf("expected plain Normal serving with no fallback, got %+v", rt)
	}
}

func TestBeginTransitionPanicsOutsidePrepare(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling BeginTransition outside TransitionPrepare")
		}
	}()
	NewNormalPool(flatMap(1, 1, 0xAA)).BeginTransition()
}

func TestFinishTransitionPanicsOutsideTransition(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling FinishTransition outside Transition")
		}
	}()
	current := flatMap(1, 1, 0xAA)
	next := flatMap(2, 1, 0xBB)
	NewNormalPool(current).PrepareTransition(next).FinishTransition()
}

func TestSecondariesOfExcludesPrimary(t *testing.T) {
	m := flatMap(1, 3, 0xAA, 0xBB, 0xCC)
	secondaries := secondariesOf(m, []byte("obj"), 3)
	if len(secondaries) != 2 {
		t.Fatalf("expected 2 secondaries, got %d: %v", len(secondaries), secondaries)
	}
	if secondaries[0] != devID(0xBB) || secondaries[1] != devID(0xCC) {
		t.Fatalf("unexpected secondaries: %v", secondaries)
	}
}

func TestSecondariesOfEmptyWhenSingleReplica(t *testing.T) {
	m := flatMap(1, 1, 0xAA)
	secondaries := secondariesOf(m, []byte("obj"), 1)
	if len(secondaries) != 0 {
		t.Fatalf("expected no secondaries with replicas=1, got %v", secondaries)
	}
}
