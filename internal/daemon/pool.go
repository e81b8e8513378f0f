package daemon

import "crushstore/internal/placement"

// PoolState is the transition state machine driving one pool's placement
// decisions. The zero value is not valid; use NewNormalPool.
type PoolState struct {
	kind    poolKind
	current *placement.StorageMap // Normal, TransitionPrepare.current, Transition.current
	other   *placement.StorageMap // TransitionPrepare.next, Transition.previous
}

type poolKind int

const (
	poolNormal poolKind = iota
	poolTransitionPrepare
	poolTransition
)

// NewNormalPool wraps a single map in steady-state Normal.
func NewNormalPool(m *placement.StorageMap) *PoolState {
	return &PoolState{kind: poolNormal, current: m}
}

// PrepareTransition moves Normal(current) to TransitionPrepare{current,
// next}: the new primary starts forwarding writes to the old primary.
func (p *PoolState) PrepareTransition(next *placement.StorageMap) *PoolState {
	return &PoolState{kind: poolTransitionPrepare, current: p.current, other: next}
}

// BeginTransition moves TransitionPrepare{current, next} to
// Transition{previous: current, current: next}: reads and writes flip to
// serve from the new map, with fallback reads against the old one.
func (p *PoolState) BeginTransition() *PoolState {
	if p.kind != poolTransitionPrepare {
		panic("daemon: BeginTransition called outside TransitionPrepare")
	}
	return &PoolState{kind: poolTransition, current: p.other, other: p.current}
}

// FinishTransition moves Transition{previous, current} back to
// Normal(current), dropping the fallback map.
func (p *PoolState) FinishTransition() *PoolState {
	if p.kind != poolTransition {
		panic("daemon: FinishTransition called outside Transition")
	}
	return &PoolState{kind: poolNormal, current: p.current}
}

// route describes how this daemon should handle a request for a group
// under the pool's current state.
type route struct {
	// servesLocally is true if this daemon holds the primary responsible
	// for serving (possibly with fallback) right now.
	servesLocally bool

	// forwardTo is set when servesLocally is false but this daemon
	// should forward the request to another primary instead of
	// rejecting it as misdirected (TransitionPrepare's new primary).
	forwardTo *placement.DeviceId

	// fallbackTo is set when reads may fall back to another primary on
	// a local miss (Transition's new primary falling back to the old
	// one), and deletes should additionally be propagated there.
	fallbackTo *placement.DeviceId

	// misdirected is true if neither servesLocally nor forwardTo apply:
	// the client's map disagrees with this daemon's.
	misdirected bool

	storageMap *placement.StorageMap
}

// resolve decides how self should handle a request for object id, given
// this pool's current transition state.
func (p *PoolState) resolve(self placement.DeviceId, id placement.ObjectId) route {
	switch p.kind {
	case poolNormal:
		return resolveNormal(self, p.current, id)

	case poolTransitionPrepare:
		currentPrimary := primaryDevice(p.current, id)
		if currentPrimary == self {
			return route{servesLocally: true, storageMap: p.current}
		}
		nextPrimary := primaryDevice(p.other, id)
		if nextPrimary == self {
			d := currentPrimary
			return route{forwardTo: &d, storageMap: p.other}
		}
		return route{misdirected: true, storageMap: p.other}

	case poolTransition:
		currentPrimary := primaryDevice(p.current, id)
		if currentPrimary == self {
			d := primaryDevice(p.other, id)
			return route{servesLocally: true, fallbackTo: &d, storageMap: p.current}
		}
		return route{misdirected: true, storageMap: p.current}

	default:
		panic("daemon: unknown pool state kind")
	}
}

func resolveNormal(self placement.DeviceId, m *placement.StorageMap, id placement.ObjectId) route {
	primary := primaryDevice(m, id)
	if primary == self {
		return route{servesLocally: true, storageMap: m}
	}
	return route{misdirected: true, storageMap: m}
}

func primaryDevice(m *placement.StorageMap, id placement.ObjectId) placement.DeviceId {
	group := m.ObjectToGroup(id)
	devices := m.GroupToDevices(group, 1)
	if len(devices) == 0 {
		return placement.DeviceId{}
	}
	return devices[0]
}

// secondariesOf returns the replica set for id beyond the primary, under
// the given map.
func secondariesOf(m *placement.StorageMap, id placement.ObjectId, replicas uint32) []placement.DeviceId {
	group := m.ObjectToGroup(id)
	devices := m.GroupToDevices(group, int(replicas))
	if len(devices) <= 1 {
		return nil
	}
	return devices[1:]
}
