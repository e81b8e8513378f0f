package backend

import (
	"context"
	"sync"

	"crushstore/internal/placement"
)

// MemoryBackend is an in-process Backend, data held entirely in a map of
// maps guarded by one mutex. It never persists anything; restarting the
// process loses the pool. Used in tests and as the default backend for
// single-node deployments that don't need durability.
type MemoryBackend struct {
	mu    sync.Mutex
	pools map[placement.PoolName]map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend, ready to use.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		pools: make(map[placement.PoolName]map[string][]byte),
	}
}

func (b *MemoryBackend) ReadObject(_ context.Context, pool placement.PoolName, id placement.ObjectId) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.pools[pool][string(id)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (b *MemoryBackend) ReadPart(_ context.Context, pool placement.PoolName, id placement.ObjectId, offset, length uint32) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.pools[pool][string(id)]
	if !ok {
		return nil, false, nil
	}

	start := int(offset)
	if start > len(data) {
		start = len(data)
	}
	end := start + int(length)
	if end > len(data) {
		end = len(data)
	}

	out := make([]byte, end-start)
	copy(out, data[start:end])
	return out, true, nil
}

func (b *MemoryBackend) WriteObject(_ context.Context, pool placement.PoolName, id placement.ObjectId, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	objects := b.poolLocked(pool)
	stored := make([]byte, len(data))
	copy(stored, data)
	objects[string(id)] = stored
	return nil
}

func (b *MemoryBackend) WritePart(_ context.Context, pool placement.PoolName, id placement.ObjectId, offset uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	objects := b.poolLocked(pool)
	key := string(id)
	existing := objects[key]

	needed := int(offset) + len(data)
	if needed > len(existing) {
		grown := make([]byte, needed)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	objects[key] = existing
	return nil
}

func (b *MemoryBackend) DeleteObject(_ context.Context, pool placement.PoolName, id placement.ObjectId) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.pools[pool], string(id))
	return nil
}

// poolLocked returns the object map for pool, creating it if absent.
// Caller must hold b.mu.
func (b *MemoryBackend) poolLocked(pool placement.PoolName) map[string][]byte {
	objects, ok := b.pools[pool]
	if !ok {
		objects = make(map[string][]byte)
		b.pools[pool] = objects
	}
	return objects
}
