// Package backend defines the storage contract the daemon's request
// router is built against, along with an in-memory implementation used
// for tests and single-node deployments. MemoryBackend is the only
// implementation in this repository; cmd/crushd wires it in.
package backend

import (
	"context"

	"crushstore/internal/placement"
)

// Backend is the storage contract invoked by the daemon's request
// router. Every method must be safe to call concurrently from multiple
// goroutines: the daemon holds one shared Backend value across all
// request-handler goroutines, with no external synchronization of its
// own.
type Backend interface {
	PartialAccessor

	// WriteObject replaces an object's contents in full.
	WriteObject(ctx context.Context, pool placement.PoolName, id placement.ObjectId, data []byte) error

	// DeleteObject removes an object. Deleting an object that does not
	// exist is not an error.
	DeleteObject(ctx context.Context, pool placement.PoolName, id placement.ObjectId) error
}

// PartialAccessor is the subset of Backend the NBD-style block gateway
// needs: whole- and partial-object reads, plus the zero-fill partial
// write used to implement fixed-size block overlays on variable-length
// objects. Kept as its own interface so a gateway adapter can depend on
// exactly this surface without pulling in delete.
type PartialAccessor interface {
	// ReadObject returns an object's full contents, or ok=false if it
	// does not exist.
	ReadObject(ctx context.Context, pool placement.PoolName, id placement.ObjectId) (data []byte, ok bool, err error)

	// ReadPart returns up to len bytes starting at offset, clamped to
	// the object's actual length (never an error for reading past the
	// end), or ok=false if the object does not exist at all.
	ReadPart(ctx context.Context, pool placement.PoolName, id placement.ObjectId, offset, length uint32) (data []byte, ok bool, err error)

	// WritePart writes data at offset, zero-extending the object if
	// offset+len(data) exceeds its current length. Creates the object
	// if it does not exist.
	WritePart(ctx context.Context, pool placement.PoolName, id placement.ObjectId, offset uint32, data []byte) error
}
