package placement

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// mixHash produces a deterministic 32-bit output from the traversal
// coordinates used at every level of the tree: which level we're at,
// which group and replica we're placing, which attempt (retry after a
// NeverRepeat collision), and which child index we're scoring.
//
// Must be reproducible byte-for-byte across implementations: clients and
// daemons compute it independently and must agree.
func mixHash(level uint32, group GroupId, replica, attempt uint32, index uint32) uint32 {
	var buf [20]byte
	binary.BigEndian.PutUint32(buf[0:4], level)
	binary.BigEndian.PutUint32(buf[4:8], uint32(group))
	binary.BigEndian.PutUint32(buf[8:12], replica)
	binary.BigEndian.PutUint32(buf[12:16], attempt)
	binary.BigEndian.PutUint32(buf[16:20], index)
	sum := xxhash.Sum64(buf[:])
	return uint32(sum)
}

// ObjectHash hashes an object name to a 32-bit value, deterministic
// across implementations and independent of everything but the bytes
// themselves.
func ObjectHash(id ObjectId) uint32 {
	sum := xxhash.Sum64(id)
	return uint32(sum)
}
