// Package placement implements the CRUSH-style storage map: a weighted
// tree whose leaves are devices, with pluggable selection algorithms used
// to place objects on devices.
//
// The tree decouples two concerns that change at very different rates:
//
//   - object -> group: a hash of the object name modulo the group count.
//     This depends only on the object's bytes and the group count, never
//     on the tree shape.
//   - group -> device(s): a deterministic traversal of the tree, re-run
//     whenever the tree (topology, weights, failed devices) changes.
//
// Because the first mapping never changes when the tree is rebalanced,
// reshuffling devices never moves an object between groups; only
// changing the group count does.
package placement

import (
	"encoding/hex"
	"fmt"
)

// DeviceId is a 16-byte opaque identifier for a storage daemon, generated
// once and persisted next to its storage.
type DeviceId [16]byte

func (d DeviceId) String() string {
	return fmt.Sprintf("%x", d[:])
}

// MarshalJSON renders a DeviceId as its hex string, matching String(), so
// control-plane JSON bodies stay human-readable instead of 16-element
// integer arrays.
func (d DeviceId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(d[:]) + `"`), nil
}

// UnmarshalJSON parses the hex string produced by MarshalJSON.
func (d *DeviceId) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("placement: invalid device id JSON %q", data)
	}
	raw, err := hex.DecodeString(s[1 : len(s)-1])
	if err != nil {
		return fmt.Errorf("placement: invalid device id hex: %w", err)
	}
	if len(raw) != len(d) {
		return fmt.Errorf("placement: device id must be %d bytes, got %d", len(d), len(raw))
	}
	copy(d[:], raw)
	return nil
}

// GroupId identifies an object group in [0, StorageMap.Groups).
type GroupId uint32

// PoolName names a storage pool; wire-encoded length-prefixed UTF-8.
type PoolName string

// ObjectId is an arbitrary non-empty byte sequence chosen by clients.
type ObjectId []byte

// PickMode controls whether a bucket may resolve different replicas
// through the same child.
type PickMode int

const (
	// PseudoRandom allows the same child to be picked for different replicas.
	PseudoRandom PickMode = iota
	// NeverRepeat requires distinct replicas to resolve through distinct
	// children of this bucket; used for failure-domain separation.
	NeverRepeat
)

// AlgorithmKind selects how a Bucket picks among its children.
type AlgorithmKind int

const (
	// Uniform ignores weights; index = hash(...) mod n.
	Uniform AlgorithmKind = iota
	// List draws a weighted index by walking children in order.
	List
	// Straw draws a scaled "straw length" per child and picks the max.
	Straw
	// Fallback returns index = attempt, for deterministic ordered
	// fallback lists (primary then backups).
	Fallback
)

// Algorithm is a tagged selection rule. Factors is only meaningful for
// Straw, precomputed by BuildStrawBucket to match target probabilities.
type Algorithm struct {
	Kind    AlgorithmKind
	Factors []uint32
}

// Node is a tagged variant: either a leaf Device or an internal Bucket.
type Node struct {
	Device *DeviceId
	Bucket *Bucket
}

// DeviceNode builds a leaf node.
func DeviceNode(id DeviceId) Node {
	return Node{Device: &id}
}

// BucketNode builds an internal node.
func BucketNode(b *Bucket) Node {
	return Node{Bucket: b}
}

func (n Node) IsDevice() bool { return n.Device != nil }

// NodeEntry pairs a child node with its weight within the parent bucket.
type NodeEntry struct {
	Weight uint32
	Node   Node
}

// Bucket is an internal node in the storage map. Id must be unique
// within a map; it identifies the bucket when tracking non-repetition
// across replicas under NeverRepeat.
type Bucket struct {
	Id        uint32
	Algorithm Algorithm
	PickMode  PickMode
	Children  []NodeEntry
}

// StorageMap is the immutable tuple that decides where objects live.
// Replaced atomically by the owning daemon/client when the coordinator
// pushes a new generation.
type StorageMap struct {
	Generation uint32
	Groups     uint32
	Replicas   uint32
	Root       Node
}
