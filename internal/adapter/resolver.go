package adapter

import (
	"errors"

	"scrapyard/internal/storage"
)

// ErrHeterogeneousStorage is returned when a batch mixes nodes that
// resolve to different backends.
var ErrHeterogeneousStorage = errors.New("heterogeneous storage")

// Location identifies the physical backend a mutation targets. It is
// derived once from the node's external kind at the call site and carried
// explicitly through resolution.
type Location int

const (
	// LocationNone marks nodes that no backend mirrors.
	LocationNone Location = iota
	// LocationDisk marks nodes mirrored to the helper-managed data folder.
	LocationDisk
	// LocationCloud marks nodes living on the cloud shelf.
	LocationCloud
)

// LocationFor derives the storage location from a node's external kind.
func LocationFor(node *storage.Node) Location {
	switch {
	case node.External == storage.CloudExternalType:
		return LocationCloud
	case storage.IsNonSynchronized(node.External):
		return LocationNone
	default:
		return LocationDisk
	}
}

// Resolver routes mutations to the backend governing a node. Either
// adapter may be nil when that backend is disabled; resolution then
// yields no adapter for its nodes.
type Resolver struct {
	disk  StorageAdapter
	cloud StorageAdapter
}

func NewResolver(disk, cloud StorageAdapter) *Resolver {
	return &Resolver{disk: disk, cloud: cloud}
}

// ForLocation returns the adapter serving a location, or nil when that
// backend is disabled.
func (r *Resolver) ForLocation(loc Location) StorageAdapter {
	switch loc {
	case LocationDisk:
		return r.disk
	case LocationCloud:
		return r.cloud
	default:
		return nil
	}
}

// ForNode resolves the adapter for a single node, consulting the
// backend's own acceptance check.
func (r *Resolver) ForNode(node *storage.Node) StorageAdapter {
	a := r.ForLocation(LocationFor(node))
	if a == nil || !a.Accepts(node) {
		return nil
	}
	return a
}

// ForNodes resolves the adapter for a batch. All nodes must resolve to
// the same location; mixed batches fail with ErrHeterogeneousStorage
// before any backend mutation happens.
func (r *Resolver) ForNodes(nodes []*storage.Node) (StorageAdapter, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	loc := LocationFor(nodes[0])
	for _, node := range nodes[1:] {
		if LocationFor(node) != loc {
			return nil, ErrHeterogeneousStorage
		}
	}

	a := r.ForLocation(loc)
	if a == nil || !a.Accepts(nodes[0]) {
		return nil, nil
	}
	return a, nil
}
