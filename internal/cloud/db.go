// Package cloud implements the cloud-shelf backend: a single remote
// database object holding the node graph, per-node asset blobs for
// content, and the reconciliation logic keeping the local mirror in step.
package cloud

import (
	"fmt"
	"strings"
	"time"

	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

const (
	// Format identifies the cloud database object.
	Format  = "Scrapyard"
	Version = 1

	// DBObjectName is the name of the database object at the provider.
	DBObjectName = "cloud.jsonl"
)

// DB is the in-memory form of the remote database object: a meta line
// followed by one portable-shaped node per line, parents before children.
// Every mutation cycle downloads, modifies and re-uploads the whole
// object.
type DB struct {
	meta  *marshal.Object
	nodes []*marshal.Object
}

// NewDB creates an empty cloud database.
func NewDB() *DB {
	meta := marshal.NewObject()
	meta.Set("cloud", Format)
	meta.Set("version", int64(Version))
	return &DB{meta: meta}
}

// Deserialize parses a downloaded database object. Empty input yields a
// fresh database.
func Deserialize(data []byte) (*DB, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return NewDB(), nil
	}

	lines := strings.Split(text, "\n")

	meta := marshal.NewObject()
	if err := meta.UnmarshalJSON([]byte(lines[0])); err != nil {
		return nil, fmt.Errorf("failed to parse cloud database meta: %w", err)
	}
	if meta.GetString("cloud") != Format {
		return nil, fmt.Errorf("unrecognized cloud database format")
	}
	if version, ok := meta.GetInt64("version"); ok && version > Version {
		return nil, marshal.ErrUnsupportedVersion
	}

	db := &DB{meta: meta}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		node := marshal.NewObject()
		if err := node.UnmarshalJSON([]byte(line)); err != nil {
			return nil, fmt.Errorf("failed to parse cloud database node: %w", err)
		}
		db.nodes = append(db.nodes, node)
	}

	return db, nil
}

// Serialize renders the database object for upload, stamping the meta
// timestamp and ordering nodes so parents precede children.
func (db *DB) Serialize() ([]byte, error) {
	db.meta.Set("timestamp", time.Now().UnixMilli())

	lines := make([]string, 0, len(db.nodes)+1)

	metaLine, err := marshal.MarshalJSONString(db.meta)
	if err != nil {
		return nil, err
	}
	lines = append(lines, metaLine)

	for _, node := range db.treeSorted() {
		line, err := marshal.MarshalJSONString(node)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// Timestamp returns the epoch-millisecond stamp of the last upload.
func (db *DB) Timestamp() int64 {
	ts, _ := db.meta.GetInt64("timestamp")
	return ts
}

// Nodes returns the stored nodes in file order.
func (db *DB) Nodes() []*marshal.Object {
	return db.nodes
}

// UUIDs returns the uuid set of the stored nodes.
func (db *DB) UUIDs() []string {
	uuids := make([]string, 0, len(db.nodes))
	for _, node := range db.nodes {
		uuids = append(uuids, node.GetString("uuid"))
	}
	return uuids
}

// GetNode returns the stored node with the given uuid, or nil.
func (db *DB) GetNode(uuid string) *marshal.Object {
	for _, node := range db.nodes {
		if node.GetString("uuid") == uuid {
			return node
		}
	}
	return nil
}

// sanitizeNode drops local bookkeeping that has no meaning at the
// provider: shelf placement is implicit, and cloud nodes are by
// definition external to every other backend.
func sanitizeNode(node *marshal.Object) *marshal.Object {
	node.Delete("id")
	node.Delete("external")
	node.Delete("external_id")
	return node
}

// AddNode stores a node, replacing any previous copy with the same uuid.
// Shelf nodes are not stored: the cloud shelf itself is implicit.
func (db *DB) AddNode(node *marshal.Object) {
	if node.GetString("type") == storage.NodeTypeNames[storage.NodeTypeShelf] {
		return
	}
	sanitizeNode(node)

	uuid := node.GetString("uuid")
	for i, existing := range db.nodes {
		if existing.GetString("uuid") == uuid {
			db.nodes[i] = node
			return
		}
	}
	db.nodes = append(db.nodes, node)
}

// UpdateNode merges fields into the stored copy of a node and removes the
// listed cleared fields. A node not present is ignored.
func (db *DB) UpdateNode(uuid string, fields *marshal.Object, removeFields []string) {
	node := db.GetNode(uuid)
	if node == nil {
		return
	}

	sanitizeNode(fields)
	for _, key := range fields.Keys() {
		value, _ := fields.Get(key)
		node.Set(key, value)
	}
	for _, key := range removeFields {
		node.Delete(key)
	}
}

// DeleteNodes removes the nodes with the given uuids.
func (db *DB) DeleteNodes(uuids []string) {
	doomed := make(map[string]bool, len(uuids))
	for _, uuid := range uuids {
		doomed[uuid] = true
	}

	kept := db.nodes[:0]
	for _, node := range db.nodes {
		if !doomed[node.GetString("uuid")] {
			kept = append(kept, node)
		}
	}
	db.nodes = kept
}

// treeSorted orders nodes breadth-first from the cloud shelf root, so an
// importer reading line by line always sees a parent before its children.
// Nodes with dangling parents are appended last in their original order.
func (db *DB) treeSorted() []*marshal.Object {
	children := make(map[string][]*marshal.Object)
	for _, node := range db.nodes {
		parent := node.GetString("parent")
		children[parent] = append(children[parent], node)
	}

	sorted := make([]*marshal.Object, 0, len(db.nodes))
	seen := make(map[string]bool, len(db.nodes))

	queue := []string{storage.CloudShelfUUID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, node := range children[parent] {
			uuid := node.GetString("uuid")
			if seen[uuid] {
				continue
			}
			seen[uuid] = true
			sorted = append(sorted, node)
			queue = append(queue, uuid)
		}
	}

	for _, node := range db.nodes {
		if !seen[node.GetString("uuid")] {
			sorted = append(sorted, node)
		}
	}

	return sorted
}
