// Package helper implements the local helper process: an HTTP server
// managing the on-disk data folder that mirrors the entity store. Node
// metadata lives in a line-oriented JSON database, content in per-node
// object directories.
package helper

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scrapyard/internal/marshal"
)

// NodeDBName is the node metadata database inside the data folder.
const NodeDBName = "scrapbook.jsonl"

// syncDBName holds nodes pushed through the sync endpoints.
const syncDBName = "sync.jsonl"

// Content file names under a node's object directory.
const (
	FileIcon           = "icon.json"
	FileArchive        = "archive.json"
	FileArchiveContent = "archive_content.blob"
	FileArchiveIndex   = "archive_index.json"
	FileNotes          = "notes.json"
	FileNotesIndex     = "notes_index.json"
	FileComments       = "comments.json"
	FileCommentsIndex  = "comments_index.json"
)

// FolderStore is the data-folder backend. Line-database rewrites are
// serialized under a mutex; object files are written independently.
type FolderStore struct {
	root string
	mu   sync.Mutex
}

func NewFolderStore(root string) *FolderStore {
	return &FolderStore{root: root}
}

func (s *FolderStore) objectDir(uuid string) string {
	return filepath.Join(s.root, "objects", uuid)
}

func (s *FolderStore) loadLines(name string) ([]*marshal.Object, error) {
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var objs []*marshal.Object
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		obj := marshal.NewObject()
		if err := obj.UnmarshalJSON([]byte(line)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func (s *FolderStore) saveLines(name string, objs []*marshal.Object) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create data folder: %w", err)
	}

	lines := make([]string, 0, len(objs))
	for _, obj := range objs {
		line, err := marshal.MarshalJSONString(obj)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}

	path := filepath.Join(s.root, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// upsertLine replaces the entry with the given uuid, or appends it.
func upsertLine(objs []*marshal.Object, uuid string, obj *marshal.Object) []*marshal.Object {
	for i, existing := range objs {
		if existing.GetString("uuid") == uuid {
			objs[i] = obj
			return objs
		}
	}
	return append(objs, obj)
}

// PersistNode stores a node entry in the metadata database.
func (s *FolderStore) PersistNode(uuid, nodeJSON string) error {
	node := marshal.NewObject()
	if err := node.UnmarshalJSON([]byte(nodeJSON)); err != nil {
		return fmt.Errorf("failed to parse node payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.loadLines(NodeDBName)
	if err != nil {
		return err
	}
	return s.saveLines(NodeDBName, upsertLine(nodes, uuid, node))
}

// UpdateNode merges fields into a stored node and drops the listed
// cleared fields. A node not present is stored as given.
func (s *FolderStore) UpdateNode(uuid, nodeJSON string, removeFields []string) error {
	fields := marshal.NewObject()
	if err := fields.UnmarshalJSON([]byte(nodeJSON)); err != nil {
		return fmt.Errorf("failed to parse node payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.loadLines(NodeDBName)
	if err != nil {
		return err
	}

	merged := false
	for _, node := range nodes {
		if node.GetString("uuid") != uuid {
			continue
		}
		for _, key := range fields.Keys() {
			value, _ := fields.Get(key)
			node.Set(key, value)
		}
		for _, key := range removeFields {
			node.Delete(key)
		}
		merged = true
		break
	}
	if !merged {
		nodes = append(nodes, fields)
	}

	return s.saveLines(NodeDBName, nodes)
}

// UpdateNodes merges a batch of node updates in one database rewrite.
func (s *FolderStore) UpdateNodes(nodesJSON string) error {
	batch := marshal.NewObject()
	if err := batch.UnmarshalJSON([]byte(fmt.Sprintf(`{"nodes":%s}`, nodesJSON))); err != nil {
		return fmt.Errorf("failed to parse batch payload: %w", err)
	}
	items, _ := batch.Get("nodes")
	updates, ok := items.([]any)
	if !ok {
		return fmt.Errorf("batch payload is not an array")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.loadLines(NodeDBName)
	if err != nil {
		return err
	}

	for _, item := range updates {
		fields, ok := item.(*marshal.Object)
		if !ok {
			continue
		}
		uuid := fields.GetString("uuid")
		merged := false
		for _, node := range nodes {
			if node.GetString("uuid") != uuid {
				continue
			}
			for _, key := range fields.Keys() {
				value, _ := fields.Get(key)
				node.Set(key, value)
			}
			merged = true
			break
		}
		if !merged {
			nodes = append(nodes, fields)
		}
	}

	return s.saveLines(NodeDBName, nodes)
}

// DeleteNodesShallow removes node entries, leaving content in place.
func (s *FolderStore) DeleteNodesShallow(uuids []string) error {
	doomed := make(map[string]bool, len(uuids))
	for _, uuid := range uuids {
		doomed[uuid] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.loadLines(NodeDBName)
	if err != nil {
		return err
	}

	kept := nodes[:0]
	for _, node := range nodes {
		if !doomed[node.GetString("uuid")] {
			kept = append(kept, node)
		}
	}
	return s.saveLines(NodeDBName, kept)
}

// DeleteNodeContent removes the object directories of the given nodes.
func (s *FolderStore) DeleteNodeContent(uuids []string) error {
	for _, uuid := range uuids {
		if err := os.RemoveAll(s.objectDir(uuid)); err != nil {
			return fmt.Errorf("failed to delete node content: %w", err)
		}
	}
	return nil
}

// DeleteNodes removes node entries together with their content.
func (s *FolderStore) DeleteNodes(uuids []string) error {
	if err := s.DeleteNodesShallow(uuids); err != nil {
		return err
	}
	return s.DeleteNodeContent(uuids)
}

// StoreObject writes a content file under the node's object directory.
func (s *FolderStore) StoreObject(uuid, name string, data []byte) error {
	dir := s.objectDir(uuid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ReadObject reads a content file, returning nil when it does not exist.
func (s *FolderStore) ReadObject(uuid, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.objectDir(uuid), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// PushSyncNode stores a pushed node and its content blob in the sync
// database.
func (s *FolderStore) PushSyncNode(nodeJSON, content string) error {
	node := marshal.NewObject()
	if err := node.UnmarshalJSON([]byte(nodeJSON)); err != nil {
		return fmt.Errorf("failed to parse sync node: %w", err)
	}

	entry := marshal.NewObject()
	entry.Set("uuid", node.GetString("uuid"))
	entry.Set("node", nodeJSON)
	if content != "" {
		entry.Set("content", content)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLines(syncDBName)
	if err != nil {
		return err
	}
	return s.saveLines(syncDBName, upsertLine(entries, entry.GetString("uuid"), entry))
}

// PullSyncNode returns a stored node and content blob by uuid. The ok
// result is false when the node was never pushed.
func (s *FolderStore) PullSyncNode(uuid string) (node, content string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLines(syncDBName)
	if err != nil {
		return "", "", false, err
	}
	for _, entry := range entries {
		if entry.GetString("uuid") == uuid {
			return entry.GetString("node"), entry.GetString("content"), true, nil
		}
	}
	return "", "", false, nil
}
