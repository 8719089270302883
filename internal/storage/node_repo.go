package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// NewUUID generates a node uuid: 32 uppercase hex digits, stable across
// backends once assigned.
func NewUUID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NodeRepo provides CRUD operations for nodes in the local database.
// It implements the NodeStore interface.
//
// Per-node writes against the same node are not locked internally; callers
// must not issue overlapping writes to the same node.
type NodeRepo struct {
	db *sql.DB
}

// NewNodeRepo creates a new NodeRepo.
func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// ResetDates stamps creation dates on a freshly added node.
func (r *NodeRepo) ResetDates(node *Node) {
	node.DateAdded = time.Now()
	node.DateModified = node.DateAdded
}

// SetUUID assigns a fresh uuid to the node.
func (r *NodeRepo) SetUUID(node *Node) {
	node.UUID = NewUUID()
}

// Add inserts a node created by direct user action: sibling order is
// cleared, a fresh uuid is assigned and the dates are reset.
func (r *NodeRepo) Add(ctx context.Context, node *Node) error {
	node.Pos = DefaultPosition
	r.SetUUID(node)
	r.ResetDates(node)

	return r.insert(ctx, node)
}

// Import inserts a node with an externally supplied uuid, preserving its
// dates. Import paths must not collide uuids or clobber foreign dates.
func (r *NodeRepo) Import(ctx context.Context, node *Node) error {
	return r.insert(ctx, node)
}

func (r *NodeRepo) insert(ctx context.Context, node *Node) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO nodes (uuid, parent_id, type, name, uri, pos, tags, details, icon,
			size, content_type, contains, todo_state, todo_date, external, external_id,
			stored_icon, has_notes, has_comments, date_added, date_modified, content_modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.UUID, nullableID(node.ParentID), node.Type, node.Name, node.URI, node.Pos,
		node.Tags, node.Details, node.Icon, node.Size, node.ContentType, node.Contains,
		nullableTodo(node.TodoState), node.TodoDate, node.External, node.ExternalID,
		node.StoredIcon, node.HasNotes, node.HasComments,
		node.DateAdded.UnixMilli(), node.DateModified.UnixMilli(), nullableTime(node.ContentModified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}

	node.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get node id: %w", err)
	}

	return nil
}

const nodeColumns = `id, uuid, parent_id, type, name, uri, pos, tags, details, icon,
	size, content_type, contains, todo_state, todo_date, external, external_id,
	stored_icon, has_notes, has_comments, date_added, date_modified, content_modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var parentID, todoState, contentModified sql.NullInt64
	var dateAdded, dateModified int64

	err := row.Scan(&node.ID, &node.UUID, &parentID, &node.Type, &node.Name, &node.URI,
		&node.Pos, &node.Tags, &node.Details, &node.Icon, &node.Size, &node.ContentType,
		&node.Contains, &todoState, &node.TodoDate, &node.External, &node.ExternalID,
		&node.StoredIcon, &node.HasNotes, &node.HasComments,
		&dateAdded, &dateModified, &contentModified)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		node.ParentID = &parentID.Int64
	}
	if todoState.Valid {
		state := TodoState(todoState.Int64)
		node.TodoState = &state
	}
	node.DateAdded = time.UnixMilli(dateAdded)
	node.DateModified = time.UnixMilli(dateModified)
	if contentModified.Valid {
		t := time.UnixMilli(contentModified.Int64)
		node.ContentModified = &t
	}

	return &node, nil
}

// Get returns a node by its local id. Returns ErrNotFound if missing.
func (r *NodeRepo) Get(ctx context.Context, id int64) (*Node, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)

	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}

	return node, nil
}

// GetByUUID returns a node by its uuid. Returns ErrNotFound if missing.
func (r *NodeRepo) GetByUUID(ctx context.Context, nodeUUID string) (*Node, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE uuid = ?", nodeUUID)

	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node by uuid: %w", err)
	}

	return node, nil
}

func (r *NodeRepo) queryNodes(ctx context.Context, query string, args ...any) ([]*Node, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

// GetMany returns the nodes with the given ids, skipping missing ones.
func (r *NodeRepo) GetMany(ctx context.Context, ids []int64) ([]*Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return r.queryNodes(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id IN ("+placeholders+")", args...)
}

// GetAll returns every node in the local store.
func (r *NodeRepo) GetAll(ctx context.Context) ([]*Node, error) {
	return r.queryNodes(ctx, "SELECT "+nodeColumns+" FROM nodes ORDER BY id")
}

// GetChildren returns the direct children of a node.
func (r *NodeRepo) GetChildren(ctx context.Context, id int64) ([]*Node, error) {
	return r.queryNodes(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE parent_id = ?", id)
}

// GetExternal returns every node mirrored by the given backend.
func (r *NodeRepo) GetExternal(ctx context.Context, kind string) ([]*Node, error) {
	return r.queryNodes(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE external = ?", kind)
}

// Exists reports whether a node with the given uuid is stored.
func (r *NodeRepo) Exists(ctx context.Context, nodeUUID string) (bool, error) {
	if nodeUUID == "" {
		return false, nil
	}

	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE uuid = ?", nodeUUID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check node existence: %w", err)
	}

	return count > 0, nil
}

// IDFromUUID resolves a uuid to the local id.
func (r *NodeRepo) IDFromUUID(ctx context.Context, nodeUUID string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, "SELECT id FROM nodes WHERE uuid = ?", nodeUUID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve uuid: %w", err)
	}

	return id, nil
}

// UUIDFromID resolves a local id to the node uuid.
func (r *NodeRepo) UUIDFromID(ctx context.Context, id int64) (string, error) {
	var nodeUUID string
	err := r.db.QueryRowContext(ctx, "SELECT uuid FROM nodes WHERE id = ?", id).Scan(&nodeUUID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve id: %w", err)
	}

	return nodeUUID, nil
}

// Update writes the node row. A node without an id is a programming error:
// it is logged and skipped so that sibling updates in a batch proceed.
func (r *NodeRepo) Update(ctx context.Context, node *Node, resetDateModified bool) error {
	if node == nil || node.ID == 0 {
		slog.Error("updating a node without id or a nil reference")
		return nil
	}

	if resetDateModified {
		node.DateModified = time.Now()
	}

	return r.save(ctx, node)
}

// ContentUpdate stamps content_modified together with date_modified and
// writes the node row. Called whenever dependent content changes.
func (r *NodeRepo) ContentUpdate(ctx context.Context, node *Node) error {
	now := time.Now()
	node.DateModified = now
	node.ContentModified = &now

	return r.save(ctx, node)
}

func (r *NodeRepo) save(ctx context.Context, node *Node) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE nodes SET uuid = ?, parent_id = ?, type = ?, name = ?, uri = ?, pos = ?,
			tags = ?, details = ?, icon = ?, size = ?, content_type = ?, contains = ?,
			todo_state = ?, todo_date = ?, external = ?, external_id = ?,
			stored_icon = ?, has_notes = ?, has_comments = ?,
			date_added = ?, date_modified = ?, content_modified = ?
		 WHERE id = ?`,
		node.UUID, nullableID(node.ParentID), node.Type, node.Name, node.URI, node.Pos,
		node.Tags, node.Details, node.Icon, node.Size, node.ContentType, node.Contains,
		nullableTodo(node.TodoState), node.TodoDate, node.External, node.ExternalID,
		node.StoredIcon, node.HasNotes, node.HasComments,
		node.DateAdded.UnixMilli(), node.DateModified.UnixMilli(), nullableTime(node.ContentModified),
		node.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}

	return nil
}

// BatchUpdate applies updater to the nodes with the given ids (all nodes
// when ids is nil), refreshing date_modified on each.
func (r *NodeRepo) BatchUpdate(ctx context.Context, updater func(*Node), ids []int64) error {
	var nodes []*Node
	var err error

	if ids == nil {
		nodes, err = r.GetAll(ctx)
	} else {
		nodes, err = r.GetMany(ctx, ids)
	}
	if err != nil {
		return err
	}

	for _, node := range nodes {
		updater(node)
		node.DateModified = time.Now()
		if err := r.save(ctx, node); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes the nodes and cascades to all dependent entities.
func (r *NodeRepo) Delete(ctx context.Context, nodes []*Node) error {
	if err := r.DeleteDependencies(ctx, nodes); err != nil {
		return err
	}
	return r.DeleteShallow(ctx, nodes)
}

// DeleteShallow removes the node rows only, leaving dependent entities in
// place. Used when another backend keeps the content.
func (r *NodeRepo) DeleteShallow(ctx context.Context, nodes []*Node) error {
	placeholders, args := idArgs(nodes)
	if placeholders == "" {
		return nil
	}

	_, err := r.db.ExecContext(ctx, "DELETE FROM nodes WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}

	return nil
}

// DeleteDependencies removes every entity owned by the nodes: archives,
// notes, comments, icons and all index rows.
func (r *NodeRepo) DeleteDependencies(ctx context.Context, nodes []*Node) error {
	placeholders, args := idArgs(nodes)
	if placeholders == "" {
		return nil
	}

	tables := []string{"archives", "notes", "comments", "icons", "index_archive", "index_notes", "index_comments"}
	for _, table := range tables {
		_, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE node_id IN ("+placeholders+")", args...)
		if err != nil {
			return fmt.Errorf("failed to delete node dependencies from %s: %w", table, err)
		}
	}

	return nil
}

// DeleteMissingExternal removes the mirrored nodes of the given backend
// whose external ids are absent from the provided set. Used by cloud
// reconciliation to drop local copies deleted remotely.
func (r *NodeRepo) DeleteMissingExternal(ctx context.Context, externalIDs []string, kind string) error {
	existing := make(map[string]struct{}, len(externalIDs))
	for _, id := range externalIDs {
		existing[id] = struct{}{}
	}

	mirrored, err := r.GetExternal(ctx, kind)
	if err != nil {
		return err
	}

	var missing []*Node
	for _, node := range mirrored {
		if node.ExternalID == "" {
			continue
		}
		if _, ok := existing[node.ExternalID]; !ok {
			missing = append(missing, node)
		}
	}

	return r.Delete(ctx, missing)
}

func idArgs(nodes []*Node) (string, []any) {
	if len(nodes) == 0 {
		return "", nil
	}

	args := make([]any, len(nodes))
	for i, node := range nodes {
		args[i] = node.ID
	}

	return strings.Repeat("?,", len(nodes)-1) + "?", args
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTodo(state *TodoState) any {
	if state == nil {
		return nil
	}
	return int64(*state)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
