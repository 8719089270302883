package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ArchiveRepo stores captured page payloads. At most one archive exists per
// node; Add has modify-if-exists semantics keyed by node id.
// It implements the ArchiveStore interface.
type ArchiveRepo struct {
	db       *sql.DB
	nodes    *NodeRepo
	importer bool
}

// NewArchiveRepo creates a new ArchiveRepo.
func NewArchiveRepo(db *sql.DB, nodes *NodeRepo) *ArchiveRepo {
	return &ArchiveRepo{db: db, nodes: nodes}
}

// ForImport returns a view of the repo that skips the owning node's
// content-modified bookkeeping. Import paths must not clobber foreign dates.
func (r *ArchiveRepo) ForImport() ArchiveStore {
	c := *r
	c.importer = true
	return &c
}

// Entity builds an archive record for a node. An omitted content type
// defaults to text/html.
func Entity(node *Node, object []byte, contentType string, byteLength *int64) *Archive {
	if contentType == "" {
		contentType = "text/html"
	}

	archive := &Archive{
		Object:     object,
		ByteLength: byteLength,
		Type:       contentType,
	}
	if node != nil {
		archive.NodeID = node.ID
	}

	return archive
}

func (r *ArchiveRepo) upsert(ctx context.Context, node *Node, archive *Archive) error {
	archive.NodeID = node.ID

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO archives (node_id, object, byte_length, type) VALUES (?, ?, ?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET
		 object = excluded.object, byte_length = excluded.byte_length, type = excluded.type`,
		node.ID, archive.Object, nullableID(archive.ByteLength), archive.Type,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert archive: %w", err)
	}

	return nil
}

func (r *ArchiveRepo) updateContentModified(ctx context.Context, node *Node, archive *Archive) error {
	if r.importer {
		return nil
	}

	if node.Contains == "" && archive.IsBinary() {
		node.Contains = ArchiveTypeBytes
	}
	node.ContentType = archive.Type
	node.Size = int64(len(archive.Object))

	return r.nodes.ContentUpdate(ctx, node)
}

// Add stores the archive and rebuilds its full-text index: text content is
// indexed from its HTML, binary content clears the index.
func (r *ArchiveRepo) Add(ctx context.Context, node *Node, archive *Archive) error {
	var words []string
	if !archive.IsBinary() {
		words = IndexHTML(string(archive.Object))
	}

	return r.AddIndexed(ctx, node, archive, words)
}

// AddIndexed stores the archive with a precomputed word set. Used when the
// index is carried over from another backend instead of being rebuilt.
func (r *ArchiveRepo) AddIndexed(ctx context.Context, node *Node, archive *Archive, words []string) error {
	if err := r.upsert(ctx, node, archive); err != nil {
		return err
	}

	if err := r.updateContentModified(ctx, node, archive); err != nil {
		return err
	}

	return r.StoreIndex(ctx, node, words)
}

// UpdateHTML replaces the text content of an existing archive.
func (r *ArchiveRepo) UpdateHTML(ctx context.Context, node *Node, html string) error {
	archive := Entity(node, []byte(html), "", nil)

	if err := r.upsert(ctx, node, archive); err != nil {
		return err
	}

	if err := r.StoreIndex(ctx, node, IndexHTML(html)); err != nil {
		return err
	}

	return r.updateContentModified(ctx, node, archive)
}

// Get returns the archive of a node. Returns ErrNotFound if missing.
func (r *ArchiveRepo) Get(ctx context.Context, node *Node) (*Archive, error) {
	var archive Archive
	var byteLength sql.NullInt64

	err := r.db.QueryRowContext(ctx,
		"SELECT node_id, object, byte_length, type FROM archives WHERE node_id = ?", node.ID,
	).Scan(&archive.NodeID, &archive.Object, &byteLength, &archive.Type)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}

	if byteLength.Valid {
		archive.ByteLength = &byteLength.Int64
	}

	return &archive, nil
}

// StoreIndex replaces the archive word set of the node.
func (r *ArchiveRepo) StoreIndex(ctx context.Context, node *Node, words []string) error {
	return storeIndexRow(ctx, r.db, "index_archive", node.ID, words)
}

// FetchIndex returns the archive word set of the node.
func (r *ArchiveRepo) FetchIndex(ctx context.Context, node *Node) (*Index, error) {
	return fetchIndexRow(ctx, r.db, "index_archive", node.ID)
}

// Delete removes the archive and its index row.
func (r *ArchiveRepo) Delete(ctx context.Context, node *Node) error {
	for _, table := range []string{"archives", "index_archive"} {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE node_id = ?", node.ID); err != nil {
			return fmt.Errorf("failed to delete archive: %w", err)
		}
	}

	return nil
}
