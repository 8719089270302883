package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// CommentsRepo stores plain-text comments, at most one record per node.
// It implements the CommentsStore interface.
type CommentsRepo struct {
	db       *sql.DB
	nodes    *NodeRepo
	importer bool
}

// NewCommentsRepo creates a new CommentsRepo.
func NewCommentsRepo(db *sql.DB, nodes *NodeRepo) *CommentsRepo {
	return &CommentsRepo{db: db, nodes: nodes}
}

// ForImport returns a view of the repo that skips the owning node's
// has_comments/content-modified bookkeeping.
func (r *CommentsRepo) ForImport() CommentsStore {
	c := *r
	c.importer = true
	return &c
}

// Add stores the comment text and rebuilds its full-text index. Empty text
// still writes an empty index.
func (r *CommentsRepo) Add(ctx context.Context, node *Node, text string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (node_id, text) VALUES (?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET text = excluded.text`,
		node.ID, text,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert comments: %w", err)
	}

	if !r.importer {
		node.HasComments = text != ""
		if err := r.nodes.ContentUpdate(ctx, node); err != nil {
			return err
		}
	}

	var words []string
	if text != "" {
		words = IndexWords(text)
	}

	return r.StoreIndex(ctx, node, words)
}

// Get returns the comment text of a node, empty when none is stored.
func (r *CommentsRepo) Get(ctx context.Context, node *Node) (string, error) {
	var text string

	err := r.db.QueryRowContext(ctx, "SELECT text FROM comments WHERE node_id = ?", node.ID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query comments: %w", err)
	}

	return text, nil
}

// StoreIndex replaces the comments word set of the node.
func (r *CommentsRepo) StoreIndex(ctx context.Context, node *Node, words []string) error {
	return storeIndexRow(ctx, r.db, "index_comments", node.ID, words)
}

// FetchIndex returns the comments word set of the node.
func (r *CommentsRepo) FetchIndex(ctx context.Context, node *Node) (*Index, error) {
	return fetchIndexRow(ctx, r.db, "index_comments", node.ID)
}

// Delete removes the comments and their index row.
func (r *CommentsRepo) Delete(ctx context.Context, node *Node) error {
	for _, table := range []string{"comments", "index_comments"} {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE node_id = ?", node.ID); err != nil {
			return fmt.Errorf("failed to delete comments: %w", err)
		}
	}

	return nil
}
