package storage

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// ComputeIconHash derives the content-hash reference stored on a node in
// place of the icon bytes.
func ComputeIconHash(dataURL string) string {
	sum := sha1.Sum([]byte(dataURL))
	return "hash:" + hex.EncodeToString(sum[:])
}

// IconRepo stores favicons, at most one record per node.
// It implements the IconStore interface.
type IconRepo struct {
	db       *sql.DB
	nodes    *NodeRepo
	importer bool
}

// NewIconRepo creates a new IconRepo.
func NewIconRepo(db *sql.DB, nodes *NodeRepo) *IconRepo {
	return &IconRepo{db: db, nodes: nodes}
}

// ForImport returns a view of the repo that skips the owning node's
// content-modified bookkeeping.
func (r *IconRepo) ForImport() IconStore {
	c := *r
	c.importer = true
	return &c
}

// Add stores the favicon data URL of a node.
func (r *IconRepo) Add(ctx context.Context, node *Node, dataURL string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO icons (node_id, data_url) VALUES (?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET data_url = excluded.data_url`,
		node.ID, dataURL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert icon: %w", err)
	}

	if !r.importer {
		if err := r.nodes.ContentUpdate(ctx, node); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the favicon data URL of a node, empty when none is stored.
func (r *IconRepo) Get(ctx context.Context, node *Node) (string, error) {
	var dataURL string

	err := r.db.QueryRowContext(ctx, "SELECT data_url FROM icons WHERE node_id = ?", node.ID).Scan(&dataURL)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query icon: %w", err)
	}

	return dataURL, nil
}

// Delete removes the favicon of a node.
func (r *IconRepo) Delete(ctx context.Context, node *Node) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM icons WHERE node_id = ?", node.ID); err != nil {
		return fmt.Errorf("failed to delete icon: %w", err)
	}

	return nil
}
