package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// storeIndexRow replaces the word set of a node in one of the index tables.
// An empty word set still writes a row, so that search reflects current
// emptiness of the content.
func storeIndexRow(ctx context.Context, db *sql.DB, table string, nodeID int64, words []string) error {
	if words == nil {
		words = []string{}
	}

	encoded, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("failed to encode index words: %w", err)
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO "+table+" (node_id, words) VALUES (?, ?) ON CONFLICT (node_id) DO UPDATE SET words = excluded.words",
		nodeID, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("failed to store index: %w", err)
	}

	return nil
}

// fetchIndexRow returns the index row of a node, or ErrNotFound.
func fetchIndexRow(ctx context.Context, db *sql.DB, table string, nodeID int64) (*Index, error) {
	var encoded string
	err := db.QueryRowContext(ctx, "SELECT words FROM "+table+" WHERE node_id = ?", nodeID).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index: %w", err)
	}

	index := &Index{NodeID: nodeID}
	if err := json.Unmarshal([]byte(encoded), &index.Words); err != nil {
		return nil, fmt.Errorf("failed to decode index words: %w", err)
	}

	return index, nil
}
