package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"scrapyard/internal/notes"
)

// NotesRepo stores freeform notes, at most one record per node.
// It implements the NotesStore interface.
type NotesRepo struct {
	db       *sql.DB
	nodes    *NodeRepo
	importer bool
}

// NewNotesRepo creates a new NotesRepo.
func NewNotesRepo(db *sql.DB, nodes *NodeRepo) *NotesRepo {
	return &NotesRepo{db: db, nodes: nodes}
}

// ForImport returns a view of the repo that skips the owning node's
// has_notes/content-modified bookkeeping.
func (r *NotesRepo) ForImport() NotesStore {
	c := *r
	c.importer = true
	return &c
}

func (r *NotesRepo) upsert(ctx context.Context, n *Notes) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (node_id, content, format, html, align, width)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET
		 content = excluded.content, format = excluded.format, html = excluded.html,
		 align = excluded.align, width = excluded.width`,
		n.NodeID, n.Content, n.Format, n.HTML, n.Align, n.Width,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert notes: %w", err)
	}

	return nil
}

// Add stores the notes and rebuilds their full-text index. Empty content
// still writes an empty index. The propertyChange flag keeps has_notes set
// when only note properties changed while the content is empty.
func (r *NotesRepo) Add(ctx context.Context, node *Node, n *Notes, propertyChange bool) error {
	n.NodeID = node.ID

	if err := r.upsert(ctx, n); err != nil {
		return err
	}

	if !r.importer {
		node.HasNotes = propertyChange || n.Content != ""
		if node.HasNotes {
			node.Size = int64(len(n.Content))
			if n.Format == NotesFormatDelta {
				node.Size += int64(len(n.HTML))
			}
		} else {
			node.Size = 0
		}

		if err := r.nodes.ContentUpdate(ctx, node); err != nil {
			return err
		}
	}

	return r.StoreIndex(ctx, node, indexNotes(n))
}

func indexNotes(n *Notes) []string {
	if n.Content == "" {
		return nil
	}

	switch n.Format {
	case NotesFormatDelta:
		return IndexHTML(n.HTML)
	case NotesFormatText:
		return IndexWords(n.Content)
	default:
		html, err := notes.Render(n.Format, n.Content, n.HTML)
		if err != nil {
			slog.Error("failed to render notes for indexing", "format", n.Format, "error", err)
			return nil
		}
		return IndexHTML(html)
	}
}

// Get returns the notes of a node. Returns ErrNotFound if missing.
func (r *NotesRepo) Get(ctx context.Context, node *Node) (*Notes, error) {
	var n Notes

	err := r.db.QueryRowContext(ctx,
		"SELECT node_id, content, format, html, align, width FROM notes WHERE node_id = ?", node.ID,
	).Scan(&n.NodeID, &n.Content, &n.Format, &n.HTML, &n.Align, &n.Width)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}

	return &n, nil
}

// StoreIndex replaces the notes word set of the node.
func (r *NotesRepo) StoreIndex(ctx context.Context, node *Node, words []string) error {
	return storeIndexRow(ctx, r.db, "index_notes", node.ID, words)
}

// FetchIndex returns the notes word set of the node.
func (r *NotesRepo) FetchIndex(ctx context.Context, node *Node) (*Index, error) {
	return fetchIndexRow(ctx, r.db, "index_notes", node.ID)
}

// Delete removes the notes and their index row.
func (r *NotesRepo) Delete(ctx context.Context, node *Node) error {
	for _, table := range []string{"notes", "index_notes"} {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE node_id = ?", node.ID); err != nil {
			return fmt.Errorf("failed to delete notes: %w", err)
		}
	}

	return nil
}
