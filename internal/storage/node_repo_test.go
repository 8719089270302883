package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func testBookmark(name string) *Node {
	parent := DefaultShelfID
	return &Node{
		ParentID: &parent,
		Type:     NodeTypeBookmark,
		Name:     name,
		URI:      "http://example.com/" + name,
	}
}

func TestNodeRepoAdd(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	node := testBookmark("example")
	require.NoError(t, repo.Add(ctx, node))

	require.NotZero(t, node.ID)
	require.Len(t, node.UUID, 32)
	require.Equal(t, DefaultPosition, node.Pos)
	require.False(t, node.DateAdded.IsZero())
	require.Equal(t, node.DateAdded, node.DateModified)

	stored, err := repo.GetByUUID(ctx, node.UUID)
	require.NoError(t, err)
	require.Equal(t, node.ID, stored.ID)
	require.Equal(t, "example", stored.Name)
	require.Equal(t, DefaultShelfID, *stored.ParentID)
}

func TestNodeRepoImportPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	node := testBookmark("imported")
	node.UUID = "ABCDEF0123456789ABCDEF0123456789"
	node.DateAdded = mustTime(t, "2020-01-02T10:00:00Z")
	node.DateModified = mustTime(t, "2020-03-04T11:00:00Z")

	require.NoError(t, repo.Import(ctx, node))

	stored, err := repo.Get(ctx, node.ID)
	require.NoError(t, err)
	require.Equal(t, "ABCDEF0123456789ABCDEF0123456789", stored.UUID)
	require.Equal(t, node.DateAdded.UnixMilli(), stored.DateAdded.UnixMilli())
	require.Equal(t, node.DateModified.UnixMilli(), stored.DateModified.UnixMilli())
}

func TestNodeRepoGetMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	_, err := repo.Get(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByUUID(ctx, "MISSING")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNodeRepoDefaultShelfSeeded(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	shelf, err := repo.Get(ctx, DefaultShelfID)
	require.NoError(t, err)
	require.Equal(t, DefaultShelfUUID, shelf.UUID)
	require.Equal(t, NodeTypeShelf, shelf.Type)
	require.Equal(t, DefaultShelfName, shelf.Name)
}

func TestNodeRepoUpdateWithoutIDIsSkipped(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	// a programming error is reported, not propagated, so sibling
	// updates in a batch proceed
	require.NoError(t, repo.Update(ctx, &Node{Name: "orphan"}, true))
	require.NoError(t, repo.Update(ctx, nil, true))
}

func TestNodeRepoUpdateDates(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	node := testBookmark("dated")
	require.NoError(t, repo.Add(ctx, node))
	added := node.DateModified

	node.Name = "renamed"
	require.NoError(t, repo.Update(ctx, node, true))
	require.False(t, node.DateModified.Before(added))

	frozen := mustTime(t, "2021-05-06T12:00:00Z")
	node.DateModified = frozen
	require.NoError(t, repo.Update(ctx, node, false))

	stored, err := repo.Get(ctx, node.ID)
	require.NoError(t, err)
	require.Equal(t, frozen.UnixMilli(), stored.DateModified.UnixMilli())
}

func TestNodeRepoContentUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	node := testBookmark("content")
	require.NoError(t, repo.Add(ctx, node))
	require.Nil(t, node.ContentModified)

	require.NoError(t, repo.ContentUpdate(ctx, node))

	stored, err := repo.Get(ctx, node.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ContentModified)
	require.Equal(t, stored.DateModified.UnixMilli(), stored.ContentModified.UnixMilli())
}

func TestNodeRepoBatchUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	first := testBookmark("first")
	second := testBookmark("second")
	require.NoError(t, repo.Add(ctx, first))
	require.NoError(t, repo.Add(ctx, second))

	state := TodoStateTodo
	err := repo.BatchUpdate(ctx, func(n *Node) {
		n.TodoState = &state
	}, []int64{first.ID, second.ID})
	require.NoError(t, err)

	for _, id := range []int64{first.ID, second.ID} {
		stored, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, stored.TodoState)
		require.Equal(t, TodoStateTodo, *stored.TodoState)
	}
}

func TestNodeRepoDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	nodes := NewNodeRepo(db)
	archives := NewArchiveRepo(db, nodes)
	notes := NewNotesRepo(db, nodes)
	comments := NewCommentsRepo(db, nodes)
	icons := NewIconRepo(db, nodes)

	node := testBookmark("doomed")
	node.Type = NodeTypeArchive
	require.NoError(t, nodes.Add(ctx, node))

	require.NoError(t, archives.Add(ctx, node, Entity(node, []byte("<p>payload words</p>"), "", nil)))
	require.NoError(t, notes.Add(ctx, node, &Notes{Content: "remember this", Format: NotesFormatText}, false))
	require.NoError(t, comments.Add(ctx, node, "a remark"))
	require.NoError(t, icons.Add(ctx, node, "data:image/png;base64,AAAA"))

	require.NoError(t, nodes.Delete(ctx, []*Node{node}))

	_, err := nodes.Get(ctx, node.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = archives.Get(ctx, node)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = notes.Get(ctx, node)
	require.ErrorIs(t, err, ErrNotFound)

	text, err := comments.Get(ctx, node)
	require.NoError(t, err)
	require.Empty(t, text)

	icon, err := icons.Get(ctx, node)
	require.NoError(t, err)
	require.Empty(t, icon)

	for _, table := range []string{"index_archive", "index_notes", "index_comments"} {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE node_id = ?", node.ID).Scan(&count))
		require.Zero(t, count)
	}
}

func TestNodeRepoDeleteShallowKeepsContent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	nodes := NewNodeRepo(db)
	archives := NewArchiveRepo(db, nodes)

	node := testBookmark("shallow")
	node.Type = NodeTypeArchive
	require.NoError(t, nodes.Add(ctx, node))
	require.NoError(t, archives.Add(ctx, node, Entity(node, []byte("kept"), "text/plain", nil)))

	require.NoError(t, nodes.DeleteShallow(ctx, []*Node{node}))

	_, err := nodes.Get(ctx, node.ID)
	require.ErrorIs(t, err, ErrNotFound)

	archive, err := archives.Get(ctx, node)
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), archive.Object)
}

func TestNodeRepoDeleteMissingExternal(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	kept := testBookmark("kept")
	kept.External = BrowserExternalType
	kept.ExternalID = "b1"
	require.NoError(t, repo.Add(ctx, kept))

	gone := testBookmark("gone")
	gone.External = BrowserExternalType
	gone.ExternalID = "b2"
	require.NoError(t, repo.Add(ctx, gone))

	require.NoError(t, repo.DeleteMissingExternal(ctx, []string{"b1"}, BrowserExternalType))

	_, err := repo.Get(ctx, kept.ID)
	require.NoError(t, err)
	_, err = repo.Get(ctx, gone.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNodeRepoLookups(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepo(newTestDB(t))

	node := testBookmark("lookup")
	require.NoError(t, repo.Add(ctx, node))

	exists, err := repo.Exists(ctx, node.UUID)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.Exists(ctx, "")
	require.NoError(t, err)
	require.False(t, exists)

	id, err := repo.IDFromUUID(ctx, node.UUID)
	require.NoError(t, err)
	require.Equal(t, node.ID, id)

	uuid, err := repo.UUIDFromID(ctx, node.ID)
	require.NoError(t, err)
	require.Equal(t, node.UUID, uuid)

	children, err := repo.GetChildren(ctx, DefaultShelfID)
	require.NoError(t, err)
	require.Len(t, children, 1)
}
