package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

func newTestStores(t *testing.T) storage.Stores {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	nodes := storage.NewNodeRepo(db)
	return storage.Stores{
		Nodes:    nodes,
		Archives: storage.NewArchiveRepo(db, nodes),
		Notes:    storage.NewNotesRepo(db, nodes),
		Comments: storage.NewCommentsRepo(db, nodes),
		Icons:    storage.NewIconRepo(db, nodes),
	}
}

func TestCreateSyncNode(t *testing.T) {
	stores := newTestStores(t)
	m := NewMarshaller(stores, nil)

	modified := time.Now().Add(-time.Hour)
	parent := &storage.Node{
		ID:           7,
		UUID:         storage.NewUUID(),
		Type:         storage.NodeTypeFolder,
		Name:         "papers",
		DateModified: modified,
	}
	parentObj := m.CreateSyncNode(parent)
	require.Equal(t, parent.UUID, parentObj.GetString("uuid"))
	dm, _ := parentObj.GetInt64("date_modified")
	require.Equal(t, modified.UnixMilli(), dm)
	require.False(t, parentObj.Has("parent"))

	child := &storage.Node{
		ID:           8,
		UUID:         storage.NewUUID(),
		ParentID:     &parent.ID,
		Type:         storage.NodeTypeBookmark,
		DateModified: modified,
	}
	childObj := m.CreateSyncNode(child)
	require.Equal(t, parent.UUID, childObj.GetString("parent"))
}

func TestCreateSyncNodeDefaultShelf(t *testing.T) {
	stores := newTestStores(t)
	m := NewMarshaller(stores, nil)

	shelf := &storage.Node{
		ID:           storage.DefaultShelfID,
		UUID:         storage.DefaultShelfUUID,
		Type:         storage.NodeTypeShelf,
		Name:         storage.DefaultShelfName,
		DateModified: time.Now(),
	}
	obj := m.CreateSyncNode(shelf)

	require.Equal(t, marshal.FormatDefaultShelfUUID, obj.GetString("uuid"))
	dm, _ := obj.GetInt64("date_modified")
	require.Zero(t, dm)
}

func TestCreateSyncNodeContentModifiedFallback(t *testing.T) {
	stores := newTestStores(t)
	m := NewMarshaller(stores, nil)

	modified := time.Now().Add(-time.Hour)

	// content without its own stamp reports the node's stamp
	withContent := &storage.Node{
		ID:           5,
		UUID:         storage.NewUUID(),
		Type:         storage.NodeTypeBookmark,
		DateModified: modified,
		HasNotes:     true,
	}
	obj := m.CreateSyncNode(withContent)
	cm, ok := obj.GetInt64("content_modified")
	require.True(t, ok)
	require.Equal(t, modified.UnixMilli(), cm)

	contentModified := modified.Add(-time.Minute)
	stamped := &storage.Node{
		ID:              6,
		UUID:            storage.NewUUID(),
		Type:            storage.NodeTypeBookmark,
		DateModified:    modified,
		ContentModified: &contentModified,
	}
	obj = m.CreateSyncNode(stamped)
	cm, _ = obj.GetInt64("content_modified")
	require.Equal(t, contentModified.UnixMilli(), cm)

	bare := &storage.Node{
		ID:           9,
		UUID:         storage.NewUUID(),
		Type:         storage.NodeTypeBookmark,
		DateModified: modified,
	}
	require.False(t, m.CreateSyncNode(bare).Has("content_modified"))
}

func TestSerializeExportedContentFragments(t *testing.T) {
	icon := marshal.NewObject()
	icon.Set("data_url", "data:image/png;base64,iVBORw0KGgo=")
	notesObj := marshal.NewObject()
	notesObj.Set("content", "a note")

	blob, err := serializeExportedContent(&marshal.Content{
		Node:  marshal.NewObject(),
		Icon:  icon,
		Notes: notesObj,
	})
	require.NoError(t, err)

	fragments := strings.Split(blob, "\n")
	require.Len(t, fragments, 3)
	require.JSONEq(t, `{"sync":"Scrapyard","version":1}`, fragments[0])
	require.JSONEq(t, `{"icon":{"data_url":"data:image/png;base64,iVBORw0KGgo="}}`, fragments[1])
	require.JSONEq(t, `{"notes":{"content":"a note"}}`, fragments[2])
}

func TestSerializeExportedContentEmptyIconFragment(t *testing.T) {
	comments := marshal.NewObject()
	comments.Set("text", "hello")

	blob, err := serializeExportedContent(&marshal.Content{
		Node:     marshal.NewObject(),
		Comments: comments,
	})
	require.NoError(t, err)

	fragments := strings.Split(blob, "\n")
	require.Len(t, fragments, 3)
	require.Equal(t, "{}", fragments[1])
	require.JSONEq(t, `{"comments":{"text":"hello"}}`, fragments[2])
}

// syncBackend is an in-memory sync endpoint holding pushed payloads.
type syncBackend struct {
	pushed map[string]map[string]any
}

func (b *syncBackend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		payload := map[string]any{}
		require.NoError(t, json.Unmarshal(body, &payload))

		nodeObj := marshal.NewObject()
		require.NoError(t, nodeObj.UnmarshalJSON([]byte(payload["node"].(string))))
		uuid := nodeObj.GetString("uuid")

		switch r.URL.Path {
		case "/sync/push_node":
			b.pushed[uuid] = payload
		case "/sync/pull_node":
			stored, ok := b.pushed[uuid]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(stored))
		default:
			http.NotFound(w, r)
		}
	}
}

func newSyncBackend(t *testing.T) (*syncBackend, *Client) {
	t.Helper()

	backend := &syncBackend{pushed: map[string]map[string]any{}}
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	return backend, NewClient(srv.URL, srv.Client())
}

func TestPushPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStores(t)
	backend, client := newSyncBackend(t)

	parent := storage.DefaultShelfID
	node := &storage.Node{
		ParentID: &parent,
		Type:     storage.NodeTypeBookmark,
		Name:     "Synced bookmark",
		URI:      "http://example.com/",
	}
	require.NoError(t, src.Nodes.Add(ctx, node))
	require.NoError(t, src.Comments.Add(ctx, node, "crosses the wire"))
	node, err := src.Nodes.Get(ctx, node.ID)
	require.NoError(t, err)

	m := NewMarshaller(src, client)
	shelf, err := src.Nodes.Get(ctx, storage.DefaultShelfID)
	require.NoError(t, err)
	m.CreateSyncNode(shelf)
	syncNode := m.CreateSyncNode(node)

	require.NoError(t, m.PushNode(ctx, syncNode, true))

	pushed := backend.pushed[node.UUID]
	require.Contains(t, pushed, "content")
	pushedNode := marshal.NewObject()
	require.NoError(t, pushedNode.UnmarshalJSON([]byte(pushed["node"].(string))))
	require.Equal(t, marshal.FormatDefaultShelfUUID, pushedNode.GetString("parent"))
	require.False(t, pushedNode.Has("parent_id"))
	require.False(t, pushedNode.Has("id"))

	dst := newTestStores(t)
	u := NewUnmarshaller(dst, client)
	require.NoError(t, u.PullNode(ctx, syncNode))

	got, err := dst.Nodes.GetByUUID(ctx, node.UUID)
	require.NoError(t, err)
	require.Equal(t, "Synced bookmark", got.Name)
	require.NotNil(t, got.ParentID)
	require.EqualValues(t, storage.DefaultShelfID, *got.ParentID)
	// foreign modification dates survive the pull
	require.Equal(t, node.DateModified.UnixMilli(), got.DateModified.UnixMilli())

	text, err := dst.Comments.Get(ctx, got)
	require.NoError(t, err)
	require.Equal(t, "crosses the wire", text)
}

func TestPushNodeWithoutContent(t *testing.T) {
	ctx := context.Background()
	src := newTestStores(t)
	backend, client := newSyncBackend(t)

	parent := storage.DefaultShelfID
	node := &storage.Node{
		ParentID: &parent,
		Type:     storage.NodeTypeBookmark,
		Name:     "Plain",
		URI:      "http://example.com/",
	}
	require.NoError(t, src.Nodes.Add(ctx, node))

	m := NewMarshaller(src, client)
	shelf, err := src.Nodes.Get(ctx, storage.DefaultShelfID)
	require.NoError(t, err)
	m.CreateSyncNode(shelf)

	require.NoError(t, m.PushNode(ctx, m.CreateSyncNode(node), false))
	require.NotContains(t, backend.pushed[node.UUID], "content")
}

func TestInitialSyncStompsDates(t *testing.T) {
	ctx := context.Background()
	src := newTestStores(t)
	_, client := newSyncBackend(t)

	parent := storage.DefaultShelfID
	node := &storage.Node{
		ParentID: &parent,
		Type:     storage.NodeTypeBookmark,
		Name:     "Merged",
		URI:      "http://example.com/",
	}
	require.NoError(t, src.Nodes.Add(ctx, node))
	stale := time.Now().Add(-24 * time.Hour)
	node.DateModified = stale
	require.NoError(t, src.Nodes.Update(ctx, node, false))

	m := NewMarshaller(src, client, WithInitialSync())
	shelf, err := src.Nodes.Get(ctx, storage.DefaultShelfID)
	require.NoError(t, err)
	m.CreateSyncNode(shelf)

	before := time.Now()
	require.NoError(t, m.PushNode(ctx, m.CreateSyncNode(node), false))

	got, err := src.Nodes.Get(ctx, node.ID)
	require.NoError(t, err)
	require.False(t, got.DateModified.Before(before.Truncate(time.Millisecond)))
}

func TestPullNodeSkipsDefaultShelf(t *testing.T) {
	ctx := context.Background()
	dst := newTestStores(t)
	// no backend: pulling the default shelf never reaches the wire
	u := NewUnmarshaller(dst, NewClient("http://127.0.0.1:1", nil))

	shelf := marshal.NewObject()
	shelf.Set("uuid", marshal.FormatDefaultShelfUUID)
	require.NoError(t, u.PullNode(ctx, shelf))
}

func TestPullNodeMissingFromBackend(t *testing.T) {
	ctx := context.Background()
	dst := newTestStores(t)
	_, client := newSyncBackend(t)
	u := NewUnmarshaller(dst, client)

	syncNode := marshal.NewObject()
	syncNode.Set("uuid", storage.NewUUID())
	require.Error(t, u.PullNode(ctx, syncNode))
}
