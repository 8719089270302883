package marshal

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

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

func addFolder(t *testing.T, stores storage.Stores, parentID int64, name string) *storage.Node {
	t.Helper()

	node := &storage.Node{
		ParentID: &parentID,
		Type:     storage.NodeTypeFolder,
		Name:     name,
	}
	require.NoError(t, stores.Nodes.Add(context.Background(), node))
	return node
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStores(t)

	folder := addFolder(t, src, storage.DefaultShelfID, "articles")

	bookmark := &storage.Node{
		ParentID: &folder.ID,
		Type:     storage.NodeTypeBookmark,
		Name:     "Example",
		URI:      "http://example.com/",
		Tags:     "reading",
	}
	require.NoError(t, src.Nodes.Add(ctx, bookmark))

	page := &storage.Node{
		ParentID: &folder.ID,
		Type:     storage.NodeTypeArchive,
		Name:     "Captured page",
		URI:      "http://example.com/page",
	}
	require.NoError(t, src.Nodes.Add(ctx, page))
	require.NoError(t, src.Archives.Add(ctx, page,
		storage.Entity(page, []byte("<html><body>archived body</body></html>"), "text/html", nil)))
	require.NoError(t, src.Notes.Add(ctx, page,
		&storage.Notes{Content: "remember this page", Format: "text"}, false))
	require.NoError(t, src.Comments.Add(ctx, page, "useful reference"))

	dataURL := "data:image/png;base64,iVBORw0KGgo="
	require.NoError(t, src.Icons.Add(ctx, page, dataURL))
	page.Icon = storage.ComputeIconHash(dataURL)
	page.StoredIcon = true
	require.NoError(t, src.Nodes.Update(ctx, page, false))

	// export reads the bookkeeping flags stamped by the content repos
	page, err := src.Nodes.Get(ctx, page.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	m := NewScrapbookMarshaller(src, &buf)
	require.NoError(t, m.ExportNodes(ctx, "articles", []*storage.Node{folder, bookmark, page}, ""))

	dst := newTestStores(t)
	u := NewScrapbookUnmarshaller(dst, bytes.NewReader(buf.Bytes()))

	meta, err := u.UnmarshalMeta()
	require.NoError(t, err)
	require.Equal(t, JSONScrapbookFormat, meta.GetString("format"))
	fileEntities, ok := meta.GetInt64("entities")
	require.True(t, ok)
	require.EqualValues(t, 3, fileEntities)

	imported, err := u.ImportAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, imported)

	// uuids survive an import into a store without collisions
	gotFolder, err := dst.Nodes.GetByUUID(ctx, folder.UUID)
	require.NoError(t, err)
	require.Equal(t, "articles", gotFolder.Name)
	require.NotNil(t, gotFolder.ParentID)
	require.EqualValues(t, storage.DefaultShelfID, *gotFolder.ParentID)

	gotBookmark, err := dst.Nodes.GetByUUID(ctx, bookmark.UUID)
	require.NoError(t, err)
	require.Equal(t, "http://example.com/", gotBookmark.URI)
	require.Equal(t, "reading", gotBookmark.Tags)
	require.NotNil(t, gotBookmark.ParentID)
	require.Equal(t, gotFolder.ID, *gotBookmark.ParentID)

	gotPage, err := dst.Nodes.GetByUUID(ctx, page.UUID)
	require.NoError(t, err)
	require.Equal(t, storage.NodeTypeArchive, gotPage.Type)

	archive, err := dst.Archives.Get(ctx, gotPage)
	require.NoError(t, err)
	require.Equal(t, "<html><body>archived body</body></html>", string(archive.Object))
	require.Equal(t, "text/html", archive.Type)

	notes, err := dst.Notes.Get(ctx, gotPage)
	require.NoError(t, err)
	require.Equal(t, "remember this page", notes.Content)
	require.Equal(t, "text", notes.Format)

	comments, err := dst.Comments.Get(ctx, gotPage)
	require.NoError(t, err)
	require.Equal(t, "useful reference", comments)

	gotIcon, err := dst.Icons.Get(ctx, gotPage)
	require.NoError(t, err)
	require.Equal(t, dataURL, gotIcon)
	require.Equal(t, storage.ComputeIconHash(dataURL), gotPage.Icon)
}

func TestExportBinaryArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStores(t)

	raw := []byte{0x89, 0x50, 0x4E, 0x47, 0x00, 0xFF}
	byteLength := int64(len(raw))

	node := &storage.Node{
		ParentID: ptrID(storage.DefaultShelfID),
		Type:     storage.NodeTypeArchive,
		Name:     "image",
		URI:      "http://example.com/image.png",
	}
	require.NoError(t, src.Nodes.Add(ctx, node))
	require.NoError(t, src.Archives.Add(ctx, node, storage.Entity(node, raw, "image/png", &byteLength)))

	node, err := src.Nodes.Get(ctx, node.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	m := NewScrapbookMarshaller(src, &buf)
	require.NoError(t, m.ExportNodes(ctx, "", []*storage.Node{node}, ""))

	// binary archives export base64 content tagged with type "bytes"
	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], `"type":"bytes"`)
	require.Contains(t, lines[1], `"content_type":"image/png"`)

	dst := newTestStores(t)
	u := NewScrapbookUnmarshaller(dst, bytes.NewReader(buf.Bytes()))
	_, err = u.UnmarshalMeta()
	require.NoError(t, err)
	imported, err := u.ImportAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, imported)

	got, err := dst.Nodes.GetByUUID(ctx, node.UUID)
	require.NoError(t, err)
	archive, err := dst.Archives.Get(ctx, got)
	require.NoError(t, err)
	require.Equal(t, raw, []byte(archive.Object))
	require.NotNil(t, archive.ByteLength)
	require.EqualValues(t, len(raw), *archive.ByteLength)
}

func TestConvertNodeRenamesFields(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	m := NewScrapbookMarshaller(stores, nil)

	todo := storage.TodoStateTodo
	node := &storage.Node{
		ParentID:  ptrID(storage.DefaultShelfID),
		Type:      storage.NodeTypeBookmark,
		Name:      "Example",
		URI:       "http://example.com/",
		TodoState: &todo,
	}
	require.NoError(t, stores.Nodes.Add(ctx, node))

	obj := m.SerializeNode(node)
	converted, err := m.ConvertNode(ctx, obj)
	require.NoError(t, err)

	require.Equal(t, "bookmark", converted.GetString("type"))
	require.Equal(t, "TODO", converted.GetString("todo_state"))
	require.Equal(t, "http://example.com/", converted.GetString("url"))
	require.Equal(t, "Example", converted.GetString("title"))
	require.Equal(t, FormatDefaultShelfUUID, converted.GetString("parent"))
	require.False(t, converted.Has("uri"))
	require.False(t, converted.Has("name"))
	require.False(t, converted.Has("id"))
	require.False(t, converted.Has("parent_id"))

	// canonical fields lead in canonical order
	keys := converted.Keys()
	require.Equal(t, "type", keys[0])
	require.Equal(t, "uuid", keys[1])
	require.Equal(t, "parent", keys[2])
}

func TestConvertNodePreservesUnknownFields(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	m := NewScrapbookMarshaller(stores, nil)

	obj := NewObject()
	obj.Set("libra_id", "abc")
	obj.Set("type", int64(storage.NodeTypeBookmark))
	obj.Set("uuid", storage.NewUUID())
	obj.Set("name", "Example")

	converted, err := m.ConvertNode(ctx, obj)
	require.NoError(t, err)

	keys := converted.Keys()
	require.Equal(t, "abc", converted.GetString("libra_id"))
	require.Equal(t, "libra_id", keys[len(keys)-1])
}

func TestUnmarshalMetaRejectsGarbage(t *testing.T) {
	stores := newTestStores(t)

	for _, input := range []string{"", "not json", "[1,2,3]"} {
		u := NewScrapbookUnmarshaller(stores, strings.NewReader(input))
		_, err := u.UnmarshalMeta()
		require.ErrorIs(t, err, ErrInvalidFormat, "input %q", input)
	}
}

func TestUnmarshalMetaRejectsNewerVersion(t *testing.T) {
	stores := newTestStores(t)

	meta := `{"format":"JSON Scrapbook","version":2,"type":"export"}`
	u := NewScrapbookUnmarshaller(stores, strings.NewReader(meta))
	_, err := u.UnmarshalMeta()
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestUnmarshalMetaAcceptsLegacyArrayFraming(t *testing.T) {
	stores := newTestStores(t)

	u := NewScrapbookUnmarshaller(stores, strings.NewReader(
		`[{"format":"JSON Scrapbook","version":1,"type":"export"},`))
	meta, err := u.UnmarshalMeta()
	require.NoError(t, err)
	require.Equal(t, "export", meta.GetString("type"))
}

func TestImportOrphanFallsBackToDefaultShelf(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)

	orphanUUID := storage.NewUUID()
	file := `{"format":"JSON Scrapbook","version":1,"type":"export","entities":1}
{"node":{"type":"bookmark","uuid":"` + orphanUUID + `","parent":"` + storage.NewUUID() + `","title":"orphan","url":"http://example.com/"}}`

	u := NewScrapbookUnmarshaller(stores, strings.NewReader(file))
	_, err := u.UnmarshalMeta()
	require.NoError(t, err)
	imported, err := u.ImportAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, imported)

	got, err := stores.Nodes.GetByUUID(ctx, orphanUUID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	require.EqualValues(t, storage.DefaultShelfID, *got.ParentID)
}

func TestContentIsEmpty(t *testing.T) {
	require.True(t, (&Content{Node: NewObject()}).IsEmpty())
	require.False(t, (&Content{Node: NewObject(), Notes: NewObject()}).IsEmpty())
	var nilContent *Content
	require.True(t, nilContent.IsEmpty())
}

func TestMarshalMetaShape(t *testing.T) {
	var buf bytes.Buffer
	m := NewScrapbookMarshaller(newTestStores(t), &buf)
	require.NoError(t, m.MarshalMeta("notebook", 7, "weekly export"))

	meta := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &meta))
	require.Equal(t, "JSON Scrapbook", meta["format"])
	require.Equal(t, "export", meta["type"])
	require.Equal(t, "folders", meta["contains"])
	require.Equal(t, "notebook", meta["title"])
	require.Equal(t, "weekly export", meta["comment"])
	require.EqualValues(t, 7, meta["entities"])
	require.Len(t, meta["uuid"], 32)
}

func ptrID(id int64) *int64 {
	return &id
}
