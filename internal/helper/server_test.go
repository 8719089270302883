package helper

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"scrapyard/internal/adapter"
)

func newTestServer(t *testing.T) (*httptest.Server, *FolderStore) {
	t.Helper()

	store := NewFolderStore(t.TempDir())
	srv := httptest.NewServer(NewRouter(store))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, srv *httptest.Server, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := srv.Client().Post(srv.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerPersistAndUpdateNode(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv, "/storage/persist_node", map[string]any{
		"uuid":      "AAA",
		"node_json": `{"uuid":"AAA","title":"first","todo_state":"TODO"}`,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv, "/storage/update_node", map[string]any{
		"uuid":          "AAA",
		"node_json":     `{"uuid":"AAA","title":"second"}`,
		"remove_fields": []string{"todo_state"},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	objs, err := store.loadLines(NodeDBName)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "second", objs[0].GetString("title"))
	require.False(t, objs[0].Has("todo_state"))
}

func TestServerRejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/storage/persist_node", "application/json",
		bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerNotesRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/storage/persist_notes", map[string]any{
		"uuid":       "AAA",
		"notes_json": `{"content":"remember","format":"text"}`,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv, "/storage/fetch_notes", map[string]any{"uuid": "AAA"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var notes map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notes))
	require.Equal(t, "remember", notes["content"])

	resp = postJSON(t, srv, "/storage/fetch_notes", map[string]any{"uuid": "missing"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerArchiveMultipartRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	require.NoError(t, form.WriteField("uuid", "AAA"))
	require.NoError(t, form.WriteField("archive_json", `{"content_type":"text/html","type":"text"}`))
	part, err := form.CreateFormFile("content", "archive_content.blob")
	require.NoError(t, err)
	_, err = part.Write([]byte("<html>stored</html>"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	resp, err := srv.Client().Post(srv.URL+"/storage/persist_archive", form.FormDataContentType(), body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv, "/storage/fetch_archive", map[string]any{"uuid": "AAA"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var archive map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&archive))
	require.Equal(t, "text/html", archive["content_type"])
	require.Equal(t, "<html>stored</html>", archive["content"])
}

// The disk adapter and the helper speak the same wire protocol.
func TestServerServesDiskAdapter(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)
	d := adapter.NewDiskAdapter(srv.URL, srv.Client())

	require.NoError(t, d.PersistArchive(ctx, &adapter.ArchiveParams{
		UUID:     "AAA",
		Archive:  `{"content_type":"text/plain","type":"text"}`,
		Content:  []byte("adapter payload"),
		Contains: "text",
	}))

	obj, err := d.FetchArchive(ctx, &adapter.FetchParams{UUID: "AAA"})
	require.NoError(t, err)
	require.NotNil(t, obj)
	require.Equal(t, "text/plain", obj.GetString("content_type"))
	require.Equal(t, "adapter payload", obj.GetString("content"))

	require.NoError(t, d.DeleteNodes(ctx, &adapter.DeleteParams{UUIDs: []string{"AAA"}}))
	data, err := store.ReadObject("AAA", FileArchive)
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestServerSyncPushPull(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/sync/push_node", map[string]any{
		"node":    `{"uuid":"AAA","title":"pushed"}`,
		"content": "{\"sync\":\"Scrapyard\",\"version\":1}\n{}\n{\"comments\":{\"text\":\"hi\"}}",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = postJSON(t, srv, "/sync/pull_node", map[string]any{
		"node": `{"uuid":"AAA"}`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pulled map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pulled))
	require.JSONEq(t, `{"uuid":"AAA","title":"pushed"}`, pulled["node"])
	require.Contains(t, pulled["content"], `"comments"`)

	resp = postJSON(t, srv, "/sync/pull_node", map[string]any{
		"node": `{"uuid":"missing"}`,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerCheckDirectory(t *testing.T) {
	srv, _ := newTestServer(t)

	dir := filepath.Join(t.TempDir(), "nested", "data")
	resp := postJSON(t, srv, "/storage/check_directory", map[string]any{"path": dir})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.DirExists(t, dir)

	resp = postJSON(t, srv, "/storage/check_directory", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
