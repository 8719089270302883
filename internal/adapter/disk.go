package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// DiskAdapter mirrors nodes and content to the helper-managed data
// folder over HTTP. The local store has already committed by the time an
// adapter call runs, so helper failures are logged and swallowed rather
// than surfaced; a later reconciliation pass catches the mirror up.
type DiskAdapter struct {
	baseURL string
	client  *http.Client
}

// NewDiskAdapter creates an adapter talking to the helper at baseURL.
// A nil client falls back to http.DefaultClient.
func NewDiskAdapter(baseURL string, client *http.Client) *DiskAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &DiskAdapter{baseURL: baseURL, client: client}
}

// Accepts reports false for browser-local nodes and cloud-shelf nodes,
// which other backends govern.
func (d *DiskAdapter) Accepts(node *storage.Node) bool {
	if node.External == storage.CloudExternalType {
		return false
	}
	return !storage.IsNonSynchronized(node.External)
}

// Concurrent is true: disk mutations are independent per node, so the
// proxy may fire them without awaiting completion.
func (d *DiskAdapter) Concurrent() bool { return true }

func (d *DiskAdapter) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode helper payload: %w", err)
	}

	url := d.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, URL: url}
	}

	return resp, nil
}

// fire posts a mutation and swallows any failure after logging it.
func (d *DiskAdapter) fire(ctx context.Context, path string, payload any) error {
	resp, err := d.post(ctx, path, payload)
	if err != nil {
		slog.Error("helper request failed", "path", path, "error", err)
		return nil
	}
	resp.Body.Close()
	return nil
}

// fetch posts a query and decodes a JSON object response. A missing
// resource or unreachable helper yields nil without error.
func (d *DiskAdapter) fetch(ctx context.Context, path string, payload any) (*marshal.Object, error) {
	resp, err := d.post(ctx, path, payload)
	if err != nil {
		var httpErr *HTTPError
		if !(errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound) {
			slog.Error("helper request failed", "path", path, "error", err)
		}
		return nil, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("failed to read helper response", "path", path, "error", err)
		return nil, nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	obj := marshal.NewObject()
	if err := obj.UnmarshalJSON(body); err != nil {
		slog.Error("failed to parse helper response", "path", path, "error", err)
		return nil, nil
	}
	return obj, nil
}

func (d *DiskAdapter) PersistNode(ctx context.Context, params *NodeParams) error {
	return d.fire(ctx, "/storage/persist_node", map[string]any{
		"uuid":      params.UUID,
		"node_json": params.Node,
	})
}

func (d *DiskAdapter) UpdateNode(ctx context.Context, params *NodeParams) error {
	return d.fire(ctx, "/storage/update_node", map[string]any{
		"uuid":          params.UUID,
		"node_json":     params.Node,
		"remove_fields": params.RemoveFields,
	})
}

func (d *DiskAdapter) UpdateNodes(ctx context.Context, params *BatchParams) error {
	return d.fire(ctx, "/storage/update_nodes", map[string]any{
		"nodes_json": params.Nodes,
	})
}

func (d *DiskAdapter) DeleteNodes(ctx context.Context, params *DeleteParams) error {
	return d.fire(ctx, "/storage/delete_nodes", map[string]any{
		"uuids": params.UUIDs,
	})
}

func (d *DiskAdapter) DeleteNodesShallow(ctx context.Context, params *DeleteParams) error {
	return d.fire(ctx, "/storage/delete_nodes_shallow", map[string]any{
		"uuids": params.UUIDs,
	})
}

func (d *DiskAdapter) DeleteNodeContent(ctx context.Context, params *DeleteParams) error {
	return d.fire(ctx, "/storage/delete_node_content", map[string]any{
		"uuids": params.UUIDs,
	})
}

func (d *DiskAdapter) PersistIcon(ctx context.Context, params *IconParams) error {
	return d.fire(ctx, "/storage/persist_icon", map[string]any{
		"uuid":      params.UUID,
		"icon_json": params.Icon,
	})
}

func (d *DiskAdapter) PersistArchiveIndex(ctx context.Context, params *IndexParams) error {
	return d.fire(ctx, "/storage/persist_archive_index", map[string]any{
		"uuid":       params.UUID,
		"index_json": params.Index,
	})
}

// PersistArchive sends the archive metadata and raw content as one
// multipart request, keeping the content bytes out of the JSON document.
func (d *DiskAdapter) PersistArchive(ctx context.Context, params *ArchiveParams) error {
	body, contentType, err := archiveForm(params)
	if err != nil {
		slog.Error("failed to build archive request", "uuid", params.UUID, "error", err)
		return nil
	}

	url := d.baseURL + "/storage/persist_archive"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		slog.Error("failed to build archive request", "uuid", params.UUID, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Error("helper request failed", "path", "/storage/persist_archive", "error", err)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("helper request failed", "path", "/storage/persist_archive", "status", resp.StatusCode)
	}
	return nil
}

// archiveForm assembles the multipart body of a persist_archive request.
func archiveForm(params *ArchiveParams) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	if err := form.WriteField("uuid", params.UUID); err != nil {
		return nil, "", err
	}
	if err := form.WriteField("archive_json", params.Archive); err != nil {
		return nil, "", err
	}
	if params.Contains != "" {
		if err := form.WriteField("contains", params.Contains); err != nil {
			return nil, "", err
		}
	}
	part, err := form.CreateFormFile("content", "archive_content.blob")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(params.Content); err != nil {
		return nil, "", err
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}

	return body, form.FormDataContentType(), nil
}

func (d *DiskAdapter) FetchArchive(ctx context.Context, params *FetchParams) (*marshal.Object, error) {
	return d.fetch(ctx, "/storage/fetch_archive", map[string]any{"uuid": params.UUID})
}

func (d *DiskAdapter) PersistNotesIndex(ctx context.Context, params *IndexParams) error {
	return d.fire(ctx, "/storage/persist_notes_index", map[string]any{
		"uuid":       params.UUID,
		"index_json": params.Index,
	})
}

func (d *DiskAdapter) PersistNotes(ctx context.Context, params *NotesParams) error {
	return d.fire(ctx, "/storage/persist_notes", map[string]any{
		"uuid":       params.UUID,
		"notes_json": params.Notes,
	})
}

func (d *DiskAdapter) FetchNotes(ctx context.Context, params *FetchParams) (*marshal.Object, error) {
	return d.fetch(ctx, "/storage/fetch_notes", map[string]any{"uuid": params.UUID})
}

func (d *DiskAdapter) PersistCommentsIndex(ctx context.Context, params *IndexParams) error {
	return d.fire(ctx, "/storage/persist_comments_index", map[string]any{
		"uuid":       params.UUID,
		"index_json": params.Index,
	})
}

func (d *DiskAdapter) PersistComments(ctx context.Context, params *CommentsParams) error {
	return d.fire(ctx, "/storage/persist_comments", map[string]any{
		"uuid":          params.UUID,
		"comments_json": params.Comments,
	})
}

func (d *DiskAdapter) FetchComments(ctx context.Context, params *FetchParams) (*marshal.Object, error) {
	return d.fetch(ctx, "/storage/fetch_comments", map[string]any{"uuid": params.UUID})
}
