package helper

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the helper HTTP router over a data folder store.
func NewRouter(store *FolderStore) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &handler{store: store}

	r.Route("/storage", func(r chi.Router) {
		r.Post("/persist_node", h.persistNode)
		r.Post("/update_node", h.updateNode)
		r.Post("/update_nodes", h.updateNodes)
		r.Post("/delete_nodes", h.deleteNodes)
		r.Post("/delete_nodes_shallow", h.deleteNodesShallow)
		r.Post("/delete_node_content", h.deleteNodeContent)
		r.Post("/persist_icon", h.persistObject("icon_json", FileIcon))
		r.Post("/persist_archive_index", h.persistObject("index_json", FileArchiveIndex))
		r.Post("/persist_archive", h.persistArchive)
		r.Post("/fetch_archive", h.fetchArchive)
		r.Post("/persist_notes_index", h.persistObject("index_json", FileNotesIndex))
		r.Post("/persist_notes", h.persistObject("notes_json", FileNotes))
		r.Post("/fetch_notes", h.fetchObject(FileNotes))
		r.Post("/persist_comments_index", h.persistObject("index_json", FileCommentsIndex))
		r.Post("/persist_comments", h.persistObject("comments_json", FileComments))
		r.Post("/fetch_comments", h.fetchObject(FileComments))
		r.Post("/check_directory", h.checkDirectory)
	})

	r.Route("/sync", func(r chi.Router) {
		r.Post("/push_node", h.pushNode)
		r.Post("/pull_node", h.pullNode)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

type handler struct {
	store *FolderStore
}

// request is the JSON body shared by the storage endpoints; endpoints
// read the fields they need.
type request struct {
	UUID         string   `json:"uuid"`
	NodeJSON     string   `json:"node_json"`
	NodesJSON    string   `json:"nodes_json"`
	RemoveFields []string `json:"remove_fields"`
	UUIDs        []string `json:"uuids"`
	IconJSON     string   `json:"icon_json"`
	IndexJSON    string   `json:"index_json"`
	NotesJSON    string   `json:"notes_json"`
	CommentsJSON string   `json:"comments_json"`
	Path         string   `json:"path"`
}

func decode(w http.ResponseWriter, r *http.Request) (*request, bool) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func fail(w http.ResponseWriter, op string, err error) {
	slog.Error("storage operation failed", "op", op, "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (h *handler) persistNode(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if err := h.store.PersistNode(req.UUID, req.NodeJSON); err != nil {
		fail(w, "persist_node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateNode(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if err := h.store.UpdateNode(req.UUID, req.NodeJSON, req.RemoveFields); err != nil {
		fail(w, "update_node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateNodes(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if err := h.store.UpdateNodes(req.NodesJSON); err != nil {
		fail(w, "update_nodes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteNodes(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteNodes(req.UUIDs); err != nil {
		fail(w, "delete_nodes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteNodesShallow(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteNodesShallow(req.UUIDs); err != nil {
		fail(w, "delete_nodes_shallow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteNodeContent(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteNodeContent(req.UUIDs); err != nil {
		fail(w, "delete_node_content", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// persistObject stores a JSON payload field as a content file.
func (h *handler) persistObject(field, file string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r)
		if !ok {
			return
		}

		var payload string
		switch field {
		case "icon_json":
			payload = req.IconJSON
		case "index_json":
			payload = req.IndexJSON
		case "notes_json":
			payload = req.NotesJSON
		case "comments_json":
			payload = req.CommentsJSON
		}
		if payload == "" {
			http.Error(w, field+" is required", http.StatusBadRequest)
			return
		}

		if err := h.store.StoreObject(req.UUID, file, []byte(payload)); err != nil {
			fail(w, "persist "+file, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// fetchObject serves a stored content file as JSON.
func (h *handler) fetchObject(file string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r)
		if !ok {
			return
		}

		data, err := h.store.ReadObject(req.UUID, file)
		if err != nil {
			fail(w, "fetch "+file, err)
			return
		}
		if data == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// checkDirectory verifies a path can serve as a data folder: it must be
// creatable and writable.
func (h *handler) checkDirectory(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(req.Path, 0o755); err != nil {
		http.Error(w, "directory is not accessible", http.StatusBadRequest)
		return
	}
	probe := filepath.Join(req.Path, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		http.Error(w, "directory is not writable", http.StatusBadRequest)
		return
	}
	os.Remove(probe)
	w.WriteHeader(http.StatusOK)
}

// persistArchive accepts a multipart request: the metadata document and
// the content bytes travel as separate parts.
func (h *handler) persistArchive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	uuid := r.FormValue("uuid")
	archiveJSON := r.FormValue("archive_json")
	if uuid == "" || archiveJSON == "" {
		http.Error(w, "uuid and archive_json are required", http.StatusBadRequest)
		return
	}

	if err := h.store.StoreObject(uuid, FileArchive, []byte(archiveJSON)); err != nil {
		fail(w, "persist_archive", err)
		return
	}

	file, _, err := r.FormFile("content")
	if err == nil {
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			fail(w, "persist_archive", err)
			return
		}
		if err := h.store.StoreObject(uuid, FileArchiveContent, content); err != nil {
			fail(w, "persist_archive", err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// fetchArchive merges the stored metadata document with the content
// bytes into one response object.
func (h *handler) fetchArchive(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}

	meta, err := h.store.ReadObject(req.UUID, FileArchive)
	if err != nil {
		fail(w, "fetch_archive", err)
		return
	}
	if meta == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var obj map[string]any
	if err := json.Unmarshal(meta, &obj); err != nil {
		fail(w, "fetch_archive", err)
		return
	}

	content, err := h.store.ReadObject(req.UUID, FileArchiveContent)
	if err != nil {
		fail(w, "fetch_archive", err)
		return
	}
	if content != nil {
		obj["content"] = string(content)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		slog.Error("failed to encode response", "op", "fetch_archive", "error", err)
	}
}

type syncRequest struct {
	Node    string `json:"node"`
	Content string `json:"content"`
}

func (h *handler) pushNode(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Node == "" {
		http.Error(w, "node is required", http.StatusBadRequest)
		return
	}

	if err := h.store.PushSyncNode(req.Node, req.Content); err != nil {
		fail(w, "push_node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) pullNode(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var probe struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal([]byte(req.Node), &probe); err != nil || probe.UUID == "" {
		http.Error(w, "node with a uuid is required", http.StatusBadRequest)
		return
	}

	node, content, found, err := h.store.PullSyncNode(probe.UUID)
	if err != nil {
		fail(w, "pull_node", err)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	resp := map[string]any{"node": node}
	if content != "" {
		resp["content"] = content
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "op", "pull_node", "error", err)
	}
}
