package adapter

import (
	"context"
	"fmt"

	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// Payloads cross the adapter boundary as string-serialized JSON documents
// keyed by node uuid, keeping the shape uniform between the disk backend
// (HTTP body) and the cloud backend (object-store blob). Local ids never
// cross this boundary.

// NodeParams carries a serialized node for persist and update calls.
// RemoveFields lists wire fields the update cleared, so the backend can
// drop them from its stored copy.
type NodeParams struct {
	UUID         string
	Node         string
	RemoveFields []string
}

// BatchParams carries a serialized JSON array of nodes.
type BatchParams struct {
	Nodes string
}

// DeleteParams addresses a set of nodes by uuid.
type DeleteParams struct {
	UUIDs []string
}

// IconParams carries a serialized icon object.
type IconParams struct {
	UUID string
	Icon string
}

// ArchiveParams carries serialized archive metadata alongside the
// content, which travels out of band of the JSON document. Content holds
// the wire form of the archive body: base64 text for binary archives,
// plain text otherwise.
type ArchiveParams struct {
	UUID     string
	Archive  string
	Content  []byte
	Contains string
}

// IndexParams carries a serialized full-text index object.
type IndexParams struct {
	UUID  string
	Index string
}

// NotesParams carries a serialized notes object.
type NotesParams struct {
	UUID  string
	Notes string
}

// CommentsParams carries a serialized comments object.
type CommentsParams struct {
	UUID     string
	Comments string
}

// FetchParams addresses stored content by node uuid.
type FetchParams struct {
	UUID string
}

// StorageAdapter is the uniform contract every mirroring backend
// implements. Fetch methods return nil without error when the backend
// holds no copy.
type StorageAdapter interface {
	// Accepts reports whether this backend mirrors the given node.
	Accepts(node *storage.Node) bool
	// Concurrent reports whether callers may fire mutations without
	// awaiting completion. Backends that serialize writes over a single
	// remote document return false.
	Concurrent() bool

	PersistNode(ctx context.Context, params *NodeParams) error
	UpdateNode(ctx context.Context, params *NodeParams) error
	UpdateNodes(ctx context.Context, params *BatchParams) error
	DeleteNodes(ctx context.Context, params *DeleteParams) error
	DeleteNodesShallow(ctx context.Context, params *DeleteParams) error
	DeleteNodeContent(ctx context.Context, params *DeleteParams) error

	PersistIcon(ctx context.Context, params *IconParams) error

	PersistArchiveIndex(ctx context.Context, params *IndexParams) error
	PersistArchive(ctx context.Context, params *ArchiveParams) error
	FetchArchive(ctx context.Context, params *FetchParams) (*marshal.Object, error)

	PersistNotesIndex(ctx context.Context, params *IndexParams) error
	PersistNotes(ctx context.Context, params *NotesParams) error
	FetchNotes(ctx context.Context, params *FetchParams) (*marshal.Object, error)

	PersistCommentsIndex(ctx context.Context, params *IndexParams) error
	PersistComments(ctx context.Context, params *CommentsParams) error
	FetchComments(ctx context.Context, params *FetchParams) (*marshal.Object, error)
}

// HTTPError reports a non-success status from a backend endpoint.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.Status)
}
