// Package marshal converts the content graph of a bookmark node — the
// bundle {node, archive?, notes?, comments?, icon?} — to and from the wire
// and file shapes used by the disk, cloud and sync backends.
package marshal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scrapyard/internal/storage"
)

// Content is the transport-neutral content graph of one node. Every part
// is an ordered object in wire shape; absent parts are nil.
type Content struct {
	Node     *Object
	Archive  *Object
	Notes    *Object
	Comments *Object
	Icon     *Object
}

// IsEmpty reports whether the bundle carries no content besides the node
// itself. Export and sync paths may skip emitting empty bundles.
func (c *Content) IsEmpty() bool {
	return c == nil || (c.Icon == nil && c.Archive == nil && c.Notes == nil && c.Comments == nil)
}

// Marshaller serializes entity graphs into transport-neutral objects.
type Marshaller struct {
	stores storage.Stores
}

// NewMarshaller creates a marshaller reading content through the given
// entity stores.
func NewMarshaller(stores storage.Stores) *Marshaller {
	return &Marshaller{stores: stores}
}

// epochMillis converts a date to Unix epoch milliseconds, failing closed
// to 0 on the zero value so that unparsable dates never propagate.
func epochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// SerializeNode converts a node to its wire object: canonical attributes
// only, a guaranteed name, every *_added/*_modified field as epoch
// milliseconds. Browser-local backend tags are an implementation detail of
// one client and are stripped.
func (m *Marshaller) SerializeNode(node *storage.Node) *Object {
	obj := NewObject()

	obj.Set("type", int64(node.Type))
	obj.Set("uuid", node.UUID)
	if node.ParentID != nil {
		obj.Set("parent_id", *node.ParentID)
	}
	obj.Set("name", node.Name)
	if node.URI != "" {
		obj.Set("uri", node.URI)
	}
	if node.Pos != 0 {
		obj.Set("pos", node.Pos)
	}
	if node.Tags != "" {
		obj.Set("tags", node.Tags)
	}
	if node.Details != "" {
		obj.Set("details", node.Details)
	}
	if node.Icon != "" {
		obj.Set("icon", node.Icon)
	}
	if node.Size != 0 {
		obj.Set("size", node.Size)
	}
	if node.ContentType != "" {
		obj.Set("content_type", node.ContentType)
	}
	if node.Contains != "" {
		obj.Set("contains", node.Contains)
	}
	if node.TodoState != nil {
		obj.Set("todo_state", int64(*node.TodoState))
	}
	if node.TodoDate != "" {
		obj.Set("todo_date", node.TodoDate)
	}
	if node.External != "" && node.External != storage.BrowserExternalType {
		obj.Set("external", node.External)
		if node.ExternalID != "" {
			obj.Set("external_id", node.ExternalID)
		}
	}
	if node.StoredIcon {
		obj.Set("stored_icon", true)
	}
	if node.HasNotes {
		obj.Set("has_notes", true)
	}
	if node.HasComments {
		obj.Set("has_comments", true)
	}
	obj.Set("date_added", epochMillis(node.DateAdded))
	obj.Set("date_modified", epochMillis(node.DateModified))
	if node.ContentModified != nil {
		obj.Set("content_modified", epochMillis(*node.ContentModified))
	}

	return obj
}

// SerializeArchive converts an archive to its wire object. Binary content
// is base64-encoded; text content stays a plain string. Local-only ids are
// dropped.
func (m *Marshaller) SerializeArchive(archive *storage.Archive) *Object {
	obj := NewObject()

	if archive.IsBinary() {
		obj.Set("object", base64.StdEncoding.EncodeToString(archive.Object))
		obj.Set("byte_length", *archive.ByteLength)
	} else {
		obj.Set("object", string(archive.Object))
	}
	obj.Set("type", archive.Type)

	return obj
}

// SerializeNotes converts notes to their wire object.
func (m *Marshaller) SerializeNotes(n *storage.Notes) *Object {
	obj := NewObject()

	obj.Set("content", n.Content)
	if n.Format != "" {
		obj.Set("format", n.Format)
	}
	if n.HTML != "" {
		obj.Set("html", n.HTML)
	}
	if n.Align != "" {
		obj.Set("align", n.Align)
	}
	if n.Width != 0 {
		obj.Set("width", n.Width)
	}

	return obj
}

// SerializeComments converts comment text to its wire object.
func (m *Marshaller) SerializeComments(text string) *Object {
	obj := NewObject()
	obj.Set("text", text)
	return obj
}

// SerializeIcon converts an icon data URL to its wire object.
func (m *Marshaller) SerializeIcon(dataURL string) *Object {
	obj := NewObject()
	obj.Set("data_url", dataURL)
	return obj
}

// SerializeIndex converts a full-text index row to its wire object.
func (m *Marshaller) SerializeIndex(index *storage.Index) *Object {
	words := make([]any, len(index.Words))
	for i, w := range index.Words {
		words[i] = w
	}

	obj := NewObject()
	obj.Set("words", words)
	return obj
}

// SerializeContent assembles the full content graph of a node, consulting
// the node's flags before fetching each sub-entity to avoid needless
// store reads.
func (m *Marshaller) SerializeContent(ctx context.Context, node *storage.Node) (*Content, error) {
	content := &Content{Node: m.SerializeNode(node)}

	if node.Type == storage.NodeTypeArchive {
		archive, err := m.stores.Archives.Get(ctx, node)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if archive != nil {
			content.Archive = m.SerializeArchive(archive)
		}
	}

	if node.HasNotes {
		n, err := m.stores.Notes.Get(ctx, node)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if n != nil {
			content.Notes = m.SerializeNotes(n)
		}
	}

	if node.HasComments {
		text, err := m.stores.Comments.Get(ctx, node)
		if err != nil {
			return nil, err
		}
		if text != "" {
			content.Comments = m.SerializeComments(text)
		}
	}

	if node.Icon != "" && node.StoredIcon {
		dataURL, err := m.stores.Icons.Get(ctx, node)
		if err != nil {
			return nil, err
		}
		if dataURL != "" {
			content.Icon = m.SerializeIcon(dataURL)
		}
	}

	return content, nil
}

// MarshalJSONString serializes an ordered object to a JSON string, the
// uniform payload shape shared by the disk and cloud backends.
func MarshalJSONString(obj *Object) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}

// MarshalJSONArray serializes a list of ordered objects to one JSON
// array string, the payload shape of batch backend calls.
func MarshalJSONArray(objs []*Object) (string, error) {
	data, err := json.Marshal(objs)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}
