package marshal

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"scrapyard/internal/storage"
)

// IconFetcher retrieves favicons over the network for nodes that reference
// an icon by URI without a stored copy.
type IconFetcher interface {
	// FetchIcon downloads an icon by its URL and returns it as a data URL.
	FetchIcon(ctx context.Context, iconURL string) (string, error)
	// FetchPageFavicon discovers and downloads the favicon of a page.
	FetchPageFavicon(ctx context.Context, pageURL string) (string, error)
}

// Unmarshaller restores content graphs into the entity stores.
//
// Importing into the very backend a bundle was retrieved from must bypass
// proxy mirroring; callers select that by passing the raw repos instead of
// the proxies. Each import session needs a fresh Unmarshaller: session
// state is never shared.
type Unmarshaller struct {
	stores      storage.Stores
	sync        bool
	forceIcons  bool
	iconFetcher IconFetcher
}

// Option configures an Unmarshaller.
type Option func(*Unmarshaller)

// WithSyncMode addresses content by uuid resolution instead of raw ids and
// preserves foreign modification dates.
func WithSyncMode() Option {
	return func(u *Unmarshaller) { u.sync = true }
}

// WithForceLoadIcons fetches an icon by URI when the node specifies one
// but storage lacks a cached copy.
func WithForceLoadIcons(f IconFetcher) Option {
	return func(u *Unmarshaller) {
		u.forceIcons = true
		u.iconFetcher = f
	}
}

// NewUnmarshaller creates an unmarshaller writing through the given stores.
// Content writes go through the stores' importing views: restored records
// carry their own dates and flags, which the regular add paths would stamp
// over.
func NewUnmarshaller(stores storage.Stores, opts ...Option) *Unmarshaller {
	u := &Unmarshaller{stores: stores.ForImport()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// SyncMode reports whether the unmarshaller resolves content by uuid.
func (u *Unmarshaller) SyncMode() bool {
	return u.sync
}

// Stores exposes the entity stores the unmarshaller writes through.
func (u *Unmarshaller) Stores() storage.Stores {
	return u.stores
}

// SanitizeNode strips, in place, every attribute outside the canonical
// whitelist, so that records produced by newer format versions do not
// pollute the store.
func SanitizeNode(obj *Object) *Object {
	allowed := make(map[string]bool, len(storage.NodeProperties))
	for _, key := range storage.NodeProperties {
		allowed[key] = true
	}
	for _, key := range obj.Keys() {
		if !allowed[key] {
			obj.Delete(key)
		}
	}
	return obj
}

// SanitizedNode returns a sanitized copy, leaving the original intact.
func SanitizedNode(obj *Object) *Object {
	return SanitizeNode(obj.Clone())
}

// DeserializeNode converts a wire object back to a node, dropping any
// attribute outside the canonical whitelist. The local id is dropped: ids
// are never trusted from the wire.
func (u *Unmarshaller) DeserializeNode(obj *Object) *storage.Node {
	node := &storage.Node{}

	if t, ok := obj.GetInt64("type"); ok {
		node.Type = storage.NodeType(t)
	}
	node.UUID = obj.GetString("uuid")
	if parentID, ok := obj.GetInt64("parent_id"); ok {
		node.ParentID = &parentID
	}
	node.Name = obj.GetString("name")
	node.URI = obj.GetString("uri")
	if pos, ok := obj.GetInt64("pos"); ok {
		node.Pos = pos
	}
	node.Tags = obj.GetString("tags")
	node.Details = obj.GetString("details")
	node.Icon = obj.GetString("icon")
	if size, ok := obj.GetInt64("size"); ok {
		node.Size = size
	}
	node.ContentType = obj.GetString("content_type")
	node.Contains = obj.GetString("contains")
	if state, ok := obj.GetInt64("todo_state"); ok {
		todo := storage.TodoState(state)
		node.TodoState = &todo
	}
	node.TodoDate = obj.GetString("todo_date")
	node.External = obj.GetString("external")
	node.ExternalID = obj.GetString("external_id")
	node.StoredIcon = obj.GetBool("stored_icon")
	node.HasNotes = obj.GetBool("has_notes")
	node.HasComments = obj.GetBool("has_comments")
	if ms, ok := obj.GetInt64("date_added"); ok && ms != 0 {
		node.DateAdded = time.UnixMilli(ms)
	}
	if ms, ok := obj.GetInt64("date_modified"); ok && ms != 0 {
		node.DateModified = time.UnixMilli(ms)
	}
	if ms, ok := obj.GetInt64("content_modified"); ok && ms != 0 {
		t := time.UnixMilli(ms)
		node.ContentModified = &t
	}

	return node
}

// DeserializeArchive converts a wire archive object back to an entity,
// decoding base64 content when the binary marker is present.
func (u *Unmarshaller) DeserializeArchive(obj *Object) (*storage.Archive, error) {
	archive := &storage.Archive{Type: obj.GetString("type")}

	if _, ok := obj.GetInt64("byte_length"); ok {
		decoded, err := base64.StdEncoding.DecodeString(obj.GetString("object"))
		if err != nil {
			return nil, fmt.Errorf("failed to decode archive content: %w", err)
		}
		archive.Object = decoded
		byteLength := int64(len(decoded))
		archive.ByteLength = &byteLength
	} else {
		archive.Object = []byte(obj.GetString("object"))
	}

	return archive, nil
}

// DeserializeNotes converts a wire notes object back to an entity.
func (u *Unmarshaller) DeserializeNotes(obj *Object) *storage.Notes {
	n := &storage.Notes{
		Content: obj.GetString("content"),
		Format:  obj.GetString("format"),
		HTML:    obj.GetString("html"),
		Align:   obj.GetString("align"),
	}
	if width, ok := obj.GetInt64("width"); ok {
		n.Width = width
	}
	return n
}

// importNode inserts or updates the node row, mirroring user-import
// semantics: fresh dates on a regular import, untouched dates in sync
// mode, a fresh uuid on collision outside sync mode.
func (u *Unmarshaller) importNode(ctx context.Context, node *storage.Node) (*storage.Node, error) {
	if node.UUID == storage.DefaultShelfUUID {
		return u.stores.Nodes.GetByUUID(ctx, storage.DefaultShelfUUID)
	}

	exists, err := u.stores.Nodes.Exists(ctx, node.UUID)
	if err != nil {
		return nil, err
	}

	forceNewUUID := node.UUID != "" && !u.sync && (exists || node.UUID == storage.CloudShelfUUID)

	now := time.Now()
	if node.DateAdded.IsZero() {
		node.DateAdded = now
	}

	// Sync tracks changes through date_modified, so it must be refreshed
	// on a regular import but left untouched when syncing.
	if !u.sync {
		node.DateModified = now
		if node.ContentModified != nil || node.HasSomeContent() {
			node.ContentModified = &now
		}
	}

	if node.UUID == "" || forceNewUUID {
		node.UUID = storage.NewUUID()
	}

	if u.sync && exists {
		existing, err := u.stores.Nodes.GetByUUID(ctx, node.UUID)
		if err != nil {
			return nil, err
		}
		node.ID = existing.ID
		if err := u.stores.Nodes.Update(ctx, node, false); err != nil {
			return nil, err
		}
		return node, nil
	}

	if err := u.stores.Nodes.Import(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// storeIcon persists an icon data URL and stamps its content hash on the
// node row.
func (u *Unmarshaller) storeIcon(ctx context.Context, node *storage.Node, dataURL string) error {
	if err := u.stores.Icons.Add(ctx, node, dataURL); err != nil {
		return err
	}

	node.Icon = storage.ComputeIconHash(dataURL)
	node.StoredIcon = true
	return u.stores.Nodes.Update(ctx, node, false)
}

// StoreContent is the single entry point restoring a deserialized content
// bundle: it imports or updates the node row, conditionally stores the
// favicon, then archive, notes and comments. The node row must exist
// before the content stores run, because they stamp content_modified on
// it.
func (u *Unmarshaller) StoreContent(ctx context.Context, content *Content) (*storage.Node, error) {
	node := u.DeserializeNode(SanitizedNode(content.Node))
	node.ID = 0

	node, err := u.importNode(ctx, node)
	if err != nil {
		return nil, err
	}
	if node.UUID == storage.DefaultShelfUUID {
		return node, nil
	}

	if u.forceIcons && u.iconFetcher != nil && node.URI != "" {
		if dataURL, err := u.iconFetcher.FetchPageFavicon(ctx, node.URI); err != nil {
			slog.Error("failed to fetch favicon", "uri", node.URI, "error", err)
		} else if dataURL != "" {
			if err := u.storeIcon(ctx, node, dataURL); err != nil {
				return nil, err
			}
		}
	}

	if node.Type == storage.NodeTypeArchive && content.Archive != nil {
		archive, err := u.DeserializeArchive(content.Archive)
		if err != nil {
			return nil, err
		}
		if err := u.stores.Archives.Add(ctx, node, archive); err != nil {
			return nil, err
		}
	}

	if content.Notes != nil {
		n := u.DeserializeNotes(content.Notes)
		if err := u.stores.Notes.Add(ctx, node, n, false); err != nil {
			return nil, err
		}
	}

	if content.Comments != nil {
		if err := u.stores.Comments.Add(ctx, node, content.Comments.GetString("text")); err != nil {
			return nil, err
		}
	}

	if content.Icon != nil {
		if err := u.stores.Icons.Add(ctx, node, content.Icon.GetString("data_url")); err != nil {
			return nil, err
		}
	} else if node.Icon != "" && !node.StoredIcon && u.iconFetcher != nil {
		// the icon attribute may hold a plain URL, e.g. records produced
		// by the mobile application
		if dataURL, err := u.iconFetcher.FetchIcon(ctx, node.Icon); err != nil {
			slog.Error("failed to fetch icon", "url", node.Icon, "error", err)
		} else if dataURL != "" {
			if err := u.storeIcon(ctx, node, dataURL); err != nil {
				return nil, err
			}
		}
	}

	return node, nil
}
