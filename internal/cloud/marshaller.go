package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"scrapyard/internal/marshal"
	"scrapyard/internal/notes"
	"scrapyard/internal/storage"
)

// Marshaller writes a node and its content into the cloud database
// object and the per-node asset blobs.
type Marshaller struct {
	*marshal.ScrapbookMarshaller
	provider Provider
}

func NewMarshaller(stores storage.Stores, provider Provider) *Marshaller {
	return &Marshaller{
		ScrapbookMarshaller: marshal.NewScrapbookMarshaller(stores, nil),
		provider:            provider,
	}
}

// Marshal adds the node to the database object and uploads its content
// assets. The caller owns the download-modify-upload cycle around db.
func (m *Marshaller) Marshal(ctx context.Context, db *DB, node *storage.Node) error {
	content, err := m.SerializeContent(ctx, node)
	if err != nil {
		return err
	}

	nodeObj, err := m.ConvertNode(ctx, content.Node)
	if err != nil {
		return err
	}
	db.AddNode(nodeObj)

	if content.Archive != nil {
		if err := m.storeArchive(ctx, node.UUID, content.Archive); err != nil {
			return err
		}
	}
	if content.Notes != nil {
		if err := m.storeNotes(ctx, node.UUID, content.Notes); err != nil {
			return err
		}
	}
	if content.Comments != nil {
		payload, err := marshal.MarshalJSONString(m.ConvertComments(content.Comments))
		if err != nil {
			return err
		}
		if err := m.provider.StoreAsset(ctx, node.UUID, AssetComments, []byte(payload)); err != nil {
			return err
		}
	}
	if content.Icon != nil {
		payload, err := marshal.MarshalJSONString(m.ConvertIcon(content.Icon))
		if err != nil {
			return err
		}
		if err := m.provider.StoreAsset(ctx, node.UUID, AssetIcon, []byte(payload)); err != nil {
			return err
		}
	}

	return nil
}

func (m *Marshaller) storeArchive(ctx context.Context, uuid string, archive *marshal.Object) error {
	converted := m.ConvertArchive(archive)
	content := converted.GetString("content")
	converted.Delete("content")

	meta, err := marshal.MarshalJSONString(converted)
	if err != nil {
		return err
	}
	if err := m.provider.StoreAsset(ctx, uuid, AssetArchive, []byte(meta)); err != nil {
		return err
	}
	return m.provider.StoreAsset(ctx, uuid, AssetArchiveContent, []byte(content))
}

// storeNotes uploads the notes object together with a pre-rendered HTML
// view, so a static cloud viewer can display notes without a renderer.
func (m *Marshaller) storeNotes(ctx context.Context, uuid string, notesObj *marshal.Object) error {
	payload, err := marshal.MarshalJSONString(notesObj)
	if err != nil {
		return err
	}
	if err := m.provider.StoreAsset(ctx, uuid, AssetNotes, []byte(payload)); err != nil {
		return err
	}

	view, err := notes.Render(notesObj.GetString("format"), notesObj.GetString("content"), notesObj.GetString("html"))
	if err != nil {
		slog.Error("failed to render notes view", "uuid", uuid, "error", err)
		return nil
	}
	return m.provider.StoreAsset(ctx, uuid, AssetNotesView, []byte(view))
}

// Unmarshaller restores a node and its content from the cloud database
// object and asset blobs into the local store. It resolves parents by
// uuid and writes through whatever stores it is given; reconciliation
// passes the raw repos so restored data is not mirrored back to the
// backend it came from.
type Unmarshaller struct {
	*marshal.ScrapbookUnmarshaller
	provider Provider
}

func NewUnmarshaller(stores storage.Stores, provider Provider) *Unmarshaller {
	return &Unmarshaller{
		ScrapbookUnmarshaller: marshal.NewScrapbookUnmarshaller(stores, nil, marshal.WithSyncMode()),
		provider:              provider,
	}
}

// Unmarshal stores one node from the downloaded database object,
// fetching its content assets from the provider.
func (u *Unmarshaller) Unmarshal(ctx context.Context, nodeObj *marshal.Object) error {
	node := u.UnconvertNode(nodeObj.Clone())
	node.Set("external", storage.CloudExternalType)
	if !node.Has("parent") {
		node.Set("parent", storage.CloudShelfUUID)
	}
	if err := u.FindParentInStore(ctx, node); err != nil {
		return err
	}

	content := &marshal.Content{Node: node}
	uuid := node.GetString("uuid")

	if t, ok := node.GetInt64("type"); ok && storage.NodeType(t) == storage.NodeTypeArchive {
		archive, err := u.fetchArchive(ctx, uuid)
		if err != nil {
			return err
		}
		content.Archive = archive
	}
	if node.GetBool("has_notes") {
		obj, err := u.fetchAsset(ctx, uuid, AssetNotes)
		if err != nil {
			return err
		}
		content.Notes = obj
	}
	if node.GetBool("has_comments") {
		obj, err := u.fetchAsset(ctx, uuid, AssetComments)
		if err != nil {
			return err
		}
		if obj != nil {
			content.Comments = u.UnconvertComments(obj)
		}
	}
	if node.GetBool("stored_icon") {
		obj, err := u.fetchAsset(ctx, uuid, AssetIcon)
		if err != nil {
			return err
		}
		if obj != nil {
			content.Icon = u.UnconvertIcon(obj)
			node.Set("icon", storage.ComputeIconHash(content.Icon.GetString("data_url")))
		}
	}

	if _, err := u.StoreContent(ctx, content); err != nil {
		return fmt.Errorf("failed to store cloud node %s: %w", uuid, err)
	}
	return nil
}

func (u *Unmarshaller) fetchAsset(ctx context.Context, uuid, name string) (*marshal.Object, error) {
	data, err := u.provider.FetchAsset(ctx, uuid, name)
	if err != nil || data == nil {
		return nil, err
	}
	obj := marshal.NewObject()
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse cloud asset %s: %w", name, err)
	}
	return obj, nil
}

func (u *Unmarshaller) fetchArchive(ctx context.Context, uuid string) (*marshal.Object, error) {
	obj, err := u.fetchAsset(ctx, uuid, AssetArchive)
	if err != nil || obj == nil {
		return nil, err
	}

	content, err := u.provider.FetchAsset(ctx, uuid, AssetArchiveContent)
	if err != nil {
		return nil, err
	}
	if content != nil {
		obj.Set("content", string(content))
	}
	return u.UnconvertArchive(obj), nil
}
