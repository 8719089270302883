package adapter

import (
	"context"
	"fmt"
	"sync"

	"scrapyard/internal/cloud"
	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// CloudAdapter mirrors cloud-shelf nodes to a remote provider. The whole
// node graph lives in one remote database object, so every mutation is a
// download-modify-upload cycle and writes are serialized under a mutex.
// Unlike the disk backend, failures propagate to the caller: the proxy
// awaits cloud calls and the UI surfaces the error.
type CloudAdapter struct {
	mu       sync.Mutex
	provider cloud.Provider
}

func NewCloudAdapter(provider cloud.Provider) *CloudAdapter {
	return &CloudAdapter{provider: provider}
}

// Accepts reports whether the node lives on the cloud shelf.
func (c *CloudAdapter) Accepts(node *storage.Node) bool {
	return node.External == storage.CloudExternalType
}

// Concurrent is false: callers must await every cloud mutation, because
// interleaved download-modify-upload cycles would lose writes.
func (c *CloudAdapter) Concurrent() bool { return false }

// withCloudDB runs fn against the downloaded database object and uploads
// the result. At most one cycle is in flight at a time.
func (c *CloudAdapter) withCloudDB(ctx context.Context, fn func(db *cloud.DB) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.provider.DownloadDB(ctx)
	if err != nil {
		return err
	}
	db, err := cloud.Deserialize(data)
	if err != nil {
		return err
	}

	if err := fn(db); err != nil {
		return err
	}

	serialized, err := db.Serialize()
	if err != nil {
		return err
	}
	return c.provider.UploadDB(ctx, serialized)
}

func parseObject(payload string) (*marshal.Object, error) {
	obj := marshal.NewObject()
	if err := obj.UnmarshalJSON([]byte(payload)); err != nil {
		return nil, fmt.Errorf("failed to parse adapter payload: %w", err)
	}
	return obj, nil
}

func (c *CloudAdapter) PersistNode(ctx context.Context, params *NodeParams) error {
	node, err := parseObject(params.Node)
	if err != nil {
		return err
	}
	return c.withCloudDB(ctx, func(db *cloud.DB) error {
		db.AddNode(node)
		return nil
	})
}

func (c *CloudAdapter) UpdateNode(ctx context.Context, params *NodeParams) error {
	fields, err := parseObject(params.Node)
	if err != nil {
		return err
	}
	return c.withCloudDB(ctx, func(db *cloud.DB) error {
		db.UpdateNode(params.UUID, fields, params.RemoveFields)
		return nil
	})
}

func (c *CloudAdapter) UpdateNodes(ctx context.Context, params *BatchParams) error {
	batch := marshal.NewObject()
	if err := batch.UnmarshalJSON([]byte(fmt.Sprintf(`{"nodes":%s}`, params.Nodes))); err != nil {
		return fmt.Errorf("failed to parse adapter payload: %w", err)
	}
	nodes, _ := batch.Get("nodes")
	items, ok := nodes.([]any)
	if !ok {
		return fmt.Errorf("adapter batch payload is not an array")
	}

	return c.withCloudDB(ctx, func(db *cloud.DB) error {
		for _, item := range items {
			fields, ok := item.(*marshal.Object)
			if !ok {
				continue
			}
			db.UpdateNode(fields.GetString("uuid"), fields, nil)
		}
		return nil
	})
}

func (c *CloudAdapter) DeleteNodes(ctx context.Context, params *DeleteParams) error {
	if err := c.DeleteNodesShallow(ctx, params); err != nil {
		return err
	}
	return c.DeleteNodeContent(ctx, params)
}

func (c *CloudAdapter) DeleteNodesShallow(ctx context.Context, params *DeleteParams) error {
	return c.withCloudDB(ctx, func(db *cloud.DB) error {
		db.DeleteNodes(params.UUIDs)
		return nil
	})
}

func (c *CloudAdapter) DeleteNodeContent(ctx context.Context, params *DeleteParams) error {
	for _, uuid := range params.UUIDs {
		if err := c.provider.DeleteAssets(ctx, uuid); err != nil {
			return err
		}
	}
	return nil
}

func (c *CloudAdapter) PersistIcon(ctx context.Context, params *IconParams) error {
	return c.provider.StoreAsset(ctx, params.UUID, cloud.AssetIcon, []byte(params.Icon))
}

func (c *CloudAdapter) PersistArchiveIndex(ctx context.Context, params *IndexParams) error {
	return c.provider.StoreAsset(ctx, params.UUID, cloud.AssetArchiveIndex, []byte(params.Index))
}

func (c *CloudAdapter) PersistArchive(ctx context.Context, params *ArchiveParams) error {
	if err := c.provider.StoreAsset(ctx, params.UUID, cloud.AssetArchive, []byte(params.Archive)); err != nil {
		return err
	}
	return c.provider.StoreAsset(ctx, params.UUID, cloud.AssetArchiveContent, params.Content)
}

func (c *CloudAdapter) FetchArchive(ctx context.Context, params *FetchParams) (*marshal.Object, error) {
	data, err := c.provider.FetchAsset(ctx, params.UUID, cloud.AssetArchive)
	if err != nil || data == nil {
		return nil, err
	}
	obj, err := parseObject(string(data))
	if err != nil {
		return nil, err
	}

	content, err := c.provider.FetchAsset(ctx, params.UUID, cloud.AssetArchiveContent)
	if err != nil {
		return nil, err
	}
	if content != nil {
		obj.Set("content", string(content))
	}
	return obj, nil
}

func (c *CloudAdapter) PersistNotesIndex(ctx context.Context, params *IndexParams) error {
	return c.provider.StoreAsset(ctx, params.UUID, cloud.AssetNotesIndex, []byte(params.Index))
}

func (c *CloudAdapter) PersistNotes(ctx context.Context, params *NotesParams) error {
	return c.provider.StoreAsset(ctx, params.UUID, cloud.AssetNotes, []byte(params.Notes))
}

func (c *CloudAdapter) FetchNotes(ctx context.Context, params *FetchParams) (*marshal.Object, error) {
	return c.fetchAsset(ctx, params.UUID, cloud.AssetNotes)
}

func (c *CloudAdapter) PersistCommentsIndex(ctx context.Context, params *IndexParams) error {
	return c.provider.StoreAsset(ctx, params.UUID, cloud.AssetCommentsIndex, []byte(params.Index))
}

func (c *CloudAdapter) PersistComments(ctx context.Context, params *CommentsParams) error {
	return c.provider.StoreAsset(ctx, params.UUID, cloud.AssetComments, []byte(params.Comments))
}

func (c *CloudAdapter) FetchComments(ctx context.Context, params *FetchParams) (*marshal.Object, error) {
	return c.fetchAsset(ctx, params.UUID, cloud.AssetComments)
}

func (c *CloudAdapter) fetchAsset(ctx context.Context, uuid, name string) (*marshal.Object, error) {
	data, err := c.provider.FetchAsset(ctx, uuid, name)
	if err != nil || data == nil {
		return nil, err
	}
	return parseObject(string(data))
}
