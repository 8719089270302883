package sync

import (
	"context"
	"strings"
	"time"

	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// Marshaller pushes local nodes to the sync backend. One marshaller
// serves one sync session; the id-to-uuid map it builds while walking
// nodes must not outlive the session.
type Marshaller struct {
	*marshal.ScrapbookMarshaller
	nodes    storage.NodeStore
	client   *Client
	initial  bool
	idToUUID map[int64]string
}

// MarshallerOption configures a sync session.
type MarshallerOption func(*Marshaller)

// WithInitialSync marks the session as the first synchronization after a
// merge, enabling the date-stomping rule.
func WithInitialSync() MarshallerOption {
	return func(m *Marshaller) { m.initial = true }
}

func NewMarshaller(stores storage.Stores, client *Client, opts ...MarshallerOption) *Marshaller {
	m := &Marshaller{
		ScrapbookMarshaller: marshal.NewScrapbookMarshaller(stores, nil),
		nodes:               stores.Nodes,
		client:              client,
		idToUUID:            make(map[int64]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSyncNode builds the lightweight comparison record exchanged
// during sync negotiation: uuid, parent uuid and modification stamps.
// Nodes must be visited parents-first so the parent uuid resolves from
// ids seen earlier in the session.
func (m *Marshaller) CreateSyncNode(node *storage.Node) *marshal.Object {
	obj := marshal.NewObject()
	obj.Set("uuid", node.UUID)

	dateModified := node.DateModified.UnixMilli()
	if node.DateModified.IsZero() || node.UUID == storage.DefaultShelfUUID {
		dateModified = 0
	}
	obj.Set("date_modified", dateModified)

	if node.ContentModified == nil && node.HasSomeContent() {
		obj.Set("content_modified", dateModified)
	} else if node.ContentModified != nil {
		obj.Set("content_modified", node.ContentModified.UnixMilli())
	}

	m.idToUUID[node.ID] = node.UUID
	if node.ParentID != nil {
		if parentUUID, ok := m.idToUUID[*node.ParentID]; ok {
			obj.Set("parent", parentUUID)
		}
	}

	if obj.GetString("uuid") == storage.DefaultShelfUUID {
		obj.Set("uuid", marshal.FormatDefaultShelfUUID)
	}
	if obj.GetString("parent") == storage.DefaultShelfUUID {
		obj.Set("parent", marshal.FormatDefaultShelfUUID)
	}

	return obj
}

// PushNode uploads a node, and its content when the negotiation asked
// for it, to the sync backend.
func (m *Marshaller) PushNode(ctx context.Context, syncNode *marshal.Object, pushContent bool) error {
	uuid := syncNode.GetString("uuid")
	if uuid == marshal.FormatDefaultShelfUUID {
		uuid = storage.DefaultShelfUUID
	}

	node, err := m.nodes.GetByUUID(ctx, uuid)
	if err != nil {
		return err
	}
	if err := m.resetExportedNodeDates(ctx, syncNode, node); err != nil {
		return err
	}

	var content *marshal.Content
	var exported *marshal.Object
	if pushContent {
		content, err = m.SerializeContent(ctx, node)
		if err != nil {
			return err
		}
		exported = content.Node
	} else {
		exported = m.SerializeNode(node)
	}

	exported.Delete("id")
	exported.Delete("parent_id")
	if parent := syncNode.GetString("parent"); parent != "" {
		exported.Set("parent", parent)
	}
	if exported.GetString("uuid") == storage.DefaultShelfUUID {
		exported.Set("uuid", marshal.FormatDefaultShelfUUID)
		exported.Set("date_added", int64(0))
		exported.Set("date_modified", int64(0))
	}

	nodeJSON, err := marshal.MarshalJSONString(exported)
	if err != nil {
		return err
	}
	payload := map[string]any{"node": nodeJSON}

	if content != nil && !content.IsEmpty() {
		blob, err := serializeExportedContent(content)
		if err != nil {
			return err
		}
		payload["content"] = blob
	}

	_, err = m.client.post(ctx, "/sync/push_node", payload)
	return err
}

// resetExportedNodeDates applies the initial-sync date stomp: nodes
// merged at the first synchronization get a fresh date_modified so every
// other client re-pulls them exactly once after the merge.
func (m *Marshaller) resetExportedNodeDates(ctx context.Context, syncNode *marshal.Object, node *storage.Node) error {
	if !m.initial {
		return nil
	}

	node.DateModified = time.Now()
	if node.ContentModified != nil || syncNode.Has("content_modified") {
		modified := node.DateModified
		node.ContentModified = &modified
	}
	return m.nodes.Update(ctx, node, false)
}

// serializeExportedContent renders the content blob: three newline-joined
// JSON fragments holding the format header, the icon and the rest of the
// content. Fragments keep their position even when empty.
func serializeExportedContent(content *marshal.Content) (string, error) {
	header := marshal.NewObject()
	header.Set("sync", Format)
	header.Set("version", int64(Version))

	lines := make([]string, 0, 3)
	headerJSON, err := marshal.MarshalJSONString(header)
	if err != nil {
		return "", err
	}
	lines = append(lines, headerJSON)

	if content.Icon != nil {
		fragment := marshal.NewObject()
		fragment.Set("icon", content.Icon)
		iconJSON, err := marshal.MarshalJSONString(fragment)
		if err != nil {
			return "", err
		}
		lines = append(lines, iconJSON)
	} else {
		lines = append(lines, "{}")
	}

	rest := marshal.NewObject()
	if content.Archive != nil {
		rest.Set("archive", content.Archive)
	}
	if content.Notes != nil {
		rest.Set("notes", content.Notes)
	}
	if content.Comments != nil {
		rest.Set("comments", content.Comments)
	}
	if rest.Len() > 0 {
		restJSON, err := marshal.MarshalJSONString(rest)
		if err != nil {
			return "", err
		}
		lines = append(lines, restJSON)
	}

	return strings.Join(lines, "\n"), nil
}
