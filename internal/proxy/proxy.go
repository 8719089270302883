// Package proxy decorates the entity stores with backend mirroring.
// Every proxy implements the same store interface as the repo it wraps:
// the local mutation runs first, then a serialized copy is forwarded to
// whichever adapter governs the node. Consumers holding the proxy bundle
// see mirrored storage; consumers holding the raw repos bypass it.
package proxy

import (
	"context"
	"log/slog"

	"scrapyard/internal/adapter"
	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// Proxies bundles the mirroring decorators over one set of local repos.
type Proxies struct {
	Nodes    *NodeProxy
	Archives *ArchiveProxy
	Notes    *NotesProxy
	Comments *CommentsProxy
	Icons    *IconProxy
}

// New builds the decorator set. The marshalling plumbing resolves parent
// uuids through the raw local stores, never through the proxies.
func New(local storage.Stores, resolver *adapter.Resolver) *Proxies {
	m := &mirror{
		resolver: resolver,
		out:      marshal.NewScrapbookMarshaller(local, nil),
		in:       marshal.NewScrapbookUnmarshaller(local, nil),
	}
	return &Proxies{
		Nodes:    &NodeProxy{repo: local.Nodes, mirror: m},
		Archives: &ArchiveProxy{repo: local.Archives, mirror: m},
		Notes:    &NotesProxy{repo: local.Notes, mirror: m},
		Comments: &CommentsProxy{repo: local.Comments, mirror: m},
		Icons:    &IconProxy{repo: local.Icons, mirror: m},
	}
}

// Stores returns the decorators bundled behind the store interfaces.
func (p *Proxies) Stores() storage.Stores {
	return storage.Stores{
		Nodes:    p.Nodes,
		Archives: p.Archives,
		Notes:    p.Notes,
		Comments: p.Comments,
		Icons:    p.Icons,
	}
}

// mirror carries the adapter resolution and wire conversion shared by the
// entity proxies.
type mirror struct {
	resolver *adapter.Resolver
	out      *marshal.ScrapbookMarshaller
	in       *marshal.ScrapbookUnmarshaller
}

// forward runs an adapter call according to its concurrency contract: a
// concurrent backend is fired without awaiting completion, a serialized
// backend is awaited and its error returned.
func (m *mirror) forward(ctx context.Context, a adapter.StorageAdapter, op func(context.Context) error) error {
	if a.Concurrent() {
		detached := context.WithoutCancel(ctx)
		go func() {
			if err := op(detached); err != nil {
				slog.Error("backend mirror call failed", "error", err)
			}
		}()
		return nil
	}
	return op(ctx)
}

// nodePayload serializes a node into its portable wire form.
func (m *mirror) nodePayload(ctx context.Context, node *storage.Node) (string, error) {
	obj, err := m.out.ConvertNode(ctx, m.out.SerializeNode(node))
	if err != nil {
		return "", err
	}
	return marshal.MarshalJSONString(obj)
}

// archivePayload splits a serialized archive into its metadata document
// and wire-encoded content bytes.
func (m *mirror) archivePayload(archive *storage.Archive) (string, []byte, string, error) {
	obj := m.out.ConvertArchive(m.out.SerializeArchive(archive))

	content := obj.GetString("content")
	obj.Delete("content")
	contains := obj.GetString("type")

	meta, err := marshal.MarshalJSONString(obj)
	if err != nil {
		return "", nil, "", err
	}
	return meta, []byte(content), contains, nil
}

func (m *mirror) indexPayload(words []string) (string, error) {
	obj := m.out.ConvertIndex(m.out.SerializeIndex(&storage.Index{Words: words}))
	return marshal.MarshalJSONString(obj)
}

func uuids(nodes []*storage.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.UUID)
	}
	return out
}
