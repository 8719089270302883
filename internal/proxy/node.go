package proxy

import (
	"context"
	"fmt"

	"scrapyard/internal/adapter"
	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// NodeProxy mirrors node-row mutations to the backend governing each
// node. Reads pass straight through to the local store.
type NodeProxy struct {
	repo   storage.NodeStore
	mirror *mirror
}

var _ storage.NodeStore = (*NodeProxy)(nil)

func (p *NodeProxy) persist(ctx context.Context, node *storage.Node) error {
	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	payload, err := p.mirror.nodePayload(ctx, node)
	if err != nil {
		return err
	}
	params := &adapter.NodeParams{UUID: node.UUID, Node: payload}

	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.PersistNode(ctx, params)
	})
}

func (p *NodeProxy) Add(ctx context.Context, node *storage.Node) error {
	if err := p.repo.Add(ctx, node); err != nil {
		return err
	}
	return p.persist(ctx, node)
}

func (p *NodeProxy) Import(ctx context.Context, node *storage.Node) error {
	if err := p.repo.Import(ctx, node); err != nil {
		return err
	}
	return p.persist(ctx, node)
}

func (p *NodeProxy) Get(ctx context.Context, id int64) (*storage.Node, error) {
	return p.repo.Get(ctx, id)
}

func (p *NodeProxy) GetByUUID(ctx context.Context, uuid string) (*storage.Node, error) {
	return p.repo.GetByUUID(ctx, uuid)
}

func (p *NodeProxy) GetMany(ctx context.Context, ids []int64) ([]*storage.Node, error) {
	return p.repo.GetMany(ctx, ids)
}

func (p *NodeProxy) GetAll(ctx context.Context) ([]*storage.Node, error) {
	return p.repo.GetAll(ctx)
}

func (p *NodeProxy) GetChildren(ctx context.Context, id int64) ([]*storage.Node, error) {
	return p.repo.GetChildren(ctx, id)
}

func (p *NodeProxy) GetExternal(ctx context.Context, kind string) ([]*storage.Node, error) {
	return p.repo.GetExternal(ctx, kind)
}

func (p *NodeProxy) Exists(ctx context.Context, uuid string) (bool, error) {
	return p.repo.Exists(ctx, uuid)
}

func (p *NodeProxy) IDFromUUID(ctx context.Context, uuid string) (int64, error) {
	return p.repo.IDFromUUID(ctx, uuid)
}

func (p *NodeProxy) UUIDFromID(ctx context.Context, id int64) (string, error) {
	return p.repo.UUIDFromID(ctx, id)
}

func (p *NodeProxy) update(ctx context.Context, node *storage.Node) error {
	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	payload, err := p.mirror.nodePayload(ctx, node)
	if err != nil {
		return err
	}
	params := &adapter.NodeParams{UUID: node.UUID, Node: payload}

	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.UpdateNode(ctx, params)
	})
}

func (p *NodeProxy) Update(ctx context.Context, node *storage.Node, resetDateModified bool) error {
	if err := p.repo.Update(ctx, node, resetDateModified); err != nil {
		return err
	}
	if node.ID == 0 {
		return nil
	}
	return p.update(ctx, node)
}

func (p *NodeProxy) ContentUpdate(ctx context.Context, node *storage.Node) error {
	if err := p.repo.ContentUpdate(ctx, node); err != nil {
		return err
	}
	return p.update(ctx, node)
}

// BatchUpdate applies the updater locally, then mirrors the whole batch
// in one adapter call. Nodes resolving to different backends fail the
// mirror step before any backend mutation.
func (p *NodeProxy) BatchUpdate(ctx context.Context, updater func(*storage.Node), ids []int64) error {
	if err := p.repo.BatchUpdate(ctx, updater, ids); err != nil {
		return err
	}

	var nodes []*storage.Node
	var err error
	if ids == nil {
		nodes, err = p.repo.GetAll(ctx)
	} else {
		nodes, err = p.repo.GetMany(ctx, ids)
	}
	if err != nil {
		return err
	}

	a, err := p.mirror.resolver.ForNodes(nodes)
	if err != nil {
		return fmt.Errorf("failed to mirror batch update: %w", err)
	}
	if a == nil {
		return nil
	}

	payloads := make([]*marshal.Object, 0, len(nodes))
	for _, node := range nodes {
		obj, err := p.mirror.out.ConvertNode(ctx, p.mirror.out.SerializeNode(node))
		if err != nil {
			return err
		}
		payloads = append(payloads, obj)
	}
	batch, err := marshal.MarshalJSONArray(payloads)
	if err != nil {
		return err
	}
	params := &adapter.BatchParams{Nodes: batch}

	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.UpdateNodes(ctx, params)
	})
}

func (p *NodeProxy) deleteMirror(ctx context.Context, nodes []*storage.Node,
	call func(adapter.StorageAdapter, context.Context, *adapter.DeleteParams) error) error {

	a, err := p.mirror.resolver.ForNodes(nodes)
	if err != nil {
		return fmt.Errorf("failed to mirror delete: %w", err)
	}
	if a == nil {
		return nil
	}

	params := &adapter.DeleteParams{UUIDs: uuids(nodes)}
	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return call(a, ctx, params)
	})
}

func (p *NodeProxy) Delete(ctx context.Context, nodes []*storage.Node) error {
	if err := p.repo.Delete(ctx, nodes); err != nil {
		return err
	}
	return p.deleteMirror(ctx, nodes, adapter.StorageAdapter.DeleteNodes)
}

func (p *NodeProxy) DeleteShallow(ctx context.Context, nodes []*storage.Node) error {
	if err := p.repo.DeleteShallow(ctx, nodes); err != nil {
		return err
	}
	return p.deleteMirror(ctx, nodes, adapter.StorageAdapter.DeleteNodesShallow)
}

func (p *NodeProxy) DeleteDependencies(ctx context.Context, nodes []*storage.Node) error {
	if err := p.repo.DeleteDependencies(ctx, nodes); err != nil {
		return err
	}
	return p.deleteMirror(ctx, nodes, adapter.StorageAdapter.DeleteNodeContent)
}

func (p *NodeProxy) DeleteMissingExternal(ctx context.Context, externalIDs []string, kind string) error {
	return p.repo.DeleteMissingExternal(ctx, externalIDs, kind)
}

// Unpersist removes a node's mirrored copy, metadata and content, from
// its backend without touching the local store. Used when content moves
// between backends so it never exists in two authoritative places.
func (p *NodeProxy) Unpersist(ctx context.Context, node *storage.Node) error {
	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	params := &adapter.DeleteParams{UUIDs: []string{node.UUID}}
	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.DeleteNodes(ctx, params)
	})
}
