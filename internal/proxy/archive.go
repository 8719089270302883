package proxy

import (
	"context"
	"errors"

	"scrapyard/internal/adapter"
	"scrapyard/internal/storage"
)

// ArchiveProxy mirrors archive content and its full-text index. Reads
// fall back to the backend copy when the local store has none.
type ArchiveProxy struct {
	repo   storage.ArchiveStore
	mirror *mirror
}

var _ storage.ArchiveStore = (*ArchiveProxy)(nil)

// ForImport returns a mirroring view over the repo's importing variant.
func (p *ArchiveProxy) ForImport() storage.ArchiveStore {
	return &ArchiveProxy{repo: p.repo.ForImport(), mirror: p.mirror}
}

func (p *ArchiveProxy) persist(ctx context.Context, node *storage.Node, archive *storage.Archive) error {
	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	meta, content, contains, err := p.mirror.archivePayload(archive)
	if err != nil {
		return err
	}
	params := &adapter.ArchiveParams{
		UUID:     node.UUID,
		Archive:  meta,
		Content:  content,
		Contains: contains,
	}

	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.PersistArchive(ctx, params)
	})
}

func (p *ArchiveProxy) persistIndex(ctx context.Context, node *storage.Node, words []string) error {
	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	payload, err := p.mirror.indexPayload(words)
	if err != nil {
		return err
	}
	params := &adapter.IndexParams{UUID: node.UUID, Index: payload}

	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.PersistArchiveIndex(ctx, params)
	})
}

// Add stores the archive locally, then mirrors the content and the index
// the local store derived from it.
func (p *ArchiveProxy) Add(ctx context.Context, node *storage.Node, archive *storage.Archive) error {
	if err := p.repo.Add(ctx, node, archive); err != nil {
		return err
	}
	if err := p.persist(ctx, node, archive); err != nil {
		return err
	}

	index, err := p.repo.FetchIndex(ctx, node)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return p.persistIndex(ctx, node, index.Words)
}

func (p *ArchiveProxy) AddIndexed(ctx context.Context, node *storage.Node, archive *storage.Archive, words []string) error {
	if err := p.repo.AddIndexed(ctx, node, archive, words); err != nil {
		return err
	}
	if err := p.persist(ctx, node, archive); err != nil {
		return err
	}
	return p.persistIndex(ctx, node, words)
}

func (p *ArchiveProxy) UpdateHTML(ctx context.Context, node *storage.Node, html string) error {
	if err := p.repo.UpdateHTML(ctx, node, html); err != nil {
		return err
	}

	archive, err := p.repo.Get(ctx, node)
	if err != nil {
		return err
	}
	if err := p.persist(ctx, node, archive); err != nil {
		return err
	}

	index, err := p.repo.FetchIndex(ctx, node)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return p.persistIndex(ctx, node, index.Words)
}

// Get returns the local archive, falling back to the backend copy.
func (p *ArchiveProxy) Get(ctx context.Context, node *storage.Node) (*storage.Archive, error) {
	archive, err := p.repo.Get(ctx, node)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return archive, err
	}

	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil, err
	}

	obj, ferr := a.FetchArchive(ctx, &adapter.FetchParams{UUID: node.UUID})
	if ferr != nil {
		return nil, ferr
	}
	if obj == nil {
		return nil, err
	}
	return p.mirror.in.DeserializeArchive(p.mirror.in.UnconvertArchive(obj))
}

func (p *ArchiveProxy) StoreIndex(ctx context.Context, node *storage.Node, words []string) error {
	if err := p.repo.StoreIndex(ctx, node, words); err != nil {
		return err
	}
	return p.persistIndex(ctx, node, words)
}

func (p *ArchiveProxy) FetchIndex(ctx context.Context, node *storage.Node) (*storage.Index, error) {
	return p.repo.FetchIndex(ctx, node)
}

func (p *ArchiveProxy) Delete(ctx context.Context, node *storage.Node) error {
	return p.repo.Delete(ctx, node)
}
