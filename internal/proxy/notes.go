package proxy

import (
	"context"
	"errors"

	"scrapyard/internal/adapter"
	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// NotesProxy mirrors notes content and its full-text index.
type NotesProxy struct {
	repo   storage.NotesStore
	mirror *mirror
}

var _ storage.NotesStore = (*NotesProxy)(nil)

// ForImport returns a mirroring view over the repo's importing variant.
func (p *NotesProxy) ForImport() storage.NotesStore {
	return &NotesProxy{repo: p.repo.ForImport(), mirror: p.mirror}
}

func (p *NotesProxy) persist(ctx context.Context, node *storage.Node, notes *storage.Notes) error {
	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	payload, err := marshal.MarshalJSONString(p.mirror.out.SerializeNotes(notes))
	if err != nil {
		return err
	}
	params := &adapter.NotesParams{UUID: node.UUID, Notes: payload}

	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.PersistNotes(ctx, params)
	})
}

func (p *NotesProxy) persistIndex(ctx context.Context, node *storage.Node, words []string) error {
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
		return a.PersistNotesIndex(ctx, params)
	})
}

func (p *NotesProxy) Add(ctx context.Context, node *storage.Node, notes *storage.Notes, propertyChange bool) error {
	if err := p.repo.Add(ctx, node, notes, propertyChange); err != nil {
		return err
	}
	if err := p.persist(ctx, node, notes); err != nil {
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

// Get returns the local notes, falling back to the backend copy.
func (p *NotesProxy) Get(ctx context.Context, node *storage.Node) (*storage.Notes, error) {
	notes, err := p.repo.Get(ctx, node)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return notes, err
	}

	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil, err
	}

	obj, ferr := a.FetchNotes(ctx, &adapter.FetchParams{UUID: node.UUID})
	if ferr != nil {
		return nil, ferr
	}
	if obj == nil {
		return nil, err
	}
	return p.mirror.in.DeserializeNotes(obj), nil
}

func (p *NotesProxy) StoreIndex(ctx context.Context, node *storage.Node, words []string) error {
	if err := p.repo.StoreIndex(ctx, node, words); err != nil {
		return err
	}
	return p.persistIndex(ctx, node, words)
}

func (p *NotesProxy) FetchIndex(ctx context.Context, node *storage.Node) (*storage.Index, error) {
	return p.repo.FetchIndex(ctx, node)
}

func (p *NotesProxy) Delete(ctx context.Context, node *storage.Node) error {
	return p.repo.Delete(ctx, node)
}
