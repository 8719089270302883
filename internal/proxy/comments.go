package proxy

import (
	"context"

	"scrapyard/internal/adapter"
	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// CommentsProxy mirrors comment text and its full-text index.
type CommentsProxy struct {
	repo   storage.CommentsStore
	mirror *mirror
}

var _ storage.CommentsStore = (*CommentsProxy)(nil)

// ForImport returns a mirroring view over the repo's importing variant.
func (p *CommentsProxy) ForImport() storage.CommentsStore {
	return &CommentsProxy{repo: p.repo.ForImport(), mirror: p.mirror}
}

func (p *CommentsProxy) persistIndex(ctx context.Context, node *storage.Node, words []string) error {
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
		return a.PersistCommentsIndex(ctx, params)
	})
}

func (p *CommentsProxy) Add(ctx context.Context, node *storage.Node, text string) error {
	if err := p.repo.Add(ctx, node, text); err != nil {
		return err
	}

	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	obj := p.mirror.out.ConvertComments(p.mirror.out.SerializeComments(text))
	payload, err := marshal.MarshalJSONString(obj)
	if err != nil {
		return err
	}
	params := &adapter.CommentsParams{UUID: node.UUID, Comments: payload}

	if err := p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.PersistComments(ctx, params)
	}); err != nil {
		return err
	}

	return p.persistIndex(ctx, node, storage.IndexWords(text))
}

// Get returns the local comment text, falling back to the backend copy
// when the local store holds none.
func (p *CommentsProxy) Get(ctx context.Context, node *storage.Node) (string, error) {
	text, err := p.repo.Get(ctx, node)
	if err != nil || text != "" {
		return text, err
	}

	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return "", nil
	}

	obj, err := a.FetchComments(ctx, &adapter.FetchParams{UUID: node.UUID})
	if err != nil || obj == nil {
		return "", err
	}
	return p.mirror.in.UnconvertComments(obj).GetString("text"), nil
}

func (p *CommentsProxy) StoreIndex(ctx context.Context, node *storage.Node, words []string) error {
	if err := p.repo.StoreIndex(ctx, node, words); err != nil {
		return err
	}
	return p.persistIndex(ctx, node, words)
}

func (p *CommentsProxy) FetchIndex(ctx context.Context, node *storage.Node) (*storage.Index, error) {
	return p.repo.FetchIndex(ctx, node)
}

func (p *CommentsProxy) Delete(ctx context.Context, node *storage.Node) error {
	return p.repo.Delete(ctx, node)
}
