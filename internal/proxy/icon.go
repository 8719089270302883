package proxy

import (
	"context"

	"scrapyard/internal/adapter"
	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// IconProxy mirrors favicon data URLs.
type IconProxy struct {
	repo   storage.IconStore
	mirror *mirror
}

var _ storage.IconStore = (*IconProxy)(nil)

// ForImport returns a mirroring view over the repo's importing variant.
func (p *IconProxy) ForImport() storage.IconStore {
	return &IconProxy{repo: p.repo.ForImport(), mirror: p.mirror}
}

func (p *IconProxy) Add(ctx context.Context, node *storage.Node, dataURL string) error {
	if err := p.repo.Add(ctx, node, dataURL); err != nil {
		return err
	}

	a := p.mirror.resolver.ForNode(node)
	if a == nil {
		return nil
	}

	obj := p.mirror.out.ConvertIcon(p.mirror.out.SerializeIcon(dataURL))
	payload, err := marshal.MarshalJSONString(obj)
	if err != nil {
		return err
	}
	params := &adapter.IconParams{UUID: node.UUID, Icon: payload}

	return p.mirror.forward(ctx, a, func(ctx context.Context) error {
		return a.PersistIcon(ctx, params)
	})
}

func (p *IconProxy) Get(ctx context.Context, node *storage.Node) (string, error) {
	return p.repo.Get(ctx, node)
}

func (p *IconProxy) Delete(ctx context.Context, node *storage.Node) error {
	return p.repo.Delete(ctx, node)
}
