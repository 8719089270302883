package storage

import "context"

// NodeStore defines the operations of the node entity store. Both the
// SQLite-backed NodeRepo and its backend-mirroring proxy implement it.
type NodeStore interface {
	Add(ctx context.Context, node *Node) error
	Import(ctx context.Context, node *Node) error
	Get(ctx context.Context, id int64) (*Node, error)
	GetByUUID(ctx context.Context, uuid string) (*Node, error)
	GetMany(ctx context.Context, ids []int64) ([]*Node, error)
	GetAll(ctx context.Context) ([]*Node, error)
	GetChildren(ctx context.Context, id int64) ([]*Node, error)
	GetExternal(ctx context.Context, kind string) ([]*Node, error)
	Exists(ctx context.Context, uuid string) (bool, error)
	IDFromUUID(ctx context.Context, uuid string) (int64, error)
	UUIDFromID(ctx context.Context, id int64) (string, error)
	Update(ctx context.Context, node *Node, resetDateModified bool) error
	ContentUpdate(ctx context.Context, node *Node) error
	BatchUpdate(ctx context.Context, updater func(*Node), ids []int64) error
	Delete(ctx context.Context, nodes []*Node) error
	DeleteShallow(ctx context.Context, nodes []*Node) error
	DeleteDependencies(ctx context.Context, nodes []*Node) error
	DeleteMissingExternal(ctx context.Context, externalIDs []string, kind string) error
}

// ArchiveStore defines the operations of the archive entity store.
type ArchiveStore interface {
	Add(ctx context.Context, node *Node, archive *Archive) error
	AddIndexed(ctx context.Context, node *Node, archive *Archive, words []string) error
	UpdateHTML(ctx context.Context, node *Node, html string) error
	Get(ctx context.Context, node *Node) (*Archive, error)
	StoreIndex(ctx context.Context, node *Node, words []string) error
	FetchIndex(ctx context.Context, node *Node) (*Index, error)
	Delete(ctx context.Context, node *Node) error
	ForImport() ArchiveStore
}

// NotesStore defines the operations of the notes entity store.
type NotesStore interface {
	Add(ctx context.Context, node *Node, notes *Notes, propertyChange bool) error
	Get(ctx context.Context, node *Node) (*Notes, error)
	StoreIndex(ctx context.Context, node *Node, words []string) error
	FetchIndex(ctx context.Context, node *Node) (*Index, error)
	Delete(ctx context.Context, node *Node) error
	ForImport() NotesStore
}

// CommentsStore defines the operations of the comments entity store.
type CommentsStore interface {
	Add(ctx context.Context, node *Node, text string) error
	Get(ctx context.Context, node *Node) (string, error)
	StoreIndex(ctx context.Context, node *Node, words []string) error
	FetchIndex(ctx context.Context, node *Node) (*Index, error)
	Delete(ctx context.Context, node *Node) error
	ForImport() CommentsStore
}

// IconStore defines the operations of the icon entity store.
type IconStore interface {
	Add(ctx context.Context, node *Node, dataURL string) error
	Get(ctx context.Context, node *Node) (string, error)
	Delete(ctx context.Context, node *Node) error
	ForImport() IconStore
}

// Stores bundles the entity stores a content consumer needs. Marshallers
// receive either the raw repos (IDB-only import) or the mirroring proxies.
type Stores struct {
	Nodes    NodeStore
	Archives ArchiveStore
	Notes    NotesStore
	Comments CommentsStore
	Icons    IconStore
}

// ForImport returns the bundle with every content store replaced by its
// importing view, so that restoring foreign records never clobbers the
// dates and flags the records already carry.
func (s Stores) ForImport() Stores {
	s.Archives = s.Archives.ForImport()
	s.Notes = s.Notes.ForImport()
	s.Comments = s.Comments.ForImport()
	s.Icons = s.Icons.ForImport()
	return s
}
