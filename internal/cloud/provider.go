package cloud

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Asset names under a node's object directory at the provider.
const (
	AssetIcon           = "icon.json"
	AssetArchive        = "archive.json"
	AssetArchiveContent = "archive_content.blob"
	AssetArchiveIndex   = "archive_index.json"
	AssetNotes          = "notes.json"
	AssetNotesIndex     = "notes_index.json"
	AssetNotesView      = "notes.html"
	AssetComments       = "comments.json"
	AssetCommentsIndex  = "comments_index.json"
)

// Provider is the remote object store holding the cloud database and the
// per-node asset blobs. Download and fetch calls return nil data without
// error when the object does not exist.
type Provider interface {
	DownloadDB(ctx context.Context) ([]byte, error)
	UploadDB(ctx context.Context, data []byte) error
	// LastModified returns the database object's modification time, or
	// the zero time when it does not exist.
	LastModified(ctx context.Context) (time.Time, error)

	FetchAsset(ctx context.Context, uuid, name string) ([]byte, error)
	StoreAsset(ctx context.Context, uuid, name string, data []byte) error
	DeleteAssets(ctx context.Context, uuid string) error
}

// FileProvider serves the cloud layout from a local directory, such as a
// folder synchronized by an external file-sharing client. The database
// object lives at the root and assets under objects/<uuid>/.
type FileProvider struct {
	root string
}

func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

func (p *FileProvider) dbPath() string {
	return filepath.Join(p.root, DBObjectName)
}

func (p *FileProvider) assetPath(uuid, name string) string {
	return filepath.Join(p.root, "objects", uuid, name)
}

func (p *FileProvider) DownloadDB(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.dbPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cloud database: %w", err)
	}
	return data, nil
}

func (p *FileProvider) UploadDB(_ context.Context, data []byte) error {
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("failed to create cloud directory: %w", err)
	}
	if err := os.WriteFile(p.dbPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cloud database: %w", err)
	}
	return nil
}

func (p *FileProvider) LastModified(_ context.Context) (time.Time, error) {
	info, err := os.Stat(p.dbPath())
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (p *FileProvider) FetchAsset(_ context.Context, uuid, name string) ([]byte, error) {
	data, err := os.ReadFile(p.assetPath(uuid, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cloud asset %s: %w", name, err)
	}
	return data, nil
}

func (p *FileProvider) StoreAsset(_ context.Context, uuid, name string, data []byte) error {
	dir := filepath.Join(p.root, "objects", uuid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cloud object directory: %w", err)
	}
	if err := os.WriteFile(p.assetPath(uuid, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cloud asset %s: %w", name, err)
	}
	return nil
}

func (p *FileProvider) DeleteAssets(_ context.Context, uuid string) error {
	if err := os.RemoveAll(filepath.Join(p.root, "objects", uuid)); err != nil {
		return fmt.Errorf("failed to delete cloud assets: %w", err)
	}
	return nil
}

// MemoryProvider keeps the cloud layout in memory. Used in tests.
type MemoryProvider struct {
	mu       sync.Mutex
	db       []byte
	modified time.Time
	assets   map[string]map[string][]byte
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{assets: make(map[string]map[string][]byte)}
}

func (p *MemoryProvider) DownloadDB(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db, nil
}

func (p *MemoryProvider) UploadDB(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.db = data
	p.modified = time.Now()
	return nil
}

func (p *MemoryProvider) LastModified(_ context.Context) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modified, nil
}

func (p *MemoryProvider) FetchAsset(_ context.Context, uuid, name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assets[uuid][name], nil
}

func (p *MemoryProvider) StoreAsset(_ context.Context, uuid, name string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.assets[uuid] == nil {
		p.assets[uuid] = make(map[string][]byte)
	}
	p.assets[uuid][name] = data
	return nil
}

func (p *MemoryProvider) DeleteAssets(_ context.Context, uuid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assets, uuid)
	return nil
}
