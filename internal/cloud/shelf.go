package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"scrapyard/internal/marshal"
	"scrapyard/internal/storage"
)

// ErrorAccessingCloud is the user-facing message shown when a
// reconciliation cycle fails.
const ErrorAccessingCloud = "Error accessing cloud."

// DefaultReconcilePeriod is how often the background reconciliation runs.
const DefaultReconcilePeriod = 60 * time.Minute

// Notifier surfaces user-visible messages from background cloud work.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Unpersister removes a node's mirrored backend copy without touching
// the local store.
type Unpersister interface {
	Unpersist(ctx context.Context, node *storage.Node) error
}

// Shelf keeps the local mirror of the cloud shelf in step with the
// provider. Reconciliation compares the remote modification time with
// the shelf node's date_modified, downloads the remote database when it
// is newer, deletes local mirrors gone from the remote and restores
// every remote node not older than its local copy.
type Shelf struct {
	stores   storage.Stores
	provider Provider
	notifier Notifier
	period   time.Duration

	// collapses concurrent manual and timer triggers to one active run
	reconciling atomic.Bool
}

// ShelfOption configures a Shelf.
type ShelfOption func(*Shelf)

// WithNotifier installs a sink for user-visible sync messages.
func WithNotifier(n Notifier) ShelfOption {
	return func(s *Shelf) { s.notifier = n }
}

// WithPeriod overrides the background reconciliation period.
func WithPeriod(period time.Duration) ShelfOption {
	return func(s *Shelf) { s.period = period }
}

// NewShelf creates the cloud-shelf plugin over the raw local stores.
func NewShelf(stores storage.Stores, provider Provider, opts ...ShelfOption) *Shelf {
	s := &Shelf{
		stores:   stores,
		provider: provider,
		period:   DefaultReconcilePeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shelf) notify() {
	if s.notifier != nil {
		s.notifier.Notify(ErrorAccessingCloud)
	}
}

// Enable makes sure the local cloud shelf node exists and returns it.
func (s *Shelf) Enable(ctx context.Context) (*storage.Node, error) {
	shelf, err := s.stores.Nodes.GetByUUID(ctx, storage.CloudShelfUUID)
	if err == nil {
		return shelf, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	shelf = &storage.Node{
		UUID:     storage.CloudShelfUUID,
		Type:     storage.NodeTypeShelf,
		Name:     storage.CloudShelfName,
		Pos:      storage.DefaultPosition,
		External: storage.CloudExternalType,
	}
	if err := s.stores.Nodes.Import(ctx, shelf); err != nil {
		return nil, fmt.Errorf("failed to create cloud shelf: %w", err)
	}
	return shelf, nil
}

// Run reconciles on a timer until the context is cancelled.
func (s *Shelf) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				slog.Error("cloud reconciliation failed", "error", err)
			}
		}
	}
}

// Reconcile runs one synchronization cycle. A cycle already in flight
// makes this call a no-op. Failures surface through the notifier; nodes
// restored before a failure stay restored.
func (s *Shelf) Reconcile(ctx context.Context) error {
	if !s.reconciling.CompareAndSwap(false, true) {
		return nil
	}
	defer s.reconciling.Store(false)

	err := s.reconcile(ctx)
	if err != nil {
		s.notify()
	}
	return err
}

func (s *Shelf) reconcile(ctx context.Context) error {
	shelf, err := s.Enable(ctx)
	if err != nil {
		return err
	}

	remoteModified, err := s.provider.LastModified(ctx)
	if err != nil {
		return err
	}
	if remoteModified.IsZero() || !remoteModified.After(shelf.DateModified) {
		return nil
	}

	data, err := s.provider.DownloadDB(ctx)
	if err != nil {
		return err
	}
	db, err := Deserialize(data)
	if err != nil {
		return err
	}

	if err := s.deleteMissing(ctx, db); err != nil {
		return err
	}
	if err := s.restore(ctx, db); err != nil {
		return err
	}

	shelf.DateModified = remoteModified
	return s.stores.Nodes.Update(ctx, shelf, false)
}

// deleteMissing removes local cloud mirrors whose uuid is gone from the
// remote database.
func (s *Shelf) deleteMissing(ctx context.Context, db *DB) error {
	local, err := s.stores.Nodes.GetExternal(ctx, storage.CloudExternalType)
	if err != nil {
		return err
	}

	remote := make(map[string]bool)
	for _, uuid := range db.UUIDs() {
		remote[uuid] = true
	}

	var doomed []*storage.Node
	for _, node := range local {
		if node.UUID == storage.CloudShelfUUID {
			continue
		}
		if !remote[node.UUID] {
			doomed = append(doomed, node)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	return s.stores.Nodes.Delete(ctx, doomed)
}

// restore writes every remote node whose copy is not older than the
// local one. Each node is stored atomically on its own; a node that
// fails to unmarshal is logged and skipped so the rest of the tree
// still restores.
func (s *Shelf) restore(ctx context.Context, db *DB) error {
	unmarshaller := NewUnmarshaller(s.stores, s.provider)

	for _, remote := range db.Nodes() {
		uuid := remote.GetString("uuid")

		local, err := s.stores.Nodes.GetByUUID(ctx, uuid)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if local != nil {
			remoteMS, _ := remote.GetInt64("date_modified")
			if local.DateModified.UnixMilli() > remoteMS {
				continue
			}
		}

		if err := unmarshaller.Unmarshal(ctx, remote); err != nil {
			slog.Error("failed to restore cloud node", "uuid", uuid, "error", err)
			continue
		}
	}
	return nil
}

// MoveBookmarks moves nodes under a new parent living on a different
// backend: content is copied through the marshaller into the mirrored
// stores, then the source backend copy is unpersisted so the content
// never exists in two authoritative places.
func (s *Shelf) MoveBookmarks(ctx context.Context, mirrored storage.Stores, unpersister Unpersister, dest *storage.Node, nodes []*storage.Node) error {
	out := marshal.NewScrapbookMarshaller(s.stores, nil)
	in := marshal.NewUnmarshaller(mirrored, marshal.WithSyncMode())

	for _, node := range nodes {
		source := *node

		content, err := out.SerializeContent(ctx, node)
		if err != nil {
			return err
		}

		content.Node.Set("parent_id", dest.ID)
		if dest.External == "" {
			content.Node.Delete("external")
			content.Node.Delete("external_id")
		} else {
			content.Node.Set("external", dest.External)
			content.Node.Set("external_id", content.Node.GetString("uuid"))
		}

		if _, err := in.StoreContent(ctx, content); err != nil {
			return err
		}
		if err := unpersister.Unpersist(ctx, &source); err != nil {
			return err
		}
	}
	return nil
}
