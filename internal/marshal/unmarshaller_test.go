package marshal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scrapyard/internal/storage"
)

func TestSyncImportPreservesForeignDates(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)

	modified := time.Now().Add(-48 * time.Hour).Truncate(time.Millisecond)
	wire := NewObject()
	wire.Set("type", int64(storage.NodeTypeBookmark))
	wire.Set("uuid", "F0REIGN00000000000000000000000AA")
	wire.Set("parent_id", storage.DefaultShelfID)
	wire.Set("name", "aged bookmark")
	wire.Set("uri", "http://example.com/aged")
	wire.Set("has_notes", true)
	wire.Set("date_added", modified.UnixMilli())
	wire.Set("date_modified", modified.UnixMilli())

	notes := NewObject()
	notes.Set("content", "old words")
	notes.Set("format", "text")

	u := NewUnmarshaller(stores, WithSyncMode())
	stored, err := u.StoreContent(ctx, &Content{Node: wire, Notes: notes})
	require.NoError(t, err)

	got, err := stores.Nodes.GetByUUID(ctx, stored.UUID)
	require.NoError(t, err)
	require.Equal(t, modified.UnixMilli(), got.DateModified.UnixMilli(),
		"storing foreign content must not refresh date_modified")
	require.Nil(t, got.ContentModified)

	n, err := stores.Notes.Get(ctx, got)
	require.NoError(t, err)
	require.Equal(t, "old words", n.Content)
}

func TestStoreContentForcedIconsWithoutFetcher(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)

	wire := NewObject()
	wire.Set("type", int64(storage.NodeTypeBookmark))
	wire.Set("uuid", "N0FETCHER0000000000000000000000A")
	wire.Set("parent_id", storage.DefaultShelfID)
	wire.Set("name", "no fetcher")
	wire.Set("uri", "http://example.com/")

	u := NewUnmarshaller(stores, WithForceLoadIcons(nil))
	node, err := u.StoreContent(ctx, &Content{Node: wire})
	require.NoError(t, err)

	_, err = stores.Nodes.GetByUUID(ctx, node.UUID)
	require.NoError(t, err)
}
